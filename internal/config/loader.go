package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/portalvoice/internal/catalog"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt": {"openai", "deepgram", "whisper", "whisper-native"},
	"tts": {"google-translate", "openai", "elevenlabs", "coqui"},
	"vad": {"energy"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. ${VAR} and $VAR references are expanded from the environment
// before decoding; unknown keys are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	expanded := os.ExpandEnv(string(raw))

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every problem in cfg at once, joined with errors.Join.
// Soft issues such as an unknown provider name are only logged.
func Validate(cfg *Config) error {
	var p problems

	if lvl := cfg.Server.LogLevel; lvl != "" && !lvl.IsValid() {
		p.addf("server.log_level %q is invalid; valid values: debug, info, warn, error", lvl)
	}
	p.nonNegative("server.max_upload_bytes", cfg.Server.MaxUploadBytes)
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		p.addf("server.tls requires both cert_file and key_file")
	}

	llmEntry, sttEntry := cfg.Providers.LLM, cfg.Providers.STT
	if llmEntry.Name == "" {
		p.addf("providers.llm.name is required")
	}
	p.entry("llm", "providers.llm", llmEntry)
	if sttEntry.Name == "" {
		slog.Warn("providers.stt is not configured; only typed messages will be accepted")
	} else {
		p.entry("stt", "providers.stt", sttEntry)
	}

	voices := slices.Sorted(maps.Keys(cfg.Providers.TTS))
	if len(voices) == 0 {
		p.addf("providers.tts must configure at least one voice")
	}
	for _, voice := range voices {
		if voice == "" {
			p.addf("providers.tts has an empty voice name")
			continue
		}
		e := cfg.Providers.TTS[voice]
		if e.Name == "" {
			p.addf("providers.tts.%s.name is required", voice)
		}
		p.entry("tts", "providers.tts."+voice, e)
	}
	if def := cfg.Voice.Default; def != "" && len(voices) > 0 && !slices.Contains(voices, def) {
		p.addf("voice.default %q is not a configured voice; configured: %v", def, voices)
	}

	p.nonNegative("intent.topic_max_tokens", int64(cfg.Intent.TopicMaxTokens))
	p.nonNegative("intent.answer_max_tokens", int64(cfg.Intent.AnswerMaxTokens))
	p.nonNegative("intent.candidates", int64(cfg.Intent.Candidates))
	p.temperature("intent.topic_temperature", cfg.Intent.TopicTemperature)
	p.temperature("intent.answer_temperature", cfg.Intent.AnswerTemperature)

	if err := catalog.ValidateEntries(cfg.Catalog.Entries); err != nil {
		p = append(p, fmt.Errorf("catalog.entries: %w", err))
	}
	if cfg.Catalog.SeedFile == "" && len(cfg.Catalog.Entries) == 0 && cfg.Catalog.PostgresDSN == "" {
		slog.Warn("catalog is empty; navigation requests will get plain answers")
	}

	for _, t := range []struct {
		name string
		d    time.Duration
	}{
		{"timeouts.stt", cfg.Timeouts.STT},
		{"timeouts.chat", cfg.Timeouts.Chat},
		{"timeouts.synthesis", cfg.Timeouts.Synthesis},
	} {
		if t.d < 0 {
			p.addf("%s must not be negative", t.name)
		}
	}

	return errors.Join(p...)
}

// problems collects validation failures in the order they are found.
type problems []error

func (p *problems) addf(format string, args ...any) {
	*p = append(*p, fmt.Errorf(format, args...))
}

func (p *problems) nonNegative(field string, v int64) {
	if v < 0 {
		p.addf("%s must not be negative, got %d", field, v)
	}
}

func (p *problems) temperature(field string, t *float64) {
	if t != nil && (*t < 0 || *t > 2) {
		p.addf("%s %.2f is out of range [0, 2]", field, *t)
	}
}

// entry checks a provider entry and its fallback chain. Fallbacks are one
// level deep.
func (p *problems) entry(kind, prefix string, e ProviderEntry) {
	warnUnknown(kind, e.Name)
	for i, fb := range e.Fallbacks {
		switch {
		case fb.Name == "":
			p.addf("%s.fallbacks[%d].name is required", prefix, i)
		case len(fb.Fallbacks) > 0:
			p.addf("%s.fallbacks[%d] must not declare nested fallbacks", prefix, i)
		default:
			warnUnknown(kind, fb.Name)
		}
	}
}

// warnUnknown logs names missing from [ValidProviderNames]; they may belong
// to a provider registered by another binary.
func warnUnknown(kind, name string) {
	known, ok := ValidProviderNames[kind]
	if name == "" || !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider", "kind", kind, "name", name, "known", known)
}
