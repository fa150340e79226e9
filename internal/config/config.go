// Package config provides the configuration schema, loader, provider registry
// and file watcher for the portalvoice server.
package config

import (
	"time"

	"github.com/MrWong99/portalvoice/internal/catalog"
)

// LogLevel controls log verbosity for the portalvoice server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr     = ":8080"
	DefaultMaxUploadBytes = 25 << 20
	DefaultVoice          = "chatgpt"
	DefaultLanguage       = "id"
	DefaultSTTTimeout     = 30 * time.Second
	DefaultChatTimeout    = 30 * time.Second
	DefaultSynthTimeout   = 15 * time.Second
)

// Config is the root configuration structure for portalvoice.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Voice     VoiceConfig     `yaml:"voice"`
	Intent    IntentConfig    `yaml:"intent"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Timeouts  TimeoutsConfig  `yaml:"timeouts"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. It is hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`

	// MaxUploadBytes caps the audio upload. Defaults to 25 MiB, the
	// transcription API limit.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ProvidersConfig declares the provider implementation for each stage. TTS
// is keyed by voice name: the key is what clients send as the channel.
type ProvidersConfig struct {
	LLM ProviderEntry            `yaml:"llm"`
	STT ProviderEntry            `yaml:"stt"`
	TTS map[string]ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "deepgram").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	// Use ${VAR} to read it from the environment.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o-mini", "whisper-1").
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered by the fields above.
	Options map[string]any `yaml:"options"`

	// Fallbacks are tried in order when this provider fails. Each runs
	// behind its own circuit breaker.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`
}

// VoiceConfig selects the default voice and spoken language.
type VoiceConfig struct {
	// Default is the providers.tts key used when a request names no channel.
	Default string `yaml:"default"`

	// Language is passed to STT and TTS backends (e.g., "id").
	Language string `yaml:"language"`
}

// IntentConfig tunes the two router passes. Zero values select the router
// defaults; temperatures are pointers so that 0 can be set explicitly.
type IntentConfig struct {
	Persona           string   `yaml:"persona"`
	TopicMaxTokens    int      `yaml:"topic_max_tokens"`
	TopicTemperature  *float64 `yaml:"topic_temperature"`
	AnswerMaxTokens   int      `yaml:"answer_max_tokens"`
	AnswerTemperature *float64 `yaml:"answer_temperature"`
	Candidates        int      `yaml:"candidates"`
}

// CatalogConfig locates the feature catalog. With a PostgresDSN the catalog
// lives in PostgreSQL and the seed is upserted at startup; otherwise it is
// kept in memory.
type CatalogConfig struct {
	PostgresDSN string `yaml:"postgres_dsn"`

	// SeedFile is a YAML file of entries (see catalog.SeedFile).
	SeedFile string `yaml:"seed_file"`

	// Entries are inline catalog entries, appended after the seed file's.
	Entries []catalog.Entry `yaml:"entries"`
}

// TimeoutsConfig bounds each provider call.
type TimeoutsConfig struct {
	STT       time.Duration `yaml:"stt"`
	Chat      time.Duration `yaml:"chat"`
	Synthesis time.Duration `yaml:"synthesis"`
}

// ApplyDefaults fills zero-valued settings with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.Voice.Default == "" {
		cfg.Voice.Default = defaultVoice(cfg.Providers.TTS)
	}
	if cfg.Voice.Language == "" {
		cfg.Voice.Language = DefaultLanguage
	}
	if cfg.Timeouts.STT == 0 {
		cfg.Timeouts.STT = DefaultSTTTimeout
	}
	if cfg.Timeouts.Chat == 0 {
		cfg.Timeouts.Chat = DefaultChatTimeout
	}
	if cfg.Timeouts.Synthesis == 0 {
		cfg.Timeouts.Synthesis = DefaultSynthTimeout
	}
}

// defaultVoice prefers [DefaultVoice] and otherwise the alphabetically first
// configured voice.
func defaultVoice(tts map[string]ProviderEntry) string {
	if _, ok := tts[DefaultVoice]; ok || len(tts) == 0 {
		return DefaultVoice
	}
	first := ""
	for name := range tts {
		if first == "" || name < first {
			first = name
		}
	}
	return first
}
