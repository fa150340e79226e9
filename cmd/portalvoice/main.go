// Command portalvoice serves the voice assistant API of the court service
// portal: speech or typed text in, a spoken answer or a portal link out.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	anyllmlib "github.com/mozilla-ai/any-llm-go"
	flag "github.com/spf13/pflag"

	"github.com/MrWong99/portalvoice/internal/app"
	"github.com/MrWong99/portalvoice/internal/config"
	"github.com/MrWong99/portalvoice/internal/observe"
	"github.com/MrWong99/portalvoice/pkg/provider/llm"
	"github.com/MrWong99/portalvoice/pkg/provider/llm/anyllm"
	oallm "github.com/MrWong99/portalvoice/pkg/provider/llm/openai"
	"github.com/MrWong99/portalvoice/pkg/provider/stt"
	"github.com/MrWong99/portalvoice/pkg/provider/stt/deepgram"
	oastt "github.com/MrWong99/portalvoice/pkg/provider/stt/openai"
	"github.com/MrWong99/portalvoice/pkg/provider/stt/whisper"
	"github.com/MrWong99/portalvoice/pkg/provider/tts"
	"github.com/MrWong99/portalvoice/pkg/provider/tts/coqui"
	"github.com/MrWong99/portalvoice/pkg/provider/tts/elevenlabs"
	"github.com/MrWong99/portalvoice/pkg/provider/tts/googletranslate"
	oatts "github.com/MrWong99/portalvoice/pkg/provider/tts/openai"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.StringP("config", "c", "config.yaml", "path to the YAML configuration file")
	envFile := flag.String("env-file", ".env", "optional dotenv file loaded before the config")
	watch := flag.Bool("watch", true, "reload log level and catalog when the config file changes")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "portalvoice: load %s: %v\n", *envFile, err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "portalvoice: config file %q not found; copy configs/config.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "portalvoice: %v\n", err)
		}
		return 1
	}

	level := new(slog.LevelVar)
	level.Set(app.SlogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("portalvoice starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetry, err := observe.Init(ctx, observe.Setup{Version: version, RuntimeMetrics: true})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg, cfg.Voice.Language)

	providers, err := app.BuildProviders(reg, cfg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}
	logProviders(cfg)

	application, err := app.New(ctx, cfg, providers,
		app.WithLevelVar(level),
		app.WithMetricsHandler(telemetry.Handler()),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	if *watch {
		w, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
			if err := application.ApplyConfig(ctx, old, new); err != nil {
				slog.Error("config reload failed", "err", err)
			}
		})
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			defer w.Stop()
			go reloadOnHangup(ctx, w)
		}
	}

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	slog.Info("shutdown signal received, stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// reloadOnHangup re-reads the config on SIGHUP, for filesystems where change
// events do not arrive.
func reloadOnHangup(ctx context.Context, w *config.Watcher) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			applied, err := w.Reload()
			if err != nil {
				slog.Error("config reload failed", "err", err)
				continue
			}
			slog.Info("config reload requested", "applied", applied)
		}
	}
}

// registerBuiltinProviders wires every provider implementation shipped with
// portalvoice into reg. lang is the spoken language used when an entry sets
// no options.language of its own.
func registerBuiltinProviders(reg *config.Registry, lang string) {
	language := func(e config.ProviderEntry) string {
		if l := optString(e.Options, "language"); l != "" {
			return l
		}
		return lang
	}

	// ── LLM ──────────────────────────────────────────────────────────────────
	reg.RegisterLLM("openai", func(e config.ProviderEntry) (llm.Provider, error) {
		var opts []oallm.Option
		if e.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(e.BaseURL))
		}
		if org := optString(e.Options, "organization"); org != "" {
			opts = append(opts, oallm.WithOrganization(org))
		}
		return oallm.New(e.APIKey, e.Model, opts...)
	})

	for _, backend := range []string{"anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"} {
		reg.RegisterLLM(backend, func(e config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if e.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(e.APIKey))
			}
			if e.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(e.BaseURL))
			}
			return anyllm.New(backend, e.Model, opts...)
		})
	}

	// ── STT ──────────────────────────────────────────────────────────────────
	reg.RegisterSTT("openai", func(e config.ProviderEntry) (stt.Provider, error) {
		opts := []oastt.Option{oastt.WithLanguage(language(e))}
		if e.Model != "" {
			opts = append(opts, oastt.WithModel(e.Model))
		}
		if e.BaseURL != "" {
			opts = append(opts, oastt.WithBaseURL(e.BaseURL))
		}
		if prompt := optString(e.Options, "prompt"); prompt != "" {
			opts = append(opts, oastt.WithPrompt(prompt))
		}
		return oastt.New(e.APIKey, opts...)
	})

	reg.RegisterSTT("deepgram", func(e config.ProviderEntry) (stt.Provider, error) {
		opts := []deepgram.Option{deepgram.WithLanguage(language(e))}
		if e.Model != "" {
			opts = append(opts, deepgram.WithModel(e.Model))
		}
		if e.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(e.BaseURL))
		}
		return deepgram.New(e.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(e config.ProviderEntry) (stt.Provider, error) {
		opts := []whisper.Option{whisper.WithLanguage(language(e))}
		if e.Model != "" {
			opts = append(opts, whisper.WithModel(e.Model))
		}
		return whisper.New(e.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(e config.ProviderEntry) (stt.Provider, error) {
		modelPath := e.Model
		if modelPath == "" {
			modelPath = optString(e.Options, "model_path")
		}
		return whisper.NewNative(modelPath,
			whisper.WithNativeLanguage(language(e)),
			whisper.WithNativeConcurrency(optInt(e.Options, "concurrency")),
		)
	})

	// ── TTS ──────────────────────────────────────────────────────────────────
	reg.RegisterTTS("google-translate", func(e config.ProviderEntry) (tts.Provider, error) {
		opts := []googletranslate.Option{googletranslate.WithLanguage(language(e))}
		if e.BaseURL != "" {
			opts = append(opts, googletranslate.WithHost(e.BaseURL))
		}
		if slow, ok := e.Options["slow"].(bool); ok {
			opts = append(opts, googletranslate.WithSlow(slow))
		}
		return googletranslate.New(opts...)
	})

	reg.RegisterTTS("openai", func(e config.ProviderEntry) (tts.Provider, error) {
		var opts []oatts.Option
		if e.Model != "" {
			opts = append(opts, oatts.WithModel(e.Model))
		}
		if e.BaseURL != "" {
			opts = append(opts, oatts.WithBaseURL(e.BaseURL))
		}
		if v := optString(e.Options, "voice"); v != "" {
			opts = append(opts, oatts.WithVoice(v))
		}
		if speed, ok := optFloat(e.Options, "speed"); ok {
			opts = append(opts, oatts.WithSpeed(speed))
		}
		return oatts.New(e.APIKey, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(e config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if e.Model != "" {
			opts = append(opts, elevenlabs.WithModel(e.Model))
		}
		if e.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(e.BaseURL))
		}
		if f := optString(e.Options, "output_format"); f != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(f))
		}
		if v := optString(e.Options, "voice"); v != "" {
			opts = append(opts, elevenlabs.WithVoice(v))
		}
		stability, okS := optFloat(e.Options, "stability")
		similarity, okB := optFloat(e.Options, "similarity_boost")
		if okS && okB {
			opts = append(opts, elevenlabs.WithVoiceSettings(stability, similarity))
		}
		return elevenlabs.New(e.APIKey, opts...)
	})

	reg.RegisterTTS("coqui", func(e config.ProviderEntry) (tts.Provider, error) {
		opts := []coqui.Option{coqui.WithLanguage(language(e))}
		if mode := optString(e.Options, "api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		return coqui.New(e.BaseURL, opts...)
	})

	for _, kind := range []string{"llm", "stt", "tts"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

func logProviders(cfg *config.Config) {
	slog.Info("provider configured", "kind", "llm", "name", cfg.Providers.LLM.Name, "model", cfg.Providers.LLM.Model,
		"fallbacks", len(cfg.Providers.LLM.Fallbacks))
	if cfg.Providers.STT.Name == "" {
		slog.Info("no stt provider configured; audio submissions are rejected")
	} else {
		slog.Info("provider configured", "kind", "stt", "name", cfg.Providers.STT.Name, "model", cfg.Providers.STT.Model)
	}
	for voice, e := range cfg.Providers.TTS {
		slog.Info("voice configured", "voice", voice, "name", e.Name, "default", voice == cfg.Voice.Default)
	}
}

// optString extracts a string value from a provider Options map.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optInt reads an integer option. YAML decodes whole numbers as int; JSON
// and env overrides may yield float64.
func optInt(opts map[string]any, key string) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

// optFloat reads a numeric option; YAML decodes "1" as int and "1.0" as
// float64.
func optFloat(opts map[string]any, key string) (float64, bool) {
	switch v := opts[key].(type) {
	case int:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}
