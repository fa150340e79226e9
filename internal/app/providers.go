package app

import (
	"errors"
	"fmt"
	"sort"

	"github.com/MrWong99/portalvoice/internal/config"
	"github.com/MrWong99/portalvoice/internal/resilience"
	"github.com/MrWong99/portalvoice/pkg/provider/llm"
	"github.com/MrWong99/portalvoice/pkg/provider/stt"
	"github.com/MrWong99/portalvoice/pkg/provider/tts"
)

// Providers holds the constructed backends. STT is nil when only typed
// messages are accepted. TTS is keyed by voice name.
type Providers struct {
	LLM llm.Provider
	STT stt.Provider
	TTS map[string]tts.Provider
}

// BuildProviders instantiates every configured provider through reg. An
// entry with fallbacks becomes a resilience failover so each backend sits
// behind its own breaker.
func BuildProviders(reg *config.Registry, cfg *config.Config) (*Providers, error) {
	ps := &Providers{TTS: make(map[string]tts.Provider, len(cfg.Providers.TTS))}
	var errs []error

	if e := cfg.Providers.LLM; e.Name != "" {
		p, err := buildWithFallbacks(e, "", reg.CreateLLM, func(f *resilience.Failover[llm.Provider]) llm.Provider {
			return resilience.NewLLM(f)
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("llm: %w", err))
		}
		ps.LLM = p
	}

	if e := cfg.Providers.STT; e.Name != "" {
		p, err := buildWithFallbacks(e, "", reg.CreateSTT, func(f *resilience.Failover[stt.Provider]) stt.Provider {
			return resilience.NewSTT(f)
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("stt: %w", err))
		}
		ps.STT = p
	}

	voices := make([]string, 0, len(cfg.Providers.TTS))
	for v := range cfg.Providers.TTS {
		voices = append(voices, v)
	}
	sort.Strings(voices)
	for _, voice := range voices {
		p, err := buildWithFallbacks(cfg.Providers.TTS[voice], voice+"/", reg.CreateTTS, func(f *resilience.Failover[tts.Provider]) tts.Provider {
			return resilience.NewTTS(f)
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("tts %q: %w", voice, err))
			continue
		}
		ps.TTS[voice] = p
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("app: build providers: %w", err)
	}
	return ps, nil
}

// buildWithFallbacks creates the provider for e. When e declares fallbacks,
// the primary and every fallback go into one failover, wrapped by wrap.
// Backends are named prefix + entry name in logs.
func buildWithFallbacks[T any](
	e config.ProviderEntry,
	prefix string,
	create func(config.ProviderEntry) (T, error),
	wrap func(*resilience.Failover[T]) T,
) (T, error) {
	var zero T
	primary, err := create(e)
	if err != nil {
		return zero, fmt.Errorf("%s: %w", e.Name, err)
	}
	if len(e.Fallbacks) == 0 {
		return primary, nil
	}
	f := resilience.NewFailover[T](resilience.BreakerSettings{}).Add(prefix+e.Name, primary)
	for i, fb := range e.Fallbacks {
		p, err := create(fb)
		if err != nil {
			return zero, fmt.Errorf("fallback %d (%s): %w", i, fb.Name, err)
		}
		f.Add(prefix+fb.Name, p)
	}
	return wrap(f), nil
}
