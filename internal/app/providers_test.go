package app_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/portalvoice/internal/app"
	"github.com/MrWong99/portalvoice/internal/config"
	"github.com/MrWong99/portalvoice/pkg/provider/llm"
	llmmock "github.com/MrWong99/portalvoice/pkg/provider/llm/mock"
	"github.com/MrWong99/portalvoice/pkg/provider/stt"
	sttmock "github.com/MrWong99/portalvoice/pkg/provider/stt/mock"
	"github.com/MrWong99/portalvoice/pkg/provider/tts"
	ttsmock "github.com/MrWong99/portalvoice/pkg/provider/tts/mock"
)

func TestBuildProviders(t *testing.T) {
	t.Parallel()

	primary := &llmmock.Provider{CompleteErr: errors.New("openai 503")}
	backup := &llmmock.Provider{Responses: []string{"dari cadangan"}}

	reg := config.NewRegistry()
	reg.RegisterLLM("openai", func(config.ProviderEntry) (llm.Provider, error) { return primary, nil })
	reg.RegisterLLM("ollama", func(config.ProviderEntry) (llm.Provider, error) { return backup, nil })
	reg.RegisterSTT("openai", func(config.ProviderEntry) (stt.Provider, error) { return &sttmock.Provider{Text: "halo"}, nil })
	reg.RegisterTTS("openai", func(config.ProviderEntry) (tts.Provider, error) { return &ttsmock.Provider{}, nil })
	reg.RegisterTTS("google-translate", func(config.ProviderEntry) (tts.Provider, error) { return &ttsmock.Provider{}, nil })

	cfg := testConfig()
	cfg.Providers.LLM = config.ProviderEntry{
		Name:      "openai",
		Fallbacks: []config.ProviderEntry{{Name: "ollama"}},
	}
	cfg.Providers.STT = config.ProviderEntry{Name: "openai"}
	cfg.Providers.TTS = map[string]config.ProviderEntry{
		"chatgpt":    {Name: "openai"},
		"google_tts": {Name: "google-translate"},
	}

	ps, err := app.BuildProviders(reg, cfg)
	if err != nil {
		t.Fatalf("BuildProviders: %v", err)
	}
	if ps.STT == nil || len(ps.TTS) != 2 {
		t.Fatalf("providers = %+v", ps)
	}

	// The LLM is a failover group: the failing primary hands over to ollama.
	resp, err := ps.LLM.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "dari cadangan" {
		t.Errorf("content = %q, want fallback reply", resp.Content)
	}
	if len(primary.Calls()) != 1 || len(backup.Calls()) != 1 {
		t.Errorf("calls primary/backup = %d/%d, want 1/1", len(primary.Calls()), len(backup.Calls()))
	}
}

func TestBuildProviders_Errors(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	reg.RegisterLLM("openai", func(config.ProviderEntry) (llm.Provider, error) { return &llmmock.Provider{}, nil })

	cfg := testConfig()
	cfg.Providers.LLM = config.ProviderEntry{
		Name:      "openai",
		Fallbacks: []config.ProviderEntry{{Name: "ollama"}},
	}

	_, err := app.BuildProviders(reg, cfg)
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Fatalf("err = %v, want ErrProviderNotRegistered", err)
	}
}
