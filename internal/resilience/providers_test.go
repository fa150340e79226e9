package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/portalvoice/pkg/provider/llm"
	llmmock "github.com/MrWong99/portalvoice/pkg/provider/llm/mock"
	"github.com/MrWong99/portalvoice/pkg/provider/stt"
	sttmock "github.com/MrWong99/portalvoice/pkg/provider/stt/mock"
	"github.com/MrWong99/portalvoice/pkg/provider/tts"
	ttsmock "github.com/MrWong99/portalvoice/pkg/provider/tts/mock"
	"github.com/MrWong99/portalvoice/pkg/types"
)

func quiet() BreakerSettings {
	return BreakerSettings{OnChange: func(string, State, State) {}}
}

func TestLLM_Complete(t *testing.T) {
	t.Parallel()
	primary := &llmmock.Provider{CompleteErr: errors.New("rate limited")}
	backup := &llmmock.Provider{Responses: []string{"Silakan buka menu e-Court."}}
	p := NewLLM(NewFailover[llm.Provider](quiet()).Add("openai", primary).Add("ollama", backup))

	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []types.Message{{Role: "user", Content: "cara daftar gugatan online"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "Silakan buka menu e-Court." {
		t.Errorf("content = %q", resp.Content)
	}
	if len(primary.Calls()) != 1 || len(backup.Calls()) != 1 {
		t.Errorf("calls = %d/%d, want 1/1", len(primary.Calls()), len(backup.Calls()))
	}
}

func TestSTT_Transcribe(t *testing.T) {
	t.Parallel()
	primary := &sttmock.Provider{Err: errors.New("whisper unavailable")}
	backup := &sttmock.Provider{Text: "buka jadwal sidang"}
	p := NewSTT(NewFailover[stt.Provider](quiet()).Add("openai", primary).Add("whisper", backup))

	tr, err := p.Transcribe(context.Background(), stt.Audio{Data: []byte("RIFF....WAVE")})
	if err != nil || tr.Text != "buka jadwal sidang" {
		t.Fatalf("Transcribe = %q, %v", tr.Text, err)
	}

	primary.Calls, backup.Calls = nil, nil
	if _, err := p.Transcribe(context.Background(), stt.Audio{}); !errors.Is(err, stt.ErrEmptyAudio) {
		t.Fatalf("err = %v, want ErrEmptyAudio", err)
	}
	if primary.CallCount()+backup.CallCount() != 0 {
		t.Error("empty audio reached a backend")
	}
}

func TestTTS_Synthesize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		primary *ttsmock.Provider
		want    string
		wantErr error
	}{
		{"primary", &ttsmock.Provider{Audio: []byte("id3-primary")}, "id3-primary", nil},
		{"error fails over", &ttsmock.Provider{Err: errors.New("503")}, "id3-backup", nil},
		{"empty audio fails over", &ttsmock.Provider{}, "id3-backup", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := NewTTS(NewFailover[tts.Provider](quiet()).
				Add("chatgpt/openai", tt.primary).
				Add("chatgpt/coqui", &ttsmock.Provider{Audio: []byte("id3-backup")}))

			res, err := p.Synthesize(context.Background(), tts.Request{Text: "Selamat datang."})
			if err != nil {
				t.Fatalf("Synthesize: %v", err)
			}
			if string(res.Audio) != tt.want {
				t.Errorf("audio = %q, want %q", res.Audio, tt.want)
			}
		})
	}
}

func TestTTS_AllFail(t *testing.T) {
	t.Parallel()
	p := NewTTS(NewFailover[tts.Provider](quiet()).
		Add("a", &ttsmock.Provider{}).
		Add("b", &ttsmock.Provider{Err: errors.New("down")}))

	_, err := p.Synthesize(context.Background(), tts.Request{Text: "halo"})
	if !errors.Is(err, ErrExhausted) || !errors.Is(err, tts.ErrEmptyAudio) {
		t.Fatalf("err = %v, want ErrExhausted wrapping ErrEmptyAudio", err)
	}
}

func TestTTS_MaxInputLength(t *testing.T) {
	t.Parallel()
	p := NewTTS(NewFailover[tts.Provider](quiet()).
		Add("openai", &ttsmock.Provider{MaxInput: 4096}).
		Add("google", &ttsmock.Provider{MaxInput: 200}).
		Add("unlimited", &ttsmock.Provider{}))

	if got := p.MaxInputLength(); got != 200 {
		t.Fatalf("MaxInputLength = %d, want 200", got)
	}
}
