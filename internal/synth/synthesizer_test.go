package synth_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/portalvoice/internal/synth"
	"github.com/MrWong99/portalvoice/pkg/audio"
	"github.com/MrWong99/portalvoice/pkg/provider/tts/mock"
	"github.com/MrWong99/portalvoice/pkg/types"
)

func wavClip(frames int) []byte {
	return audio.EncodeWAV(make([]byte, frames*2), 16000, 1)
}

func newSynth(t *testing.T, opts []synth.Option, voices ...synth.Voice) *synth.Synthesizer {
	t.Helper()
	s := synth.New(opts...)
	for _, v := range voices {
		if err := s.Register(v); err != nil {
			t.Fatalf("Register(%q): %v", v.Name, err)
		}
	}
	return s
}

func TestSynthesizer_DefaultVoiceAndLanguage(t *testing.T) {
	t.Parallel()

	google := &mock.Provider{Audio: wavClip(10)}
	chatgpt := &mock.Provider{Audio: wavClip(10)}
	s := newSynth(t, nil,
		synth.Voice{Name: "google_tts", Provider: google, Language: "id"},
		synth.Voice{Name: "chatgpt", Provider: chatgpt, Language: "id", Profile: types.VoiceProfile{ID: "alloy"}},
	)
	if err := s.SetDefault("chatgpt"); err != nil {
		t.Fatalf("SetDefault: %v", err)
	}

	got, err := s.Synthesize(context.Background(), "  Halo.  ", "", "")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if got != audio.EncodeBase64(wavClip(10)) {
		t.Error("clip was not returned as standard base64 of the backend audio")
	}
	if len(google.Calls()) != 0 {
		t.Error("google_tts should not be called for the default voice")
	}
	calls := chatgpt.Calls()
	if len(calls) != 1 {
		t.Fatalf("chatgpt calls = %d, want 1", len(calls))
	}
	if calls[0].Text != "Halo." || calls[0].Language != "id" || calls[0].Voice.ID != "alloy" {
		t.Errorf("request = %+v, want trimmed text, voice language and profile", calls[0])
	}

	if _, err := s.Synthesize(context.Background(), "Halo.", "google_tts", "en"); err != nil {
		t.Fatalf("Synthesize google_tts: %v", err)
	}
	if calls := google.Calls(); len(calls) != 1 || calls[0].Language != "en" {
		t.Errorf("google_tts calls = %+v, want one call with language en", calls)
	}
}

func TestSynthesizer_Base64Backend(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{Audio: wavClip(4), AsBase64: true}
	s := newSynth(t, nil, synth.Voice{Name: "google_tts", Provider: p})

	got, err := s.Synthesize(context.Background(), "Halo.", "google_tts", "")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if got != audio.EncodeBase64(wavClip(4)) {
		t.Error("base64 backend result not normalized")
	}
}

func TestSynthesizer_Errors(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("boom")
	tests := []struct {
		name     string
		provider *mock.Provider
		voice    string
		text     string
		wantKind synth.Kind
		wantErr  error
		noCall   bool
	}{
		{
			name:     "unknown voice",
			provider: &mock.Provider{Audio: wavClip(1)},
			voice:    "robot",
			text:     "Halo.",
			wantKind: synth.KindInput,
			wantErr:  synth.ErrUnknownVoice,
			noCall:   true,
		},
		{
			name:     "empty text",
			provider: &mock.Provider{Audio: wavClip(1)},
			text:     "   ",
			wantKind: synth.KindInput,
			wantErr:  synth.ErrEmptyText,
			noCall:   true,
		},
		{
			name:     "text over backend cap",
			provider: &mock.Provider{Audio: wavClip(1), MaxInput: 3},
			text:     "Halo",
			wantKind: synth.KindInput,
			wantErr:  synth.ErrTextTooLong,
			noCall:   true,
		},
		{
			name:     "transport failure",
			provider: &mock.Provider{Err: errBoom},
			text:     "Halo.",
			wantKind: synth.KindTransport,
			wantErr:  errBoom,
		},
		{
			name:     "empty audio",
			provider: &mock.Provider{},
			text:     "Halo.",
			wantKind: synth.KindDecode,
		},
		{
			name:     "not an audio container",
			provider: &mock.Provider{Audio: []byte("plain text")},
			text:     "Halo.",
			wantKind: synth.KindDecode,
			wantErr:  audio.ErrDecode,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := newSynth(t, nil, synth.Voice{Name: "chatgpt", Provider: tc.provider})

			_, err := s.Synthesize(context.Background(), tc.text, tc.voice, "")
			var serr *synth.SynthesisError
			if !errors.As(err, &serr) {
				t.Fatalf("error = %v, want *SynthesisError", err)
			}
			if serr.Kind != tc.wantKind {
				t.Errorf("Kind = %s, want %s", serr.Kind, tc.wantKind)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Errorf("error = %v, want errors.Is %v", err, tc.wantErr)
			}
			if tc.noCall && len(tc.provider.Calls()) != 0 {
				t.Error("backend was called for rejected input")
			}
		})
	}
}

func TestSynthesizer_Timeout(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{Audio: wavClip(1), Delay: time.Second}
	s := newSynth(t, []synth.Option{synth.WithTimeout(10 * time.Millisecond)},
		synth.Voice{Name: "chatgpt", Provider: p})

	start := time.Now()
	_, err := s.Synthesize(context.Background(), "Halo.", "chatgpt", "")
	if !errors.Is(err, synth.ErrTimeout) {
		t.Fatalf("error = %v, want ErrTimeout", err)
	}
	var serr *synth.SynthesisError
	if !errors.As(err, &serr) || serr.Kind != synth.KindTimeout {
		t.Errorf("error = %v, want KindTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Synthesize took %s, timeout not applied", elapsed)
	}
}

func TestSynthesizer_Registry(t *testing.T) {
	t.Parallel()

	s := synth.New()
	if err := s.Register(synth.Voice{Name: "chatgpt"}); err == nil {
		t.Error("Register with nil provider: want error")
	}
	if err := s.Register(synth.Voice{Provider: &mock.Provider{}}); err == nil {
		t.Error("Register with empty name: want error")
	}
	for _, name := range []string{"google_tts", "chatgpt"} {
		if err := s.Register(synth.Voice{Name: name, Provider: &mock.Provider{}}); err != nil {
			t.Fatalf("Register(%q): %v", name, err)
		}
	}
	if err := s.Register(synth.Voice{Name: "chatgpt", Provider: &mock.Provider{}}); err == nil {
		t.Error("duplicate Register: want error")
	}

	if got := s.Default(); got != "google_tts" {
		t.Errorf("Default = %q, want first registered voice", got)
	}
	if got, want := s.Voices(), []string{"chatgpt", "google_tts"}; !slices.Equal(got, want) {
		t.Errorf("Voices = %v, want %v", got, want)
	}
	if !s.Has("") || !s.Has("chatgpt") || s.Has("robot") {
		t.Error("Has reported wrong membership")
	}
	if err := s.SetDefault("robot"); !errors.Is(err, synth.ErrUnknownVoice) {
		t.Errorf("SetDefault(robot) = %v, want ErrUnknownVoice", err)
	}
}

func TestSynthesizer_MaxInputLength(t *testing.T) {
	t.Parallel()

	s := newSynth(t, nil,
		synth.Voice{Name: "google_tts", Provider: &mock.Provider{MaxInput: 200}},
	)
	if got := s.MaxInputLength("google_tts"); got != 200 {
		t.Errorf("MaxInputLength = %d, want 200", got)
	}
	if got := s.MaxInputLength("robot"); got != 0 {
		t.Errorf("MaxInputLength(unknown) = %d, want 0", got)
	}
}
