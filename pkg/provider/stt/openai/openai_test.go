package openai_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/MrWong99/portalvoice/pkg/provider/stt"
	"github.com/MrWong99/portalvoice/pkg/provider/stt/openai"
	"github.com/MrWong99/portalvoice/pkg/types"
)

func TestNew_EmptyKey(t *testing.T) {
	t.Parallel()

	if _, err := openai.New(""); err == nil {
		t.Fatal("expected error for empty api key")
	}
}

func TestTranscribe(t *testing.T) {
	t.Parallel()

	var gotModel, gotFile, gotLang, gotPrompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotModel = r.FormValue("model")
		gotLang = r.FormValue("language")
		gotPrompt = r.FormValue("prompt")
		f, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_, _ = io.Copy(io.Discard, f)
		gotFile = hdr.Filename
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": "  buka portal  "})
	}))
	defer srv.Close()

	p, err := openai.New("sk-test", openai.WithBaseURL(srv.URL), openai.WithLanguage("id"),
		openai.WithPrompt("e-Court, SIPP, e-Berpadu"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tr, err := p.Transcribe(context.Background(), stt.Audio{Data: []byte("RIFF....WAVE")})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Text != "buka portal" {
		t.Errorf("Text = %q, want %q", tr.Text, "buka portal")
	}
	if tr.Origin != types.OriginAudio {
		t.Errorf("Origin = %v, want audio", tr.Origin)
	}
	if gotModel != "whisper-1" {
		t.Errorf("model = %q, want whisper-1", gotModel)
	}
	if gotLang != "id" {
		t.Errorf("language = %q, want id", gotLang)
	}
	if gotPrompt != "e-Court, SIPP, e-Berpadu" {
		t.Errorf("prompt = %q", gotPrompt)
	}
	if gotFile != "audio.wav" {
		t.Errorf("filename = %q, want audio.wav", gotFile)
	}
}

func TestTranscribe_RejectsBeforeNetwork(t *testing.T) {
	t.Parallel()

	p, _ := openai.New("sk-test", openai.WithBaseURL("http://127.0.0.1:1"))
	_, err := p.Transcribe(context.Background(), stt.Audio{})
	if !errors.Is(err, stt.ErrEmptyAudio) {
		t.Errorf("error = %v, want ErrEmptyAudio", err)
	}
	_, err = p.Transcribe(context.Background(), stt.Audio{Data: make([]byte, stt.MaxUploadBytes+1)})
	if !errors.Is(err, stt.ErrTooLarge) {
		t.Errorf("error = %v, want ErrTooLarge", err)
	}
}

func TestTranscribe_NoRetry(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p, _ := openai.New("sk-test", openai.WithBaseURL(srv.URL))
	if _, err := p.Transcribe(context.Background(), stt.Audio{Data: []byte("RIFF")}); err == nil {
		t.Fatal("expected error for 503")
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}
