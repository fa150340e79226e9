package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/coder/websocket"

	"github.com/MrWong99/portalvoice/pkg/provider/tts"
	"github.com/MrWong99/portalvoice/pkg/types"
)

// newWSServer starts a fake stream-input endpoint. It records the text
// messages it receives and answers with the given audio frames, the last one
// marked final.
func newWSServer(t *testing.T, frames [][]byte, received chan<- []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		var texts []string
		for {
			_, msg, err := conn.Read(r.Context())
			if err != nil {
				return
			}
			var m map[string]any
			_ = json.Unmarshal(msg, &m)
			text, _ := m["text"].(string)
			texts = append(texts, text)
			if text == "" {
				break
			}
		}
		received <- texts

		for i, f := range frames {
			resp := audioResponse{Audio: base64.StdEncoding.EncodeToString(f), IsFinal: i == len(frames)-1}
			data, _ := json.Marshal(resp)
			if err := conn.Write(r.Context(), websocket.MessageText, data); err != nil {
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestSynthesize_CollectsFrames(t *testing.T) {
	t.Parallel()

	received := make(chan []string, 1)
	srv := newWSServer(t, [][]byte{{1, 2}, {3}, {4, 5}}, received)
	defer srv.Close()

	p, err := New("key", WithBaseURL(wsURL(srv)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := p.Synthesize(context.Background(), tts.Request{
		Text:  "Halo semua.",
		Voice: types.VoiceProfile{ID: "voice-1"},
	})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(res.Audio) != string([]byte{1, 2, 3, 4, 5}) {
		t.Errorf("audio = %v", res.Audio)
	}
	if res.Format != "mp3" {
		t.Errorf("format = %q, want mp3", res.Format)
	}

	texts := <-received
	want := []string{" ", "Halo semua. ", ""}
	if strings.Join(texts, "|") != strings.Join(want, "|") {
		t.Errorf("texts = %q, want %q", texts, want)
	}
}

func TestSynthesize_NoVoice(t *testing.T) {
	t.Parallel()

	p, _ := New("key")
	if _, err := p.Synthesize(context.Background(), tts.Request{Text: "x"}); err == nil {
		t.Fatal("expected error without voice ID")
	}
}

func TestStreamURL(t *testing.T) {
	t.Parallel()

	p, _ := New("key", WithModel("eleven_multilingual_v2"))
	got := p.streamURL("voice-abc123")
	for _, want := range []string{
		"wss://api.elevenlabs.io/v1/text-to-speech/voice-abc123/stream-input?",
		"model_id=eleven_multilingual_v2",
		"output_format=mp3_44100_128",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("URL %q missing %q", got, want)
		}
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		key     string
		opts    []Option
		wantErr bool
	}{
		{name: "defaults", key: "key"},
		{name: "mp3 variant", key: "key", opts: []Option{WithOutputFormat("mp3_22050_32")}},
		{name: "pcm rejected", key: "key", opts: []Option{WithOutputFormat("pcm_16000")}, wantErr: true},
		{name: "ulaw rejected", key: "key", opts: []Option{WithOutputFormat("ulaw_8000")}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := New(tt.key, tt.opts...); (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSynthesize_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		for i := 0; i < 3; i++ {
			if _, _, err := conn.Read(r.Context()); err != nil {
				return
			}
		}
		data, _ := json.Marshal(audioResponse{Error: "quota_exceeded", Message: "out of characters"})
		_ = conn.Write(r.Context(), websocket.MessageText, data)
	}))
	defer srv.Close()

	p, _ := New("key", WithBaseURL(wsURL(srv)), WithVoice("voice-1"))
	_, err := p.Synthesize(context.Background(), tts.Request{Text: "Halo."})
	if err == nil || !strings.Contains(err.Error(), "quota_exceeded") {
		t.Fatalf("err = %v, want server error", err)
	}
}

func TestNew_EmptyKey(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty api key")
	}
}
