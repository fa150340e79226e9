// Package whisper transcribes with whisper.cpp, either through a running
// whisper-server ([Provider], POST /inference) or in-process through the CGO
// bindings ([NativeProvider]). whisper.cpp is a batch engine, so every
// Transcribe call is one inference over one utterance.
//
//	p, err := whisper.New("http://localhost:8080", whisper.WithLanguage("id"))
package whisper

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/portalvoice/pkg/provider/internal/httpapi"
	"github.com/MrWong99/portalvoice/pkg/provider/stt"
	"github.com/MrWong99/portalvoice/pkg/types"
)

const (
	defaultLanguage   = "en"
	defaultSampleRate = 16000
)

var _ stt.Provider = (*Provider)(nil)

type Option func(*Provider)

// WithModel names the model for servers that host several. Empty keeps the
// one the server was started with.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithHTTPClient replaces the default client, which times out after 30s.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.api.HTTP = c }
}

// Provider talks to a whisper-server over HTTP.
type Provider struct {
	inference string
	model     string
	language  string
	api       *httpapi.Client
}

// New targets the server at serverURL, for example "http://localhost:8080".
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		inference: strings.TrimRight(serverURL, "/") + "/inference",
		language:  defaultLanguage,
		api:       httpapi.New("whisper", 30*time.Second),
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe implements stt.Provider. The clip is uploaded as is; servers
// built with ffmpeg decode non-WAV containers themselves.
func (p *Provider) Transcribe(ctx context.Context, audio stt.Audio) (types.Transcript, error) {
	if err := audio.Validate(); err != nil {
		return types.Transcript{}, err
	}
	lang := cmp.Or(audio.Language, p.language)

	body, ctype, err := httpapi.Multipart(
		httpapi.File{Field: "file", Name: audio.FilenameOrDefault(), Data: audio.Data},
		map[string]string{"response_format": "json", "language": lang, "model": p.model},
	)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: encode form: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.inference, body)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", ctype)

	var out struct {
		Text string `json:"text"`
	}
	if err := p.api.DoJSON(req, &out); err != nil {
		return types.Transcript{}, err
	}
	return types.Transcript{Text: strings.TrimSpace(out.Text), Origin: types.OriginAudio, Language: lang}, nil
}
