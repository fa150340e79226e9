// Package coqui speaks through a self-hosted Coqui TTS server. Both server
// flavours answer with a complete WAV file:
//
//   - [APIModeStandard] (default): the stock tts-server image, GET /api/tts
//     with query parameters.
//   - [APIModeXTTS]: the XTTS v2 API server, POST /tts_to_audio/ with a JSON
//     body naming a reference speaker file.
//
//	p, _ := coqui.New("http://localhost:5002", coqui.WithLanguage("id"))
package coqui

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrWong99/portalvoice/pkg/audio"
	"github.com/MrWong99/portalvoice/pkg/provider/internal/httpapi"
	"github.com/MrWong99/portalvoice/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

const (
	apiTTSEndpoint = "/api/tts"
	ttsEndpoint    = "/tts_to_audio/"
)

// APIMode selects the server flavour.
type APIMode string

const (
	APIModeStandard APIMode = "standard"
	APIModeXTTS     APIMode = "xtts"
)

type Option func(*Provider)

// WithLanguage sets the language used when a request has none. Default "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithTimeout bounds one synthesis round trip. Default 30s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.api.HTTP.Timeout = d }
}

func WithAPIMode(mode APIMode) Option {
	return func(p *Provider) { p.mode = mode }
}

// Provider is safe for concurrent use.
type Provider struct {
	base     string
	language string
	mode     APIMode
	api      *httpapi.Client
}

// New targets the server at serverURL, for example "http://localhost:5002".
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	p := &Provider{
		base:     strings.TrimRight(serverURL, "/"),
		language: "en",
		mode:     APIModeStandard,
		api:      httpapi.New("coqui", 30*time.Second),
	}
	for _, o := range opts {
		o(p)
	}
	switch p.mode {
	case APIModeStandard, APIModeXTTS:
	default:
		return nil, fmt.Errorf("coqui: unknown api mode %q", p.mode)
	}
	return p, nil
}

// ttsRequest is the XTTS request body.
type ttsRequest struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}

// Synthesize implements tts.Provider. req.Voice.ID is the speaker: a speaker
// id in standard mode (optional), a reference wav on the server in XTTS mode
// (required).
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Result, error) {
	lang := cmp.Or(req.Language, p.language)
	httpReq, err := p.request(ctx, req.Text, req.Voice.ID, lang)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "audio/wav")

	body, err := p.api.Do(httpReq)
	switch {
	case err != nil:
		return nil, err
	case len(body) == 0:
		return nil, tts.ErrEmptyAudio
	case audio.DetectFormat(body) != audio.ContainerWAV:
		return nil, fmt.Errorf("coqui: response is not a wav file (%d bytes)", len(body))
	}
	return &tts.Result{Audio: body, Format: "wav"}, nil
}

func (p *Provider) request(ctx context.Context, text, speaker, lang string) (*http.Request, error) {
	if p.mode == APIModeXTTS {
		if speaker == "" {
			return nil, errors.New("coqui: xtts mode needs voice.ID naming a speaker wav")
		}
		body, err := json.Marshal(ttsRequest{Text: text, SpeakerWav: speaker, Language: lang})
		if err != nil {
			return nil, fmt.Errorf("coqui: encode request: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.base+ttsEndpoint, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("coqui: build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}

	q := url.Values{"text": {text}}
	if speaker != "" {
		q.Set("speaker_id", speaker)
	}
	if lang != "" {
		q.Set("language_id", lang)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.base+apiTTSEndpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: build request: %w", err)
	}
	return req, nil
}
