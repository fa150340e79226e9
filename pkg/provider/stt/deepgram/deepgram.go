// Package deepgram transcribes utterances with Deepgram's prerecorded API
// (POST /v1/listen). The clip goes up as the raw request body.
package deepgram

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrWong99/portalvoice/pkg/provider/internal/httpapi"
	"github.com/MrWong99/portalvoice/pkg/provider/stt"
	"github.com/MrWong99/portalvoice/pkg/types"
)

const (
	defaultEndpoint = "https://api.deepgram.com/v1/listen"
	defaultModel    = "nova-3"
	defaultLanguage = "en"
)

var _ stt.Provider = (*Provider)(nil)

type Option func(*Provider)

// WithModel picks the model, e.g. "nova-3" or "base".
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

func WithLanguage(language string) Option {
	return func(p *Provider) { p.language = language }
}

// WithKeywords boosts portal and service names. Entries use Deepgram's
// "term:boost" form.
func WithKeywords(keywords ...string) Option {
	return func(p *Provider) { p.keywords = append(p.keywords, keywords...) }
}

// WithEndpoint replaces the listen URL.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) { p.endpoint = endpoint }
}

type Provider struct {
	apiKey   string
	endpoint string
	model    string
	language string
	keywords []string
	api      *httpapi.Client
}

func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		endpoint: defaultEndpoint,
		model:    defaultModel,
		language: defaultLanguage,
		api:      httpapi.New("deepgram", 30*time.Second),
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

func (p *Provider) buildURL(lang string) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", cmp.Or(lang, p.language))
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")
	if len(p.keywords) > 0 {
		q["keywords"] = append(q["keywords"], p.keywords...)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type alternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

type listenResponse struct {
	Results struct {
		Channels []struct {
			DetectedLanguage string        `json:"detected_language"`
			Alternatives     []alternative `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// best returns the top alternative of the first channel. A channel without
// alternatives is silence, not an error.
func (r *listenResponse) best() (text, language string, err error) {
	if len(r.Results.Channels) == 0 {
		return "", "", errors.New("deepgram: response has no channels")
	}
	ch := r.Results.Channels[0]
	if len(ch.Alternatives) > 0 {
		text = strings.TrimSpace(ch.Alternatives[0].Transcript)
	}
	return text, ch.DetectedLanguage, nil
}

// Transcribe implements stt.Provider. The transcript language is the one
// Deepgram detected, else the request hint.
func (p *Provider) Transcribe(ctx context.Context, audio stt.Audio) (types.Transcript, error) {
	if err := audio.Validate(); err != nil {
		return types.Transcript{}, err
	}
	endpoint, err := p.buildURL(audio.Language)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("deepgram: build URL: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(audio.Data))
	if err != nil {
		return types.Transcript{}, fmt.Errorf("deepgram: create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+p.apiKey)
	req.Header.Set("Content-Type", audio.ContentTypeOrDefault())

	var resp listenResponse
	if err := p.api.DoJSON(req, &resp); err != nil {
		return types.Transcript{}, err
	}
	text, lang, err := resp.best()
	if err != nil {
		return types.Transcript{}, err
	}
	return types.Transcript{Text: text, Origin: types.OriginAudio, Language: cmp.Or(lang, audio.Language)}, nil
}
