// Package openai transcribes through OpenAI's /audio/transcriptions with
// "whisper-1" unless another model is configured.
package openai

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/portalvoice/pkg/provider/stt"
	"github.com/MrWong99/portalvoice/pkg/types"
)

var _ stt.Provider = (*Provider)(nil)

type Provider struct {
	client   oai.Client
	model    string
	language string
	prompt   string
	reqOpts  []option.RequestOption
}

type Option func(*Provider)

func WithBaseURL(url string) Option {
	return func(p *Provider) { p.reqOpts = append(p.reqOpts, option.WithBaseURL(url)) }
}

func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the ISO-639-1 hint used when a clip carries none.
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithPrompt primes recognition with vocabulary, such as the portal names
// of the catalog, that the model would otherwise misspell.
func WithPrompt(prompt string) Option {
	return func(p *Provider) { p.prompt = prompt }
}

func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.reqOpts = append(p.reqOpts, option.WithHTTPClient(&http.Client{Timeout: d}))
	}
}

// New builds a client that never retries on its own; failover belongs to
// the caller.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai stt: apiKey must not be empty")
	}
	p := &Provider{model: "whisper-1"}
	for _, o := range opts {
		o(p)
	}
	p.client = oai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}, p.reqOpts...)...)
	return p, nil
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, audio stt.Audio) (types.Transcript, error) {
	if err := audio.Validate(); err != nil {
		return types.Transcript{}, err
	}
	lang := cmp.Or(audio.Language, p.language)

	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(audio.Data), audio.FilenameOrDefault(), audio.ContentTypeOrDefault()),
		Model: oai.AudioModel(p.model),
	}
	if lang != "" {
		params.Language = oai.String(lang)
	}
	if p.prompt != "" {
		params.Prompt = oai.String(p.prompt)
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("openai stt: transcribe: %w", err)
	}
	return types.Transcript{Text: strings.TrimSpace(resp.Text), Origin: types.OriginAudio, Language: lang}, nil
}
