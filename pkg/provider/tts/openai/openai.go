// Package openai speaks through OpenAI's /audio/speech and always asks for
// MP3 so the clips can be stitched.
package openai

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/portalvoice/pkg/provider/tts"
)

// maxInputLength is the per-request character limit of the speech API.
const maxInputLength = 4096

var (
	_ tts.Provider = (*Provider)(nil)
	_ tts.Limiter  = (*Provider)(nil)
)

type Provider struct {
	client  oai.Client
	model   string
	voice   string
	speed   float64
	reqOpts []option.RequestOption
}

type Option func(*Provider)

func WithBaseURL(url string) Option {
	return func(p *Provider) { p.reqOpts = append(p.reqOpts, option.WithBaseURL(url)) }
}

// WithModel picks the speech model. Default "tts-1".
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithVoice sets the voice used when a request names none. Default "alloy".
func WithVoice(voice string) Option {
	return func(p *Provider) { p.voice = voice }
}

// WithSpeed sets the speaking rate, 0.25 to 4.0. Zero keeps the API default.
func WithSpeed(speed float64) Option {
	return func(p *Provider) { p.speed = speed }
}

func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.reqOpts = append(p.reqOpts, option.WithHTTPClient(&http.Client{Timeout: d}))
	}
}

// New builds a client that never retries on its own.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai tts: apiKey must not be empty")
	}
	p := &Provider{model: "tts-1", voice: "alloy"}
	for _, o := range opts {
		o(p)
	}
	if p.speed != 0 && (p.speed < 0.25 || p.speed > 4) {
		return nil, fmt.Errorf("openai tts: speed %.2f outside [0.25, 4]", p.speed)
	}
	p.client = oai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}, p.reqOpts...)...)
	return p, nil
}

func (p *Provider) MaxInputLength() int { return maxInputLength }

// Synthesize implements tts.Provider. The model infers the language from the
// text, so req.Language is not sent.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Result, error) {
	params := oai.AudioSpeechNewParams{
		Input:          req.Text,
		Model:          oai.SpeechModel(p.model),
		Voice:          oai.AudioSpeechNewParamsVoice(cmp.Or(req.Voice.ID, p.voice)),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatMP3,
	}
	if p.speed != 0 {
		params.Speed = oai.Float(p.speed)
	}
	resp, err := p.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai tts: speech: %w", err)
	}
	defer resp.Body.Close()

	clip, err := io.ReadAll(resp.Body)
	switch {
	case err != nil:
		return nil, fmt.Errorf("openai tts: read audio: %w", err)
	case len(clip) == 0:
		return nil, tts.ErrEmptyAudio
	}
	return &tts.Result{Audio: clip, Format: "mp3"}, nil
}
