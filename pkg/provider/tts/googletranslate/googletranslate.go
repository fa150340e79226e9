// Package googletranslate provides a TTS provider backed by the speech
// endpoint of the Google Translate web UI. It needs no API key but accepts at
// most 200 characters per request and always returns MP3.
//
// The endpoint is the batchexecute RPC used by translate.google.com: the
// request is a form-encoded f.req field holding a doubly JSON-encoded RPC
// envelope, and the response is an anti-XSSI prefixed JSON array whose third
// element is itself a JSON string containing the base64 MP3.
package googletranslate

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
	"unicode/utf8"

	"github.com/MrWong99/portalvoice/pkg/provider/internal/httpapi"
	"github.com/MrWong99/portalvoice/pkg/provider/tts"
)

const (
	defaultHost     = "https://translate.google.com"
	defaultLanguage = "en"
	defaultTimeout  = 10 * time.Second
	batchPath       = "/_/TranslateWebserverUi/data/batchexecute"
	rpcID           = "jQ1olc"

	// MaxInputLength is the longest text the endpoint accepts.
	MaxInputLength = 200
)

var (
	// ErrTextTooLong is returned for text longer than MaxInputLength runes.
	ErrTextTooLong = errors.New("googletranslate: text longer than 200 characters")

	// ErrBadResponse is returned when the response body cannot be parsed.
	ErrBadResponse = errors.New("googletranslate: unexpected response format")
)

var (
	_ tts.Provider = (*Provider)(nil)
	_ tts.Limiter  = (*Provider)(nil)
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithHost overrides the translate host (e.g. "https://translate.google.co.id").
func WithHost(host string) Option {
	return func(p *Provider) {
		p.host = strings.TrimRight(host, "/")
	}
}

// WithLanguage sets the default language code. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithSlow requests the slower speaking rate.
func WithSlow(slow bool) Option {
	return func(p *Provider) {
		p.slow = slow
	}
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 10 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.api.HTTP.Timeout = d
	}
}

// Provider implements tts.Provider against the Google Translate web endpoint.
type Provider struct {
	host     string
	language string
	slow     bool
	api      *httpapi.Client
}

// New creates a Provider with the given options.
func New(opts ...Option) (*Provider, error) {
	p := &Provider{
		host:     defaultHost,
		language: defaultLanguage,
		api:      httpapi.New("googletranslate", defaultTimeout),
	}
	for _, o := range opts {
		o(p)
	}
	u, err := url.Parse(p.host)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("googletranslate: invalid host %q", p.host)
	}
	if p.language == "" {
		return nil, errors.New("googletranslate: language must not be empty")
	}
	return p, nil
}

// MaxInputLength implements tts.Limiter.
func (p *Provider) MaxInputLength() int { return MaxInputLength }

// Synthesize implements tts.Provider. The voice profile is ignored; the
// endpoint has a single voice per language.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Result, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, errors.New("googletranslate: text must not be empty")
	}
	if utf8.RuneCountInString(text) > MaxInputLength {
		return nil, ErrTextTooLong
	}
	form, err := buildForm(text, cmp.Or(req.Language, p.language), p.slow)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.host+batchPath, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("googletranslate: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded;charset=UTF-8")

	body, err := p.api.Do(httpReq)
	if err != nil {
		return nil, err
	}
	b64, err := parseResponse(body)
	if err != nil {
		return nil, err
	}
	return &tts.Result{Base64: b64, Format: "mp3"}, nil
}

// buildForm encodes the f.req RPC envelope.
func buildForm(text, lang string, slow bool) (url.Values, error) {
	var slowArg any
	if slow {
		slowArg = true
	}
	inner, err := json.Marshal([]any{text, lang, slowArg, "null"})
	if err != nil {
		return nil, fmt.Errorf("googletranslate: encode rpc args: %w", err)
	}
	outer, err := json.Marshal([][][]any{{{rpcID, string(inner), nil, "generic"}}})
	if err != nil {
		return nil, fmt.Errorf("googletranslate: encode rpc envelope: %w", err)
	}
	form := url.Values{}
	form.Set("f.req", string(outer))
	return form, nil
}

// parseResponse extracts the base64 MP3 from a batchexecute response body.
// The body starts with an anti-XSSI prefix and a length line; decoding starts
// at the first '[' and reads exactly one JSON value.
func parseResponse(body []byte) (string, error) {
	start := bytes.IndexByte(body, '[')
	if start < 0 {
		return "", fmt.Errorf("%w: no JSON array", ErrBadResponse)
	}

	var envelope [][]json.RawMessage
	if err := json.NewDecoder(bytes.NewReader(body[start:])).Decode(&envelope); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	if len(envelope) == 0 || len(envelope[0]) < 3 {
		return "", fmt.Errorf("%w: short envelope", ErrBadResponse)
	}

	var payload string
	if err := json.Unmarshal(envelope[0][2], &payload); err != nil {
		return "", fmt.Errorf("%w: payload is not a string", ErrBadResponse)
	}
	var inner []string
	if err := json.Unmarshal([]byte(payload), &inner); err != nil {
		return "", fmt.Errorf("%w: payload: %v", ErrBadResponse, err)
	}
	if len(inner) == 0 || inner[0] == "" {
		return "", tts.ErrEmptyAudio
	}
	return inner[0], nil
}
