// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to return controlled clips to consumers and to verify which
// text and VoiceProfile reached the TTS backend.
//
// Example:
//
//	p := &mock.Provider{Audio: []byte("clip"), Format: "wav"}
//	res, _ := p.Synthesize(ctx, tts.Request{Text: "Halo."})
package mock

import (
	"context"
	"encoding/base64"
	"sync"
	"time"

	"github.com/MrWong99/portalvoice/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Audio is returned as Result.Audio for every call unless AudioFunc is set.
	Audio []byte

	// AudioFunc, if non-nil, computes the clip per request. It takes
	// precedence over Audio.
	AudioFunc func(req tts.Request) []byte

	// Format is returned as Result.Format. Defaults to "wav".
	Format string

	// AsBase64 makes the mock answer in Result.Base64 instead of Result.Audio.
	AsBase64 bool

	// Err, if non-nil, is returned by every call.
	Err error

	// ErrOnText maps a request text to an error returned for that text only.
	ErrOnText map[string]error

	// Delay blocks each call for the given duration or until ctx is done.
	Delay time.Duration

	// MaxInput, when positive, is reported by MaxInputLength.
	MaxInput int

	// --- Call records ---

	// SynthesizeCalls records every call to Synthesize in order.
	SynthesizeCalls []tts.Request
}

// Synthesize records the call and returns the configured clip or error.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Result, error) {
	p.mu.Lock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, req)
	audio := p.Audio
	if p.AudioFunc != nil {
		audio = p.AudioFunc(req)
	}
	err := p.Err
	if e, ok := p.ErrOnText[req.Text]; ok {
		err = e
	}
	format := p.Format
	asBase64 := p.AsBase64
	delay := p.Delay
	p.mu.Unlock()

	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	if err != nil {
		return nil, err
	}
	if format == "" {
		format = "wav"
	}
	res := &tts.Result{Format: format}
	if asBase64 {
		res.Base64 = encode(audio)
	} else {
		res.Audio = append([]byte(nil), audio...)
	}
	return res, nil
}

// MaxInputLength implements tts.Limiter. It returns 0 when MaxInput is unset.
func (p *Provider) MaxInputLength() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.MaxInput
}

// Calls returns a copy of the recorded requests. Thread-safe.
func (p *Provider) Calls() []tts.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]tts.Request, len(p.SynthesizeCalls))
	copy(out, p.SynthesizeCalls)
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = nil
}

func encode(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}
