// Package mock provides a test double for the stt.Provider interface.
//
// Example:
//
//	p := &mock.Provider{Text: "buka portal"}
//	tr, _ := p.Transcribe(ctx, stt.Audio{Data: wav})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/portalvoice/pkg/provider/stt"
	"github.com/MrWong99/portalvoice/pkg/types"
)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Audio is a copy of the clip passed to Transcribe.
	Audio stt.Audio
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Text is returned as the transcript text.
	Text string

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// Validate makes Transcribe apply stt.Audio.Validate before answering.
	Validate bool

	// Calls records every invocation of Transcribe in order.
	Calls []TranscribeCall
}

// Transcribe records the call and returns Text or Err.
func (p *Provider) Transcribe(ctx context.Context, audio stt.Audio) (types.Transcript, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := audio
	cp.Data = append([]byte(nil), audio.Data...)
	p.Calls = append(p.Calls, TranscribeCall{Ctx: ctx, Audio: cp})

	if p.Validate {
		if err := audio.Validate(); err != nil {
			return types.Transcript{}, err
		}
	}
	if p.Err != nil {
		return types.Transcript{}, p.Err
	}
	return types.Transcript{Text: p.Text, Origin: types.OriginAudio, Language: audio.Language}, nil
}

// CallCount returns the number of recorded calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

var _ stt.Provider = (*Provider)(nil)
