package resilience

import (
	"context"

	"github.com/MrWong99/portalvoice/pkg/provider/llm"
	"github.com/MrWong99/portalvoice/pkg/provider/stt"
	"github.com/MrWong99/portalvoice/pkg/provider/tts"
	"github.com/MrWong99/portalvoice/pkg/types"
)

var (
	_ llm.Provider = (*LLM)(nil)
	_ stt.Provider = (*STT)(nil)
	_ tts.Provider = (*TTS)(nil)
	_ tts.Limiter  = (*TTS)(nil)
)

// LLM is a chat backend that fails over between the backends of f.
type LLM struct{ f *Failover[llm.Provider] }

func NewLLM(f *Failover[llm.Provider]) *LLM { return &LLM{f: f} }

func (p *LLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return Call(ctx, p.f, func(b llm.Provider) (*llm.CompletionResponse, error) {
		return b.Complete(ctx, req)
	})
}

// STT is a transcriber that fails over between the backends of f.
type STT struct{ f *Failover[stt.Provider] }

func NewSTT(f *Failover[stt.Provider]) *STT { return &STT{f: f} }

// Transcribe rejects invalid audio before any backend sees it, so an empty
// upload never trips a breaker.
func (p *STT) Transcribe(ctx context.Context, audio stt.Audio) (types.Transcript, error) {
	if err := audio.Validate(); err != nil {
		return types.Transcript{}, err
	}
	return Call(ctx, p.f, func(b stt.Provider) (types.Transcript, error) {
		return b.Transcribe(ctx, audio)
	})
}

// TTS is a voice that fails over between the backends of f.
type TTS struct{ f *Failover[tts.Provider] }

func NewTTS(f *Failover[tts.Provider]) *TTS { return &TTS{f: f} }

// Synthesize treats a backend that answers without audio as failed.
func (p *TTS) Synthesize(ctx context.Context, req tts.Request) (*tts.Result, error) {
	return Call(ctx, p.f, func(b tts.Provider) (*tts.Result, error) {
		res, err := b.Synthesize(ctx, req)
		if err == nil && res.Empty() {
			return nil, tts.ErrEmptyAudio
		}
		return res, err
	})
}

// MaxInputLength is the smallest limit declared by any backend, so every
// backend can take over a chunk. Zero means unlimited.
func (p *TTS) MaxInputLength() int {
	limit := 0
	p.f.Each(func(_ string, b tts.Provider) {
		if l, ok := b.(tts.Limiter); ok {
			if n := l.MaxInputLength(); n > 0 && (limit == 0 || n < limit) {
				limit = n
			}
		}
	})
	return limit
}
