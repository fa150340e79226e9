// Package tts defines the Provider interface for text-to-speech backends.
//
// A provider turns one short piece of text into one encoded audio clip (MP3 or
// WAV). Long answers are split by the caller (see pkg/textchunk) and the clips
// are joined afterwards (see audio.Stitcher), so backends never need to stream.
//
// Implementations must be safe for concurrent use: the response pipeline
// synthesizes several fields of one answer in parallel.
package tts

import (
	"context"
	"errors"

	"github.com/MrWong99/portalvoice/pkg/types"
)

// ErrEmptyAudio is returned by backends whose service answered successfully
// but without any audio payload.
var ErrEmptyAudio = errors.New("tts: empty audio result")

// Request is one synthesis call.
type Request struct {
	// Text is the text to speak. Callers keep it within MaxInputLength for
	// backends that implement Limiter.
	Text string

	// Language is the language code of Text (e.g. "id", "en"). Empty selects
	// the backend default.
	Language string

	// Voice selects a voice inside the backend. A zero value selects the
	// backend default.
	Voice types.VoiceProfile
}

// Result is one synthesized clip. Backends fill either Audio or Base64,
// whichever their service returns natively.
type Result struct {
	// Audio is the encoded clip.
	Audio []byte

	// Base64 is the base64-encoded clip.
	Base64 string

	// Format is the container name, "mp3" or "wav".
	Format string
}

// Empty reports whether the result carries no audio.
func (r *Result) Empty() bool {
	return r == nil || (len(r.Audio) == 0 && r.Base64 == "")
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize converts req.Text to speech. It returns an error if the
	// backend cannot be reached, rejects the request, or ctx is cancelled.
	Synthesize(ctx context.Context, req Request) (*Result, error)
}

// Limiter is implemented by backends that cap the length of a single request.
type Limiter interface {
	// MaxInputLength returns the maximum number of characters (runes) the
	// backend accepts per request.
	MaxInputLength() int
}
