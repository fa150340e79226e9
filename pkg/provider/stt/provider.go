// Package stt defines the Provider interface for speech-to-text backends.
//
// A provider takes one complete utterance (the audio the client captured
// between speech start and speech end, or an uploaded file) and returns its
// transcript. Backends include the OpenAI transcription API, a local
// whisper.cpp server or in-process model, and Deepgram's prerecorded API.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/portalvoice/pkg/types"
)

// MaxUploadBytes is the largest audio payload accepted for transcription.
const MaxUploadBytes = 25 << 20

var (
	// ErrEmptyAudio is returned when the audio payload has no bytes.
	ErrEmptyAudio = errors.New("stt: audio is empty")

	// ErrTooLarge is returned when the audio payload exceeds MaxUploadBytes.
	ErrTooLarge = errors.New("stt: audio file too large")
)

// Audio is one encoded audio clip to be transcribed.
type Audio struct {
	// Data is the encoded clip (WAV, MP3, WebM, ...).
	Data []byte

	// Filename is the name reported to the backend. Several APIs use its
	// extension to pick a decoder, so it should match the container.
	Filename string

	// ContentType is the media type of Data, e.g. "audio/wav".
	ContentType string

	// Language is an optional recognition hint (e.g. "id"). Empty lets the
	// provider default apply.
	Language string
}

// Validate checks the payload size limits shared by every backend.
func (a Audio) Validate() error {
	if len(a.Data) == 0 {
		return ErrEmptyAudio
	}
	if len(a.Data) > MaxUploadBytes {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrTooLarge, len(a.Data), MaxUploadBytes)
	}
	return nil
}

// FilenameOrDefault returns Filename, or "audio.wav" when it is empty.
func (a Audio) FilenameOrDefault() string {
	if a.Filename == "" {
		return "audio.wav"
	}
	return a.Filename
}

// ContentTypeOrDefault returns ContentType, or "audio/wav" when it is empty.
func (a Audio) ContentTypeOrDefault() string {
	if a.ContentType == "" {
		return "audio/wav"
	}
	return a.ContentType
}

// Provider is the abstraction over any speech-to-text backend.
type Provider interface {
	// Transcribe converts audio to text. The returned transcript has Origin
	// set to types.OriginAudio. An empty but successful recognition returns a
	// transcript with empty Text and a nil error.
	Transcribe(ctx context.Context, audio Audio) (types.Transcript, error)
}
