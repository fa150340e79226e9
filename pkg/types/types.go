// Package types defines the shared types used across portalvoice packages.
//
// Each package defines its own domain types; only the data structures that
// cross provider and pipeline boundaries live here to avoid circular imports.
package types

// TranscriptOrigin records where a transcript came from.
type TranscriptOrigin int

const (
	// OriginAudio marks a transcript produced by a speech-to-text provider.
	OriginAudio TranscriptOrigin = iota

	// OriginTyped marks a transcript the user typed directly.
	OriginTyped
)

// String returns the human-readable name of the origin.
func (o TranscriptOrigin) String() string {
	switch o {
	case OriginAudio:
		return "audio"
	case OriginTyped:
		return "typed"
	default:
		return "unknown"
	}
}

// Transcript is the user's question as plain text. It is immutable once
// produced.
type Transcript struct {
	// Text is the transcribed or typed content.
	Text string

	// Origin records whether Text was derived from audio or typed.
	Origin TranscriptOrigin

	// Language is the language reported by the STT provider, if any.
	Language string
}

// Message represents a single message in an LLM conversation.
type Message struct {
	// Role is one of "system", "user" or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// VoiceProfile selects a voice inside one TTS backend.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier (e.g. "alloy").
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which TTS backend this voice belongs to.
	Provider string
}
