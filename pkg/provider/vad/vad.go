// Package vad is the voice activity detection contract used by the client
// to cut a microphone stream into utterances.
//
// An [Engine] opens one [Detector] per audio stream. A Detector scores each
// fixed-size PCM frame and tracks whether the stream is inside an utterance,
// so its state must not be shared between streams.
package vad

import (
	"errors"
	"fmt"
)

// Kind classifies a frame.
type Kind uint8

const (
	// Quiet is a frame outside any utterance.
	Quiet Kind = iota
	// Onset is the first frame of an utterance.
	Onset
	// Voiced is a frame inside an utterance, including tolerated pauses.
	Voiced
	// Offset is the frame that closes an utterance.
	Offset
)

func (k Kind) String() string {
	switch k {
	case Quiet:
		return "quiet"
	case Onset:
		return "onset"
	case Voiced:
		return "voiced"
	case Offset:
		return "offset"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Event is the verdict for one frame.
type Event struct {
	Kind Kind
	// Score is the speech likelihood of the frame in [0, 1].
	Score float64
}

// Settings describes the stream a Detector reads and its hysteresis.
type Settings struct {
	// SampleRate of the 16-bit mono PCM, in Hz.
	SampleRate int
	// FrameMs is the length of each frame passed to Detect.
	FrameMs int

	// OnScore opens an utterance, and while inside one resets the pause
	// count.
	OnScore float64
	// OffScore and below counts as a paused frame.
	OffScore float64
	// Hangover is the number of paused frames tolerated before Offset.
	Hangover int
}

// Validate reports every invalid field.
func (s Settings) Validate() error {
	var errs []error
	if s.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("vad: sample rate %d is not positive", s.SampleRate))
	}
	if s.FrameMs <= 0 {
		errs = append(errs, fmt.Errorf("vad: frame length %d ms is not positive", s.FrameMs))
	}
	if s.OnScore < 0 || s.OnScore > 1 {
		errs = append(errs, fmt.Errorf("vad: onset score %.2f outside [0, 1]", s.OnScore))
	}
	if s.OffScore < 0 || s.OffScore > s.OnScore {
		errs = append(errs, fmt.Errorf("vad: offset score %.2f outside [0, onset score]", s.OffScore))
	}
	if s.Hangover < 0 {
		errs = append(errs, fmt.Errorf("vad: hangover %d is negative", s.Hangover))
	}
	return errors.Join(errs...)
}

// FrameBytes is the byte length of one frame.
func (s Settings) FrameBytes() int {
	return s.SampleRate * s.FrameMs / 1000 * 2
}

// Detector classifies the frames of one stream. It need not be safe for
// concurrent use.
type Detector interface {
	// Detect classifies one frame of exactly FrameBytes little-endian PCM.
	Detect(frame []byte) (Event, error)
	// Reset forgets any open utterance.
	Reset()
	// Close releases the detector. Later Detect calls fail; a second Close
	// returns nil.
	Close() error
}

// Engine opens detectors. Implementations are safe for concurrent use.
type Engine interface {
	Open(s Settings) (Detector, error)
}
