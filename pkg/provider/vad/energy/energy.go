// Package energy implements vad.Engine with a frame-energy detector.
//
// Each 16-bit mono frame is scored by its RMS level relative to a reference
// level, clamped to [0, 1]. The score is then run through the same
// onset/hangover hysteresis the browser microphone VAD uses: a frame at or
// above OnScore opens an utterance, frames at or below OffScore use up the
// hangover, and a frame at or above OnScore refills it.
package energy

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/MrWong99/portalvoice/pkg/audio"
	"github.com/MrWong99/portalvoice/pkg/provider/vad"
)

// DefaultReference is the RMS level (full scale = 1.0) that scores 1.0.
const DefaultReference = 0.05

// ErrClosed is returned by Detect after Close.
var ErrClosed = errors.New("energy: detector closed")

var (
	_ vad.Engine   = (*Engine)(nil)
	_ vad.Detector = (*detector)(nil)
)

// Option configures an Engine.
type Option func(*Engine)

// WithReference sets the RMS level that maps to probability 1.0.
func WithReference(rms float64) Option {
	return func(e *Engine) {
		if rms > 0 {
			e.reference = rms
		}
	}
}

// Engine opens energy detectors. It is stateless and safe for concurrent use.
type Engine struct {
	reference float64
}

// New returns an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{reference: DefaultReference}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Open implements vad.Engine.
func (e *Engine) Open(s vad.Settings) (vad.Detector, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &detector{set: s, reference: e.reference, frameBytes: s.FrameBytes()}, nil
}

type detector struct {
	mu         sync.Mutex
	set        vad.Settings
	reference  float64
	frameBytes int

	inside bool
	paused int
	closed bool
}

// Probability scores a frame of float samples against reference.
func Probability(samples []float32, reference float64) float64 {
	if reference <= 0 {
		return 0
	}
	return math.Min(1, audio.RMS(samples)/reference)
}

func (d *detector) Detect(frame []byte) (vad.Event, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return vad.Event{}, ErrClosed
	}
	if len(frame) != d.frameBytes {
		return vad.Event{}, fmt.Errorf("energy: frame is %d bytes, want %d", len(frame), d.frameBytes)
	}

	score := Probability(audio.PCM16ToFloat(frame), d.reference)
	return vad.Event{Kind: d.step(score), Score: score}, nil
}

// step advances the hysteresis by one frame. Callers hold d.mu.
func (d *detector) step(score float64) vad.Kind {
	loud := score >= d.set.OnScore
	if !d.inside {
		if !loud {
			return vad.Quiet
		}
		d.inside, d.paused = true, 0
		return vad.Onset
	}
	if loud {
		d.paused = 0
	} else if score <= d.set.OffScore {
		d.paused++
	}
	if d.paused > d.set.Hangover {
		d.inside, d.paused = false, 0
		return vad.Offset
	}
	return vad.Voiced
}

func (d *detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inside, d.paused = false, 0
}

func (d *detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}
