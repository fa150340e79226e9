// Package client implements the listening side of portalvoice: a capture
// state machine that turns detected speech or typed text into submissions,
// and a sequencer that plays the returned clips in order.
//
// A typical wiring is
//
//	listener -> Capture -> Submitter -> Sequencer -> Capture.Complete
//
// where the sequencer's finalization hands control back to the capture so the
// listener resumes only after the reply has been played.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/MrWong99/portalvoice/pkg/audio"
	"github.com/MrWong99/portalvoice/pkg/types"
)

// SampleRate is the rate of captured speech and of the uploaded WAV.
const SampleRate = 16000

var (
	// ErrSubmissionInFlight is returned by [Capture.SubmitText] while an
	// earlier submission has not completed.
	ErrSubmissionInFlight = errors.New("client: submission already in flight")

	// ErrEmptyText is returned by [Capture.SubmitText] for blank input.
	ErrEmptyText = errors.New("client: empty text")

	// ErrClosed is returned after [Capture.Close].
	ErrClosed = errors.New("client: capture closed")
)

// State is the capture state.
type State int

const (
	StateIdle State = iota
	StateListening
	StateSubmitting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateSubmitting:
		return "submitting"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Feedback is a user-visible capture status.
type Feedback int

const (
	// FeedbackListening means the listener is waiting for speech.
	FeedbackListening Feedback = iota

	// FeedbackCapturing means speech is being recorded.
	FeedbackCapturing

	// FeedbackSubmitting means a submission is on its way to the server.
	FeedbackSubmitting

	// FeedbackError means the last submission failed.
	FeedbackError
)

func (f Feedback) String() string {
	switch f {
	case FeedbackListening:
		return "listening"
	case FeedbackCapturing:
		return "capturing"
	case FeedbackSubmitting:
		return "submitting"
	case FeedbackError:
		return "error"
	default:
		return fmt.Sprintf("Feedback(%d)", int(f))
	}
}

// Detector is the speech detector the capture starts and pauses.
type Detector interface {
	Start() error
	Pause() error
	Running() bool
}

// Submitter sends one submission to the server.
type Submitter interface {
	SubmitAudio(ctx context.Context, wav []byte) (*types.VoiceResponse, error)
	SubmitText(ctx context.Context, text string) (*types.VoiceResponse, error)
}

// CaptureConfig holds the collaborators of a [Capture].
type CaptureConfig struct {
	Detector  Detector
	Submitter Submitter

	// OnResponse receives every successful response. When set, it owns the
	// call to [Capture.Complete], usually through the sequencer's
	// finalization. When nil, the capture completes on its own.
	OnResponse func(*types.VoiceResponse)

	// OnError is called with every failed submission. May be nil.
	OnError func(error)

	// OnFeedback is called on every status change with the capture lock
	// held; it must not call back into the Capture. May be nil.
	OnFeedback func(Feedback)

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Capture is the client state machine: Idle -> Listening -> Submitting ->
// Idle -> Listening. At most one submission is in flight at any time.
//
// All methods are safe for concurrent use.
type Capture struct {
	cfg CaptureConfig
	log *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	state   State
	closed  bool
	settled chan struct{} // closed when the in-flight submission completes

	dropped atomic.Int64
}

// NewCapture validates cfg and returns an idle Capture.
func NewCapture(cfg CaptureConfig) (*Capture, error) {
	var errs []error
	if cfg.Detector == nil {
		errs = append(errs, errors.New("client: detector must not be nil"))
	}
	if cfg.Submitter == nil {
		errs = append(errs, errors.New("client: submitter must not be nil"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Capture{cfg: cfg, log: log, ctx: ctx, cancel: cancel}, nil
}

// State returns the current state.
func (c *Capture) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Dropped returns how many detected utterances were discarded because a
// submission was already in flight.
func (c *Capture) Dropped() int64 {
	return c.dropped.Load()
}

// Start starts the detector and enters Listening.
func (c *Capture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.state == StateSubmitting {
		return ErrSubmissionInFlight
	}
	if !c.cfg.Detector.Running() {
		if err := c.cfg.Detector.Start(); err != nil {
			return fmt.Errorf("client: start detector: %w", err)
		}
	}
	c.state = StateListening
	c.feedback(FeedbackListening)
	return nil
}

// OnSpeechStart reports that the detector heard speech begin.
func (c *Capture) OnSpeechStart() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateSubmitting || c.closed {
		return
	}
	c.feedback(FeedbackCapturing)
}

// OnSpeechEnd submits one utterance of float samples at [SampleRate]. It is
// dropped silently while a submission is in flight.
func (c *Capture) OnSpeechEnd(samples []float32) {
	if len(samples) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.state == StateSubmitting {
		c.dropped.Add(1)
		c.log.Debug("client: utterance dropped, submission in flight", "samples", len(samples))
		return
	}
	wav := audio.EncodeFloatWAV(samples, SampleRate)
	c.beginLocked(func(ctx context.Context) (*types.VoiceResponse, error) {
		return c.cfg.Submitter.SubmitAudio(ctx, wav)
	})
}

// SubmitText submits typed text. The detector is paused first so the
// speaker output of the reply is not picked up as speech.
func (c *Capture) SubmitText(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyText
	}
	if err := c.cfg.Detector.Pause(); err != nil {
		c.log.Warn("client: pause detector failed", "err", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.state == StateSubmitting {
		return ErrSubmissionInFlight
	}
	c.beginLocked(func(ctx context.Context) (*types.VoiceResponse, error) {
		return c.cfg.Submitter.SubmitText(ctx, text)
	})
	return nil
}

// beginLocked enters Submitting and runs submit on its own goroutine.
// c.mu must be held.
func (c *Capture) beginLocked(submit func(context.Context) (*types.VoiceResponse, error)) {
	c.state = StateSubmitting
	c.settled = make(chan struct{})
	if err := c.cfg.Detector.Pause(); err != nil {
		c.log.Warn("client: pause detector failed", "err", err)
	}
	c.feedback(FeedbackSubmitting)

	c.wg.Add(1)
	go c.run(submit)
}

func (c *Capture) run(submit func(context.Context) (*types.VoiceResponse, error)) {
	defer c.wg.Done()
	handedOff := false
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("client: response handler panicked", "panic", r)
			handedOff = false
		}
		if !handedOff {
			c.Complete()
		}
	}()

	resp, err := submit(c.ctx)
	if err != nil {
		c.log.Warn("client: submission failed", "err", err)
		c.mu.Lock()
		c.feedback(FeedbackError)
		c.mu.Unlock()
		if c.cfg.OnError != nil {
			c.cfg.OnError(err)
		}
		return
	}
	if c.cfg.OnResponse == nil {
		return
	}
	c.cfg.OnResponse(resp)
	handedOff = true
}

// Complete clears the submission guard and resumes listening, restarting
// the detector only if it is not already running. It is safe to call more
// than once.
func (c *Capture) Complete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.settleLocked()
	c.state = StateIdle
	if c.closed {
		return
	}
	if !c.cfg.Detector.Running() {
		if err := c.cfg.Detector.Start(); err != nil {
			c.log.Error("client: restart detector failed", "err", err)
			c.feedback(FeedbackError)
			return
		}
	}
	c.state = StateListening
	c.feedback(FeedbackListening)
}

// settleLocked releases [Capture.Wait] callers.
func (c *Capture) settleLocked() {
	if c.settled != nil {
		close(c.settled)
		c.settled = nil
	}
}

// Wait blocks until no submission is in flight.
func (c *Capture) Wait() {
	c.mu.Lock()
	ch := c.settled
	c.mu.Unlock()
	if ch != nil {
		<-ch
	}
}

// Close cancels any in-flight submission, waits for its goroutine and pauses
// the detector.
func (c *Capture) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	return c.cfg.Detector.Pause()
}

// feedback must be called with c.mu held.
func (c *Capture) feedback(f Feedback) {
	if c.cfg.OnFeedback != nil {
		c.cfg.OnFeedback(f)
	}
}
