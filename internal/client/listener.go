package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/MrWong99/portalvoice/pkg/audio"
	"github.com/MrWong99/portalvoice/pkg/provider/vad"
)

// SpeechHandler receives utterances detected by a [VADListener]. [Capture]
// implements it.
type SpeechHandler interface {
	OnSpeechStart()
	OnSpeechEnd(samples []float32)
}

// ListenerConfig tunes utterance detection.
type ListenerConfig struct {
	// FrameSizeMs is the analysis frame length at [SampleRate].
	FrameSizeMs int

	SpeechThreshold  float64
	SilenceThreshold float64

	// RedemptionFrames is how many silent frames end an utterance.
	RedemptionFrames int

	// MinSpeechFrames is the minimum number of speech frames an utterance
	// needs; shorter ones are discarded as misfires.
	MinSpeechFrames int

	// PreSpeechPadFrames is how many frames before the detected start are
	// kept at the head of the utterance.
	PreSpeechPadFrames int
}

// DefaultListenerConfig mirrors the browser microphone VAD settings.
func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		FrameSizeMs:        32,
		SpeechThreshold:    0.9,
		SilenceThreshold:   0.75,
		RedemptionFrames:   30,
		MinSpeechFrames:    4,
		PreSpeechPadFrames: 1,
	}
}

func (c ListenerConfig) settings() vad.Settings {
	return vad.Settings{
		SampleRate: SampleRate,
		FrameMs:    c.FrameSizeMs,
		OnScore:    c.SpeechThreshold,
		OffScore:   c.SilenceThreshold,
		Hangover:   c.RedemptionFrames,
	}
}

// VADListener segments a 16 kHz mono 16-bit PCM stream into utterances with
// a [vad.Detector]. It implements [Detector]: while paused, frames are read
// and discarded.
type VADListener struct {
	cfg ListenerConfig
	vad vad.Detector

	mu       sync.Mutex
	handler  SpeechHandler
	running  bool
	inSpeech bool
	speech   int
	segment  []float32
	pad      [][]float32

	// Misfires counts utterances discarded for being too short.
	misfires int
}

// NewVADListener opens a detector on engine.
func NewVADListener(engine vad.Engine, cfg ListenerConfig) (*VADListener, error) {
	if cfg.MinSpeechFrames < 1 {
		cfg.MinSpeechFrames = 1
	}
	set := cfg.settings()
	if err := set.Validate(); err != nil {
		return nil, fmt.Errorf("client: listener config: %w", err)
	}
	det, err := engine.Open(set)
	if err != nil {
		return nil, fmt.Errorf("client: open vad: %w", err)
	}
	return &VADListener{cfg: cfg, vad: det}, nil
}

// SetHandler installs the receiver of detected utterances.
func (l *VADListener) SetHandler(h SpeechHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handler = h
}

// Start resumes detection.
func (l *VADListener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.running = true
	return nil
}

// Pause stops detection and discards any partial utterance.
func (l *VADListener) Pause() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.running = false
	l.resetLocked()
	return nil
}

// Running reports whether detection is active.
func (l *VADListener) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Misfires returns how many too-short utterances were discarded.
func (l *VADListener) Misfires() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.misfires
}

// Close releases the detector.
func (l *VADListener) Close() error {
	return l.vad.Close()
}

// Run reads frames from r until EOF or ctx is done. An utterance still open
// at EOF is flushed as if speech had ended.
func (l *VADListener) Run(ctx context.Context, r io.Reader) error {
	frame := make([]byte, l.cfg.settings().FrameBytes())
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, err := io.ReadFull(r, frame)
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			l.flush()
			return nil
		}
		if err != nil {
			return fmt.Errorf("client: read audio: %w", err)
		}
		if err := l.Feed(frame); err != nil {
			return err
		}
	}
}

// Feed processes one frame of exactly one frame length.
func (l *VADListener) Feed(frame []byte) error {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return nil
	}
	ev, err := l.vad.Detect(frame)
	if err != nil {
		l.mu.Unlock()
		return fmt.Errorf("client: vad: %w", err)
	}
	samples := audio.PCM16ToFloat(frame)
	started, ended := l.stepLocked(ev, samples)
	h := l.handler
	l.mu.Unlock()

	if h == nil {
		return nil
	}
	if started {
		h.OnSpeechStart()
	}
	if ended != nil {
		h.OnSpeechEnd(ended)
	}
	return nil
}

// stepLocked advances the segmenter by one event. It returns whether speech
// started and, when an utterance closed, its samples.
func (l *VADListener) stepLocked(ev vad.Event, samples []float32) (started bool, ended []float32) {
	switch ev.Kind {
	case vad.Onset:
		l.inSpeech = true
		l.speech = 1
		l.segment = l.segment[:0]
		for _, p := range l.pad {
			l.segment = append(l.segment, p...)
		}
		l.pad = l.pad[:0]
		l.segment = append(l.segment, samples...)
		return true, nil
	case vad.Voiced:
		if !l.inSpeech {
			return false, nil
		}
		if ev.Score >= l.cfg.SpeechThreshold {
			l.speech++
		}
		l.segment = append(l.segment, samples...)
		return false, nil
	case vad.Offset:
		if !l.inSpeech {
			return false, nil
		}
		l.segment = append(l.segment, samples...)
		return false, l.closeLocked()
	default:
		l.pushPadLocked(samples)
		return false, nil
	}
}

func (l *VADListener) closeLocked() []float32 {
	var out []float32
	if l.speech >= l.cfg.MinSpeechFrames {
		out = append([]float32(nil), l.segment...)
	} else {
		l.misfires++
	}
	l.inSpeech = false
	l.speech = 0
	l.segment = l.segment[:0]
	return out
}

func (l *VADListener) pushPadLocked(samples []float32) {
	if l.cfg.PreSpeechPadFrames <= 0 {
		return
	}
	if len(l.pad) == l.cfg.PreSpeechPadFrames {
		l.pad = l.pad[1:]
	}
	l.pad = append(l.pad, samples)
}

func (l *VADListener) resetLocked() {
	l.vad.Reset()
	l.inSpeech = false
	l.speech = 0
	l.segment = l.segment[:0]
	l.pad = l.pad[:0]
}

func (l *VADListener) flush() {
	l.mu.Lock()
	var ended []float32
	if l.running && l.inSpeech {
		ended = l.closeLocked()
	}
	h := l.handler
	l.mu.Unlock()
	if h != nil && ended != nil {
		h.OnSpeechEnd(ended)
	}
}
