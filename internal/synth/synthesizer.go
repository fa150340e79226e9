// Package synth turns router results into playable audio.
//
// [Synthesizer] wraps the registered TTS backends behind voice names and
// normalizes every clip to base64. [Pipeline] chunks each answer field, runs
// the chunks through a Synthesizer and stitches them into one clip per field.
package synth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/portalvoice/internal/observe"
	"github.com/MrWong99/portalvoice/pkg/audio"
	"github.com/MrWong99/portalvoice/pkg/provider/tts"
	"github.com/MrWong99/portalvoice/pkg/types"
)

// DefaultTimeout bounds a single backend call when no timeout is configured.
const DefaultTimeout = 15 * time.Second

var (
	// ErrUnknownVoice is returned for a voice name no backend is registered under.
	ErrUnknownVoice = errors.New("synth: unknown voice")

	// ErrTextTooLong is returned when the text exceeds the backend input cap.
	ErrTextTooLong = errors.New("synth: text too long")

	// ErrEmptyText is returned for empty or all-whitespace text.
	ErrEmptyText = errors.New("synth: empty text")

	// ErrTimeout is matched by errors for calls that ran past the timeout.
	ErrTimeout = errors.New("synth: timed out")
)

// Kind classifies a [SynthesisError].
type Kind int

const (
	// KindInput means the request was rejected before any backend call.
	KindInput Kind = iota

	// KindTransport means the backend could not be reached or failed.
	KindTransport

	// KindTimeout means the backend did not answer within the timeout.
	KindTimeout

	// KindDecode means the backend answered with unusable audio.
	KindDecode
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindTransport:
		return "transport"
	case KindTimeout:
		return "timeout"
	case KindDecode:
		return "decode"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// SynthesisError is returned by [Synthesizer.Synthesize] for every failure.
type SynthesisError struct {
	Voice string
	Kind  Kind
	Err   error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synth: voice %q: %s: %v", e.Voice, e.Kind, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// Voice is one registered backend.
type Voice struct {
	// Name is the selector clients send, e.g. "google_tts" or "chatgpt".
	Name string

	Provider tts.Provider

	// Profile is passed to the backend on every call.
	Profile types.VoiceProfile

	// Language is used when the caller passes none.
	Language string
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithTimeout sets the per-call timeout. Non-positive values keep
// [DefaultTimeout].
func WithTimeout(d time.Duration) Option {
	return func(s *Synthesizer) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithMetrics records call latency and outcomes to m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Synthesizer) {
		s.metrics = m
	}
}

// Synthesizer dispatches text to the backend registered under a voice name.
// It is safe for concurrent use.
type Synthesizer struct {
	mu           sync.RWMutex
	voices       map[string]Voice
	defaultVoice string

	timeout time.Duration
	metrics *observe.Metrics
}

// New creates an empty Synthesizer.
func New(opts ...Option) *Synthesizer {
	s := &Synthesizer{
		voices:  make(map[string]Voice),
		timeout: DefaultTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Register adds v. The first registered voice becomes the default until
// [Synthesizer.SetDefault] is called.
func (s *Synthesizer) Register(v Voice) error {
	if strings.TrimSpace(v.Name) == "" {
		return errors.New("synth: voice name must not be empty")
	}
	if v.Provider == nil {
		return fmt.Errorf("synth: voice %q: provider must not be nil", v.Name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.voices[v.Name]; dup {
		return fmt.Errorf("synth: voice %q already registered", v.Name)
	}
	s.voices[v.Name] = v
	if s.defaultVoice == "" {
		s.defaultVoice = v.Name
	}
	return nil
}

// SetDefault selects the voice used when callers pass an empty name.
func (s *Synthesizer) SetDefault(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.voices[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownVoice, name)
	}
	s.defaultVoice = name
	return nil
}

// Default returns the default voice name.
func (s *Synthesizer) Default() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defaultVoice
}

// Voices returns the registered voice names in sorted order.
func (s *Synthesizer) Voices() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.voices))
	for name := range s.voices {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Has reports whether name resolves to a registered voice. The empty name
// resolves to the default.
func (s *Synthesizer) Has(name string) bool {
	_, ok := s.lookup(name)
	return ok
}

// MaxInputLength returns the input cap of the backend behind voice, or 0 if
// the backend has none or the voice is unknown.
func (s *Synthesizer) MaxInputLength(voice string) int {
	v, ok := s.lookup(voice)
	if !ok {
		return 0
	}
	if l, ok := v.Provider.(tts.Limiter); ok {
		return l.MaxInputLength()
	}
	return 0
}

func (s *Synthesizer) lookup(name string) (Voice, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if name == "" {
		name = s.defaultVoice
	}
	v, ok := s.voices[name]
	return v, ok
}

// Synthesize speaks text with the named voice and returns the clip as
// standard base64. An empty voice selects the default and an empty language
// selects the voice's own. Every error is a [*SynthesisError].
func (s *Synthesizer) Synthesize(ctx context.Context, text, voice, language string) (string, error) {
	v, ok := s.lookup(voice)
	if !ok {
		return "", &SynthesisError{Voice: voice, Kind: KindInput, Err: ErrUnknownVoice}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", &SynthesisError{Voice: v.Name, Kind: KindInput, Err: ErrEmptyText}
	}
	if l, ok := v.Provider.(tts.Limiter); ok {
		if limit, n := l.MaxInputLength(), utf8.RuneCountInString(text); limit > 0 && n > limit {
			return "", &SynthesisError{Voice: v.Name, Kind: KindInput,
				Err: fmt.Errorf("%w: %d runes, limit %d", ErrTextTooLong, n, limit)}
		}
	}
	if language == "" {
		language = v.Language
	}

	ctx, span := observe.StartSpan(ctx, "synth.Synthesize", attribute.String("voice", v.Name))
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	res, err := v.Provider.Synthesize(callCtx, tts.Request{Text: text, Language: language, Voice: v.Profile})
	out, serr := s.classify(callCtx, v.Name, res, err)
	s.record(ctx, v.Name, time.Since(start), serr)
	if serr != nil {
		observe.Fail(span, serr)
		observe.Logger(ctx).Warn("synth: synthesis failed", "voice", v.Name, "kind", serr.Kind.String(), "err", serr.Err)
		return "", serr
	}
	return out, nil
}

func (s *Synthesizer) classify(callCtx context.Context, voice string, res *tts.Result, err error) (string, *SynthesisError) {
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return "", &SynthesisError{Voice: voice, Kind: KindTimeout,
				Err: fmt.Errorf("%w after %s: %w", ErrTimeout, s.timeout, err)}
		}
		return "", &SynthesisError{Voice: voice, Kind: KindTransport, Err: err}
	}
	if res.Empty() {
		return "", &SynthesisError{Voice: voice, Kind: KindDecode, Err: tts.ErrEmptyAudio}
	}

	data := res.Audio
	if len(data) == 0 {
		data, err = audio.DecodeBase64(res.Base64)
		if err != nil {
			return "", &SynthesisError{Voice: voice, Kind: KindDecode, Err: err}
		}
	}
	if audio.DetectFormat(data) == audio.ContainerUnknown {
		return "", &SynthesisError{Voice: voice, Kind: KindDecode,
			Err: fmt.Errorf("%w: unrecognised container", audio.ErrDecode)}
	}
	return audio.EncodeBase64(data), nil
}

func (s *Synthesizer) record(ctx context.Context, voice string, d time.Duration, serr *SynthesisError) {
	if s.metrics == nil {
		return
	}
	status := "ok"
	if serr != nil {
		status = serr.Kind.String()
	}
	s.metrics.ObserveCall(ctx, observe.StageTTS, voice, status, d)
}
