package whisper

// NativeProvider links whisper.cpp through CGO. libwhisper.a and whisper.h
// must be reachable through LIBRARY_PATH and C_INCLUDE_PATH at build time.

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"golang.org/x/sync/semaphore"

	"github.com/MrWong99/portalvoice/pkg/audio"
	"github.com/MrWong99/portalvoice/pkg/provider/stt"
	"github.com/MrWong99/portalvoice/pkg/types"
)

var _ stt.Provider = (*NativeProvider)(nil)

// ErrUnsupportedContainer rejects non-WAV clips. The in-process model takes
// raw samples and has no decoder for compressed audio.
var ErrUnsupportedContainer = errors.New("whisper: native provider accepts only WAV input")

// NativeProvider shares one loaded model. Each call gets its own whisper
// context; at most Concurrency inferences run at once.
type NativeProvider struct {
	model    whisperlib.Model
	language string
	slots    *semaphore.Weighted

	closeOnce sync.Once
	closeErr  error
}

type NativeOption func(*nativeConfig)

type nativeConfig struct {
	language    string
	concurrency int64
}

func WithNativeLanguage(lang string) NativeOption {
	return func(c *nativeConfig) { c.language = lang }
}

// WithNativeConcurrency caps parallel inferences. Default 1; whisper.cpp
// already spreads one inference over every core.
func WithNativeConcurrency(n int) NativeOption {
	return func(c *nativeConfig) {
		if n > 0 {
			c.concurrency = int64(n)
		}
	}
}

// NewNative loads the model at modelPath. Close releases it.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	cfg := nativeConfig{language: defaultLanguage, concurrency: 1}
	for _, o := range opts {
		o(&cfg)
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	return &NativeProvider{model: model, language: cfg.language, slots: semaphore.NewWeighted(cfg.concurrency)}, nil
}

func (p *NativeProvider) Close() error {
	p.closeOnce.Do(func() {
		if p.model != nil {
			p.closeErr = p.model.Close()
		}
	})
	return p.closeErr
}

// Transcribe implements stt.Provider. The clip is downmixed and resampled to
// 16 kHz mono first. Cancelling ctx aborts before the encoder starts.
func (p *NativeProvider) Transcribe(ctx context.Context, clip stt.Audio) (types.Transcript, error) {
	if err := clip.Validate(); err != nil {
		return types.Transcript{}, err
	}
	samples, err := samplesFromWAV(clip.Data)
	if err != nil {
		return types.Transcript{}, err
	}
	if err := p.slots.Acquire(ctx, 1); err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: %w", err)
	}
	defer p.slots.Release(1)

	lang := cmp.Or(clip.Language, p.language)
	text, err := p.infer(ctx, samples, lang)
	if err != nil {
		return types.Transcript{}, err
	}
	return types.Transcript{Text: text, Origin: types.OriginAudio, Language: lang}, nil
}

func samplesFromWAV(data []byte) ([]float32, error) {
	if audio.DetectFormat(data) != audio.ContainerWAV {
		return nil, ErrUnsupportedContainer
	}
	pcm, info, err := audio.ReadWAV(data)
	if err != nil {
		return nil, fmt.Errorf("whisper: %w", err)
	}
	return audio.PCM16ToFloat(audio.ToMono16(pcm, info.SampleRate, info.Channels, defaultSampleRate)), nil
}

func (p *NativeProvider) infer(ctx context.Context, samples []float32, lang string) (string, error) {
	wctx, err := p.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(lang); err != nil {
		slog.Warn("whisper: language not supported by model", "language", lang, "error", err)
	}

	var parts []string
	keepGoing := func() bool { return ctx.Err() == nil }
	collect := func(s whisperlib.Segment) {
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}
	if err := wctx.Process(samples, keepGoing, collect, nil); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("whisper: %w", ctxErr)
		}
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}
	return strings.Join(parts, " "), nil
}
