package synth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/portalvoice/internal/intent"
	"github.com/MrWong99/portalvoice/internal/observe"
	"github.com/MrWong99/portalvoice/pkg/audio"
	"github.com/MrWong99/portalvoice/pkg/textchunk"
)

// Field names one audio slot of an [Output].
type Field string

const (
	FieldPrimary     Field = "primary"
	FieldAction      Field = "action"
	FieldDescription Field = "description"
)

// FieldError records why one field has no audio.
type FieldError struct {
	Field Field
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("synth: field %s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// Output holds the stitched base64 clip per field. A field is empty when its
// text was empty or its synthesis failed; failures are listed in Errors.
type Output struct {
	Primary     string
	Action      string
	Description string

	Errors []FieldError
}

// Err joins all field errors, or returns nil.
func (o *Output) Err() error {
	errs := make([]error, len(o.Errors))
	for i := range o.Errors {
		errs[i] = &o.Errors[i]
	}
	return errors.Join(errs...)
}

// Failed reports whether synthesis of f failed.
func (o *Output) Failed(f Field) bool {
	for _, fe := range o.Errors {
		if fe.Field == f {
			return true
		}
	}
	return false
}

// ClipSynthesizer is the part of [Synthesizer] the pipeline needs.
type ClipSynthesizer interface {
	Synthesize(ctx context.Context, text, voice, language string) (string, error)
	MaxInputLength(voice string) int
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithLanguage sets the language passed with every chunk. Empty leaves the
// choice to the voice.
func WithLanguage(lang string) PipelineOption {
	return func(p *Pipeline) {
		p.language = lang
	}
}

// WithPipelineMetrics counts synthesized chunks per voice.
func WithPipelineMetrics(m *observe.Metrics) PipelineOption {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// Pipeline renders an [intent.Result] to audio. It is safe for concurrent use.
type Pipeline struct {
	synth    ClipSynthesizer
	stitcher audio.Stitcher
	language string
	metrics  *observe.Metrics
}

// NewPipeline creates a Pipeline over s.
func NewPipeline(s ClipSynthesizer, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{synth: s}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Synthesize renders result with voice. A PlainAnswer fills Primary; an
// OpenLink or CloseLink fills Action from its spoken answer and Description
// from its description. Fields run concurrently and a failed field does not
// stop the others. The returned error is non-nil only for a nil result.
func (p *Pipeline) Synthesize(ctx context.Context, result intent.Result, voice string) (*Output, error) {
	if result == nil {
		return nil, errors.New("synth: nil result")
	}
	ctx, span := observe.StartSpan(ctx, "synth.Pipeline")
	defer span.End()

	type job struct {
		field Field
		text  string
		dst   *string
	}
	out := &Output{}
	var jobs []job
	switch r := result.(type) {
	case intent.PlainAnswer:
		jobs = append(jobs, job{FieldPrimary, r.Text, &out.Primary})
	case intent.OpenLink:
		jobs = append(jobs, job{FieldAction, r.SpokenAnswer, &out.Action}, job{FieldDescription, r.Description, &out.Description})
	case intent.CloseLink:
		jobs = append(jobs, job{FieldAction, r.SpokenAnswer, &out.Action}, job{FieldDescription, r.Description, &out.Description})
	default:
		return nil, fmt.Errorf("synth: unsupported result %T", result)
	}

	errs := make([]error, len(jobs))
	var g errgroup.Group
	for i, j := range jobs {
		if j.text == "" {
			continue
		}
		g.Go(func() error {
			clip, err := p.field(ctx, j.text, voice)
			if err != nil {
				errs[i] = err
				return nil
			}
			*j.dst = clip
			return nil
		})
	}
	_ = g.Wait()

	for i, err := range errs {
		if err != nil {
			out.Errors = append(out.Errors, FieldError{Field: jobs[i].field, Err: err})
			observe.Logger(ctx).Warn("synth: field synthesis failed", "field", string(jobs[i].field), "voice", voice, "err", err)
		}
	}
	return out, nil
}

// field chunks text, synthesizes the chunks in order and stitches them.
func (p *Pipeline) field(ctx context.Context, text, voice string) (string, error) {
	limit := textchunk.MaxLen
	if n := p.synth.MaxInputLength(voice); n > 0 && n < limit {
		limit = n
	}
	chunks, err := textchunk.SplitN(text, limit)
	if err != nil {
		return "", err
	}
	if p.metrics != nil {
		p.metrics.RecordChunks(ctx, voice, len(chunks))
	}

	clips := make([]string, 0, len(chunks))
	for i, c := range chunks {
		clip, err := p.synth.Synthesize(ctx, c, voice, p.language)
		if err != nil {
			return "", fmt.Errorf("chunk %d of %d: %w", i+1, len(chunks), err)
		}
		clips = append(clips, clip)
	}
	return p.stitcher.Combine(clips)
}
