// Package observe holds the telemetry of portalvoice: OpenTelemetry metrics
// and spans, request-scoped slog loggers, and the HTTP middleware that ties
// them to each request.
//
// Metrics go through the OpenTelemetry API. [Init] installs the
// Prometheus exporter that [Telemetry.Handler] serves. Tests build their own
// instruments with [NewMetrics] on a manual reader.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/MrWong99/portalvoice"

// Stage names one provider-backed step of a submission.
type Stage string

const (
	StageSTT  Stage = "stt"
	StageChat Stage = "chat"
	StageTTS  Stage = "tts"
)

// Metrics holds the instruments. All fields are safe for concurrent use.
type Metrics struct {
	STTDuration        metric.Float64Histogram
	LLMDuration        metric.Float64Histogram
	TTSDuration        metric.Float64Histogram
	SubmissionDuration metric.Float64Histogram

	// ProviderCalls counts provider calls by stage, backend and status.
	ProviderCalls metric.Int64Counter

	// Submissions counts /api/voice requests by input ("audio", "text",
	// "unknown") and outcome ("ok", "rejected", "error").
	Submissions metric.Int64Counter

	// IntentResults counts router outcomes by kind.
	IntentResults metric.Int64Counter

	// SynthesizedChunks counts text chunks sent to TTS by voice.
	SynthesizedChunks metric.Int64Counter

	ActiveSubmissions metric.Int64UpDownCounter

	// HTTPRequestDuration is labelled with method, chi route and status.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are in seconds. Remote transcription and chat calls take
// several seconds.
var latencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30}

// instruments creates instruments on one meter and keeps the first error.
type instruments struct {
	meter metric.Meter
	err   error
}

func (b *instruments) latency(name, desc string) metric.Float64Histogram {
	h, err := b.meter.Float64Histogram(name,
		metric.WithDescription(desc),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	)
	b.keep(err)
	return h
}

func (b *instruments) counter(name, desc string) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, metric.WithDescription(desc))
	b.keep(err)
	return c
}

func (b *instruments) keep(err error) {
	if b.err == nil {
		b.err = err
	}
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	b := &instruments{meter: mp.Meter(meterName)}
	m := &Metrics{
		STTDuration:        b.latency("portalvoice.stt.duration", "Latency of speech-to-text transcription."),
		LLMDuration:        b.latency("portalvoice.llm.duration", "Latency of chat completions."),
		TTSDuration:        b.latency("portalvoice.tts.duration", "Latency of a single text-to-speech call."),
		SubmissionDuration: b.latency("portalvoice.submission.duration", "End-to-end latency of one voice or text submission."),
		HTTPRequestDuration: b.latency("portalvoice.http.request.duration",
			"HTTP request latency by method, route and status."),

		ProviderCalls:     b.counter("portalvoice.provider.calls", "Provider calls by stage, backend and status."),
		Submissions:       b.counter("portalvoice.submissions", "Submissions by input type and outcome."),
		IntentResults:     b.counter("portalvoice.intent.results", "Intent router outcomes by kind."),
		SynthesizedChunks: b.counter("portalvoice.tts.chunks", "Text chunks synthesized by voice."),
	}
	var err error
	m.ActiveSubmissions, err = b.meter.Int64UpDownCounter("portalvoice.active_submissions",
		metric.WithDescription("Submissions currently in progress."))
	b.keep(err)
	if b.err != nil {
		return nil, b.err
	}
	return m, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the process-wide [Metrics] on the global meter
// provider, created on first use. Call it after [Init].
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// ObserveCall records one provider call of stage: its latency in the stage
// histogram and one count in ProviderCalls. backend identifies the caller's
// target (voice name, router pass); status is "ok" or a failure class.
func (m *Metrics) ObserveCall(ctx context.Context, stage Stage, backend, status string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("backend", backend))
	switch stage {
	case StageSTT:
		m.STTDuration.Record(ctx, d.Seconds(), attrs)
	case StageChat:
		m.LLMDuration.Record(ctx, d.Seconds(), attrs)
	case StageTTS:
		m.TTSDuration.Record(ctx, d.Seconds(), attrs)
	}
	m.ProviderCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", string(stage)),
		attribute.String("backend", backend),
		attribute.String("status", status),
	))
}

// RecordSubmission records one handled submission and its latency.
func (m *Metrics) RecordSubmission(ctx context.Context, input, outcome string, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("input", input),
		attribute.String("outcome", outcome),
	)
	m.Submissions.Add(ctx, 1, attrs)
	m.SubmissionDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordIntent records one router outcome.
func (m *Metrics) RecordIntent(ctx context.Context, kind string) {
	m.IntentResults.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordChunks records n chunks synthesized with voice.
func (m *Metrics) RecordChunks(ctx context.Context, voice string, n int) {
	m.SynthesizedChunks.Add(ctx, int64(n), metric.WithAttributes(attribute.String("voice", voice)))
}
