package observe

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Setup describes the telemetry installed by [Init].
type Setup struct {
	// Service defaults to "portalvoice".
	Service string
	Version string

	// Spans is where finished spans go. Nil keeps spans in-process only:
	// they still carry trace ids into the logs.
	Spans sdktrace.SpanExporter

	// SampleRatio is the fraction of new traces recorded. Requests that
	// arrive with a sampled traceparent are always recorded. Zero means 1.
	SampleRatio float64

	// RuntimeMetrics adds the Go runtime and process collectors to /metrics.
	RuntimeMetrics bool
}

// Telemetry owns the global meter and tracer providers and the private
// Prometheus registry behind /metrics.
type Telemetry struct {
	registry *prometheus.Registry
	meters   *sdkmetric.MeterProvider
	tracers  *sdktrace.TracerProvider
}

// Init builds the providers described by s and installs them, together with
// the W3C trace-context propagator, as the OpenTelemetry globals.
func Init(_ context.Context, s Setup) (*Telemetry, error) {
	if s.Service == "" {
		s.Service = "portalvoice"
	}
	if s.SampleRatio <= 0 || s.SampleRatio > 1 {
		s.SampleRatio = 1
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(semconv.SchemaURL,
		semconv.ServiceName(s.Service),
		semconv.ServiceVersion(s.Version),
	))
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	if s.RuntimeMetrics {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	reader, err := promexporter.New(promexporter.WithRegisterer(reg))
	if err != nil {
		return nil, err
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(s.SampleRatio))),
	}
	if s.Spans != nil {
		opts = append(opts, sdktrace.WithBatcher(s.Spans))
	}

	t := &Telemetry{
		registry: reg,
		meters:   sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(reader)),
		tracers:  sdktrace.NewTracerProvider(opts...),
	}
	otel.SetMeterProvider(t.meters)
	otel.SetTracerProvider(t.tracers)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return t, nil
}

// Handler serves the Prometheus text format of everything recorded through
// the global meter provider.
func (t *Telemetry) Handler() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{Registry: t.registry})
}

// Shutdown flushes pending spans and stops both providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(t.tracers.Shutdown(ctx), t.meters.Shutdown(ctx))
}
