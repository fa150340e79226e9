package observe

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// withRecorder installs an in-memory tracer provider for the test.
func withRecorder(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(orig)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

// captureLogs routes slog.Default() into a buffer for the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(orig) })
	return &buf
}

func TestStartSpan_Attributes(t *testing.T) {
	exp := withRecorder(t)

	_, span := StartSpan(context.Background(), "synth.Synthesize", attribute.String("voice", "google_tts"))
	span.End()

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	if spans[0].Name != "synth.Synthesize" {
		t.Errorf("name = %q", spans[0].Name)
	}
	found := false
	for _, kv := range spans[0].Attributes {
		if kv.Key == "voice" && kv.Value.AsString() == "google_tts" {
			found = true
		}
	}
	if !found {
		t.Errorf("attributes = %v, want voice=google_tts", spans[0].Attributes)
	}
}

func TestFail(t *testing.T) {
	exp := withRecorder(t)

	_, ok := StartSpan(context.Background(), "ok")
	Fail(ok, nil)
	ok.End()

	_, bad := StartSpan(context.Background(), "bad")
	Fail(bad, errors.New("tts 503"))
	bad.End()

	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("recorded %d spans, want 2", len(spans))
	}
	if spans[0].Status.Code != codes.Unset || len(spans[0].Events) != 0 {
		t.Errorf("nil error changed the span: %+v", spans[0].Status)
	}
	if spans[1].Status.Code != codes.Error || spans[1].Status.Description != "tts 503" {
		t.Errorf("status = %+v, want Error(tts 503)", spans[1].Status)
	}
	if len(spans[1].Events) != 1 || spans[1].Events[0].Name != "exception" {
		t.Errorf("events = %+v, want one exception", spans[1].Events)
	}
}

func TestLogger(t *testing.T) {
	withRecorder(t)

	tests := []struct {
		name      string
		ctx       func() (context.Context, func())
		wantReqID bool
		wantTrace bool
	}{
		{
			name: "bare context",
			ctx:  func() (context.Context, func()) { return context.Background(), func() {} },
		},
		{
			name: "request id only",
			ctx: func() (context.Context, func()) {
				return context.WithValue(context.Background(), chimw.RequestIDKey, "host/abc-000001"), func() {}
			},
			wantReqID: true,
		},
		{
			name: "request id and span",
			ctx: func() (context.Context, func()) {
				ctx := context.WithValue(context.Background(), chimw.RequestIDKey, "host/abc-000002")
				ctx, span := StartSpan(ctx, "server.Voice")
				return ctx, func() { span.End() }
			},
			wantReqID: true,
			wantTrace: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := captureLogs(t)
			ctx, done := tt.ctx()
			defer done()

			Logger(ctx).Info("submission received")

			out := buf.String()
			if got := strings.Contains(out, "request_id="); got != tt.wantReqID {
				t.Errorf("request_id present = %v, want %v: %s", got, tt.wantReqID, out)
			}
			if got := strings.Contains(out, "trace_id="); got != tt.wantTrace {
				t.Errorf("trace_id present = %v, want %v: %s", got, tt.wantTrace, out)
			}
		})
	}
}
