package observe

import (
	"context"
	"log/slog"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/portalvoice"

// StartSpan starts a span on the global tracer provider. End it with
// span.End(); mark failures with [Fail].
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// Fail records err on span and sets its status to Error. A nil err is
// ignored.
func Fail(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// Logger returns slog.Default() tagged with the request ID assigned by the
// router middleware and the trace ID of the active span, whichever are
// present in ctx.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if id := chimw.GetReqID(ctx); id != "" {
		l = l.With(slog.String("request_id", id))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		l = l.With(slog.String("trace_id", sc.TraceID().String()))
	}
	return l
}
