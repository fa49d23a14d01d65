package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/alimaamoun/DM-Agent/task"
)

// tracerName is the instrumentation scope name for task tracing.
const tracerName = "github.com/alimaamoun/DM-Agent"

// Tracing returns middleware that wraps each attempt in an OpenTelemetry
// span using the global TracerProvider.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer returns tracing middleware using the provided tracer.
//
// Span attributes: dmagent.job.id, dmagent.task.kind, dmagent.task.target,
// dmagent.task.attempt, and dmagent.task.class on error.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, t *task.Task, next Handler) error {
		ctx, span := tracer.Start(ctx, "dmagent.task."+string(t.Kind),
			trace.WithAttributes(
				attribute.String("dmagent.job.id", t.JobID.String()),
				attribute.String("dmagent.task.kind", string(t.Kind)),
				attribute.String("dmagent.task.target", t.Target),
				attribute.Int("dmagent.task.attempt", t.Attempt),
			),
			trace.WithSpanKind(trace.SpanKindClient),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.SetAttributes(attribute.String("dmagent.task.class", task.ClassOf(err).String()))
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}
