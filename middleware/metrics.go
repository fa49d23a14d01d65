package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/alimaamoun/DM-Agent/task"
)

// meterName is the instrumentation scope name for task metrics.
const meterName = "github.com/alimaamoun/DM-Agent"

// Metrics returns middleware that records per-attempt metrics using the
// global OTel MeterProvider.
//
// Instruments:
//   - dmagent.task.duration (Float64Histogram): attempt time in seconds,
//     with attributes: kind, target, status ("ok", "transient", "permanent")
//   - dmagent.task.attempts (Int64Counter): total attempts, same attributes
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(meterName))
}

// MetricsWithMeter returns metrics middleware using the provided meter.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// On error the API returns noop instruments.
	duration, _ := meter.Float64Histogram(
		"dmagent.task.duration",
		metric.WithDescription("Duration of collaborator attempts in seconds"),
		metric.WithUnit("s"),
	)
	attempts, _ := meter.Int64Counter(
		"dmagent.task.attempts",
		metric.WithDescription("Total number of collaborator attempts"),
		metric.WithUnit("{attempt}"),
	)

	return func(ctx context.Context, t *task.Task, next Handler) error {
		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start).Seconds()

		status := "ok"
		if err != nil {
			status = task.ClassOf(err).String()
		}

		attrs := metric.WithAttributes(
			attribute.String("kind", string(t.Kind)),
			attribute.String("target", t.Target),
			attribute.String("status", status),
		)
		duration.Record(ctx, elapsed, attrs)
		attempts.Add(ctx, 1, attrs)

		return err
	}
}
