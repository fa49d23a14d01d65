package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/alimaamoun/DM-Agent/ext"
	"github.com/alimaamoun/DM-Agent/job"
)

// meterName is the instrumentation scope name for lifecycle metrics.
const meterName = "github.com/alimaamoun/DM-Agent/observability"

// Compile-time interface checks.
var (
	_ ext.Extension     = (*MetricsExtension)(nil)
	_ ext.JobCreated    = (*MetricsExtension)(nil)
	_ ext.StageEntered  = (*MetricsExtension)(nil)
	_ ext.JobPublished  = (*MetricsExtension)(nil)
	_ ext.JobFailed     = (*MetricsExtension)(nil)
	_ ext.JobCancelled  = (*MetricsExtension)(nil)
	_ ext.ScheduleFired = (*MetricsExtension)(nil)
)

// MetricsExtension records system-wide lifecycle counters. Register it as an
// extension to track creation rates per source, stage entries, publications
// per platform and failures per stage.
type MetricsExtension struct {
	JobCreated    metric.Int64Counter
	StageEntered  metric.Int64Counter
	JobPublished  metric.Int64Counter
	JobFailed     metric.Int64Counter
	JobCancelled  metric.Int64Counter
	ScheduleFired metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension on the global MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the provided meter.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	counter := func(name, desc string) metric.Int64Counter {
		// On error the API returns a noop instrument.
		c, _ := meter.Int64Counter(name, metric.WithDescription(desc))
		return c
	}
	return &MetricsExtension{
		JobCreated:    counter("dmagent.job.created", "Jobs created"),
		StageEntered:  counter("dmagent.job.stage_entered", "Stage transitions written"),
		JobPublished:  counter("dmagent.job.published", "Jobs published"),
		JobFailed:     counter("dmagent.job.failed", "Jobs failed"),
		JobCancelled:  counter("dmagent.job.cancelled", "Jobs cancelled"),
		ScheduleFired: counter("dmagent.scheduler.created", "Jobs created by scheduler ticks"),
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ── Job lifecycle hooks ─────────────────────────────

// OnJobCreated implements ext.JobCreated.
func (m *MetricsExtension) OnJobCreated(ctx context.Context, j *job.Job) error {
	m.JobCreated.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", string(j.Source)),
		attribute.String("platform", j.Slot.Platform),
	))
	return nil
}

// OnStageEntered implements ext.StageEntered.
func (m *MetricsExtension) OnStageEntered(ctx context.Context, j *job.Job, _ job.Stage) error {
	m.StageEntered.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", string(j.Stage))))
	return nil
}

// OnJobPublished implements ext.JobPublished.
func (m *MetricsExtension) OnJobPublished(ctx context.Context, j *job.Job) error {
	m.JobPublished.Add(ctx, 1, metric.WithAttributes(attribute.String("platform", j.Slot.Platform)))
	return nil
}

// OnJobFailed implements ext.JobFailed.
func (m *MetricsExtension) OnJobFailed(ctx context.Context, j *job.Job, _ error) error {
	m.JobFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", string(j.FailedStage))))
	return nil
}

// OnJobCancelled implements ext.JobCancelled.
func (m *MetricsExtension) OnJobCancelled(ctx context.Context, _ *job.Job) error {
	m.JobCancelled.Add(ctx, 1)
	return nil
}

// ── Scheduler hooks ─────────────────────────────────

// OnScheduleFired implements ext.ScheduleFired.
func (m *MetricsExtension) OnScheduleFired(ctx context.Context, created int) error {
	m.ScheduleFired.Add(ctx, int64(created))
	return nil
}
