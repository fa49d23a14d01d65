package observability_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/alimaamoun/DM-Agent/ext"
	"github.com/alimaamoun/DM-Agent/job"
	"github.com/alimaamoun/DM-Agent/observability"
)

func newTestExtension() (*observability.MetricsExtension, *sdkmetric.ManualReader) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return observability.NewMetricsExtensionWithMeter(mp.Meter("test")), reader
}

func newTestJob() *job.Job {
	return job.New(job.Slot{Date: "2024-06-01", Platform: "instagram", Theme: "summer"}, job.SourceScheduledRun, job.Params{}, time.Now())
}

func counterValue(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s: expected Sum[int64], got %T", name, m.Data)
			}
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func TestMetricsExtension_Name(t *testing.T) {
	e, _ := newTestExtension()
	if e.Name() != "observability-metrics" {
		t.Errorf("expected name %q, got %q", "observability-metrics", e.Name())
	}
}

func TestMetricsExtension_Counters(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name   string
		metric string
		fire   func(e *observability.MetricsExtension) error
		want   int64
	}{
		{"created", "dmagent.job.created", func(e *observability.MetricsExtension) error {
			return e.OnJobCreated(ctx, newTestJob())
		}, 1},
		{"stage", "dmagent.job.stage_entered", func(e *observability.MetricsExtension) error {
			return e.OnStageEntered(ctx, newTestJob(), job.StagePlanned)
		}, 1},
		{"published", "dmagent.job.published", func(e *observability.MetricsExtension) error {
			return e.OnJobPublished(ctx, newTestJob())
		}, 1},
		{"failed", "dmagent.job.failed", func(e *observability.MetricsExtension) error {
			return e.OnJobFailed(ctx, newTestJob(), errors.New("boom"))
		}, 1},
		{"cancelled", "dmagent.job.cancelled", func(e *observability.MetricsExtension) error {
			return e.OnJobCancelled(ctx, newTestJob())
		}, 1},
		{"schedule", "dmagent.scheduler.created", func(e *observability.MetricsExtension) error {
			return e.OnScheduleFired(ctx, 4)
		}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, reader := newTestExtension()
			if err := tt.fire(e); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := counterValue(t, reader, tt.metric); got != tt.want {
				t.Errorf("%s = %d, want %d", tt.metric, got, tt.want)
			}
		})
	}
}

func TestMetricsExtension_ViaRegistry(t *testing.T) {
	e, reader := newTestExtension()
	r := ext.NewRegistry(slog.Default())
	r.Register(e)

	j := newTestJob()
	j.Stage = job.StagePublished
	r.EmitStageEntered(context.Background(), j, job.StagePublishing)

	if got := counterValue(t, reader, "dmagent.job.published"); got != 1 {
		t.Errorf("published = %d, want 1", got)
	}
	if got := counterValue(t, reader, "dmagent.job.stage_entered"); got != 1 {
		t.Errorf("stage_entered = %d, want 1", got)
	}
}

func TestPrometheus_ServesCounters(t *testing.T) {
	p, err := observability.NewPrometheus()
	if err != nil {
		t.Fatalf("NewPrometheus: %v", err)
	}
	e := observability.NewMetricsExtensionWithMeter(p.Provider.Meter("test"))
	if err := e.OnJobCreated(context.Background(), newTestJob()); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	p.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "dmagent_job_created") {
		t.Fatalf("metrics output missing dmagent_job_created:\n%s", body)
	}
}
