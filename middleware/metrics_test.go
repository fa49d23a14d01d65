package middleware_test

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	mw "github.com/alimaamoun/DM-Agent/middleware"
	"github.com/alimaamoun/DM-Agent/task"
)

func setupTestMeter() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return reader, mp
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestMetrics_RecordsDuration(t *testing.T) {
	reader, mp := setupTestMeter()
	m := mw.MetricsWithMeter(mp.Meter("test"))

	_ = m(context.Background(), newTestTask(), func(_ context.Context) error { return nil })

	metric := findMetric(collectMetrics(t, reader), "dmagent.task.duration")
	if metric == nil {
		t.Fatal("dmagent.task.duration metric not found")
	}
	hist, ok := metric.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("expected Histogram[float64] data type")
	}
	if len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 1 {
		t.Fatalf("unexpected data points: %+v", hist.DataPoints)
	}
}

func TestMetrics_StatusByClass(t *testing.T) {
	reader, mp := setupTestMeter()
	m := mw.MetricsWithMeter(mp.Meter("test"))
	tk := newTestTask()

	_ = m(context.Background(), tk, func(_ context.Context) error { return nil })
	_ = m(context.Background(), tk, func(_ context.Context) error { return task.Transient("x", errors.New("503")) })
	_ = m(context.Background(), tk, func(_ context.Context) error { return task.Transient("x", errors.New("503")) })
	_ = m(context.Background(), tk, func(_ context.Context) error { return errors.New("bad prompt") })

	metric := findMetric(collectMetrics(t, reader), "dmagent.task.attempts")
	if metric == nil {
		t.Fatal("dmagent.task.attempts metric not found")
	}
	sum, ok := metric.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("expected Sum[int64] data type")
	}

	got := map[string]int64{}
	for _, dp := range sum.DataPoints {
		v, _ := dp.Attributes.Value(attribute.Key("status"))
		got[v.AsString()] = dp.Value
	}
	if got["ok"] != 1 || got["transient"] != 2 || got["permanent"] != 1 {
		t.Errorf("attempts by status = %v", got)
	}
}
