// Package observability provides OpenTelemetry-based lifecycle metrics for
// the orchestrator. The MetricsExtension implements lifecycle hooks to record
// system-wide counters for job creation, stage entries, publication, failure,
// cancellation and scheduler ticks. NewPrometheus wires a MeterProvider to a
// Prometheus registry for the /metrics endpoint.
//
// For per-attempt tracing and metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
