// Package api exposes the gateway over HTTP.
//
// Routes:
//
//	GET  /healthz
//	GET  /metrics
//	GET  /v1/jobs
//	POST /v1/jobs
//	GET  /v1/jobs/{jobId}
//	POST /v1/jobs/{jobId}/approve
//	POST /v1/jobs/{jobId}/reject
//	POST /v1/jobs/{jobId}/revise
//	POST /v1/jobs/{jobId}/cancel
//	POST /v1/jobs/{jobId}/resubmit
//	POST /v1/jobs/{jobId}/schedule
//	GET  /v1/jobs/{jobId}/audit
//	GET  /v1/calendar
//	GET  /v1/stats
//	GET  /v1/events
//
// The approve and reject routes are the external review signal.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	audithook "github.com/alimaamoun/DM-Agent/audit_hook"
	"github.com/alimaamoun/DM-Agent/gateway"
	"github.com/alimaamoun/DM-Agent/stream"
)

// HealthFunc reports whether the service can reach its dependencies.
type HealthFunc func(ctx context.Context) error

// AuditSource returns the recorded audit events of one job.
type AuditSource interface {
	Events(resourceID string) []audithook.AuditEvent
}

// API wires the HTTP handlers to a gateway Service.
type API struct {
	svc     *gateway.Service
	metrics http.Handler
	health  HealthFunc
	audit   AuditSource
	broker  *stream.Broker
	logger  *slog.Logger
}

// Option configures an API.
type Option func(*API)

// WithMetrics serves h on /metrics.
func WithMetrics(h http.Handler) Option { return func(a *API) { a.metrics = h } }

// WithHealth sets the readiness check behind /healthz.
func WithHealth(fn HealthFunc) Option { return func(a *API) { a.health = fn } }

// WithAudit serves the audit trail of each job.
func WithAudit(src AuditSource) Option { return func(a *API) { a.audit = src } }

// WithEvents serves the live event stream of b on /v1/events.
func WithEvents(b *stream.Broker) Option { return func(a *API) { a.broker = b } }

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option { return func(a *API) { a.logger = l } }

// New creates an API.
func New(svc *gateway.Service, opts ...Option) *API {
	a := &API{svc: svc, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler returns the fully assembled http.Handler with all routes.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, a.logRequests)
	a.RegisterRoutes(r)
	return otelhttp.NewHandler(r, "dmagent.api")
}

// RegisterRoutes registers every route on r.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", a.healthz)
	if a.metrics != nil {
		r.Method(http.MethodGet, "/metrics", a.metrics)
	}
	a.registerJobRoutes(r)
	a.registerStatsRoutes(r)
}

func (a *API) registerJobRoutes(r chi.Router) {
	r.Route("/v1/jobs", func(r chi.Router) {
		r.Get("/", a.listJobs)
		r.Post("/", a.createJob)
		r.Route("/{jobId}", func(r chi.Router) {
			r.Get("/", a.getJob)
			r.Post("/approve", a.approveJob)
			r.Post("/reject", a.rejectJob)
			r.Post("/revise", a.reviseJob)
			r.Post("/cancel", a.cancelJob)
			r.Post("/resubmit", a.resubmitJob)
			r.Post("/schedule", a.scheduleJob)
			if a.audit != nil {
				r.Get("/audit", a.jobAudit)
			}
		})
	})
	r.Get("/v1/calendar", a.calendar)
}

func (a *API) registerStatsRoutes(r chi.Router) {
	r.Get("/v1/stats", a.stats)
	if a.broker != nil {
		r.Get("/v1/events", a.events)
	}
}

func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	if a.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.health(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		a.logger.Debug("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
