package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	audithook "github.com/alimaamoun/DM-Agent/audit_hook"
	"github.com/alimaamoun/DM-Agent/api"
	"github.com/alimaamoun/DM-Agent/calendar"
	"github.com/alimaamoun/DM-Agent/collab"
	"github.com/alimaamoun/DM-Agent/config"
	"github.com/alimaamoun/DM-Agent/ext"
	"github.com/alimaamoun/DM-Agent/gateway"
	"github.com/alimaamoun/DM-Agent/gateway/mcp"
	"github.com/alimaamoun/DM-Agent/lease"
	mw "github.com/alimaamoun/DM-Agent/middleware"
	"github.com/alimaamoun/DM-Agent/notify"
	"github.com/alimaamoun/DM-Agent/observability"
	"github.com/alimaamoun/DM-Agent/pipeline"
	"github.com/alimaamoun/DM-Agent/platform"
	"github.com/alimaamoun/DM-Agent/provider/ollama"
	relayhook "github.com/alimaamoun/DM-Agent/relay_hook"
	"github.com/alimaamoun/DM-Agent/scheduler"
	"github.com/alimaamoun/DM-Agent/store"
	"github.com/alimaamoun/DM-Agent/stream"
	"github.com/alimaamoun/DM-Agent/task"
	"github.com/alimaamoun/DM-Agent/worker"
)

// instrumentationName scopes the engine's tracer and meters.
const instrumentationName = "github.com/alimaamoun/DM-Agent"

// Engine owns every long-lived component of one process.
type Engine struct {
	cfg    *config.Config
	logger *slog.Logger

	store      store.Store
	extensions *ext.Registry
	pool       *worker.Pool
	leases     *lease.Manager
	ctrl       *pipeline.Controller
	runner     *pipeline.Runner
	scheduler  *scheduler.Scheduler
	platforms  *platform.Registry
	gateway    *gateway.Service
	mcp        *mcp.Server
	api        *api.API
	prometheus *observability.Prometheus
	ollama     *ollama.Client
	audit      *audithook.Trail
	broker     *stream.Broker

	// Overrides set through options.
	collaborators  *pipeline.Collaborators
	publishers     []collab.Publisher
	sinks          []notify.Sink
	userExtensions []ext.Extension
	mws            []mw.Middleware
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	now            func() time.Time

	closers []func(context.Context) error
}

// Option configures an Engine.
type Option func(*Engine)

// WithStore sets the job store instead of opening the configured backend.
// The engine does not close it.
func WithStore(s store.Store) Option { return func(e *Engine) { e.store = s } }

// WithLogger sets the logger shared by every component.
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithCollaborators replaces the image, compose and caption providers built
// from the configuration. A *platform.Registry in Publishers replaces the
// configured platforms; other Publishers values are ignored.
func WithCollaborators(c pipeline.Collaborators) Option {
	return func(e *Engine) { e.collaborators = &c }
}

// WithPublishers registers publishers over the configured ones.
func WithPublishers(pubs ...collab.Publisher) Option {
	return func(e *Engine) { e.publishers = append(e.publishers, pubs...) }
}

// WithNotifySink adds a notification sink.
func WithNotifySink(s notify.Sink) Option {
	return func(e *Engine) { e.sinks = append(e.sinks, s) }
}

// WithExtension registers a lifecycle extension.
func WithExtension(x ext.Extension) Option {
	return func(e *Engine) { e.userExtensions = append(e.userExtensions, x) }
}

// WithMiddleware appends middleware to the collaborator call chain.
func WithMiddleware(m mw.Middleware) Option {
	return func(e *Engine) { e.mws = append(e.mws, m) }
}

// WithTracerProvider sets the OpenTelemetry tracer provider. The global
// provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) { e.tracerProvider = tp }
}

// WithMeterProvider sets the OpenTelemetry meter provider. Without one the
// engine exports metrics through Prometheus on /metrics.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(e *Engine) { e.meterProvider = mp }
}

// WithClock sets the time source of the controller, scheduler and gateway.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// New builds an Engine from cfg. Nothing runs until Start.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		def := config.Default()
		cfg = &def
	}
	e := &Engine{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}

	if err := e.build(ctx); err != nil {
		_ = e.close(context.Background())
		return nil, err
	}
	return e, nil
}

func (e *Engine) build(ctx context.Context) error {
	cfg := e.cfg
	loc, err := cfg.Schedule.Location()
	if err != nil {
		return fmt.Errorf("dmagent/engine: schedule timezone: %w", err)
	}

	if e.store == nil {
		s, closer, err := openStore(ctx, cfg.Store, e.logger)
		if err != nil {
			return err
		}
		e.store = s
		e.closers = append(e.closers, closer)
	}

	if e.meterProvider == nil {
		prom, err := observability.NewPrometheus()
		if err != nil {
			return err
		}
		e.prometheus = prom
		e.meterProvider = prom.Provider
		e.closers = append(e.closers, func(ctx context.Context) error { return prom.Provider.Shutdown(ctx) })
	}
	meter := e.meterProvider.Meter(instrumentationName)

	e.extensions = ext.NewRegistry(e.logger)
	e.extensions.Register(observability.NewMetricsExtensionWithMeter(meter))
	e.extensions.Register(e.notifier())
	if n := cfg.Notify; n.WebhookURL != "" {
		sender := relayhook.NewHTTPSender(n.WebhookURL, relayhook.WithSecret(n.WebhookSecret))
		e.extensions.Register(relayhook.New(sender, relayhook.WithLogger(e.logger)))
	}
	e.broker = stream.NewBroker(e.logger)
	e.extensions.Register(e.broker)
	e.audit = audithook.NewTrail(audithook.DefaultTrailSize)
	e.extensions.Register(audithook.New(e.audit, e.auditOptions()...))
	for _, x := range e.userExtensions {
		e.extensions.Register(x)
	}

	collaborators, err := e.buildCollaborators()
	if err != nil {
		return err
	}

	e.leases = lease.NewManager(e.store,
		lease.WithTTL(cfg.Pipeline.LeaseTTL),
		lease.WithLogger(e.logger),
	)

	e.pool = worker.NewPool(e.executor(meter), e.logger,
		worker.WithWorkers(cfg.Pipeline.Workers),
		worker.WithQueueSize(cfg.Pipeline.QueueSize),
		worker.WithSubmitWait(cfg.Pipeline.SubmitWait),
	)

	holder := holderName()
	ctrlOpts := []pipeline.Option{
		pipeline.WithDefaults(cfg.Content.Defaults()),
		pipeline.WithBrand(cfg.Brand),
		pipeline.WithHolder(holder),
		pipeline.WithLockWait(cfg.Pipeline.LockWait),
		pipeline.WithMaxReviewWait(cfg.Pipeline.MaxReviewWait),
		pipeline.WithLogger(e.logger),
	}
	if e.now != nil {
		ctrlOpts = append(ctrlOpts, pipeline.WithClock(e.now))
	}
	e.ctrl = pipeline.NewController(e.store, e.leases, e.pool, collaborators, e.extensions, ctrlOpts...)
	e.runner = pipeline.NewRunner(e.ctrl,
		pipeline.WithPollInterval(cfg.Pipeline.PollInterval),
		pipeline.WithConcurrency(cfg.Pipeline.RunnerConcurrency),
		pipeline.WithRunnerLogger(e.logger),
	)

	gwOpts := []gateway.Option{
		gateway.WithKicker(e.runner),
		gateway.WithPlatforms(e.platforms),
		gateway.WithLocation(loc),
		gateway.WithLogger(e.logger),
	}
	if e.now != nil {
		gwOpts = append(gwOpts, gateway.WithClock(e.now))
	}
	if e.ollama != nil {
		gwOpts = append(gwOpts, gateway.WithEnhancer(e.ollama))
	}

	if cfg.Schedule.Calendar != "" {
		file, err := calendar.NewFile(cfg.Schedule.Calendar)
		if err != nil {
			return fmt.Errorf("dmagent/engine: %w", err)
		}
		gwOpts = append(gwOpts, gateway.WithCalendar(file))

		// The leader lease must outlive the tick interval.
		leaderLeases := lease.NewManager(e.store,
			lease.WithTTL(cfg.Schedule.LeaderTTL),
			lease.WithLogger(e.logger),
		)
		schedOpts := []scheduler.Option{
			scheduler.WithSchedule(cfg.Schedule.Cron),
			scheduler.WithLookahead(cfg.Schedule.Lookahead),
			scheduler.WithHolder(holder),
			scheduler.WithKicker(e.runner),
			scheduler.WithEmitter(e.extensions),
			scheduler.WithLogger(e.logger),
		}
		if e.now != nil {
			schedOpts = append(schedOpts, scheduler.WithClock(e.now))
		}
		e.scheduler, err = scheduler.New(file, e.ctrl, leaderLeases, schedOpts...)
		if err != nil {
			return fmt.Errorf("dmagent/engine: %w", err)
		}
	}

	e.gateway = gateway.NewService(e.ctrl, gwOpts...)
	e.mcp = mcp.NewServer(e.gateway, mcp.WithLogger(e.logger))

	apiOpts := []api.Option{
		api.WithHealth(e.store.Ping),
		api.WithAudit(e.audit),
		api.WithEvents(e.broker),
		api.WithLogger(e.logger),
	}
	if e.prometheus != nil {
		apiOpts = append(apiOpts, api.WithMetrics(e.prometheus.Handler))
	}
	e.api = api.New(e.gateway, apiOpts...)
	return nil
}

func (e *Engine) auditOptions() []audithook.Option {
	opts := []audithook.Option{audithook.WithLogger(e.logger)}
	if e.now != nil {
		opts = append(opts, audithook.WithClock(e.now))
	}
	return opts
}

// notifier builds the summary extension: the log sink always, email when
// an approval address is configured, plus any sinks from options.
func (e *Engine) notifier() *notify.Notifier {
	opts := []notify.Option{notify.WithSink(notify.NewLogSink(e.logger))}
	if n := e.cfg.Notify; n.ApprovalEmail != "" {
		opts = append(opts, notify.WithSink(notify.NewMailSink(notify.MailConfig{
			Addr:     n.SMTPAddr,
			Username: n.SMTPUsername,
			Password: n.SMTPPassword,
			From:     n.From,
			To:       []string{n.ApprovalEmail},
		}, nil)))
	}
	for _, s := range e.sinks {
		opts = append(opts, notify.WithSink(s))
	}
	if e.now != nil {
		opts = append(opts, notify.WithClock(e.now))
	}
	return notify.New(e.logger, opts...)
}

// executor builds the collaborator call chain:
// recover → tracing → metrics → logging → timeout → options.
func (e *Engine) executor(meter metric.Meter) *worker.Executor {
	tracing := mw.Tracing()
	if e.tracerProvider != nil {
		tracing = mw.TracingWithTracer(e.tracerProvider.Tracer(instrumentationName))
	}
	chain := []mw.Middleware{
		mw.Recover(e.logger),
		tracing,
		mw.MetricsWithMeter(meter),
		mw.Logging(e.logger),
		mw.Timeout(e.cfg.Pipeline.StageTimeout, nil),
	}
	chain = append(chain, e.mws...)

	var limits []worker.Limit
	if rate := e.cfg.Pipeline.PublishRate; rate > 0 {
		limits = append(limits, worker.Limit{Kind: task.KindPublish, RateLimit: rate})
	}
	return worker.NewExecutor(e.logger,
		worker.WithMaxRetries(e.cfg.Pipeline.MaxRetries),
		worker.WithLimiter(worker.NewLimiter(limits...)),
		worker.WithMiddleware(chain...),
	)
}

// Start runs the worker pool, the pipeline runner and, when a calendar is
// configured, the scheduler.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.pool.Start(ctx); err != nil {
		return fmt.Errorf("start worker pool: %w", err)
	}
	if err := e.runner.Start(ctx); err != nil {
		return fmt.Errorf("start pipeline runner: %w", err)
	}
	if e.scheduler != nil {
		if err := e.scheduler.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	}
	e.logger.Info("engine started",
		slog.String("store", e.cfg.Store.Backend),
		slog.Bool("scheduler", e.scheduler != nil),
		slog.Any("platforms", e.platforms.Names()),
	)
	return nil
}

// Stop shuts components down in reverse start order and closes what the
// engine opened. Every step runs; the errors are joined.
func (e *Engine) Stop(ctx context.Context) error {
	var errs []error
	if e.scheduler != nil {
		if err := e.scheduler.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
		}
	}
	if err := e.runner.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop pipeline runner: %w", err))
	}
	if err := e.pool.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop worker pool: %w", err))
	}
	e.extensions.EmitShutdown(ctx)
	errs = append(errs, e.close(ctx))
	return errors.Join(errs...)
}

func (e *Engine) close(ctx context.Context) error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		errs = append(errs, e.closers[i](ctx))
	}
	e.closers = nil
	return errors.Join(errs...)
}

// Serve starts the engine and serves the HTTP API on the configured
// address until ctx is done, then shuts both down within the configured
// shutdown timeout.
func (e *Engine) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", e.cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", e.cfg.HTTP.Addr, err)
	}
	return e.ServeListener(ctx, ln)
}

// ServeListener is Serve on an existing listener.
func (e *Engine) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      e.api.Handler(),
		ReadTimeout:  e.cfg.HTTP.ReadTimeout,
		WriteTimeout: e.cfg.HTTP.WriteTimeout,
	}
	if err := e.Start(ctx); err != nil {
		_ = ln.Close()
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		e.logger.Info("http api listening", slog.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http api: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), e.cfg.Pipeline.ShutdownTimeout)
		defer cancel()
		return errors.Join(srv.Shutdown(shutdownCtx), e.Stop(shutdownCtx))
	})
	return g.Wait()
}

// ServeMCP starts the engine and answers MCP requests on r and w until r
// is exhausted or ctx is done.
func (e *Engine) ServeMCP(ctx context.Context, r io.Reader, w io.Writer) error {
	if err := e.Start(ctx); err != nil {
		return err
	}
	serveErr := e.mcp.Serve(ctx, r, w)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), e.cfg.Pipeline.ShutdownTimeout)
	defer cancel()
	return errors.Join(serveErr, e.Stop(shutdownCtx))
}

// Migrate prepares the store schema.
func (e *Engine) Migrate(ctx context.Context) error { return e.store.Migrate(ctx) }

// Check verifies the store and the Ollama models the pipeline needs.
func (e *Engine) Check(ctx context.Context) error {
	var errs []error
	if err := e.store.Ping(ctx); err != nil {
		errs = append(errs, fmt.Errorf("store: %w", err))
	}
	if e.ollama != nil {
		o := e.cfg.Ollama
		if err := e.ollama.CheckModels(ctx, o.CaptionModel, o.TextModel, o.EnhancerModel); err != nil {
			errs = append(errs, fmt.Errorf("ollama: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Close releases what New opened without starting anything. Use it for
// engines that were never started.
func (e *Engine) Close(ctx context.Context) error { return e.close(ctx) }

// Config returns the configuration the engine was built from.
func (e *Engine) Config() *config.Config { return e.cfg }

// Store returns the job store.
func (e *Engine) Store() store.Store { return e.store }

// Extensions returns the extension registry.
func (e *Engine) Extensions() *ext.Registry { return e.extensions }

// Controller returns the pipeline controller.
func (e *Engine) Controller() *pipeline.Controller { return e.ctrl }

// Runner returns the pipeline runner.
func (e *Engine) Runner() *pipeline.Runner { return e.runner }

// Scheduler returns the scheduler, or nil without a calendar.
func (e *Engine) Scheduler() *scheduler.Scheduler { return e.scheduler }

// Gateway returns the tool gateway service.
func (e *Engine) Gateway() *gateway.Service { return e.gateway }

// Audit returns the in-memory audit trail of the job lifecycle.
func (e *Engine) Audit() *audithook.Trail { return e.audit }

// Events returns the live lifecycle event broker.
func (e *Engine) Events() *stream.Broker { return e.broker }

// Platforms returns the publisher registry.
func (e *Engine) Platforms() *platform.Registry { return e.platforms }

// Handler returns the HTTP API handler.
func (e *Engine) Handler() http.Handler { return e.api.Handler() }

// MCP returns the MCP server.
func (e *Engine) MCP() *mcp.Server { return e.mcp }

// MeterProvider returns the SDK provider when the engine created one.
func (e *Engine) MeterProvider() *sdkmetric.MeterProvider {
	if e.prometheus == nil {
		return nil
	}
	return e.prometheus.Provider
}

func holderName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
