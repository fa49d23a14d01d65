package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	dmagent "github.com/alimaamoun/DM-Agent"
	"github.com/alimaamoun/DM-Agent/id"
	"github.com/alimaamoun/DM-Agent/job"
)

// scanPageSize is the page size used when scanning for runnable jobs.
const scanPageSize = 100

// Runner advances runnable jobs in the background.
type Runner struct {
	ctrl     *Controller
	interval time.Duration
	sem      *semaphore.Weighted
	logger   *slog.Logger

	kick chan id.JobID

	mu       sync.Mutex
	inflight map[id.JobID]struct{}
	running  bool
	cancel   context.CancelFunc
	loopDone chan struct{}
	wg       sync.WaitGroup
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithPollInterval sets how often the store is scanned.
func WithPollInterval(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithConcurrency bounds how many jobs are advanced at once.
func WithConcurrency(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithRunnerLogger sets the logger.
func WithRunnerLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// NewRunner creates a Runner over ctrl.
func NewRunner(ctrl *Controller, opts ...RunnerOption) *Runner {
	cfg := dmagent.DefaultConfig()
	r := &Runner{
		ctrl:     ctrl,
		interval: cfg.PollInterval,
		sem:      semaphore.NewWeighted(int64(cfg.RunnerConcurrency)),
		logger:   slog.Default(),
		kick:     make(chan id.JobID, 64),
		inflight: make(map[id.JobID]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start begins polling. It returns immediately.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	r.running = true
	r.cancel = cancel
	r.loopDone = make(chan struct{})

	r.logger.Info("pipeline runner starting", slog.Duration("interval", r.interval))
	go r.loop(ctx)
	return nil
}

// Stop ends polling and waits for in-flight advances until ctx is done.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	cancel, loopDone := r.cancel, r.loopDone
	r.mu.Unlock()

	cancel()
	<-loopDone

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.logger.Info("pipeline runner stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Kick asks for jobID to be advanced soon. It never blocks; when the kick
// queue is full the next scan picks the job up.
func (r *Runner) Kick(jobID id.JobID) {
	select {
	case r.kick <- jobID:
	default:
	}
}

// RunOnce scans the store and starts an advance for every runnable job.
// It returns how many advances were started.
func (r *Runner) RunOnce(ctx context.Context) (int, error) {
	started := 0
	filter := job.Filter{Stages: job.ActiveStages()}
	for j, err := range job.All(ctx, r.ctrl.Store(), filter, scanPageSize) {
		if err != nil {
			return started, err
		}
		if !r.ctrl.Runnable(j) {
			continue
		}
		ok, err := r.dispatch(ctx, j.ID)
		if err != nil {
			return started, err
		}
		if ok {
			started++
		}
	}
	return started, nil
}

// Wait blocks until every started advance has returned.
func (r *Runner) Wait() { r.wg.Wait() }

func (r *Runner) loop(ctx context.Context) {
	defer close(r.loopDone)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.scan(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case jobID := <-r.kick:
			if _, err := r.dispatch(ctx, jobID); err != nil && ctx.Err() == nil {
				r.logger.Warn("kick dispatch failed",
					slog.String("job_id", jobID.String()),
					slog.String("error", err.Error()),
				)
			}
		case <-ticker.C:
			r.scan(ctx)
		}
	}
}

func (r *Runner) scan(ctx context.Context) {
	n, err := r.RunOnce(ctx)
	if err != nil && ctx.Err() == nil {
		r.logger.Error("runner scan failed", slog.String("error", err.Error()))
		return
	}
	if n > 0 {
		r.logger.Debug("runner scan dispatched jobs", slog.Int("count", n))
	}
}

// dispatch starts an advance of jobID unless one is already running in
// this process. It blocks while the concurrency bound is reached.
func (r *Runner) dispatch(ctx context.Context, jobID id.JobID) (bool, error) {
	r.mu.Lock()
	if _, busy := r.inflight[jobID]; busy {
		r.mu.Unlock()
		return false, nil
	}
	r.inflight[jobID] = struct{}{}
	r.mu.Unlock()

	if err := r.sem.Acquire(ctx, 1); err != nil {
		r.forget(jobID)
		return false, err
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.sem.Release(1)
		defer r.forget(jobID)

		// The runner never waits on a busy slot; the next scan retries.
		j, err := r.ctrl.advance(ctx, jobID, 0)
		switch {
		case err == nil:
			r.logger.Debug("job advanced",
				slog.String("job_id", jobID.String()),
				slog.String("stage", string(j.Stage)),
			)
		case dmagent.IsContention(err), errors.Is(err, context.Canceled), errors.Is(err, dmagent.ErrPoolStopped):
			r.logger.Debug("job advance deferred",
				slog.String("job_id", jobID.String()),
				slog.String("reason", err.Error()),
			)
		default:
			r.logger.Warn("job advance failed",
				slog.String("job_id", jobID.String()),
				slog.String("error", err.Error()),
			)
		}
	}()
	return true, nil
}

func (r *Runner) forget(jobID id.JobID) {
	r.mu.Lock()
	delete(r.inflight, jobID)
	r.mu.Unlock()
}
