// Package worker provides the task execution engine: an Executor that runs
// one collaborator call with retries through middleware, and a Pool of a
// fixed number of workers fed by a bounded queue.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	dmagent "github.com/alimaamoun/DM-Agent"
	"github.com/alimaamoun/DM-Agent/backoff"
	"github.com/alimaamoun/DM-Agent/middleware"
	"github.com/alimaamoun/DM-Agent/task"
)

// DefaultMaxRetries is the number of retries after the first attempt.
const DefaultMaxRetries = 3

// Executor runs a task through middleware and retries transient failures
// with backoff.
type Executor struct {
	maxRetries int
	backoff    backoff.Strategy
	limiter    *Limiter
	mw         middleware.Middleware
	logger     *slog.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithMaxRetries sets the retry budget for transient failures.
func WithMaxRetries(n int) ExecutorOption {
	return func(e *Executor) {
		if n >= 0 {
			e.maxRetries = n
		}
	}
}

// WithBackoff sets the delay strategy between attempts.
func WithBackoff(s backoff.Strategy) ExecutorOption {
	return func(e *Executor) { e.backoff = s }
}

// WithLimiter sets per-kind throttling.
func WithLimiter(l *Limiter) ExecutorOption {
	return func(e *Executor) { e.limiter = l }
}

// WithMiddleware sets the middleware each attempt runs through.
func WithMiddleware(mws ...middleware.Middleware) ExecutorOption {
	return func(e *Executor) { e.mw = middleware.Chain(mws...) }
}

// NewExecutor creates an Executor.
func NewExecutor(logger *slog.Logger, opts ...ExecutorOption) *Executor {
	e := &Executor{
		maxRetries: DefaultMaxRetries,
		backoff:    backoff.DefaultStrategy(),
		mw:         middleware.Chain(),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs t until it succeeds, fails permanently, or exhausts its
// retries. The returned Result carries the attempt count in every case so
// the caller can record it against the job.
//
// Exhausted retries return an error wrapping both ErrRetriesExhausted and
// the last collaborator error.
func (e *Executor) Execute(ctx context.Context, t task.Task) (task.Result, error) {
	start := time.Now()
	res := task.Result{}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		release, err := e.limiter.Wait(ctx, t.Kind)
		if err != nil {
			return res, err
		}

		t.Attempt = attempt
		res.Attempts = attempt
		var ref string
		err = e.mw(ctx, &t, func(ctx context.Context) error {
			var callErr error
			ref, callErr = t.Call(ctx)
			return callErr
		})
		release()

		if err == nil {
			res.Ref = ref
			res.Elapsed = time.Since(start)
			return res, nil
		}
		res.Elapsed = time.Since(start)

		if !task.IsTransient(err) {
			return res, err
		}
		if attempt > e.maxRetries {
			return res, fmt.Errorf("%s after %d attempts: %w: %w", t.Kind, attempt, dmagent.ErrRetriesExhausted, err)
		}

		delay := e.backoff.Delay(attempt)
		e.logger.Info("task scheduled for retry",
			slog.String("kind", string(t.Kind)),
			slog.String("job_id", t.JobID.String()),
			slog.Int("attempt", attempt),
			slog.Int("max_retries", e.maxRetries),
			slog.Duration("delay", delay),
		)
		if werr := backoff.Wait(ctx, delay); werr != nil {
			return res, werr
		}
	}
}
