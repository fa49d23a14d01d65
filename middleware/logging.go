package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/alimaamoun/DM-Agent/task"
)

// Logging returns middleware that logs each attempt at debug level and
// failures at warn level with their class.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, t *task.Task, next Handler) error {
		logger.Debug("task attempt started",
			slog.String("kind", string(t.Kind)),
			slog.String("job_id", t.JobID.String()),
			slog.Int("attempt", t.Attempt),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Warn("task attempt failed",
				slog.String("kind", string(t.Kind)),
				slog.String("job_id", t.JobID.String()),
				slog.String("target", t.Target),
				slog.Int("attempt", t.Attempt),
				slog.String("class", task.ClassOf(err).String()),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Debug("task attempt completed",
				slog.String("kind", string(t.Kind)),
				slog.String("job_id", t.JobID.String()),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
