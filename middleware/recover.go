package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/alimaamoun/DM-Agent/task"
)

// Recover returns middleware that recovers from panics in the handler chain.
// A panic becomes a permanent task error, logged with a stack trace.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, t *task.Task, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("collaborator panicked",
					slog.String("kind", string(t.Kind)),
					slog.String("job_id", t.JobID.String()),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
				retErr = task.Permanent(string(t.Kind), fmt.Errorf("panic: %v", r))
			}
		}()
		return next(ctx)
	}
}
