package middleware

import (
	"context"
	"time"

	"github.com/alimaamoun/DM-Agent/task"
)

// Timeout returns middleware that bounds each attempt by the deadline
// configured for its kind, falling back to def. A zero duration means no
// deadline. An exceeded deadline surfaces as context.DeadlineExceeded,
// which is classified transient.
func Timeout(def time.Duration, perKind map[task.Kind]time.Duration) Middleware {
	return func(ctx context.Context, t *task.Task, next Handler) error {
		d := def
		if v, ok := perKind[t.Kind]; ok {
			d = v
		}
		if d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return next(ctx)
	}
}
