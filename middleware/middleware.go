package middleware

import (
	"context"

	"github.com/alimaamoun/DM-Agent/task"
)

// Handler is the terminal function that performs one attempt.
type Handler func(ctx context.Context) error

// Middleware wraps one attempt of a task. It calls next to run the
// attempt, or returns early to skip it.
type Middleware func(ctx context.Context, t *task.Task, next Handler) error

// Chain composes multiple middleware into a single Middleware.
// The first middleware in the list is the outermost wrapper.
//
// Example: Chain(logging, recover, timeout) executes as:
//
//	logging → recover → timeout → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, t *task.Task, next Handler) error {
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) error {
				return mw(ctx, t, prev)
			}
		}
		return h(ctx)
	}
}
