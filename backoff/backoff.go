// Package backoff provides retry delay strategies for collaborator calls
// and slot lease contention. Strategies are safe for concurrent use.
package backoff

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before a retry attempt.
type Strategy interface {
	// Delay returns how long to wait before retry attempt n (1-indexed).
	// Attempt 1 is the first retry after the initial failure.
	Delay(attempt int) time.Duration
}

// StrategyFunc adapts a function to Strategy.
type StrategyFunc func(attempt int) time.Duration

// Delay calls f.
func (f StrategyFunc) Delay(attempt int) time.Duration { return f(attempt) }

// ──────────────────────────────────────────────────
// Constant
// ──────────────────────────────────────────────────

// Constant always returns the same delay. Tests use it with a zero or
// tiny interval to keep retries fast.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant backoff strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// ──────────────────────────────────────────────────
// Exponential
// ──────────────────────────────────────────────────

// Exponential doubles the delay each attempt.
// Delay = min(Initial * 2^(attempt-1), Max).
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponential creates an exponential backoff strategy.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// Delay returns Initial * 2^(attempt-1), capped at Max.
func (e *Exponential) Delay(attempt int) time.Duration {
	return exp(e.Initial, e.Max, attempt)
}

func exp(initial, maxDelay time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(initial) * math.Pow(2, float64(attempt-1))
	if maxDelay > 0 && d > float64(maxDelay) {
		return maxDelay
	}
	return time.Duration(d)
}

// ──────────────────────────────────────────────────
// ExponentialWithJitter
// ──────────────────────────────────────────────────

// ExponentialWithJitter randomizes an exponential base so that jobs failing
// together do not retry in lockstep.
// Delay = base * (1 - Spread + Spread*rand), base = min(Initial*2^(attempt-1), Max).
// Spread 1 is full jitter in [0, base]; Spread 0.5 keeps at least half of base.
type ExponentialWithJitter struct {
	Initial time.Duration
	Max     time.Duration
	Spread  float64

	// Rand returns a value in [0, 1). Nil uses math/rand/v2.
	Rand func() float64
}

// NewExponentialWithJitter creates an exponential backoff with full jitter.
func NewExponentialWithJitter(initial, maxDelay time.Duration) *ExponentialWithJitter {
	return &ExponentialWithJitter{Initial: initial, Max: maxDelay, Spread: 1}
}

// Delay returns a jittered duration no greater than the capped base.
func (e *ExponentialWithJitter) Delay(attempt int) time.Duration {
	base := float64(exp(e.Initial, e.Max, attempt))
	spread := e.Spread
	if spread <= 0 || spread > 1 {
		spread = 1
	}
	r := rand.Float64 //nolint:gosec // jitter intentionally uses non-crypto rand
	if e.Rand != nil {
		r = e.Rand
	}
	return time.Duration(base * (1 - spread + spread*r()))
}

// ──────────────────────────────────────────────────
// Defaults
// ──────────────────────────────────────────────────

// DefaultStrategy is used between attempts of a transient collaborator
// failure: full jitter over 500ms doubling up to 30s.
func DefaultStrategy() Strategy {
	return NewExponentialWithJitter(500*time.Millisecond, 30*time.Second)
}

// ContentionStrategy is used while waiting for a busy slot lease or
// retrying a stale write. It keeps at least half the base delay.
func ContentionStrategy() Strategy {
	return &ExponentialWithJitter{Initial: 50 * time.Millisecond, Max: 2 * time.Second, Spread: 0.5}
}

// Wait sleeps for d or until ctx is done, whichever comes first.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
