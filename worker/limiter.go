package worker

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/alimaamoun/DM-Agent/task"
)

// Limit defines per-kind throttling of collaborator calls.
type Limit struct {
	// Kind is the task kind the limit applies to.
	Kind task.Kind

	// MaxConcurrency bounds simultaneous calls of this kind within the
	// pool. Zero means only the pool-wide worker count applies.
	MaxConcurrency int

	// RateLimit is the maximum sustained calls per second. Zero disables
	// rate limiting.
	RateLimit float64

	// RateBurst is the token-bucket burst. Defaults to 1 when RateLimit is
	// set.
	RateBurst int
}

type kindState struct {
	limiter *rate.Limiter
	slots   chan struct{}
}

// Limiter throttles calls per task kind. Kinds without a Limit pass
// straight through. It is safe for concurrent use.
type Limiter struct {
	mu    sync.RWMutex
	kinds map[task.Kind]*kindState
}

// NewLimiter creates a Limiter with the given limits.
func NewLimiter(limits ...Limit) *Limiter {
	l := &Limiter{kinds: make(map[task.Kind]*kindState, len(limits))}
	for _, lim := range limits {
		l.Set(lim)
	}
	return l
}

// Set installs or replaces the limit for lim.Kind. Calls already holding a
// slot under the old limit are unaffected.
func (l *Limiter) Set(lim Limit) {
	ks := &kindState{}
	if lim.RateLimit > 0 {
		burst := lim.RateBurst
		if burst <= 0 {
			burst = 1
		}
		ks.limiter = rate.NewLimiter(rate.Limit(lim.RateLimit), burst)
	}
	if lim.MaxConcurrency > 0 {
		ks.slots = make(chan struct{}, lim.MaxConcurrency)
	}

	l.mu.Lock()
	l.kinds[lim.Kind] = ks
	l.mu.Unlock()
}

// Wait blocks until a call of kind may proceed or ctx is done. The caller
// MUST call the returned release func once the call completes.
func (l *Limiter) Wait(ctx context.Context, kind task.Kind) (release func(), err error) {
	if l == nil {
		return func() {}, nil
	}
	l.mu.RLock()
	ks := l.kinds[kind]
	l.mu.RUnlock()
	if ks == nil {
		return func() {}, nil
	}

	if ks.slots != nil {
		select {
		case ks.slots <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	release = func() {
		if ks.slots != nil {
			<-ks.slots
		}
	}

	if ks.limiter != nil {
		if err := ks.limiter.Wait(ctx); err != nil {
			release()
			return nil, err
		}
	}
	return release, nil
}

// InFlight returns the number of calls of kind currently holding a slot.
func (l *Limiter) InFlight(kind task.Kind) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if ks := l.kinds[kind]; ks != nil && ks.slots != nil {
		return len(ks.slots)
	}
	return 0
}
