package lease

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	dmagent "github.com/alimaamoun/DM-Agent"
	"github.com/alimaamoun/DM-Agent/backoff"
	"github.com/alimaamoun/DM-Agent/id"
)

// DefaultTTL covers the slowest expected collaborator call.
const DefaultTTL = 5 * time.Minute

// Manager grants and validates leases on top of a Store.
type Manager struct {
	store   Store
	ttl     time.Duration
	now     func() time.Time
	backoff backoff.Strategy
	logger  *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithTTL sets the lease duration.
func WithTTL(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.ttl = d
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithBackoff sets the delay strategy used by AcquireWait.
func WithBackoff(s backoff.Strategy) Option {
	return func(m *Manager) { m.backoff = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a lease manager over s.
func NewManager(s Store, opts ...Option) *Manager {
	m := &Manager{
		store:   s,
		ttl:     DefaultTTL,
		now:     time.Now,
		backoff: backoff.ContentionStrategy(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TTL returns the configured lease duration.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Acquire grants a fresh lease on key to holder or fails with ErrSlotBusy
// while another live lease exists.
func (m *Manager) Acquire(ctx context.Context, key, holder string) (*Lease, error) {
	now := dmagent.Truncate(m.now())
	l := &Lease{
		Token:      id.NewLeaseID(),
		Key:        key,
		Holder:     holder,
		AcquiredAt: now,
		ExpiresAt:  now.Add(m.ttl),
	}
	if err := m.store.AcquireLease(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

// AcquireWait retries Acquire with backoff until it succeeds, maxWait
// elapses, or ctx is done. On timeout it returns ErrSlotBusy.
func (m *Manager) AcquireWait(ctx context.Context, key, holder string, maxWait time.Duration) (*Lease, error) {
	deadline := m.now().Add(maxWait)
	for attempt := 1; ; attempt++ {
		l, err := m.Acquire(ctx, key, holder)
		if err == nil || !errors.Is(err, dmagent.ErrSlotBusy) {
			return l, err
		}
		remaining := deadline.Sub(m.now())
		if remaining <= 0 {
			return nil, err
		}
		d := min(m.backoff.Delay(attempt), remaining)
		if werr := backoff.Wait(ctx, d); werr != nil {
			return nil, werr
		}
	}
}

// Renew extends l by the configured TTL. It fails with ErrLockExpired if l
// lapsed or another holder took the key.
func (m *Manager) Renew(ctx context.Context, l *Lease) error {
	now := dmagent.Truncate(m.now())
	expires := now.Add(m.ttl)
	if err := m.store.RenewLease(ctx, l.Key, l.Token, now, expires); err != nil {
		return err
	}
	l.AcquiredAt = now
	l.ExpiresAt = expires
	return nil
}

// Release gives up the lease identified by key and token. It is safe to
// call more than once.
func (m *Manager) Release(ctx context.Context, key string, token id.LeaseID) error {
	if token.IsNil() {
		return nil
	}
	if err := m.store.ReleaseLease(ctx, key, token); err != nil {
		return fmt.Errorf("release lease %s: %w", key, err)
	}
	return nil
}

// Validate returns nil only if token is the live lease for key.
func (m *Manager) Validate(ctx context.Context, key string, token id.LeaseID) error {
	if token.IsNil() {
		return dmagent.ErrLockExpired
	}
	cur, err := m.store.GetLease(ctx, key, m.now())
	if errors.Is(err, dmagent.ErrLeaseNotFound) {
		return dmagent.ErrLockExpired
	}
	if err != nil {
		return err
	}
	if cur.Token != token {
		return dmagent.ErrLockExpired
	}
	return nil
}

// Holder returns the live lease for key, or ErrLeaseNotFound.
func (m *Manager) Holder(ctx context.Context, key string) (*Lease, error) {
	return m.store.GetLease(ctx, key, m.now())
}

// KeepAlive renews l every third of the TTL until ctx is done. The
// returned channel receives the renewal error and closes if the lease is
// lost; it closes without a value when ctx ends.
func (m *Manager) KeepAlive(ctx context.Context, l *Lease) <-chan error {
	lost := make(chan error, 1)
	interval := m.ttl / 3
	if interval <= 0 {
		interval = time.Second
	}
	go func() {
		defer close(lost)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := m.Renew(ctx, l); err != nil {
					if ctx.Err() != nil {
						return
					}
					m.logger.Warn("lease renewal failed",
						slog.String("key", l.Key),
						slog.String("token", l.Token.String()),
						slog.String("error", err.Error()),
					)
					lost <- err
					return
				}
			}
		}
	}()
	return lost
}
