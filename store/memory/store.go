// Package memory keeps jobs and slot leases in process memory. It backs
// tests and single-process development runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	dmagent "github.com/alimaamoun/DM-Agent"
	"github.com/alimaamoun/DM-Agent/id"
	"github.com/alimaamoun/DM-Agent/job"
	"github.com/alimaamoun/DM-Agent/lease"
)

var (
	_ job.Store   = (*Store)(nil)
	_ lease.Store = (*Store)(nil)
)

// Store keeps jobs and leases in maps guarded by one RWMutex. Every job
// handed out is a deep copy, so callers can mutate freely.
type Store struct {
	mu sync.RWMutex

	jobs map[string]*job.Job

	// active and published index slot keys to job IDs.
	active    map[string]string
	published map[string]string

	leases map[string]*lease.Lease

	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used to stamp UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns a new empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		jobs:      make(map[string]*job.Job),
		active:    make(map[string]string),
		published: make(map[string]string),
		leases:    make(map[string]*lease.Lease),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ──────────────────────────────────────────────────
// Lifecycle: Migrate, Ping, Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Job Store
// ──────────────────────────────────────────────────

// CreateJob persists a new job if its slot has neither an active nor a
// published job.
func (m *Store) CreateJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := j.Slot.Key()
	if _, ok := m.published[key]; ok {
		return dmagent.ErrSlotPublished
	}
	if _, ok := m.active[key]; ok {
		return dmagent.ErrDuplicateActiveJob
	}

	cp := j.Clone()
	m.jobs[j.ID.String()] = cp
	m.index(cp)
	return nil
}

// GetJob retrieves a job by ID.
func (m *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, dmagent.ErrJobNotFound
	}
	return j.Clone(), nil
}

// GetActiveJob returns the active job of slot.
func (m *Store) GetActiveJob(_ context.Context, slot job.Slot) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobID, ok := m.active[slot.Normalize().Key()]
	if !ok {
		return nil, dmagent.ErrJobNotFound
	}
	return m.jobs[jobID].Clone(), nil
}

// UpdateJob replaces the stored job when its UpdatedAt equals seen.
func (m *Store) UpdateJob(_ context.Context, j *job.Job, seen time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := j.ID.String()
	cur, ok := m.jobs[key]
	if !ok {
		return dmagent.ErrJobNotFound
	}
	if !cur.UpdatedAt.Equal(seen) {
		return dmagent.ErrStaleWrite
	}
	if j.Stage.Active() {
		if owner, ok := m.active[cur.Slot.Key()]; ok && owner != key {
			return dmagent.ErrDuplicateActiveJob
		}
	}

	j.UpdatedAt = job.NextUpdatedAt(cur.UpdatedAt, m.now())
	cp := j.Clone()
	// Slot and provenance are immutable.
	cp.Slot, cp.Source, cp.CreatedAt = cur.Slot, cur.Source, cur.CreatedAt
	m.jobs[key] = cp
	m.index(cp)
	return nil
}

// index maintains the slot indexes for j. Callers hold the write lock.
func (m *Store) index(j *job.Job) {
	key, jobID := j.Slot.Key(), j.ID.String()
	switch {
	case j.Stage == job.StagePublished:
		m.published[key] = jobID
		fallthrough
	case j.Stage.Terminal():
		if m.active[key] == jobID {
			delete(m.active, key)
		}
	default:
		m.active[key] = jobID
	}
}

// ListJobs returns jobs matching filter ordered by ID.
func (m *Store) ListJobs(_ context.Context, filter job.Filter, opts job.ListOpts) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	after := opts.After.String()
	result := make([]*job.Job, 0)
	for key, j := range m.jobs {
		if after != "" && key <= after {
			continue
		}
		if !filter.Match(j) {
			continue
		}
		result = append(result, j)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].ID.String() < result[k].ID.String()
	})
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}

	for i, j := range result {
		result[i] = j.Clone()
	}
	return result, nil
}

// ──────────────────────────────────────────────────
// Lease Store
// ──────────────────────────────────────────────────

// AcquireLease stores l unless a live lease holds l.Key.
func (m *Store) AcquireLease(_ context.Context, l *lease.Lease) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.leases[l.Key]; ok && cur.Live(l.AcquiredAt) {
		return dmagent.ErrSlotBusy
	}
	cp := *l
	m.leases[l.Key] = &cp
	return nil
}

// RenewLease extends the live lease identified by key and token.
func (m *Store) RenewLease(_ context.Context, key string, token id.LeaseID, now, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.leases[key]
	if !ok || cur.Token != token || !cur.Live(now) {
		return dmagent.ErrLockExpired
	}
	cur.AcquiredAt = now
	cur.ExpiresAt = expiresAt
	return nil
}

// ReleaseLease deletes the lease identified by key and token.
func (m *Store) ReleaseLease(_ context.Context, key string, token id.LeaseID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.leases[key]; ok && cur.Token == token {
		delete(m.leases, key)
	}
	return nil
}

// GetLease returns the live lease for key.
func (m *Store) GetLease(_ context.Context, key string, now time.Time) (*lease.Lease, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cur, ok := m.leases[key]
	if !ok || !cur.Live(now) {
		return nil, dmagent.ErrLeaseNotFound
	}
	cp := *cur
	return &cp, nil
}
