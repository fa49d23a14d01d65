// Package lease implements leased, exclusive ownership of a key. Content
// slots are leased by the job running a stage on them, and the scheduler
// leases a well-known key to elect a single leader.
//
// A lease expires after its TTL unless renewed, so a crashed or hung holder
// never keeps a slot forever. Release is idempotent.
package lease

import (
	"context"
	"time"

	"github.com/alimaamoun/DM-Agent/id"
)

// Lease is a time-bounded claim on Key.
type Lease struct {
	Token      id.LeaseID `json:"token"`
	Key        string     `json:"key"`
	Holder     string     `json:"holder"`
	AcquiredAt time.Time  `json:"acquired_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
}

// Live reports whether the lease has not expired at now.
func (l *Lease) Live(now time.Time) bool {
	return l != nil && now.Before(l.ExpiresAt)
}

// TTL returns the lease duration granted at acquisition or last renewal.
func (l *Lease) TTL() time.Duration {
	return l.ExpiresAt.Sub(l.AcquiredAt)
}

// SlotKey returns the lease key for a content slot key.
func SlotKey(slotKey string) string { return "slot:" + slotKey }

// LeaderKey is the lease key contended by scheduler instances.
const LeaderKey = "scheduler:leader"

// Store defines the persistence contract for leases. Times are passed in by
// the caller so that every backend judges expiry against the same clock.
type Store interface {
	// AcquireLease stores l unless a lease for l.Key exists whose
	// ExpiresAt is after l.AcquiredAt, in which case it returns
	// ErrSlotBusy. An expired lease is replaced.
	AcquireLease(ctx context.Context, l *Lease) error

	// RenewLease moves the expiry of the lease identified by key and token
	// to expiresAt. It returns ErrLockExpired when that lease is no longer
	// the live lease for key at now.
	RenewLease(ctx context.Context, key string, token id.LeaseID, now, expiresAt time.Time) error

	// ReleaseLease deletes the lease identified by key and token. Releasing
	// a lease that is gone or held under another token is not an error.
	ReleaseLease(ctx context.Context, key string, token id.LeaseID) error

	// GetLease returns the live lease for key at now, or ErrLeaseNotFound.
	GetLease(ctx context.Context, key string, now time.Time) (*Lease, error)
}
