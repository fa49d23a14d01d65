package redis

import (
	"context"
	"strconv"
	"time"

	dmagent "github.com/alimaamoun/DM-Agent"
	"github.com/alimaamoun/DM-Agent/id"
	"github.com/alimaamoun/DM-Agent/lease"
)

// gcGrace keeps an expired lease hash around a little past its expiry so
// that clock skew between Redis and callers never drops a live lease.
const gcGrace = time.Minute

// AcquireLease stores l unless a live lease holds l.Key.
func (s *Store) AcquireLease(ctx context.Context, l *lease.Lease) error {
	ok, err := acquireLeaseScript.Run(ctx, s.client, []string{s.keys.lease(l.Key)},
		l.Token.String(), l.Holder, micros(l.AcquiredAt), micros(l.ExpiresAt), gcTTL(l.AcquiredAt, l.ExpiresAt),
	).Int()
	if err != nil {
		return wrap("acquire lease", err)
	}
	if ok == 0 {
		return dmagent.ErrSlotBusy
	}
	return nil
}

// RenewLease extends the live lease identified by key and token.
func (s *Store) RenewLease(ctx context.Context, key string, token id.LeaseID, now, expiresAt time.Time) error {
	ok, err := renewLeaseScript.Run(ctx, s.client, []string{s.keys.lease(key)},
		token.String(), micros(now), micros(expiresAt), gcTTL(now, expiresAt),
	).Int()
	if err != nil {
		return wrap("renew lease", err)
	}
	if ok == 0 {
		return dmagent.ErrLockExpired
	}
	return nil
}

// ReleaseLease deletes the lease identified by key and token.
func (s *Store) ReleaseLease(ctx context.Context, key string, token id.LeaseID) error {
	if err := releaseLeaseScript.Run(ctx, s.client, []string{s.keys.lease(key)}, token.String()).Err(); err != nil {
		return wrap("release lease", err)
	}
	return nil
}

// GetLease returns the live lease for key.
func (s *Store) GetLease(ctx context.Context, key string, now time.Time) (*lease.Lease, error) {
	m, err := s.client.HGetAll(ctx, s.keys.lease(key)).Result()
	if err != nil {
		return nil, wrap("get lease", err)
	}
	if len(m) == 0 {
		return nil, dmagent.ErrLeaseNotFound
	}
	token, err := id.ParseLeaseID(m["token"])
	if err != nil {
		return nil, wrap("decode lease token", err)
	}
	l := &lease.Lease{
		Token:      token,
		Key:        key,
		Holder:     m["holder"],
		AcquiredAt: fromMicros(m["acquired_us"]),
		ExpiresAt:  fromMicros(m["expires_us"]),
	}
	if !l.Live(now) {
		return nil, dmagent.ErrLeaseNotFound
	}
	return l, nil
}

func gcTTL(from, to time.Time) int64 {
	return (to.Sub(from) + gcGrace).Milliseconds()
}

func fromMicros(s string) time.Time {
	n, _ := strconv.ParseInt(s, 10, 64)
	return time.UnixMicro(n).UTC()
}
