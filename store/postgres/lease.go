package postgres

import (
	"context"
	"time"

	dmagent "github.com/alimaamoun/DM-Agent"
	"github.com/alimaamoun/DM-Agent/id"
	"github.com/alimaamoun/DM-Agent/lease"
)

// AcquireLease inserts l, replacing an existing row only when it expired
// at or before l.AcquiredAt.
func (s *Store) AcquireLease(ctx context.Context, l *lease.Lease) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO dmagent_leases (key, token, holder, acquired_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (key) DO UPDATE SET
			token = EXCLUDED.token,
			holder = EXCLUDED.holder,
			acquired_at = EXCLUDED.acquired_at,
			expires_at = EXCLUDED.expires_at
		WHERE dmagent_leases.expires_at <= EXCLUDED.acquired_at`,
		l.Key, l.Token.String(), l.Holder, l.AcquiredAt, l.ExpiresAt,
	)
	if err != nil {
		return wrap("acquire lease", err)
	}
	if tag.RowsAffected() == 0 {
		return dmagent.ErrSlotBusy
	}
	return nil
}

// RenewLease extends the live lease identified by key and token.
func (s *Store) RenewLease(ctx context.Context, key string, token id.LeaseID, now, expiresAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE dmagent_leases SET acquired_at = $3, expires_at = $4
		WHERE key = $1 AND token = $2 AND expires_at > $3`,
		key, token.String(), now, expiresAt,
	)
	if err != nil {
		return wrap("renew lease", err)
	}
	if tag.RowsAffected() == 0 {
		return dmagent.ErrLockExpired
	}
	return nil
}

// ReleaseLease deletes the lease identified by key and token.
func (s *Store) ReleaseLease(ctx context.Context, key string, token id.LeaseID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM dmagent_leases WHERE key = $1 AND token = $2`, key, token.String())
	if err != nil {
		return wrap("release lease", err)
	}
	return nil
}

// GetLease returns the live lease for key.
func (s *Store) GetLease(ctx context.Context, key string, now time.Time) (*lease.Lease, error) {
	var (
		l     lease.Lease
		token string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT key, token, holder, acquired_at, expires_at FROM dmagent_leases
		WHERE key = $1 AND expires_at > $2`,
		key, now,
	).Scan(&l.Key, &token, &l.Holder, &l.AcquiredAt, &l.ExpiresAt)
	if err != nil {
		if isNoRows(err) {
			return nil, dmagent.ErrLeaseNotFound
		}
		return nil, wrap("get lease", err)
	}
	if l.Token, err = id.ParseLeaseID(token); err != nil {
		return nil, wrap("parse lease token", err)
	}
	l.AcquiredAt, l.ExpiresAt = l.AcquiredAt.UTC(), l.ExpiresAt.UTC()
	return &l, nil
}
