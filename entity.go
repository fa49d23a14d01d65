package dmagent

import "time"

// Entity carries the timestamps shared by every persisted record.
// UpdatedAt doubles as the optimistic concurrency token for jobs.
type Entity struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEntity returns an Entity stamped with now, truncated to the
// microsecond precision every backend can round-trip.
func NewEntity(now time.Time) Entity {
	now = Truncate(now)
	return Entity{CreatedAt: now, UpdatedAt: now}
}

// Truncate drops sub-microsecond precision and the monotonic reading so
// timestamps compare equal after a trip through any store.
func Truncate(t time.Time) time.Time {
	return t.Round(0).UTC().Truncate(time.Microsecond)
}
