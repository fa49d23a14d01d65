package job

import (
	"context"
	"iter"
	"slices"
	"time"

	dmagent "github.com/alimaamoun/DM-Agent"
	"github.com/alimaamoun/DM-Agent/id"
)

// Filter selects jobs for list queries. Zero fields match everything.
type Filter struct {
	// Stages restricts results to the given stages.
	Stages []Stage
	// Date matches one exact slot date.
	Date string
	// From and To bound the slot date, inclusive, in YYYY-MM-DD form.
	From string
	To   string
	// Platform matches the slot platform.
	Platform string
	// Theme matches the slot theme.
	Theme string
	// Source matches the creating entry point.
	Source Source
}

// Match reports whether j satisfies f.
func (f Filter) Match(j *Job) bool {
	if len(f.Stages) > 0 && !slices.Contains(f.Stages, j.Stage) {
		return false
	}
	if f.Date != "" && j.Slot.Date != f.Date {
		return false
	}
	// Slot dates are YYYY-MM-DD, so string order is date order.
	if f.From != "" && j.Slot.Date < f.From {
		return false
	}
	if f.To != "" && j.Slot.Date > f.To {
		return false
	}
	if f.Platform != "" && j.Slot.Platform != f.Platform {
		return false
	}
	if f.Theme != "" && j.Slot.Theme != f.Theme {
		return false
	}
	if f.Source != "" && j.Source != f.Source {
		return false
	}
	return true
}

// ListOpts controls keyset pagination for job list queries.
type ListOpts struct {
	// Limit is the maximum number of jobs to return. Zero means no limit.
	Limit int
	// After returns only jobs whose ID sorts after this one.
	After id.JobID
}

// Store defines the persistence contract for content jobs.
type Store interface {
	// CreateJob persists a new job. It fails with ErrDuplicateActiveJob
	// when another active job exists for the slot and with ErrSlotPublished
	// when the slot was already published. The check and the insert are
	// atomic per slot.
	CreateJob(ctx context.Context, j *Job) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// GetActiveJob returns the active job for slot, or ErrJobNotFound.
	GetActiveJob(ctx context.Context, slot Slot) (*Job, error)

	// UpdateJob replaces the stored job when its UpdatedAt equals seen and
	// fails with ErrStaleWrite otherwise. On success j.UpdatedAt holds the
	// new, strictly greater, timestamp.
	UpdateJob(ctx context.Context, j *Job, seen time.Time) error

	// ListJobs returns jobs matching filter ordered by ID.
	ListJobs(ctx context.Context, filter Filter, opts ListOpts) ([]*Job, error)
}

// Mutation changes a job in place. A returned error aborts the write.
type Mutation func(j *Job) error

// Update applies fn to a copy of j and writes the copy using j.UpdatedAt as
// the concurrency token. j itself is left untouched.
func Update(ctx context.Context, s Store, j *Job, fn Mutation) (*Job, error) {
	next := j.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if err := s.UpdateJob(ctx, next, j.UpdatedAt); err != nil {
		return nil, err
	}
	return next, nil
}

// DefaultPageSize is the page size used by All when none is given.
const DefaultPageSize = 100

// All returns a lazy sequence over every job matching filter. Pages are
// fetched on demand and each range over the sequence starts from the
// first job again. A store error is yielded once and ends the sequence.
func All(ctx context.Context, s Store, filter Filter, pageSize int) iter.Seq2[*Job, error] {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return func(yield func(*Job, error) bool) {
		var after id.JobID
		for {
			page, err := s.ListJobs(ctx, filter, ListOpts{Limit: pageSize, After: after})
			if err != nil {
				yield(nil, err)
				return
			}
			for _, j := range page {
				if !yield(j, nil) {
					return
				}
			}
			if len(page) < pageSize {
				return
			}
			after = page[len(page)-1].ID
		}
	}
}

// NextUpdatedAt returns the UpdatedAt for a write replacing a job whose
// UpdatedAt was seen: now at microsecond precision, bumped past seen so two
// writes never share a token.
func NextUpdatedAt(seen, now time.Time) time.Time {
	next := dmagent.Truncate(now)
	if !next.After(seen) {
		next = dmagent.Truncate(seen).Add(time.Microsecond)
	}
	return next
}
