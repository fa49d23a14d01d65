// Package storetest is a conformance suite run against every store.Store
// backend.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	dmagent "github.com/alimaamoun/DM-Agent"
	"github.com/alimaamoun/DM-Agent/id"
	"github.com/alimaamoun/DM-Agent/job"
	"github.com/alimaamoun/DM-Agent/lease"
	"github.com/alimaamoun/DM-Agent/store"
)

// Factory returns an empty, migrated store. It registers its own cleanup.
type Factory func(t *testing.T) store.Store

// Run runs the full suite.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"CreateAndGet", testCreateAndGet},
		{"DuplicateActiveJob", testDuplicateActiveJob},
		{"ConcurrentCreate", testConcurrentCreate},
		{"TerminalFreesSlot", testTerminalFreesSlot},
		{"PublishedSlotRejected", testPublishedSlotRejected},
		{"UpdateStaleWrite", testUpdateStaleWrite},
		{"UpdateMonotonic", testUpdateMonotonic},
		{"ListFilterAndPage", testListFilterAndPage},
		{"LeaseAcquireBusy", testLeaseAcquireBusy},
		{"LeaseExpiry", testLeaseExpiry},
		{"LeaseRenew", testLeaseRenew},
		{"LeaseRelease", testLeaseRelease},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

var base = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func slot(theme string) job.Slot {
	return job.Slot{Date: "2024-06-01", Platform: "instagram", Theme: theme}
}

func newJob(s job.Slot) *job.Job {
	return job.New(s, job.SourceScheduledRun, job.Params{Prompt: "a launch photo", Size: "1024x1024"}, time.Now())
}

func mustCreate(t *testing.T, s store.Store, j *job.Job) {
	t.Helper()
	if err := s.CreateJob(context.Background(), j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
}

func advance(t *testing.T, s store.Store, j *job.Job, to job.Stage) *job.Job {
	t.Helper()
	next, err := job.Update(context.Background(), s, j, func(j *job.Job) error {
		j.Stage = to
		return nil
	})
	if err != nil {
		t.Fatalf("update to %s: %v", to, err)
	}
	return next
}

func testCreateAndGet(t *testing.T, s store.Store) {
	ctx := context.Background()
	j := newJob(slot("launch"))
	lt := id.NewLeaseID()
	j.Record(job.StageImageGenerating, "/out/img.png", lt, base)
	mustCreate(t, s, j)

	got, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.ID != j.ID || got.Slot != j.Slot || got.Stage != job.StagePlanned || got.Source != job.SourceScheduledRun {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got.Params.Prompt != "a launch photo" {
		t.Errorf("params lost: %+v", got.Params)
	}
	if a := got.Artifacts[job.StageImageGenerating]; a.Ref != "/out/img.png" || a.LeaseToken != lt {
		t.Errorf("artifact lost: %+v", a)
	}
	if !got.UpdatedAt.Equal(j.UpdatedAt) {
		t.Errorf("UpdatedAt %v != %v", got.UpdatedAt, j.UpdatedAt)
	}

	if _, err := s.GetJob(ctx, id.NewJobID()); !errors.Is(err, dmagent.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}

	active, err := s.GetActiveJob(ctx, j.Slot)
	if err != nil || active.ID != j.ID {
		t.Errorf("GetActiveJob = %v, %v", active, err)
	}
	if _, err := s.GetActiveJob(ctx, slot("other")); !errors.Is(err, dmagent.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound for empty slot, got %v", err)
	}
}

func testDuplicateActiveJob(t *testing.T, s store.Store) {
	first := newJob(slot("launch"))
	mustCreate(t, s, first)
	first = advance(t, s, first, job.StageComposing)

	second := newJob(slot("launch"))
	second.Source = job.SourceInteractive
	if err := s.CreateJob(context.Background(), second); !errors.Is(err, dmagent.ErrDuplicateActiveJob) {
		t.Fatalf("expected ErrDuplicateActiveJob, got %v", err)
	}
}

func testConcurrentCreate(t *testing.T, s store.Store) {
	const n = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		dupes   int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			j := newJob(slot("race"))
			if i%2 == 0 {
				j.Source = job.SourceInteractive
			}
			err := s.CreateJob(context.Background(), j)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, dmagent.ErrDuplicateActiveJob):
				dupes++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if created != 1 || dupes != n-1 {
		t.Errorf("created %d, duplicates %d", created, dupes)
	}
}

func testTerminalFreesSlot(t *testing.T, s store.Store) {
	ctx := context.Background()
	first := newJob(slot("launch"))
	mustCreate(t, s, first)
	advance(t, s, first, job.StageFailed)

	second := newJob(slot("launch"))
	mustCreate(t, s, second)

	if _, err := s.GetJob(ctx, first.ID); err != nil {
		t.Errorf("failed job should remain as an audit record: %v", err)
	}
	active, err := s.GetActiveJob(ctx, second.Slot)
	if err != nil || active.ID != second.ID {
		t.Errorf("GetActiveJob = %v, %v", active, err)
	}
}

func testPublishedSlotRejected(t *testing.T, s store.Store) {
	j := newJob(slot("launch"))
	mustCreate(t, s, j)
	advance(t, s, j, job.StagePublished)

	if err := s.CreateJob(context.Background(), newJob(slot("launch"))); !errors.Is(err, dmagent.ErrSlotPublished) {
		t.Fatalf("expected ErrSlotPublished, got %v", err)
	}
}

func testUpdateStaleWrite(t *testing.T, s store.Store) {
	ctx := context.Background()
	j := newJob(slot("launch"))
	mustCreate(t, s, j)

	a, _ := s.GetJob(ctx, j.ID)
	b, _ := s.GetJob(ctx, j.ID)

	if _, err := job.Update(ctx, s, a, func(j *job.Job) error {
		j.Stage = job.StageImageGenerating
		return nil
	}); err != nil {
		t.Fatalf("first writer: %v", err)
	}
	_, err := job.Update(ctx, s, b, func(j *job.Job) error {
		j.Stage = job.StageCancelled
		return nil
	})
	if !errors.Is(err, dmagent.ErrStaleWrite) {
		t.Fatalf("expected ErrStaleWrite, got %v", err)
	}

	got, _ := s.GetJob(ctx, j.ID)
	if got.Stage != job.StageImageGenerating {
		t.Errorf("stale write applied: stage %s", got.Stage)
	}
}

func testUpdateMonotonic(t *testing.T, s store.Store) {
	ctx := context.Background()
	j := newJob(slot("launch"))
	mustCreate(t, s, j)

	prev := j.UpdatedAt
	cur := j
	for range 5 {
		next, err := job.Update(ctx, s, cur, func(j *job.Job) error {
			j.LastError = ""
			return nil
		})
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if !next.UpdatedAt.After(prev) {
			t.Fatalf("UpdatedAt did not increase: %v -> %v", prev, next.UpdatedAt)
		}
		prev, cur = next.UpdatedAt, next
	}

	stored, _ := s.GetJob(ctx, j.ID)
	if !stored.UpdatedAt.Equal(prev) {
		t.Errorf("stored UpdatedAt %v, want %v", stored.UpdatedAt, prev)
	}
}

func testListFilterAndPage(t *testing.T, s store.Store) {
	ctx := context.Background()
	var ids []id.JobID
	for _, theme := range []string{"a", "b", "c", "d", "e"} {
		j := newJob(slot(theme))
		mustCreate(t, s, j)
		ids = append(ids, j.ID)
	}
	tw := job.New(job.Slot{Date: "2024-06-09", Platform: "twitter", Theme: "a"}, job.SourceInteractive, job.Params{}, time.Now())
	mustCreate(t, s, tw)

	page, err := s.ListJobs(ctx, job.Filter{Platform: "instagram"}, job.ListOpts{Limit: 2})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(page) != 2 || page[0].ID != ids[0] || page[1].ID != ids[1] {
		t.Fatalf("first page = %v", page)
	}
	page, err = s.ListJobs(ctx, job.Filter{Platform: "instagram"}, job.ListOpts{Limit: 10, After: page[1].ID})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(page) != 3 || page[0].ID != ids[2] {
		t.Errorf("second page has %d jobs", len(page))
	}

	page, _ = s.ListJobs(ctx, job.Filter{From: "2024-06-05", To: "2024-06-10"}, job.ListOpts{})
	if len(page) != 1 || page[0].ID != tw.ID {
		t.Errorf("date range filter = %v", page)
	}
	page, _ = s.ListJobs(ctx, job.Filter{Source: job.SourceInteractive, Stages: []job.Stage{job.StagePlanned}}, job.ListOpts{})
	if len(page) != 1 {
		t.Errorf("source+stage filter returned %d jobs", len(page))
	}

	count := 0
	for _, err := range job.All(ctx, s, job.Filter{}, 2) {
		if err != nil {
			t.Fatal(err)
		}
		count++
	}
	if count != 6 {
		t.Errorf("All yielded %d jobs, want 6", count)
	}
}

func newLease(key string, at time.Time, ttl time.Duration) *lease.Lease {
	at = dmagent.Truncate(at)
	return &lease.Lease{
		Token:      id.NewLeaseID(),
		Key:        key,
		Holder:     "test",
		AcquiredAt: at,
		ExpiresAt:  at.Add(ttl),
	}
}

func testLeaseAcquireBusy(t *testing.T, s store.Store) {
	ctx := context.Background()
	first := newLease("slot:x", base, time.Minute)
	if err := s.AcquireLease(ctx, first); err != nil {
		t.Fatalf("AcquireLease: %v", err)
	}
	second := newLease("slot:x", base.Add(time.Second), time.Minute)
	if err := s.AcquireLease(ctx, second); !errors.Is(err, dmagent.ErrSlotBusy) {
		t.Fatalf("expected ErrSlotBusy, got %v", err)
	}
	other := newLease("slot:y", base, time.Minute)
	if err := s.AcquireLease(ctx, other); err != nil {
		t.Fatalf("other key: %v", err)
	}

	got, err := s.GetLease(ctx, "slot:x", base.Add(time.Second))
	if err != nil || got.Token != first.Token {
		t.Errorf("GetLease = %v, %v", got, err)
	}
}

func testLeaseExpiry(t *testing.T, s store.Store) {
	ctx := context.Background()
	first := newLease("slot:x", base, time.Minute)
	if err := s.AcquireLease(ctx, first); err != nil {
		t.Fatal(err)
	}
	later := base.Add(2 * time.Minute)
	if _, err := s.GetLease(ctx, "slot:x", later); !errors.Is(err, dmagent.ErrLeaseNotFound) {
		t.Errorf("expected expired lease to be gone, got %v", err)
	}

	second := newLease("slot:x", later, time.Minute)
	if err := s.AcquireLease(ctx, second); err != nil {
		t.Fatalf("reclaim expired lease: %v", err)
	}
	if err := s.RenewLease(ctx, "slot:x", first.Token, later, later.Add(time.Minute)); !errors.Is(err, dmagent.ErrLockExpired) {
		t.Errorf("expected ErrLockExpired for old holder, got %v", err)
	}
}

func testLeaseRenew(t *testing.T, s store.Store) {
	ctx := context.Background()
	l := newLease("slot:x", base, time.Minute)
	if err := s.AcquireLease(ctx, l); err != nil {
		t.Fatal(err)
	}

	at := base.Add(50 * time.Second)
	if err := s.RenewLease(ctx, "slot:x", l.Token, at, at.Add(time.Minute)); err != nil {
		t.Fatalf("RenewLease: %v", err)
	}
	if _, err := s.GetLease(ctx, "slot:x", base.Add(90*time.Second)); err != nil {
		t.Errorf("renewed lease should still be live: %v", err)
	}
	late := base.Add(5 * time.Minute)
	if err := s.RenewLease(ctx, "slot:x", l.Token, late, late.Add(time.Minute)); !errors.Is(err, dmagent.ErrLockExpired) {
		t.Errorf("expected ErrLockExpired renewing a lapsed lease, got %v", err)
	}
}

func testLeaseRelease(t *testing.T, s store.Store) {
	ctx := context.Background()
	l := newLease("slot:x", base, time.Minute)
	if err := s.AcquireLease(ctx, l); err != nil {
		t.Fatal(err)
	}
	if err := s.ReleaseLease(ctx, "slot:x", id.NewLeaseID()); err != nil {
		t.Fatalf("release with foreign token: %v", err)
	}
	if _, err := s.GetLease(ctx, "slot:x", base); err != nil {
		t.Fatal("foreign release dropped the lease")
	}
	for range 2 {
		if err := s.ReleaseLease(ctx, "slot:x", l.Token); err != nil {
			t.Fatalf("ReleaseLease: %v", err)
		}
	}
	if err := s.AcquireLease(ctx, newLease("slot:x", base, time.Minute)); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
}
