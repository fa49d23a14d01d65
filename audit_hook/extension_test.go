package audithook_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	ah "github.com/alimaamoun/DM-Agent/audit_hook"
	"github.com/alimaamoun/DM-Agent/ext"
	"github.com/alimaamoun/DM-Agent/id"
	"github.com/alimaamoun/DM-Agent/job"
)

// ── Mock recorder ────────────────────────────────────

type mockRecorder struct {
	mu     sync.Mutex
	events []*ah.AuditEvent
	err    error
}

func (m *mockRecorder) Record(_ context.Context, evt *ah.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return m.err
}

func (m *mockRecorder) last() *ah.AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.events) == 0 {
		return nil
	}
	return m.events[len(m.events)-1]
}

func (m *mockRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

// ── Test helpers ─────────────────────────────────────

var fixed = time.Date(2024, 6, 5, 9, 0, 0, 0, time.UTC)

func newTestJob() *job.Job {
	slot := job.Slot{Date: "2024-06-05", Platform: "instagram", Theme: "spring sale"}
	j := job.New(slot, job.SourceInteractive, job.Params{Tone: "casual"}, fixed)
	j.Revision = 1
	return j
}

func newExt(rec ah.Recorder, opts ...ah.Option) *ah.Extension {
	opts = append([]ah.Option{
		ah.WithClock(func() time.Time { return fixed }),
		ah.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)
	return ah.New(rec, opts...)
}

// ── Tests ────────────────────────────────────────────

func TestExtension_Name(t *testing.T) {
	if got := ah.New(&mockRecorder{}).Name(); got != "audit-hook" {
		t.Errorf("expected name %q, got %q", "audit-hook", got)
	}
}

func TestExtension_JobCreated(t *testing.T) {
	rec := &mockRecorder{}
	e := newExt(rec)
	j := newTestJob()
	j.ResubmittedFrom = id.NewJobID()

	if err := e.OnJobCreated(context.Background(), j); err != nil {
		t.Fatalf("OnJobCreated: %v", err)
	}

	evt := rec.last()
	if evt == nil {
		t.Fatal("no event recorded")
	}
	if evt.Action != ah.ActionJobCreated {
		t.Errorf("Action: want %q, got %q", ah.ActionJobCreated, evt.Action)
	}
	if evt.Resource != ah.ResourceJob || evt.Category != ah.CategoryJob {
		t.Errorf("Resource/Category: got %q/%q", evt.Resource, evt.Category)
	}
	if evt.ResourceID != j.ID.String() {
		t.Errorf("ResourceID: want %q, got %q", j.ID.String(), evt.ResourceID)
	}
	if !evt.At.Equal(fixed) {
		t.Errorf("At: want %v, got %v", fixed, evt.At)
	}
	if evt.Metadata["platform"] != "instagram" || evt.Metadata["theme"] != "spring sale" {
		t.Errorf("slot metadata missing: %v", evt.Metadata)
	}
	if evt.Metadata["source"] != string(job.SourceInteractive) {
		t.Errorf("Metadata[source]: got %v", evt.Metadata["source"])
	}
	if evt.Metadata["resubmitted_from"] != j.ResubmittedFrom.String() {
		t.Errorf("Metadata[resubmitted_from]: got %v", evt.Metadata["resubmitted_from"])
	}
}

func TestExtension_ReviewDecisions(t *testing.T) {
	tests := []struct {
		name     string
		from     job.Stage
		to       job.Stage
		category string
		decision any
	}{
		{"approved", job.StageAwaitingReview, job.StageScheduled, ah.CategoryReview, ah.DecisionApproved},
		{"revised", job.StageAwaitingReview, job.StagePlanned, ah.CategoryReview, ah.DecisionRevised},
		{"cancelled", job.StageAwaitingReview, job.StageCancelled, ah.CategoryReview, ah.DecisionCancelled},
		{"pipeline step", job.StageComposing, job.StageCaptionGenerating, ah.CategoryJob, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &mockRecorder{}
			j := newTestJob()
			j.Stage = tt.to
			if err := newExt(rec).OnStageEntered(context.Background(), j, tt.from); err != nil {
				t.Fatalf("OnStageEntered: %v", err)
			}
			evt := rec.last()
			if evt.Category != tt.category {
				t.Errorf("Category: want %q, got %q", tt.category, evt.Category)
			}
			if evt.Metadata["decision"] != tt.decision {
				t.Errorf("Metadata[decision]: want %v, got %v", tt.decision, evt.Metadata["decision"])
			}
			if evt.Metadata["from"] != string(tt.from) || evt.Metadata["to"] != string(tt.to) {
				t.Errorf("from/to: got %v -> %v", evt.Metadata["from"], evt.Metadata["to"])
			}
		})
	}
}

func TestExtension_AwaitingReviewIncludesCaption(t *testing.T) {
	rec := &mockRecorder{}
	j := newTestJob()
	j.Record(job.StageCaptionGenerating, "Fresh deals #spring", id.NewLeaseID(), fixed)

	if err := newExt(rec).OnJobAwaitingReview(context.Background(), j); err != nil {
		t.Fatalf("OnJobAwaitingReview: %v", err)
	}
	evt := rec.last()
	if evt.Category != ah.CategoryReview {
		t.Errorf("Category: want %q, got %q", ah.CategoryReview, evt.Category)
	}
	if evt.Metadata["caption"] != "Fresh deals #spring" {
		t.Errorf("Metadata[caption]: got %v", evt.Metadata["caption"])
	}
}

func TestExtension_JobFailed(t *testing.T) {
	rec := &mockRecorder{}
	j := newTestJob()
	j.FailedStage = job.StageImageGenerating

	if err := newExt(rec).OnJobFailed(context.Background(), j, errors.New("model offline")); err != nil {
		t.Fatalf("OnJobFailed: %v", err)
	}

	evt := rec.last()
	if evt.Severity != ah.SeverityCritical {
		t.Errorf("Severity: want %q, got %q", ah.SeverityCritical, evt.Severity)
	}
	if evt.Outcome != ah.OutcomeFailure {
		t.Errorf("Outcome: want %q, got %q", ah.OutcomeFailure, evt.Outcome)
	}
	if evt.Reason != "model offline" {
		t.Errorf("Reason: want %q, got %q", "model offline", evt.Reason)
	}
	if evt.Metadata["failed_stage"] != string(job.StageImageGenerating) {
		t.Errorf("Metadata[failed_stage]: got %v", evt.Metadata["failed_stage"])
	}
}

func TestExtension_PublishedAndCancelled(t *testing.T) {
	rec := &mockRecorder{}
	e := newExt(rec)
	j := newTestJob()
	j.Record(job.StagePublishing, "post-42", id.NewLeaseID(), fixed)

	if err := e.OnJobPublished(context.Background(), j); err != nil {
		t.Fatalf("OnJobPublished: %v", err)
	}
	if got := rec.last().Metadata["post_id"]; got != j.PostID() {
		t.Errorf("Metadata[post_id]: want %q, got %v", j.PostID(), got)
	}

	if err := e.OnJobCancelled(context.Background(), j); err != nil {
		t.Fatalf("OnJobCancelled: %v", err)
	}
	if got := rec.last(); got.Action != ah.ActionJobCancelled || got.Severity != ah.SeverityWarning {
		t.Errorf("cancel event: %+v", got)
	}
}

func TestExtension_ScheduleFired(t *testing.T) {
	rec := &mockRecorder{}
	if err := newExt(rec).OnScheduleFired(context.Background(), 3); err != nil {
		t.Fatalf("OnScheduleFired: %v", err)
	}
	evt := rec.last()
	if evt.Resource != ah.ResourceCalendar || evt.Metadata["created"] != 3 {
		t.Errorf("schedule event: %+v", evt)
	}
}

func TestExtension_WithActions(t *testing.T) {
	rec := &mockRecorder{}
	e := newExt(rec, ah.WithActions(ah.ActionJobFailed))
	j := newTestJob()
	ctx := context.Background()

	_ = e.OnJobCreated(ctx, j)
	_ = e.OnJobPublished(ctx, j)
	_ = e.OnJobFailed(ctx, j, errors.New("boom"))

	if rec.count() != 1 {
		t.Fatalf("expected 1 event, got %d", rec.count())
	}
	if rec.last().Action != ah.ActionJobFailed {
		t.Errorf("Action: want %q, got %q", ah.ActionJobFailed, rec.last().Action)
	}
}

func TestExtension_RecorderErrorSwallowed(t *testing.T) {
	rec := &mockRecorder{err: errors.New("backend down")}
	if err := newExt(rec).OnJobCreated(context.Background(), newTestJob()); err != nil {
		t.Fatalf("hook returned recorder error: %v", err)
	}
	if rec.count() != 1 {
		t.Errorf("expected the record attempt, got %d", rec.count())
	}
}

func TestExtension_ThroughRegistry(t *testing.T) {
	trail := ah.NewTrail(8)
	reg := ext.NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
	reg.Register(newExt(trail))

	ctx := context.Background()
	j := newTestJob()
	reg.EmitJobCreated(ctx, j)
	j.Stage = job.StageImageGenerating
	reg.EmitStageEntered(ctx, j, job.StagePlanned)

	events := trail.Events(j.ID.String())
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Action != ah.ActionJobCreated || events[1].Action != ah.ActionStageEntered {
		t.Errorf("actions: %s, %s", events[0].Action, events[1].Action)
	}
}

func TestAllActions(t *testing.T) {
	seen := map[string]bool{}
	for _, a := range ah.AllActions() {
		if seen[a] {
			t.Errorf("duplicate action %q", a)
		}
		seen[a] = true
	}
	if len(seen) != 7 {
		t.Errorf("expected 7 actions, got %d", len(seen))
	}
}
