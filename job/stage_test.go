package job_test

import (
	"errors"
	"testing"
	"time"

	dmagent "github.com/alimaamoun/DM-Agent"
	"github.com/alimaamoun/DM-Agent/job"
)

var now = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func TestStageOrder(t *testing.T) {
	stages := job.Stages()
	for i := 0; i < 7; i++ {
		next, ok := stages[i].Next()
		if !ok || next != stages[i+1] {
			t.Errorf("%s.Next() = %s, %v", stages[i], next, ok)
		}
	}
	for _, s := range job.TerminalStages() {
		if _, ok := s.Next(); ok {
			t.Errorf("terminal stage %s has a successor", s)
		}
		if s.Active() {
			t.Errorf("terminal stage %s reported active", s)
		}
	}
	if len(job.ActiveStages()) != 7 {
		t.Errorf("expected 7 active stages, got %d", len(job.ActiveStages()))
	}
	if job.Stage("bogus").Valid() {
		t.Error("unknown stage reported valid")
	}
}

func TestTransition(t *testing.T) {
	tests := []struct {
		name   string
		from   job.Stage
		to     job.Stage
		cancel bool
		ok     bool
	}{
		{"forward", job.StagePlanned, job.StageImageGenerating, false, true},
		{"skip", job.StagePlanned, job.StageComposing, false, false},
		{"backward", job.StageComposing, job.StageImageGenerating, false, false},
		{"fail from in-flight", job.StageComposing, job.StageFailed, false, true},
		{"fail from review", job.StageAwaitingReview, job.StageFailed, false, true},
		{"cancel planned", job.StagePlanned, job.StageCancelled, false, true},
		{"cancel review", job.StageAwaitingReview, job.StageCancelled, false, true},
		{"cancel scheduled", job.StageScheduled, job.StageCancelled, false, true},
		{"cancel in-flight unrequested", job.StageComposing, job.StageCancelled, false, false},
		{"cancel in-flight requested", job.StageComposing, job.StageCancelled, true, true},
		{"leave terminal", job.StagePublished, job.StageFailed, false, false},
		{"publish", job.StagePublishing, job.StagePublished, false, true},
		{"cancel publishing requested", job.StagePublishing, job.StageCancelled, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := job.New(job.Slot{Date: "2024-06-01", Platform: "instagram", Theme: "launch"}, job.SourceScheduledRun, job.Params{}, now)
			j.Stage = tt.from
			j.CancelRequested = tt.cancel
			err := j.Transition(tt.to, now)
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok {
				if !errors.Is(err, dmagent.ErrInvalidTransition) {
					t.Fatalf("expected ErrInvalidTransition, got %v", err)
				}
				if j.Stage != tt.from {
					t.Errorf("stage changed to %s on rejected transition", j.Stage)
				}
			}
		})
	}
}

func TestTransitionTerminalClearsLease(t *testing.T) {
	j := job.New(job.Slot{Date: "2024-06-01", Platform: "x", Theme: "t"}, job.SourceInteractive, job.Params{}, now)
	j.Stage = job.StagePublishing
	j.CancelRequested = true
	if err := j.Fail("boom", now); err != nil {
		t.Fatal(err)
	}
	if !j.LeaseToken.IsNil() || j.CancelRequested {
		t.Error("terminal stage kept lease or pending cancel")
	}
	if j.FailedStage != job.StagePublishing || j.LastError != "boom" {
		t.Errorf("failed stage %s, last error %q", j.FailedStage, j.LastError)
	}
}
