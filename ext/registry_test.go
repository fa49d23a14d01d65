package ext_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/alimaamoun/DM-Agent/ext"
	"github.com/alimaamoun/DM-Agent/job"
)

// ──────────────────────────────────────────────────
// Test extensions
// ──────────────────────────────────────────────────

// allHooksExt implements every lifecycle hook for testing.
type allHooksExt struct {
	calls []string
}

func (e *allHooksExt) Name() string { return "all-hooks" }

func (e *allHooksExt) OnJobCreated(_ context.Context, _ *job.Job) error {
	e.calls = append(e.calls, "OnJobCreated")
	return nil
}

func (e *allHooksExt) OnStageEntered(_ context.Context, _ *job.Job, _ job.Stage) error {
	e.calls = append(e.calls, "OnStageEntered")
	return nil
}

func (e *allHooksExt) OnJobAwaitingReview(_ context.Context, _ *job.Job) error {
	e.calls = append(e.calls, "OnJobAwaitingReview")
	return nil
}

func (e *allHooksExt) OnJobPublished(_ context.Context, _ *job.Job) error {
	e.calls = append(e.calls, "OnJobPublished")
	return nil
}

func (e *allHooksExt) OnJobFailed(_ context.Context, _ *job.Job, _ error) error {
	e.calls = append(e.calls, "OnJobFailed")
	return nil
}

func (e *allHooksExt) OnJobCancelled(_ context.Context, _ *job.Job) error {
	e.calls = append(e.calls, "OnJobCancelled")
	return nil
}

func (e *allHooksExt) OnScheduleFired(_ context.Context, _ int) error {
	e.calls = append(e.calls, "OnScheduleFired")
	return nil
}

func (e *allHooksExt) OnShutdown(_ context.Context) error {
	e.calls = append(e.calls, "OnShutdown")
	return nil
}

// createdOnlyExt implements only JobCreated.
type createdOnlyExt struct {
	calls []string
}

func (e *createdOnlyExt) Name() string { return "created-only" }

func (e *createdOnlyExt) OnJobCreated(_ context.Context, _ *job.Job) error {
	e.calls = append(e.calls, "OnJobCreated")
	return nil
}

// failingExt returns an error from every hook it implements.
type failingExt struct{}

func (e *failingExt) Name() string { return "failing" }

func (e *failingExt) OnJobCreated(_ context.Context, _ *job.Job) error {
	return errors.New("boom")
}

// errorCapture records the error passed to OnJobFailed.
type errorCapture struct {
	got error
}

func (e *errorCapture) Name() string { return "error-capture" }

func (e *errorCapture) OnJobFailed(_ context.Context, _ *job.Job, err error) error {
	e.got = err
	return nil
}

func testJob(stage job.Stage) *job.Job {
	j := job.New(job.Slot{Date: "2024-06-01", Platform: "instagram", Theme: "summer"}, job.SourceInteractive, job.Params{}, time.Now())
	j.Stage = stage
	return j
}

// ──────────────────────────────────────────────────
// Tests
// ──────────────────────────────────────────────────

func TestRegistry_RegisterDiscoversInterfaces(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	r.Register(&allHooksExt{})
	r.Register(&createdOnlyExt{})

	if got := len(r.Extensions()); got != 2 {
		t.Fatalf("expected 2 extensions, got %d", got)
	}
}

func TestRegistry_EmitFiresOnlyImplementors(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	all := &allHooksExt{}
	co := &createdOnlyExt{}
	r.Register(all)
	r.Register(co)

	ctx := context.Background()
	j := testJob(job.StagePlanned)

	r.EmitJobCreated(ctx, j)
	if len(all.calls) != 1 || len(co.calls) != 1 {
		t.Fatalf("expected one call each, got all=%v co=%v", all.calls, co.calls)
	}

	r.EmitJobPublished(ctx, j)
	if len(all.calls) != 2 || all.calls[1] != "OnJobPublished" {
		t.Fatalf("all: expected OnJobPublished as 2nd, got %v", all.calls)
	}
	if len(co.calls) != 1 {
		t.Fatalf("co: should still have 1 call, got %v", co.calls)
	}
}

func TestRegistry_StageEnteredFansOut(t *testing.T) {
	tests := []struct {
		stage job.Stage
		want  []string
	}{
		{job.StageComposing, []string{"OnStageEntered"}},
		{job.StageAwaitingReview, []string{"OnStageEntered", "OnJobAwaitingReview"}},
		{job.StagePublished, []string{"OnStageEntered", "OnJobPublished"}},
		{job.StageFailed, []string{"OnStageEntered", "OnJobFailed"}},
		{job.StageCancelled, []string{"OnStageEntered", "OnJobCancelled"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.stage), func(t *testing.T) {
			r := ext.NewRegistry(slog.Default())
			all := &allHooksExt{}
			r.Register(all)

			r.EmitStageEntered(context.Background(), testJob(tt.stage), job.StagePlanned)

			if len(all.calls) != len(tt.want) {
				t.Fatalf("calls = %v, want %v", all.calls, tt.want)
			}
			for i := range tt.want {
				if all.calls[i] != tt.want[i] {
					t.Errorf("call[%d] = %q, want %q", i, all.calls[i], tt.want[i])
				}
			}
		})
	}
}

func TestRegistry_FailedCarriesLastError(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	capture := &errorCapture{}
	r.Register(capture)

	j := testJob(job.StageFailed)
	j.LastError = "image.generate: upstream 500"
	r.EmitStageEntered(context.Background(), j, job.StageImageGenerating)

	if capture.got == nil || capture.got.Error() != j.LastError {
		t.Fatalf("got %v, want %q", capture.got, j.LastError)
	}
}

func TestRegistry_ScheduleAndShutdownHooksFire(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	all := &allHooksExt{}
	r.Register(all)

	ctx := context.Background()
	r.EmitScheduleFired(ctx, 3)
	r.EmitShutdown(ctx)

	if len(all.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d: %v", len(all.calls), all.calls)
	}
	if all.calls[0] != "OnScheduleFired" {
		t.Errorf("call[0] = %q, want OnScheduleFired", all.calls[0])
	}
	if all.calls[1] != "OnShutdown" {
		t.Errorf("call[1] = %q, want OnShutdown", all.calls[1])
	}
}

func TestRegistry_HookErrorsLoggedNotPropagated(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	all := &allHooksExt{}

	// Register failing first, then all-hooks. Both should be called.
	r.Register(&failingExt{})
	r.Register(all)

	r.EmitJobCreated(context.Background(), testJob(job.StagePlanned))

	if len(all.calls) != 1 || all.calls[0] != "OnJobCreated" {
		t.Fatalf("all: expected [OnJobCreated] despite failing ext, got %v", all.calls)
	}
}

func TestRegistry_EmptyRegistryNoOp(_ *testing.T) {
	r := ext.NewRegistry(nil)
	ctx := context.Background()
	j := testJob(job.StageFailed)

	// None of these should panic.
	r.EmitJobCreated(ctx, j)
	r.EmitStageEntered(ctx, j, job.StagePlanned)
	r.EmitJobAwaitingReview(ctx, j)
	r.EmitJobPublished(ctx, j)
	r.EmitJobFailed(ctx, j, errors.New("x"))
	r.EmitJobCancelled(ctx, j)
	r.EmitScheduleFired(ctx, 0)
	r.EmitShutdown(ctx)
}
