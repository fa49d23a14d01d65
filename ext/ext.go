package ext

import (
	"context"

	"github.com/alimaamoun/DM-Agent/job"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Job lifecycle hooks
// ──────────────────────────────────────────────────

// JobCreated is called after a job is persisted in the Planned stage.
type JobCreated interface {
	OnJobCreated(ctx context.Context, j *job.Job) error
}

// StageEntered is called after a job's stage change is durably written.
type StageEntered interface {
	OnStageEntered(ctx context.Context, j *job.Job, from job.Stage) error
}

// JobAwaitingReview is called when a job pauses for human approval.
type JobAwaitingReview interface {
	OnJobAwaitingReview(ctx context.Context, j *job.Job) error
}

// JobPublished is called after the platform accepted the post.
type JobPublished interface {
	OnJobPublished(ctx context.Context, j *job.Job) error
}

// JobFailed is called when a job enters the Failed stage.
type JobFailed interface {
	OnJobFailed(ctx context.Context, j *job.Job, err error) error
}

// JobCancelled is called when a job enters the Cancelled stage.
type JobCancelled interface {
	OnJobCancelled(ctx context.Context, j *job.Job) error
}

// ──────────────────────────────────────────────────
// Other hooks
// ──────────────────────────────────────────────────

// ScheduleFired is called after the scheduler evaluated a tick.
type ScheduleFired interface {
	OnScheduleFired(ctx context.Context, created int) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
