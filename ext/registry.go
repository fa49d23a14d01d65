package ext

import (
	"context"
	"errors"
	"log/slog"

	"github.com/alimaamoun/DM-Agent/job"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type jobCreatedEntry struct {
	name string
	hook JobCreated
}

type stageEnteredEntry struct {
	name string
	hook StageEntered
}

type jobAwaitingReviewEntry struct {
	name string
	hook JobAwaitingReview
}

type jobPublishedEntry struct {
	name string
	hook JobPublished
}

type jobFailedEntry struct {
	name string
	hook JobFailed
}

type jobCancelledEntry struct {
	name string
	hook JobCancelled
}

type scheduleFiredEntry struct {
	name string
	hook ScheduleFired
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
//
// Register all extensions before the engine starts; the registry is not
// safe for concurrent registration.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	jobCreated        []jobCreatedEntry
	stageEntered      []stageEnteredEntry
	jobAwaitingReview []jobAwaitingReviewEntry
	jobPublished      []jobPublishedEntry
	jobFailed         []jobFailedEntry
	jobCancelled      []jobCancelledEntry
	scheduleFired     []scheduleFiredEntry
	shutdown          []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(JobCreated); ok {
		r.jobCreated = append(r.jobCreated, jobCreatedEntry{name, h})
	}
	if h, ok := e.(StageEntered); ok {
		r.stageEntered = append(r.stageEntered, stageEnteredEntry{name, h})
	}
	if h, ok := e.(JobAwaitingReview); ok {
		r.jobAwaitingReview = append(r.jobAwaitingReview, jobAwaitingReviewEntry{name, h})
	}
	if h, ok := e.(JobPublished); ok {
		r.jobPublished = append(r.jobPublished, jobPublishedEntry{name, h})
	}
	if h, ok := e.(JobFailed); ok {
		r.jobFailed = append(r.jobFailed, jobFailedEntry{name, h})
	}
	if h, ok := e.(JobCancelled); ok {
		r.jobCancelled = append(r.jobCancelled, jobCancelledEntry{name, h})
	}
	if h, ok := e.(ScheduleFired); ok {
		r.scheduleFired = append(r.scheduleFired, scheduleFiredEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Job event emitters
// ──────────────────────────────────────────────────

// EmitJobCreated notifies all extensions that implement JobCreated.
func (r *Registry) EmitJobCreated(ctx context.Context, j *job.Job) {
	for _, e := range r.jobCreated {
		if err := e.hook.OnJobCreated(ctx, j); err != nil {
			r.logHookError("OnJobCreated", e.name, err)
		}
	}
}

// EmitStageEntered notifies StageEntered implementors and then fans out
// to the stage-specific hook for the stage the job now sits in.
func (r *Registry) EmitStageEntered(ctx context.Context, j *job.Job, from job.Stage) {
	for _, e := range r.stageEntered {
		if err := e.hook.OnStageEntered(ctx, j, from); err != nil {
			r.logHookError("OnStageEntered", e.name, err)
		}
	}
	switch j.Stage {
	case job.StageAwaitingReview:
		r.EmitJobAwaitingReview(ctx, j)
	case job.StagePublished:
		r.EmitJobPublished(ctx, j)
	case job.StageFailed:
		r.EmitJobFailed(ctx, j, jobError(j))
	case job.StageCancelled:
		r.EmitJobCancelled(ctx, j)
	}
}

// EmitJobAwaitingReview notifies all extensions that implement JobAwaitingReview.
func (r *Registry) EmitJobAwaitingReview(ctx context.Context, j *job.Job) {
	for _, e := range r.jobAwaitingReview {
		if err := e.hook.OnJobAwaitingReview(ctx, j); err != nil {
			r.logHookError("OnJobAwaitingReview", e.name, err)
		}
	}
}

// EmitJobPublished notifies all extensions that implement JobPublished.
func (r *Registry) EmitJobPublished(ctx context.Context, j *job.Job) {
	for _, e := range r.jobPublished {
		if err := e.hook.OnJobPublished(ctx, j); err != nil {
			r.logHookError("OnJobPublished", e.name, err)
		}
	}
}

// EmitJobFailed notifies all extensions that implement JobFailed.
func (r *Registry) EmitJobFailed(ctx context.Context, j *job.Job, jobErr error) {
	for _, e := range r.jobFailed {
		if err := e.hook.OnJobFailed(ctx, j, jobErr); err != nil {
			r.logHookError("OnJobFailed", e.name, err)
		}
	}
}

// EmitJobCancelled notifies all extensions that implement JobCancelled.
func (r *Registry) EmitJobCancelled(ctx context.Context, j *job.Job) {
	for _, e := range r.jobCancelled {
		if err := e.hook.OnJobCancelled(ctx, j); err != nil {
			r.logHookError("OnJobCancelled", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Other event emitters
// ──────────────────────────────────────────────────

// EmitScheduleFired notifies all extensions that implement ScheduleFired.
func (r *Registry) EmitScheduleFired(ctx context.Context, created int) {
	for _, e := range r.scheduleFired {
		if err := e.hook.OnScheduleFired(ctx, created); err != nil {
			r.logHookError("OnScheduleFired", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated; they must not block the pipeline.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}

func jobError(j *job.Job) error {
	if j.LastError == "" {
		return errors.New("job failed")
	}
	return errors.New(j.LastError)
}
