package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	dmagent "github.com/alimaamoun/DM-Agent"
	"github.com/alimaamoun/DM-Agent/backoff"
	"github.com/alimaamoun/DM-Agent/collab"
	"github.com/alimaamoun/DM-Agent/id"
	"github.com/alimaamoun/DM-Agent/job"
	"github.com/alimaamoun/DM-Agent/lease"
	"github.com/alimaamoun/DM-Agent/worker"
)

// maxWriteAttempts bounds how often an entry point retries a stale write.
const maxWriteAttempts = 5

// Emitter receives lifecycle events. *ext.Registry satisfies it.
type Emitter interface {
	EmitJobCreated(ctx context.Context, j *job.Job)
	EmitStageEntered(ctx context.Context, j *job.Job, from job.Stage)
}

// Publishers resolves a platform name to its publisher.
type Publishers interface {
	Get(name string) (collab.Publisher, error)
}

// Collaborators are the external services the stages call.
type Collaborators struct {
	Images     collab.ImageGenerator
	Composer   collab.Composer
	Captioner  collab.Captioner
	Publishers Publishers
}

// CreateRequest asks for a job on one slot.
type CreateRequest struct {
	Slot   job.Slot
	Source job.Source
	Params job.Params
	// PublishAt is the planned publication time. Approval may override it.
	PublishAt *time.Time
}

// RejectRequest either sends a job back with revised parameters or, when
// Revise is nil, cancels it.
type RejectRequest struct {
	Reason string
	Revise *job.Params
}

// Controller is the pipeline's single writer of job state.
type Controller struct {
	store    job.Store
	leases   *lease.Manager
	pool     worker.Submitter
	collab   Collaborators
	emitter  Emitter
	defaults job.Defaults
	brand    collab.BrandAssets

	holder        string
	lockWait      time.Duration
	maxReviewWait time.Duration
	contention    backoff.Strategy
	now           func() time.Time
	logger        *slog.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithDefaults sets the parameter defaults applied to new jobs.
func WithDefaults(d job.Defaults) Option {
	return func(c *Controller) { c.defaults = d }
}

// WithBrand sets the brand assets used during composition.
func WithBrand(b collab.BrandAssets) Option {
	return func(c *Controller) { c.brand = b }
}

// WithHolder sets the name recorded on slot leases.
func WithHolder(name string) Option {
	return func(c *Controller) {
		if name != "" {
			c.holder = name
		}
	}
}

// WithLockWait bounds how long Advance waits for a busy slot.
func WithLockWait(d time.Duration) Option {
	return func(c *Controller) { c.lockWait = d }
}

// WithMaxReviewWait cancels jobs left in review longer than d. Zero
// disables the policy.
func WithMaxReviewWait(d time.Duration) Option {
	return func(c *Controller) { c.maxReviewWait = d }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithContentionBackoff sets the delay between stale-write retries.
func WithContentionBackoff(s backoff.Strategy) Option {
	return func(c *Controller) { c.contention = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// NewController creates a Controller. emitter may be nil.
func NewController(
	store job.Store,
	leases *lease.Manager,
	pool worker.Submitter,
	collaborators Collaborators,
	emitter Emitter,
	opts ...Option,
) *Controller {
	cfg := dmagent.DefaultConfig()
	c := &Controller{
		store:      store,
		leases:     leases,
		pool:       pool,
		collab:     collaborators,
		emitter:    emitter,
		holder:     "controller-" + id.NewWorkerID().String(),
		lockWait:   cfg.LockWait,
		contention: backoff.ContentionStrategy(),
		now:        time.Now,
		logger:     slog.Default(),
	}
	if c.emitter == nil {
		c.emitter = nopEmitter{}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store returns the job store the controller writes to.
func (c *Controller) Store() job.Store { return c.store }

// Get retrieves a job by ID.
func (c *Controller) Get(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return c.store.GetJob(ctx, jobID)
}

// Create stores a planned job for the slot. When the slot already has an
// active job it returns that job together with ErrDuplicateActiveJob.
func (c *Controller) Create(ctx context.Context, req CreateRequest) (*job.Job, error) {
	slot := req.Slot.Normalize()
	if err := slot.Validate(); err != nil {
		return nil, err
	}
	if req.Source == "" {
		req.Source = job.SourceInteractive
	}
	params := req.Params.WithDefaults(c.defaults)

	for range maxWriteAttempts {
		j := job.New(slot, req.Source, params, c.now())
		if req.PublishAt != nil {
			t := dmagent.Truncate(*req.PublishAt)
			j.PublishAt = &t
		}

		err := c.store.CreateJob(ctx, j)
		if err == nil {
			c.logger.Info("job created",
				slog.String("job_id", j.ID.String()),
				slog.String("slot", slot.Key()),
				slog.String("source", string(j.Source)),
			)
			c.emitter.EmitJobCreated(ctx, j)
			return j, nil
		}
		if !errors.Is(err, dmagent.ErrDuplicateActiveJob) {
			return nil, err
		}

		existing, getErr := c.store.GetActiveJob(ctx, slot)
		if errors.Is(getErr, dmagent.ErrJobNotFound) {
			// The active job finished between the create and the read.
			continue
		}
		if getErr != nil {
			return nil, getErr
		}
		return existing, err
	}
	return nil, dmagent.ErrStaleWrite
}

// Approve moves a job from review to scheduled. A nil publishAt keeps the
// planned publish time, or publishes as soon as possible when there is none.
func (c *Controller) Approve(ctx context.Context, jobID id.JobID, publishAt *time.Time) (*job.Job, error) {
	return c.locked(ctx, jobID, func(j *job.Job) error {
		if j.Stage != job.StageAwaitingReview {
			return fmt.Errorf("%w: cannot approve a job in %s", dmagent.ErrInvalidTransition, j.Stage)
		}
		if publishAt != nil {
			t := dmagent.Truncate(*publishAt)
			j.PublishAt = &t
		}
		return j.Transition(job.StageScheduled, c.now())
	})
}

// Reject sends a job in review back to planned with revised parameters,
// or cancels it when req.Revise is nil.
func (c *Controller) Reject(ctx context.Context, jobID id.JobID, req RejectRequest) (*job.Job, error) {
	return c.locked(ctx, jobID, func(j *job.Job) error {
		if j.Stage != job.StageAwaitingReview {
			return fmt.Errorf("%w: cannot reject a job in %s", dmagent.ErrInvalidTransition, j.Stage)
		}
		if req.Revise != nil {
			return j.Reset(req.Revise.WithDefaults(c.defaults))
		}
		reason := req.Reason
		if reason == "" {
			reason = "rejected in review"
		}
		if err := j.Transition(job.StageCancelled, c.now()); err != nil {
			return err
		}
		j.LastError = reason
		return nil
	})
}

// Revise replaces the job's parameters and sends it back to planned.
// A job in a collaborator stage records the revision, and it is applied
// at the next stage boundary with the in-flight result discarded. A job
// that is publishing cannot be revised.
func (c *Controller) Revise(ctx context.Context, jobID id.JobID, params job.Params) (*job.Job, error) {
	params = params.WithDefaults(c.defaults)
	return c.interrupt(ctx, jobID, "revise",
		func(j *job.Job) { j.PendingRevision = &params },
		func(j *job.Job) error { return j.Reset(params) },
	)
}

// Cancel ends the job. A job in a collaborator stage records the request,
// and it is honored at the next stage boundary. A job that is publishing
// cannot be cancelled.
func (c *Controller) Cancel(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return c.interrupt(ctx, jobID, "cancel",
		func(j *job.Job) { j.CancelRequested = true },
		func(j *job.Job) error {
			if err := j.Transition(job.StageCancelled, c.now()); err != nil {
				return err
			}
			j.LastError = "cancelled on request"
			return nil
		},
	)
}

// interrupt records a request on a job in an interruptible stage, where the
// runner holding the slot applies it at its next boundary, or applies it
// under the slot lease when the job sits between stages.
func (c *Controller) interrupt(ctx context.Context, jobID id.JobID, verb string, record func(*job.Job), apply job.Mutation) (*job.Job, error) {
	recorded := func(j *job.Job) error {
		if !j.Stage.Interruptible() {
			return errMoved
		}
		record(j)
		return nil
	}
	immediate := func(j *job.Job) error {
		switch {
		case j.Stage.Interruptible():
			record(j)
			return nil
		case j.Stage.Cancellable():
			return apply(j)
		default:
			return fmt.Errorf("%w: cannot %s a job in %s", dmagent.ErrInvalidTransition, verb, j.Stage)
		}
	}

	cur, err := c.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	switch {
	case cur.Stage.Interruptible():
		next, err := c.mutate(ctx, jobID, recorded)
		if !errors.Is(err, errMoved) {
			return next, err
		}
	case !cur.Stage.Cancellable():
		return nil, fmt.Errorf("%w: cannot %s a job in %s", dmagent.ErrInvalidTransition, verb, cur.Stage)
	}

	next, err := c.locked(ctx, jobID, immediate)
	if errors.Is(err, dmagent.ErrSlotBusy) {
		// A runner took the slot and may have entered a collaborator stage.
		next, rerr := c.mutate(ctx, jobID, recorded)
		if errors.Is(rerr, errMoved) {
			return nil, err
		}
		return next, rerr
	}
	return next, err
}

// locked applies fn while holding the slot lease. The lease is checked
// against the store before the write so a lapsed lease never commits.
func (c *Controller) locked(ctx context.Context, jobID id.JobID, fn job.Mutation) (*job.Job, error) {
	j, err := c.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !j.Active() {
		// Let fn report the stage error without contending for the slot.
		return c.mutate(ctx, jobID, fn)
	}
	l, err := c.leases.AcquireWait(ctx, lease.SlotKey(j.Slot.Key()), c.holder, c.lockWait)
	if err != nil {
		return nil, err
	}
	defer c.release(ctx, l)
	return c.mutate(ctx, jobID, func(cur *job.Job) error {
		if err := c.leases.Validate(ctx, l.Key, l.Token); err != nil {
			return err
		}
		return fn(cur)
	})
}

// Resubmit creates a fresh job for the slot of a failed or cancelled job.
// The old job stays as a record. A nil params reuses the old parameters.
func (c *Controller) Resubmit(ctx context.Context, jobID id.JobID, params *job.Params) (*job.Job, error) {
	old, err := c.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if old.Stage != job.StageFailed && old.Stage != job.StageCancelled {
		return nil, fmt.Errorf("%w: cannot resubmit a job in %s", dmagent.ErrInvalidTransition, old.Stage)
	}

	p := old.Params
	if params != nil {
		p = *params
	}
	j := job.New(old.Slot, old.Source, p.WithDefaults(c.defaults), c.now())
	j.ResubmittedFrom = old.ID
	if old.PublishAt != nil && old.PublishAt.After(c.now()) {
		t := *old.PublishAt
		j.PublishAt = &t
	}
	if err := c.store.CreateJob(ctx, j); err != nil {
		if errors.Is(err, dmagent.ErrDuplicateActiveJob) {
			if existing, getErr := c.store.GetActiveJob(ctx, old.Slot); getErr == nil {
				return existing, err
			}
		}
		return nil, err
	}

	c.logger.Info("job resubmitted",
		slog.String("job_id", j.ID.String()),
		slog.String("from", old.ID.String()),
		slog.String("slot", j.Slot.Key()),
	)
	c.emitter.EmitJobCreated(ctx, j)
	return j, nil
}

// mutate applies fn to the current job and writes it, re-reading and
// retrying on stale writes. fn sees fresh state on every attempt, so it
// must check the stage itself.
func (c *Controller) mutate(ctx context.Context, jobID id.JobID, fn job.Mutation) (*job.Job, error) {
	var lastErr error
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		cur, err := c.store.GetJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		next, err := job.Update(ctx, c.store, cur, fn)
		if err == nil {
			c.emitTransition(ctx, next, cur.Stage)
			return next, nil
		}
		if !errors.Is(err, dmagent.ErrStaleWrite) {
			return nil, err
		}
		lastErr = err
		if werr := backoff.Wait(ctx, c.contention.Delay(attempt)); werr != nil {
			return nil, werr
		}
	}
	return nil, lastErr
}

// emitTransition reports a stage change.
func (c *Controller) emitTransition(ctx context.Context, j *job.Job, from job.Stage) {
	if j.Stage == from {
		return
	}
	c.logger.Info("job stage changed",
		slog.String("job_id", j.ID.String()),
		slog.String("slot", j.Slot.Key()),
		slog.String("from", string(from)),
		slog.String("to", string(j.Stage)),
	)
	c.emitter.EmitStageEntered(ctx, j, from)
}

type nopEmitter struct{}

func (nopEmitter) EmitJobCreated(context.Context, *job.Job)              {}
func (nopEmitter) EmitStageEntered(context.Context, *job.Job, job.Stage) {}
