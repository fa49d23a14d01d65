package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	dmagent "github.com/alimaamoun/DM-Agent"
	"github.com/alimaamoun/DM-Agent/collab"
	"github.com/alimaamoun/DM-Agent/id"
	"github.com/alimaamoun/DM-Agent/job"
	"github.com/alimaamoun/DM-Agent/lease"
	"github.com/alimaamoun/DM-Agent/platform"
	"github.com/alimaamoun/DM-Agent/task"
)

// maxSteps bounds the stage steps of one Advance call.
const maxSteps = 32

// releaseTimeout bounds the lease release after Advance returns.
const releaseTimeout = 5 * time.Second

// errMoved aborts a commit whose job changed under it.
var errMoved = errors.New("pipeline: job moved")

// Advance drives the job until it suspends in review or before its publish
// time, reaches a terminal stage, or cannot take its slot within the lock
// wait, in which case it returns ErrSlotBusy and leaves the job untouched.
func (c *Controller) Advance(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return c.advance(ctx, jobID, c.lockWait)
}

// Runnable reports whether Advance would make progress on j now.
func (c *Controller) Runnable(j *job.Job) bool {
	switch {
	case j.Stage.Terminal():
		return false
	case j.Stage == job.StageAwaitingReview:
		return c.reviewExpired(j)
	case j.Stage == job.StageScheduled:
		return c.due(j)
	default:
		return true
	}
}

func (c *Controller) advance(ctx context.Context, jobID id.JobID, wait time.Duration) (*job.Job, error) {
	j, err := c.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j.Stage == job.StageAwaitingReview && c.reviewExpired(j) {
		return c.expireReview(ctx, j)
	}
	if !c.Runnable(j) {
		return j, nil
	}

	l, err := c.leases.AcquireWait(ctx, lease.SlotKey(j.Slot.Key()), c.holder, wait)
	if err != nil {
		return j, err
	}
	defer c.release(ctx, l)

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	lost := c.leases.KeepAlive(runCtx, l)
	go func() {
		if lostErr, ok := <-lost; ok && lostErr != nil {
			cancel(dmagent.ErrLockExpired)
		}
	}()

	for range maxSteps {
		next, done, stepErr := c.step(runCtx, j, l)
		if next != nil {
			j = next
		}
		if stepErr != nil {
			if errors.Is(context.Cause(runCtx), dmagent.ErrLockExpired) {
				stepErr = fmt.Errorf("%w: %v", dmagent.ErrLockExpired, stepErr)
			}
			return j, stepErr
		}
		if done {
			return j, nil
		}
	}
	return j, nil
}

// step performs one stage of work. done reports that the job suspended or
// ended.
func (c *Controller) step(ctx context.Context, j *job.Job, l *lease.Lease) (*job.Job, bool, error) {
	switch {
	case j.Stage.Terminal(), j.Stage == job.StageAwaitingReview:
		return j, true, nil
	case j.Stage == job.StageScheduled && !c.due(j):
		return j, true, nil
	case j.Stage == job.StagePlanned, j.Stage == job.StageScheduled:
		to, _ := j.Stage.Next()
		return c.enter(ctx, j, l, to)
	default:
		return c.run(ctx, j, l)
	}
}

// enter moves j into the collaborator stage to under lease l.
func (c *Controller) enter(ctx context.Context, j *job.Job, l *lease.Lease, to job.Stage) (*job.Job, bool, error) {
	from := j.Stage
	next, err := c.mutate(ctx, j.ID, func(cur *job.Job) error {
		if cur.Stage != from {
			return errMoved
		}
		if c.boundary(cur) {
			return nil
		}
		cur.LeaseToken = l.Token
		return cur.Transition(to, c.now())
	})
	return c.settleCommit(ctx, j, next, l.Token, err)
}

// run calls the collaborator of j's stage and commits the result.
func (c *Controller) run(ctx context.Context, j *job.Job, l *lease.Lease) (*job.Job, bool, error) {
	stage := j.Stage

	// Requests recorded while no caller was running the stage, or a token
	// left behind by a holder whose lease lapsed.
	if j.LeaseToken != l.Token || j.CancelRequested || j.PendingRevision != nil {
		next, err := c.mutate(ctx, j.ID, func(cur *job.Job) error {
			if cur.Stage != stage {
				return errMoved
			}
			if c.boundary(cur) {
				return nil
			}
			cur.LeaseToken = l.Token
			return nil
		})
		next, done, err2 := c.settleCommit(ctx, j, next, l.Token, err)
		if err2 != nil || done || next.Stage != stage {
			return next, done, err2
		}
		j = next
	}

	t, err := c.buildTask(j)
	var res task.Result
	if err == nil {
		// Lease freshness is checked right before the collaborator call.
		if err = c.leases.Validate(ctx, l.Key, l.Token); err != nil {
			return j, false, err
		}
		res, err = c.pool.Submit(ctx, t)
	}
	if err != nil {
		return c.failStage(ctx, j, l, res, err)
	}

	if err := c.leases.Validate(ctx, l.Key, l.Token); err != nil {
		c.logger.Warn("discarding result produced under a lapsed lease",
			slog.String("job_id", j.ID.String()),
			slog.String("stage", string(stage)),
		)
		return j, false, err
	}

	next, err := c.mutate(ctx, j.ID, c.finish(stage, l.Token, func(cur *job.Job) error {
		now := c.now()
		cur.AddAttempts(stage, res.Attempts)
		cur.Record(stage, res.Ref, l.Token, now)
		to, _ := stage.Next()
		if err := cur.Transition(to, now); err != nil {
			return err
		}
		if to == job.StageAwaitingReview {
			cur.LeaseToken = id.Nil
		}
		return nil
	}))
	if err == nil && next.Stage == job.StagePublished {
		c.logger.Info("job published",
			slog.String("job_id", next.ID.String()),
			slog.String("slot", next.Slot.Key()),
			slog.String("post_id", next.PostID()),
		)
	}
	return c.settleCommit(ctx, j, next, l.Token, err)
}

// failStage records a collaborator failure. Contention and shutdown leave
// the job in its stage for a later pass.
func (c *Controller) failStage(ctx context.Context, j *job.Job, l *lease.Lease, res task.Result, err error) (*job.Job, bool, error) {
	if ctx.Err() != nil || dmagent.IsContention(err) || errors.Is(err, dmagent.ErrPoolStopped) {
		return j, false, err
	}

	stage := j.Stage
	reason := err.Error()
	next, mErr := c.mutate(ctx, j.ID, c.finish(stage, l.Token, func(cur *job.Job) error {
		cur.AddAttempts(stage, res.Attempts)
		return cur.Fail(reason, c.now())
	}))
	if mErr == nil && next.Stage == job.StageFailed {
		c.logger.Error("job failed",
			slog.String("job_id", j.ID.String()),
			slog.String("slot", j.Slot.Key()),
			slog.String("stage", string(stage)),
			slog.Int("attempts", next.Attempts[stage]),
			slog.String("error", reason),
		)
	}
	return c.settleCommit(ctx, j, next, l.Token, mErr)
}

// finish guards a result commit: the job must still be in stage under
// token, and recorded cancel or revise requests win over the result.
func (c *Controller) finish(stage job.Stage, token id.LeaseID, apply job.Mutation) job.Mutation {
	return func(cur *job.Job) error {
		if cur.Stage != stage || cur.LeaseToken != token {
			return errMoved
		}
		if c.boundary(cur) {
			return nil
		}
		return apply(cur)
	}
}

// boundary applies a recorded cancel or revision and reports whether it
// did. Cancel wins over revision. A publishing job ignores both: its post
// may already be live, so the result always commits.
func (c *Controller) boundary(j *job.Job) bool {
	switch {
	case j.Stage == job.StagePublishing:
		j.CancelRequested = false
		j.PendingRevision = nil
		return false
	case j.CancelRequested:
		// Transition to cancelled cannot fail while CancelRequested is set.
		_ = j.Transition(job.StageCancelled, c.now())
		j.LastError = "cancelled on request"
		return true
	case j.PendingRevision != nil:
		_ = j.Reset(*j.PendingRevision)
		return true
	}
	return false
}

// settleCommit turns a commit outcome into a step outcome. A job that
// moved under the commit is re-read so the caller sees fresh state, and a
// job claimed under another token means the lease was lost.
func (c *Controller) settleCommit(ctx context.Context, prev, next *job.Job, token id.LeaseID, err error) (*job.Job, bool, error) {
	if errors.Is(err, errMoved) {
		fresh, getErr := c.store.GetJob(ctx, prev.ID)
		if getErr != nil {
			return prev, false, getErr
		}
		if fresh.Stage.InFlight() && !fresh.LeaseToken.IsNil() && fresh.LeaseToken != token {
			return fresh, false, dmagent.ErrLockExpired
		}
		return fresh, !c.Runnable(fresh), nil
	}
	if err != nil {
		return prev, false, err
	}
	return next, next.Stage.Terminal(), nil
}

func (c *Controller) expireReview(ctx context.Context, j *job.Job) (*job.Job, error) {
	since := *j.AwaitingSince
	next, err := c.mutate(ctx, j.ID, func(cur *job.Job) error {
		if cur.Stage != job.StageAwaitingReview || !c.reviewExpired(cur) {
			return errMoved
		}
		if err := cur.Transition(job.StageCancelled, c.now()); err != nil {
			return err
		}
		cur.LastError = fmt.Sprintf("review not completed within %s", c.maxReviewWait)
		return nil
	})
	if errors.Is(err, errMoved) {
		return c.store.GetJob(ctx, j.ID)
	}
	if err != nil {
		return j, err
	}
	c.logger.Warn("review wait exceeded, job cancelled",
		slog.String("job_id", j.ID.String()),
		slog.Time("awaiting_since", since),
	)
	return next, nil
}

func (c *Controller) release(ctx context.Context, l *lease.Lease) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := c.leases.Release(ctx, l.Key, l.Token); err != nil {
		c.logger.Warn("lease release failed",
			slog.String("key", l.Key),
			slog.String("error", err.Error()),
		)
	}
}

func (c *Controller) due(j *job.Job) bool {
	return j.PublishAt == nil || !c.now().Before(*j.PublishAt)
}

func (c *Controller) reviewExpired(j *job.Job) bool {
	return c.maxReviewWait > 0 && j.AwaitingSince != nil &&
		c.now().Sub(*j.AwaitingSince) >= c.maxReviewWait
}

// ──────────────────────────────────────────────────
// Stage tasks
// ──────────────────────────────────────────────────

func (c *Controller) buildTask(j *job.Job) (task.Task, error) {
	target := j.Slot.Key()
	switch j.Stage {
	case job.StageImageGenerating:
		if c.collab.Images == nil {
			return task.Task{}, task.Permanent("image", errors.New("no image generator configured"))
		}
		return task.GenerateImage(j.ID, target, c.collab.Images, imageRequest(j)), nil

	case job.StageComposing:
		img, ok := j.Ref(job.StageImageGenerating)
		if !ok {
			return task.Task{}, task.Permanent("compose", errors.New("missing image artifact"))
		}
		if c.collab.Composer == nil {
			return task.Task{}, task.Permanent("compose", errors.New("no composer configured"))
		}
		return task.Compose(j.ID, target, c.collab.Composer, collab.ComposeRequest{
			JobID:     j.ID.String(),
			ImagePath: img,
			Template:  j.Params.Template,
			Platform:  j.Slot.Platform,
			Logo:      j.Params.Logo,
			Brand:     c.brand,
		}), nil

	case job.StageCaptionGenerating:
		if _, ok := j.Ref(job.StageComposing); !ok {
			return task.Task{}, task.Permanent("caption", errors.New("missing composed artifact"))
		}
		if c.collab.Captioner == nil {
			return task.Task{}, task.Permanent("caption", errors.New("no captioner configured"))
		}
		return task.WriteCaption(j.ID, target, c.collab.Captioner, captionRequest(j)), nil

	case job.StagePublishing:
		composed, ok := j.Ref(job.StageComposing)
		if !ok {
			return task.Task{}, task.Permanent("publish", errors.New("missing composed artifact"))
		}
		caption, ok := j.Ref(job.StageCaptionGenerating)
		if !ok {
			return task.Task{}, task.Permanent("publish", errors.New("missing caption artifact"))
		}
		if c.collab.Publishers == nil {
			return task.Task{}, task.Permanent("publish", dmagent.ErrUnknownPlatform)
		}
		pub, err := c.collab.Publishers.Get(j.Slot.Platform)
		if err != nil {
			return task.Task{}, task.Permanent("publish", err)
		}
		at := c.now()
		if j.PublishAt != nil {
			at = *j.PublishAt
		}
		return task.Publish(j.ID, pub, collab.PublishRequest{
			MediaPath:      composed,
			Caption:        caption,
			IdempotencyKey: platform.IdempotencyKey(j.Slot.Key()),
			PublishAt:      at,
		}), nil
	}
	return task.Task{}, fmt.Errorf("%w: %s has no task", dmagent.ErrNotRunnable, j.Stage)
}

// imageRequest falls back to a prompt built from the slot when none was
// given, styled after the tone.
func imageRequest(j *job.Job) collab.ImageRequest {
	p := j.Params
	prompt, style := p.Prompt, p.Style
	if prompt == "" {
		prompt = fmt.Sprintf("%s content for %s", j.Slot.Theme, j.Slot.Platform)
		if style == "" {
			style = "creative"
			if p.Tone == "professional" {
				style = "professional"
			}
		}
	}
	return collab.ImageRequest{
		JobID:   j.ID.String(),
		Prompt:  prompt,
		Style:   style,
		Size:    p.Size,
		Enhance: p.Enhance,
	}
}

func captionRequest(j *job.Job) collab.CaptionRequest {
	p := j.Params
	maxLen := p.MaxLength
	if lim, ok := platform.KnownLimits(j.Slot.Platform); ok && (maxLen <= 0 || maxLen > lim.MaxCaption) {
		maxLen = lim.MaxCaption
	}
	count := p.HashtagCount
	if lim, ok := platform.KnownLimits(j.Slot.Platform); ok && lim.MaxHashtags > 0 && count > lim.MaxHashtags {
		count = lim.MaxHashtags
	}
	return collab.CaptionRequest{
		JobID:        j.ID.String(),
		Theme:        j.Slot.Theme,
		Platform:     j.Slot.Platform,
		Tone:         p.Tone,
		MaxLength:    maxLen,
		Hashtags:     p.Hashtags,
		HashtagCount: count,
	}
}
