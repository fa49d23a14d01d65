package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alimaamoun/DM-Agent/ext"
	"github.com/alimaamoun/DM-Agent/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension         = (*Extension)(nil)
	_ ext.JobCreated        = (*Extension)(nil)
	_ ext.StageEntered      = (*Extension)(nil)
	_ ext.JobAwaitingReview = (*Extension)(nil)
	_ ext.JobPublished      = (*Extension)(nil)
	_ ext.JobFailed         = (*Extension)(nil)
	_ ext.JobCancelled      = (*Extension)(nil)
	_ ext.ScheduleFired     = (*Extension)(nil)
)

// Recorder persists audit events.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is one entry of the audit trail.
type AuditEvent struct {
	// What happened
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	// Details
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
	At         time.Time      `json:"at"`
}

// RecorderFunc lets a function serve as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Severity constants.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Review decisions recorded on stage changes that leave awaiting_review.
const (
	DecisionApproved  = "approved"
	DecisionRevised   = "revised"
	DecisionCancelled = "cancelled"
)

// Extension turns job lifecycle hooks into audit events.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
	now      func() time.Time
}

// New creates an Extension that emits audit events through r.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit-hook" }

// OnJobCreated implements ext.JobCreated.
func (e *Extension) OnJobCreated(ctx context.Context, j *job.Job) error {
	kv := append(jobFields(j), "source", string(j.Source))
	if !j.ResubmittedFrom.IsNil() {
		kv = append(kv, "resubmitted_from", j.ResubmittedFrom.String())
	}
	return e.record(ctx, ActionJobCreated, SeverityInfo, OutcomeSuccess,
		ResourceJob, j.ID.String(), CategoryJob, nil, kv...)
}

// OnStageEntered implements ext.StageEntered. Leaving awaiting_review is
// recorded as a review decision.
func (e *Extension) OnStageEntered(ctx context.Context, j *job.Job, from job.Stage) error {
	kv := append(jobFields(j), "from", string(from), "to", string(j.Stage))
	category := CategoryJob
	if from == job.StageAwaitingReview {
		category = CategoryReview
		kv = append(kv, "decision", decision(j.Stage))
	}
	return e.record(ctx, ActionStageEntered, SeverityInfo, OutcomeSuccess,
		ResourceJob, j.ID.String(), category, nil, kv...)
}

// OnJobAwaitingReview implements ext.JobAwaitingReview.
func (e *Extension) OnJobAwaitingReview(ctx context.Context, j *job.Job) error {
	kv := jobFields(j)
	if caption, ok := j.Ref(job.StageCaptionGenerating); ok {
		kv = append(kv, "caption", caption)
	}
	return e.record(ctx, ActionJobAwaitingReview, SeverityInfo, OutcomeSuccess,
		ResourceJob, j.ID.String(), CategoryReview, nil, kv...)
}

// OnJobPublished implements ext.JobPublished.
func (e *Extension) OnJobPublished(ctx context.Context, j *job.Job) error {
	return e.record(ctx, ActionJobPublished, SeverityInfo, OutcomeSuccess,
		ResourceJob, j.ID.String(), CategoryJob, nil,
		append(jobFields(j), "post_id", j.PostID())...)
}

// OnJobFailed implements ext.JobFailed.
func (e *Extension) OnJobFailed(ctx context.Context, j *job.Job, jobErr error) error {
	return e.record(ctx, ActionJobFailed, SeverityCritical, OutcomeFailure,
		ResourceJob, j.ID.String(), CategoryJob, jobErr,
		append(jobFields(j), "failed_stage", string(j.FailedStage))...)
}

// OnJobCancelled implements ext.JobCancelled.
func (e *Extension) OnJobCancelled(ctx context.Context, j *job.Job) error {
	return e.record(ctx, ActionJobCancelled, SeverityWarning, OutcomeSuccess,
		ResourceJob, j.ID.String(), CategoryJob, nil, jobFields(j)...)
}

// OnScheduleFired implements ext.ScheduleFired.
func (e *Extension) OnScheduleFired(ctx context.Context, created int) error {
	return e.record(ctx, ActionScheduleFired, SeverityInfo, OutcomeSuccess,
		ResourceCalendar, "", CategorySchedule, nil,
		"created", created,
	)
}

func jobFields(j *job.Job) []any {
	return []any{
		"date", j.Slot.Date,
		"platform", j.Slot.Platform,
		"theme", j.Slot.Theme,
		"revision", j.Revision,
	}
}

func decision(to job.Stage) string {
	switch to {
	case job.StageScheduled, job.StagePublishing:
		return DecisionApproved
	case job.StagePlanned:
		return DecisionRevised
	default:
		return DecisionCancelled
	}
}

// record sends one audit event for an enabled action. kvPairs alternate
// metadata keys and values.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
		At:         e.now().UTC(),
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			slog.String("action", action),
			slog.String("resource_id", resourceID),
			slog.String("error", recErr.Error()),
		)
	}
	return nil
}
