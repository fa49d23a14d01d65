package relayhook

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alimaamoun/DM-Agent/ext"
	"github.com/alimaamoun/DM-Agent/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension         = (*Extension)(nil)
	_ ext.JobCreated        = (*Extension)(nil)
	_ ext.JobAwaitingReview = (*Extension)(nil)
	_ ext.JobPublished      = (*Extension)(nil)
	_ ext.JobFailed         = (*Extension)(nil)
	_ ext.JobCancelled      = (*Extension)(nil)
	_ ext.ScheduleFired     = (*Extension)(nil)
)

// Sender delivers one event.
type Sender interface {
	Send(ctx context.Context, evt *Event) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, evt *Event) error

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, evt *Event) error { return f(ctx, evt) }

// Extension relays lifecycle events through a Sender.
type Extension struct {
	sender   Sender
	enabled  map[string]bool        // nil = all enabled
	payloads map[string]PayloadFunc // custom payload builders
	now      func() time.Time
	logger   *slog.Logger
}

// New creates an Extension that emits lifecycle events through s.
func New(s Sender, opts ...Option) *Extension {
	h := &Extension{sender: s, now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Name implements ext.Extension.
func (h *Extension) Name() string { return "relay-hook" }

// OnJobCreated implements ext.JobCreated.
func (h *Extension) OnJobCreated(ctx context.Context, j *job.Job) error {
	return h.send(ctx, EventJobCreated, newJobPayload(j))
}

// OnJobAwaitingReview implements ext.JobAwaitingReview.
func (h *Extension) OnJobAwaitingReview(ctx context.Context, j *job.Job) error {
	p := &reviewPayload{jobPayload: *newJobPayload(j)}
	p.Image, _ = j.Ref(job.StageComposing)
	p.Caption, _ = j.Ref(job.StageCaptionGenerating)
	return h.send(ctx, EventJobAwaitingReview, p)
}

// OnJobPublished implements ext.JobPublished.
func (h *Extension) OnJobPublished(ctx context.Context, j *job.Job) error {
	return h.send(ctx, EventJobPublished, &publishedPayload{
		jobPayload: *newJobPayload(j),
		PostID:     j.PostID(),
	})
}

// OnJobFailed implements ext.JobFailed.
func (h *Extension) OnJobFailed(ctx context.Context, j *job.Job, jobErr error) error {
	p := &failedPayload{jobPayload: *newJobPayload(j), FailedStage: string(j.FailedStage)}
	if jobErr != nil {
		p.Error = jobErr.Error()
	}
	return h.send(ctx, EventJobFailed, p)
}

// OnJobCancelled implements ext.JobCancelled.
func (h *Extension) OnJobCancelled(ctx context.Context, j *job.Job) error {
	return h.send(ctx, EventJobCancelled, newJobPayload(j))
}

// OnScheduleFired implements ext.ScheduleFired.
func (h *Extension) OnScheduleFired(ctx context.Context, created int) error {
	return h.send(ctx, EventScheduleFired, &schedulePayload{Created: created})
}

// ── Internal helpers ────────────────────────────────

// send emits an event if the event type is enabled.
func (h *Extension) send(ctx context.Context, eventType string, defaultData any) error {
	if h.enabled != nil && !h.enabled[eventType] {
		return nil
	}

	data := defaultData
	if fn, ok := h.payloads[eventType]; ok {
		custom, err := fn(defaultData)
		if err != nil {
			return err
		}
		data = custom
	}

	evt := &Event{
		ID:   "evt_" + uuid.NewString(),
		Type: eventType,
		At:   h.now().UTC(),
		Data: data,
	}
	if err := h.sender.Send(ctx, evt); err != nil {
		h.logger.Warn("relay_hook: webhook delivery failed",
			slog.String("type", eventType),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

// ── Default payload types ───────────────────────────

type jobPayload struct {
	JobID     string     `json:"job_id"`
	Date      string     `json:"date"`
	Platform  string     `json:"platform"`
	Theme     string     `json:"theme"`
	Stage     string     `json:"stage"`
	Source    string     `json:"source"`
	Revision  int        `json:"revision"`
	PublishAt *time.Time `json:"publish_at,omitempty"`
}

func newJobPayload(j *job.Job) *jobPayload {
	return &jobPayload{
		JobID:     j.ID.String(),
		Date:      j.Slot.Date,
		Platform:  j.Slot.Platform,
		Theme:     j.Slot.Theme,
		Stage:     string(j.Stage),
		Source:    string(j.Source),
		Revision:  j.Revision,
		PublishAt: j.PublishAt,
	}
}

type reviewPayload struct {
	jobPayload
	Image   string `json:"image,omitempty"`
	Caption string `json:"caption,omitempty"`
}

type publishedPayload struct {
	jobPayload
	PostID string `json:"post_id"`
}

type failedPayload struct {
	jobPayload
	FailedStage string `json:"failed_stage,omitempty"`
	Error       string `json:"error,omitempty"`
}

type schedulePayload struct {
	Created int `json:"created"`
}
