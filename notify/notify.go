// Package notify turns terminal job outcomes and review requests into
// summaries delivered to one or more sinks.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alimaamoun/DM-Agent/ext"
	"github.com/alimaamoun/DM-Agent/id"
	"github.com/alimaamoun/DM-Agent/job"
)

// Kind classifies a summary.
type Kind string

const (
	KindAwaitingReview Kind = "awaiting_review"
	KindPublished      Kind = "published"
	KindFailed         Kind = "failed"
	KindCancelled      Kind = "cancelled"
)

// Summary is the notification payload for one job event.
type Summary struct {
	Kind   Kind      `json:"kind"`
	JobID  id.JobID  `json:"job_id"`
	Slot   job.Slot  `json:"slot"`
	Stage  job.Stage `json:"stage"`
	Reason string    `json:"reason,omitempty"`
	PostID string    `json:"post_id,omitempty"`
	At     time.Time `json:"at"`
}

// Subject returns a one-line headline for the summary.
func (s Summary) Subject() string {
	switch s.Kind {
	case KindFailed:
		return fmt.Sprintf("[dm-agent] %s failed at %s", s.Slot, s.Stage)
	case KindAwaitingReview:
		return fmt.Sprintf("[dm-agent] %s awaits review", s.Slot)
	default:
		return fmt.Sprintf("[dm-agent] %s %s", s.Slot, s.Kind)
	}
}

// Sink delivers a summary.
type Sink interface {
	Deliver(ctx context.Context, s Summary) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, s Summary) error

// Deliver calls f.
func (f SinkFunc) Deliver(ctx context.Context, s Summary) error { return f(ctx, s) }

// Compile-time interface checks.
var (
	_ ext.Extension         = (*Notifier)(nil)
	_ ext.JobAwaitingReview = (*Notifier)(nil)
	_ ext.JobPublished      = (*Notifier)(nil)
	_ ext.JobFailed         = (*Notifier)(nil)
	_ ext.JobCancelled      = (*Notifier)(nil)
)

// Notifier is an extension fanning summaries out to its sinks. A sink that
// fails does not stop delivery to the others; the joined error is returned
// to the registry, which logs it.
type Notifier struct {
	sinks  []Sink
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithSink appends a sink.
func WithSink(s Sink) Option {
	return func(n *Notifier) { n.sinks = append(n.sinks, s) }
}

// WithClock sets the time source used for Summary.At.
func WithClock(now func() time.Time) Option {
	return func(n *Notifier) { n.now = now }
}

// New creates a Notifier. Without sinks it logs summaries via LogSink.
func New(logger *slog.Logger, opts ...Option) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	n := &Notifier{now: time.Now, logger: logger}
	for _, opt := range opts {
		opt(n)
	}
	if len(n.sinks) == 0 {
		n.sinks = []Sink{NewLogSink(logger)}
	}
	return n
}

// Name implements ext.Extension.
func (n *Notifier) Name() string { return "notifier" }

// OnJobAwaitingReview implements ext.JobAwaitingReview.
func (n *Notifier) OnJobAwaitingReview(ctx context.Context, j *job.Job) error {
	return n.Notify(ctx, n.summary(KindAwaitingReview, j, ""))
}

// OnJobPublished implements ext.JobPublished.
func (n *Notifier) OnJobPublished(ctx context.Context, j *job.Job) error {
	return n.Notify(ctx, n.summary(KindPublished, j, ""))
}

// OnJobFailed implements ext.JobFailed.
func (n *Notifier) OnJobFailed(ctx context.Context, j *job.Job, err error) error {
	reason := j.LastError
	if reason == "" && err != nil {
		reason = err.Error()
	}
	s := n.summary(KindFailed, j, reason)
	if j.FailedStage != "" {
		s.Stage = j.FailedStage
	}
	return n.Notify(ctx, s)
}

// OnJobCancelled implements ext.JobCancelled.
func (n *Notifier) OnJobCancelled(ctx context.Context, j *job.Job) error {
	return n.Notify(ctx, n.summary(KindCancelled, j, ""))
}

// Notify delivers s to every sink.
func (n *Notifier) Notify(ctx context.Context, s Summary) error {
	var errs []error
	for _, sink := range n.sinks {
		if err := sink.Deliver(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (n *Notifier) summary(kind Kind, j *job.Job, reason string) Summary {
	return Summary{
		Kind:   kind,
		JobID:  j.ID,
		Slot:   j.Slot,
		Stage:  j.Stage,
		Reason: reason,
		PostID: j.PostID(),
		At:     n.now().UTC(),
	}
}
