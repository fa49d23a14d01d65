package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	dmagent "github.com/alimaamoun/DM-Agent"
	"github.com/alimaamoun/DM-Agent/calendar"
	"github.com/alimaamoun/DM-Agent/collab"
	"github.com/alimaamoun/DM-Agent/id"
	"github.com/alimaamoun/DM-Agent/job"
	"github.com/alimaamoun/DM-Agent/pipeline"
)

// ErrNoEnhancer is returned by EnhancePrompt when no enhancer is configured.
var ErrNoEnhancer = errors.New("gateway: no prompt enhancer configured")

// Kicker is told about every job an operation touched.
// *pipeline.Runner satisfies it.
type Kicker interface {
	Kick(jobID id.JobID)
}

// PlatformSet reports which platforms can be published to.
// *platform.Registry satisfies it.
type PlatformSet interface {
	Has(name string) bool
}

// CreateRequest asks for the job of a slot.
type CreateRequest struct {
	Date      string
	Platform  string
	Theme     string
	Params    Patch
	PublishAt *time.Time
}

// ScheduleResult is the outcome of Schedule.
type ScheduleResult struct {
	Approved *job.Job
	// Created holds the jobs started for additional platforms; Existing
	// holds jobs that already owned those slots.
	Created  []*job.Job
	Existing []*job.Job
}

// CalendarView is a window of the content calendar.
type CalendarView struct {
	From    string
	To      string
	Jobs    []*job.Job
	Planned []calendar.Entry
}

// Service is the request/response surface shared by the MCP server and the
// HTTP API. Every mutation goes through the pipeline controller.
type Service struct {
	ctrl      *pipeline.Controller
	kicker    Kicker
	platforms PlatformSet
	source    calendar.Source
	enhancer  collab.PromptEnhancer
	loc       *time.Location
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithKicker sets who is told about touched jobs.
func WithKicker(k Kicker) Option { return func(s *Service) { s.kicker = k } }

// WithPlatforms restricts creates to known platforms.
func WithPlatforms(p PlatformSet) Option { return func(s *Service) { s.platforms = p } }

// WithCalendar sets the calendar shown alongside stored jobs.
func WithCalendar(src calendar.Source) Option { return func(s *Service) { s.source = src } }

// WithEnhancer sets the prompt enhancer behind EnhancePrompt.
func WithEnhancer(e collab.PromptEnhancer) Option { return func(s *Service) { s.enhancer = e } }

// WithLocation sets the timezone calendar ranges are resolved in.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

// NewService creates a Service over ctrl.
func NewService(ctrl *pipeline.Controller, opts ...Option) *Service {
	s := &Service{
		ctrl:   ctrl,
		loc:    time.UTC,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnhancePrompt rewrites a short prompt into a detailed image prompt. It
// touches no job and writes no artifact.
func (s *Service) EnhancePrompt(ctx context.Context, prompt, style string) (string, error) {
	if s.enhancer == nil {
		return "", ErrNoEnhancer
	}
	return s.enhancer.Enhance(ctx, strings.TrimSpace(prompt), strings.TrimSpace(style))
}

// CreateOrFetch returns the active job of the slot, creating one when the
// slot is free. created is false when an existing job is returned.
func (s *Service) CreateOrFetch(ctx context.Context, req CreateRequest) (j *job.Job, created bool, err error) {
	date := strings.TrimSpace(req.Date)
	if date == "" {
		date = s.now().In(s.loc).Format(job.DateLayout)
	}
	slot := job.Slot{Date: date, Platform: req.Platform, Theme: req.Theme}.Normalize()
	if err := s.checkPlatform(slot.Platform); err != nil {
		return nil, false, err
	}

	j, err = s.ctrl.Create(ctx, pipeline.CreateRequest{
		Slot:      slot,
		Source:    job.SourceInteractive,
		Params:    req.Params.Apply(job.Params{}),
		PublishAt: req.PublishAt,
	})
	if errors.Is(err, dmagent.ErrDuplicateActiveJob) && j != nil {
		return j, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	s.kick(j)
	return j, true, nil
}

// Status returns a job.
func (s *Service) Status(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return s.ctrl.Get(ctx, jobID)
}

// List returns jobs matching filter, at most limit when limit is positive.
func (s *Service) List(ctx context.Context, filter job.Filter, limit int) ([]*job.Job, error) {
	return s.ctrl.Store().ListJobs(ctx, filter, job.ListOpts{Limit: limit})
}

// Revise merges patch over the job's current parameters and sends the job
// back to planning. A revision of a running stage applies when the stage
// finishes.
func (s *Service) Revise(ctx context.Context, jobID id.JobID, patch Patch) (*job.Job, error) {
	cur, err := s.ctrl.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	base := cur.Params
	if cur.PendingRevision != nil {
		base = *cur.PendingRevision
	}
	j, err := s.ctrl.Revise(ctx, jobID, patch.Apply(base))
	if err != nil {
		return nil, err
	}
	s.kick(j)
	return j, nil
}

// Approve schedules a job in review. A nil publishAt keeps the planned time.
func (s *Service) Approve(ctx context.Context, jobID id.JobID, publishAt *time.Time) (*job.Job, error) {
	j, err := s.ctrl.Approve(ctx, jobID, publishAt)
	if err != nil {
		return nil, err
	}
	s.kick(j)
	return j, nil
}

// Reject turns down a job in review. With a revision the job is planned
// again; without one it is cancelled.
func (s *Service) Reject(ctx context.Context, jobID id.JobID, reason string, revise *Patch) (*job.Job, error) {
	req := pipeline.RejectRequest{Reason: reason}
	if revise != nil {
		cur, err := s.ctrl.Get(ctx, jobID)
		if err != nil {
			return nil, err
		}
		p := revise.Apply(cur.Params)
		req.Revise = &p
	}
	j, err := s.ctrl.Reject(ctx, jobID, req)
	if err != nil {
		return nil, err
	}
	s.kick(j)
	return j, nil
}

// Cancel stops a job. A running stage is cancelled when it finishes.
func (s *Service) Cancel(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	j, err := s.ctrl.Cancel(ctx, jobID)
	if err != nil {
		return nil, err
	}
	s.kick(j)
	return j, nil
}

// Resubmit starts a new job for the slot of a failed or cancelled job.
func (s *Service) Resubmit(ctx context.Context, jobID id.JobID, patch *Patch) (*job.Job, error) {
	var params *job.Params
	if patch != nil {
		cur, err := s.ctrl.Get(ctx, jobID)
		if err != nil {
			return nil, err
		}
		p := patch.Apply(cur.Params)
		params = &p
	}
	j, err := s.ctrl.Resubmit(ctx, jobID, params)
	if err != nil {
		return nil, err
	}
	s.kick(j)
	return j, nil
}

// Schedule approves a job for publishing at the given time and starts jobs
// for the same date and theme on any further platforms.
func (s *Service) Schedule(ctx context.Context, jobID id.JobID, at *time.Time, platforms []string) (*ScheduleResult, error) {
	cur, err := s.ctrl.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	for _, p := range platforms {
		if err := s.checkPlatform(strings.ToLower(strings.TrimSpace(p))); err != nil {
			return nil, err
		}
	}

	approved, err := s.Approve(ctx, jobID, at)
	if err != nil {
		return nil, err
	}
	res := &ScheduleResult{Approved: approved}

	for _, p := range platforms {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" || p == cur.Slot.Platform {
			continue
		}
		j, created, err := s.CreateOrFetch(ctx, CreateRequest{
			Date:      cur.Slot.Date,
			Platform:  p,
			Theme:     cur.Slot.Theme,
			Params:    PatchFrom(cur.Params),
			PublishAt: at,
		})
		if err != nil {
			return res, fmt.Errorf("schedule on %s: %w", p, err)
		}
		if created {
			res.Created = append(res.Created, j)
		} else {
			res.Existing = append(res.Existing, j)
		}
	}
	return res, nil
}

// Calendar returns the jobs and planned entries of a named range such as
// this_week.
func (s *Service) Calendar(ctx context.Context, rangeName string) (*CalendarView, error) {
	now := s.now().In(s.loc)
	from, to, err := calendar.Range(rangeName, now)
	if err != nil {
		return nil, err
	}
	view := &CalendarView{From: from, To: to}

	for j, err := range job.All(ctx, s.ctrl.Store(), job.Filter{From: from, To: to}, job.DefaultPageSize) {
		if err != nil {
			return nil, err
		}
		view.Jobs = append(view.Jobs, j)
	}

	if s.source != nil {
		end, _ := time.ParseInLocation(job.DateLayout, to, s.loc)
		end = end.AddDate(0, 0, 1)
		if end.After(now) {
			entries, err := s.source.Due(ctx, now, end.Sub(now))
			if err != nil {
				return nil, err
			}
			view.Planned = entries
		}
	}
	return view, nil
}

func (s *Service) checkPlatform(name string) error {
	if s.platforms == nil || name == "" {
		return nil
	}
	if !s.platforms.Has(name) {
		return fmt.Errorf("%w: %s", dmagent.ErrUnknownPlatform, name)
	}
	return nil
}

func (s *Service) kick(j *job.Job) {
	if s.kicker == nil || j == nil {
		return
	}
	s.kicker.Kick(j.ID)
	s.logger.Debug("gateway kicked job",
		slog.String("job_id", j.ID.String()),
		slog.String("stage", string(j.Stage)),
	)
}
