package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	dmagent "github.com/alimaamoun/DM-Agent"
	"github.com/alimaamoun/DM-Agent/calendar"
	"github.com/alimaamoun/DM-Agent/id"
	"github.com/alimaamoun/DM-Agent/job"
	"github.com/alimaamoun/DM-Agent/lease"
	"github.com/alimaamoun/DM-Agent/pipeline"
)

// DefaultSchedule is the tick cadence used when none is configured.
const DefaultSchedule = "@every 1m"

// DefaultLookahead is how far ahead of now calendar entries are planned.
const DefaultLookahead = 24 * time.Hour

// Creator creates jobs. *pipeline.Controller satisfies it.
type Creator interface {
	Create(ctx context.Context, req pipeline.CreateRequest) (*job.Job, error)
}

// Kicker is told about every job a tick creates. *pipeline.Runner
// satisfies it.
type Kicker interface {
	Kick(jobID id.JobID)
}

// Emitter emits scheduler lifecycle events.
// ext.Registry satisfies this interface via EmitScheduleFired.
type Emitter interface {
	EmitScheduleFired(ctx context.Context, created int)
}

// Tick summarizes one evaluation of the calendar.
type Tick struct {
	Due     int
	Created int
	Skipped int
	Failed  int
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithSchedule sets the tick cadence as a cron expression or descriptor.
func WithSchedule(expr string) Option {
	return func(s *Scheduler) { s.schedule = expr }
}

// WithLookahead sets how far ahead entries become jobs.
func WithLookahead(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.lookahead = d
		}
	}
}

// WithHolder names this instance in the leader lease.
func WithHolder(name string) Option {
	return func(s *Scheduler) {
		if name != "" {
			s.holder = name
		}
	}
}

// WithKicker sets who is told about created jobs.
func WithKicker(k Kicker) Option {
	return func(s *Scheduler) { s.kicker = k }
}

// WithEmitter sets the lifecycle emitter.
func WithEmitter(e Emitter) Option {
	return func(s *Scheduler) { s.emitter = e }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// cronParser supports standard 5-field cron and descriptors like "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression and returns the schedule.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

// Scheduler turns calendar entries into jobs. Only the holder of the
// leader lease ticks, so several instances can run side by side.
type Scheduler struct {
	source  calendar.Source
	creator Creator
	leases  *lease.Manager
	kicker  Kicker
	emitter Emitter
	holder  string
	logger  *slog.Logger
	now     func() time.Time

	schedule  string
	lookahead time.Duration

	mu     sync.Mutex
	leader *lease.Lease
	cron   *cronlib.Cron
	cancel context.CancelFunc
}

// New creates a Scheduler. The leader lease lasts for the TTL of leases,
// which should exceed the tick interval.
func New(source calendar.Source, creator Creator, leases *lease.Manager, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		source:    source,
		creator:   creator,
		leases:    leases,
		holder:    "scheduler-" + id.NewWorkerID().String(),
		logger:    slog.Default(),
		now:       time.Now,
		schedule:  DefaultSchedule,
		lookahead: DefaultLookahead,
	}
	for _, opt := range opts {
		opt(s)
	}
	if _, err := ParseSchedule(s.schedule); err != nil {
		return nil, fmt.Errorf("scheduler: schedule %q: %w", s.schedule, err)
	}
	return s, nil
}

// Start begins ticking on the configured cadence. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	c := cronlib.New(
		cronlib.WithParser(cronParser),
		cronlib.WithLocation(time.UTC),
		cronlib.WithChain(cronlib.SkipIfStillRunning(cronLogger{s.logger})),
	)
	if _, err := c.AddFunc(s.schedule, func() { s.run(ctx) }); err != nil {
		cancel()
		return fmt.Errorf("scheduler: schedule %q: %w", s.schedule, err)
	}
	s.cron, s.cancel = c, cancel
	c.Start()

	s.logger.Info("scheduler started",
		slog.String("holder", s.holder),
		slog.String("schedule", s.schedule),
		slog.Duration("lookahead", s.lookahead),
	)
	return nil
}

// Stop halts ticking, waits for a running tick until ctx is done, and
// gives up leadership.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}

	cancel()
	var err error
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		err = ctx.Err()
	}
	s.resign(context.WithoutCancel(ctx))
	s.logger.Info("scheduler stopped")
	return err
}

// IsLeader reports whether this instance held the leader lease at its last
// tick.
func (s *Scheduler) IsLeader() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leader != nil
}

func (s *Scheduler) run(ctx context.Context) {
	res, err := s.TickOnce(ctx)
	switch {
	case errors.Is(err, dmagent.ErrNotLeader):
		s.logger.Debug("scheduler tick skipped", slog.String("reason", "not leader"))
	case err != nil && ctx.Err() == nil:
		s.logger.Error("scheduler tick failed", slog.String("error", err.Error()))
	case err == nil:
		s.logger.Debug("scheduler tick",
			slog.Int("due", res.Due),
			slog.Int("created", res.Created),
			slog.Int("skipped", res.Skipped),
			slog.Int("failed", res.Failed),
		)
	}
}

// TickOnce takes or renews leadership and creates a job for every due
// calendar entry. It returns ErrNotLeader while another instance leads.
// Slots that already have an active or published job are skipped.
func (s *Scheduler) TickOnce(ctx context.Context) (Tick, error) {
	var res Tick
	leader, err := s.lead(ctx)
	if err != nil {
		return res, err
	}

	entries, err := s.source.Due(ctx, s.now(), s.lookahead)
	if err != nil {
		return res, fmt.Errorf("scheduler: calendar: %w", err)
	}
	res.Due = len(entries)

	for _, e := range entries {
		if err := s.leases.Validate(ctx, lease.LeaderKey, leader.Token); err != nil {
			s.dropLeader(leader)
			return res, fmt.Errorf("%w: %w", dmagent.ErrLeadershipLost, err)
		}

		publishAt := e.PublishAt
		j, err := s.creator.Create(ctx, pipeline.CreateRequest{
			Slot:      e.Slot,
			Source:    job.SourceScheduledRun,
			Params:    e.Params,
			PublishAt: &publishAt,
		})
		switch {
		case err == nil:
			res.Created++
			if s.kicker != nil {
				s.kicker.Kick(j.ID)
			}
		case errors.Is(err, dmagent.ErrDuplicateActiveJob), errors.Is(err, dmagent.ErrSlotPublished):
			res.Skipped++
			s.logger.Debug("calendar slot already taken",
				slog.String("slot", e.Slot.Key()),
				slog.String("reason", err.Error()),
			)
		default:
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Failed++
			s.logger.Error("scheduled create failed",
				slog.String("slot", e.Slot.Key()),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.emitter != nil {
		s.emitter.EmitScheduleFired(ctx, res.Created)
	}
	if res.Created > 0 {
		s.logger.Info("scheduled jobs created",
			slog.Int("created", res.Created),
			slog.Int("skipped", res.Skipped),
		)
	}
	return res, nil
}

// lead renews the leader lease held from an earlier tick or tries to take
// a free one.
func (s *Scheduler) lead(ctx context.Context) (*lease.Lease, error) {
	s.mu.Lock()
	held := s.leader
	s.mu.Unlock()

	if held != nil {
		err := s.leases.Renew(ctx, held)
		if err == nil {
			return held, nil
		}
		if !errors.Is(err, dmagent.ErrLockExpired) {
			return nil, fmt.Errorf("scheduler: renew leadership: %w", err)
		}
		s.dropLeader(held)
	}

	l, err := s.leases.Acquire(ctx, lease.LeaderKey, s.holder)
	if errors.Is(err, dmagent.ErrSlotBusy) {
		return nil, dmagent.ErrNotLeader
	}
	if err != nil {
		return nil, fmt.Errorf("scheduler: acquire leadership: %w", err)
	}

	s.mu.Lock()
	s.leader = l
	s.mu.Unlock()
	s.logger.Info("acquired scheduler leadership", slog.String("holder", s.holder))
	return l, nil
}

func (s *Scheduler) dropLeader(l *lease.Lease) {
	s.mu.Lock()
	if s.leader == l {
		s.leader = nil
	}
	s.mu.Unlock()
	s.logger.Warn("scheduler leadership lost", slog.String("holder", s.holder))
}

func (s *Scheduler) resign(ctx context.Context) {
	s.mu.Lock()
	l := s.leader
	s.leader = nil
	s.mu.Unlock()
	if l == nil {
		return
	}
	if err := s.leases.Release(ctx, l.Key, l.Token); err != nil {
		s.logger.Warn("release leadership failed", slog.String("error", err.Error()))
	}
}

// cronLogger adapts slog to the cron library's logger.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append([]any{slog.String("error", err.Error())}, keysAndValues...)...)
}
