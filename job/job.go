package job

import (
	"fmt"
	"strings"
	"time"

	dmagent "github.com/alimaamoun/DM-Agent"
	"github.com/alimaamoun/DM-Agent/id"
)

// DateLayout is the civil date format used by slots.
const DateLayout = "2006-01-02"

// Slot identifies one content calendar position. It is immutable once a job
// exists for it.
type Slot struct {
	Date     string `json:"date"`
	Platform string `json:"platform"`
	Theme    string `json:"theme"`
}

// NewSlot builds a normalized slot for the civil date of day.
func NewSlot(day time.Time, platform, theme string) Slot {
	return Slot{Date: day.Format(DateLayout), Platform: platform, Theme: theme}.Normalize()
}

// Normalize lower-cases the platform and trims surrounding whitespace.
func (s Slot) Normalize() Slot {
	return Slot{
		Date:     strings.TrimSpace(s.Date),
		Platform: strings.ToLower(strings.TrimSpace(s.Platform)),
		Theme:    strings.TrimSpace(s.Theme),
	}
}

// Key returns the unique key of the slot.
func (s Slot) Key() string {
	return s.Date + "|" + s.Platform + "|" + s.Theme
}

// Day parses the slot date.
func (s Slot) Day() (time.Time, error) {
	return time.Parse(DateLayout, s.Date)
}

// Validate reports whether every field is present and the date parses.
func (s Slot) Validate() error {
	if s.Date == "" || s.Platform == "" || s.Theme == "" {
		return fmt.Errorf("%w: date, platform and theme are required", dmagent.ErrInvalidSlot)
	}
	if _, err := s.Day(); err != nil {
		return fmt.Errorf("%w: date %q: %v", dmagent.ErrInvalidSlot, s.Date, err)
	}
	if strings.Contains(s.Theme, "|") || strings.Contains(s.Platform, "|") {
		return fmt.Errorf("%w: fields must not contain '|'", dmagent.ErrInvalidSlot)
	}
	return nil
}

func (s Slot) String() string { return s.Key() }

// Source records which entry point created a job. It never changes.
type Source string

const (
	// SourceScheduledRun marks jobs created by the scheduler trigger.
	SourceScheduledRun Source = "scheduled_run"
	// SourceInteractive marks jobs created through the tool gateway.
	SourceInteractive Source = "interactive_request"
)

// Params are the creative inputs of a job. A revision replaces them.
type Params struct {
	Prompt       string `json:"prompt,omitempty"`
	Enhance      bool   `json:"enhance,omitempty"`
	Style        string `json:"style,omitempty"`
	Size         string `json:"size,omitempty"`
	Template     string `json:"template,omitempty"`
	Logo         bool   `json:"logo,omitempty"`
	Tone         string `json:"tone,omitempty"`
	Hashtags     bool   `json:"hashtags,omitempty"`
	HashtagCount int    `json:"hashtag_count,omitempty"`
	MaxLength    int    `json:"max_length,omitempty"`
}

// Defaults fills empty fields.
type Defaults struct {
	Style        string
	Size         string
	Template     string
	Tone         string
	HashtagCount int
	MaxLength    int
}

// WithDefaults returns p with empty fields taken from d.
func (p Params) WithDefaults(d Defaults) Params {
	if p.Style == "" {
		p.Style = d.Style
	}
	if p.Size == "" {
		p.Size = d.Size
	}
	if p.Template == "" {
		p.Template = d.Template
	}
	if p.Tone == "" {
		p.Tone = d.Tone
	}
	if p.HashtagCount == 0 {
		p.HashtagCount = d.HashtagCount
	}
	if p.MaxLength == 0 {
		p.MaxLength = d.MaxLength
	}
	return p
}

// Artifact is the output of one stage.
type Artifact struct {
	// Ref is an image path, a composed asset path, caption text or a
	// platform post id depending on the stage.
	Ref string `json:"ref"`

	// LeaseToken is the slot lease held when the artifact was produced.
	LeaseToken id.LeaseID `json:"lease_token"`

	ProducedAt time.Time `json:"produced_at"`
}

// Job is one slot's trip through the content pipeline.
type Job struct {
	dmagent.Entity

	ID        id.JobID           `json:"id"`
	Slot      Slot               `json:"slot"`
	Stage     Stage              `json:"stage"`
	Source    Source             `json:"source"`
	Params    Params             `json:"params"`
	Attempts  map[Stage]int      `json:"attempts,omitempty"`
	Artifacts map[Stage]Artifact `json:"artifacts,omitempty"`

	// LeaseToken is the slot lease currently held for the job, nil when
	// the job is not running a stage.
	LeaseToken id.LeaseID `json:"lease_token"`

	PublishAt     *time.Time `json:"publish_at,omitempty"`
	AwaitingSince *time.Time `json:"awaiting_since,omitempty"`

	// CancelRequested and PendingRevision record requests that arrived
	// while a collaborator call was in flight. They are applied at the next
	// stage boundary.
	CancelRequested bool    `json:"cancel_requested,omitempty"`
	PendingRevision *Params `json:"pending_revision,omitempty"`

	Revision        int      `json:"revision"`
	FailedStage     Stage    `json:"failed_stage,omitempty"`
	LastError       string   `json:"last_error,omitempty"`
	ResubmittedFrom id.JobID `json:"resubmitted_from"`
}

// New returns a planned job for slot.
func New(slot Slot, source Source, params Params, now time.Time) *Job {
	return &Job{
		Entity:    dmagent.NewEntity(now),
		ID:        id.NewJobID(),
		Slot:      slot.Normalize(),
		Stage:     StagePlanned,
		Source:    source,
		Params:    params,
		Attempts:  map[Stage]int{},
		Artifacts: map[Stage]Artifact{},
	}
}

// Clone returns a deep copy of j.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	c.Attempts = make(map[Stage]int, len(j.Attempts))
	for k, v := range j.Attempts {
		c.Attempts[k] = v
	}
	c.Artifacts = make(map[Stage]Artifact, len(j.Artifacts))
	for k, v := range j.Artifacts {
		c.Artifacts[k] = v
	}
	if j.PublishAt != nil {
		t := *j.PublishAt
		c.PublishAt = &t
	}
	if j.AwaitingSince != nil {
		t := *j.AwaitingSince
		c.AwaitingSince = &t
	}
	if j.PendingRevision != nil {
		p := *j.PendingRevision
		c.PendingRevision = &p
	}
	return &c
}

// Active reports whether the job still counts against its slot.
func (j *Job) Active() bool { return j.Stage.Active() }

// Ref returns the artifact reference recorded for stage.
func (j *Job) Ref(stage Stage) (string, bool) {
	a, ok := j.Artifacts[stage]
	if !ok || a.Ref == "" {
		return "", false
	}
	return a.Ref, true
}

// PostID returns the platform post id of a published job.
func (j *Job) PostID() string {
	ref, _ := j.Ref(StagePublishing)
	return ref
}

// Record stores the artifact for stage produced under token.
func (j *Job) Record(stage Stage, ref string, token id.LeaseID, now time.Time) {
	if j.Artifacts == nil {
		j.Artifacts = map[Stage]Artifact{}
	}
	j.Artifacts[stage] = Artifact{Ref: ref, LeaseToken: token, ProducedAt: dmagent.Truncate(now)}
}

// AddAttempts adds n collaborator attempts to the counter of stage.
func (j *Job) AddAttempts(stage Stage, n int) {
	if j.Attempts == nil {
		j.Attempts = map[Stage]int{}
	}
	j.Attempts[stage] += n
}

// Transition moves the job to stage to, enforcing the stage order.
func (j *Job) Transition(to Stage, now time.Time) error {
	if !j.canTransition(to) {
		return fmt.Errorf("%w: %s → %s", dmagent.ErrInvalidTransition, j.Stage, to)
	}
	j.Stage = to
	switch to {
	case StageAwaitingReview:
		t := dmagent.Truncate(now)
		j.AwaitingSince = &t
	case StageScheduled:
		j.AwaitingSince = nil
	}
	if to.Terminal() {
		j.LeaseToken = id.Nil
		j.CancelRequested = false
		j.PendingRevision = nil
	}
	return nil
}

func (j *Job) canTransition(to Stage) bool {
	from := j.Stage
	if !from.Active() {
		return false
	}
	switch to {
	case StageFailed:
		return true
	case StageCancelled:
		return from.Cancellable() || (from.Interruptible() && j.CancelRequested)
	}
	next, ok := from.Next()
	return ok && next == to
}

// Revisable reports whether a revision may be applied to the job now.
// Interruptible stages accept a revision only at a stage boundary, after it
// was recorded in PendingRevision.
func (j *Job) Revisable() bool {
	return j.Stage.Cancellable() || (j.Stage.Interruptible() && j.PendingRevision != nil)
}

// Reset returns the job to planned with params. Every artifact is dropped
// since none of them were produced from the new parameters.
func (j *Job) Reset(params Params) error {
	if !j.Stage.Active() || !j.Revisable() {
		return fmt.Errorf("%w: cannot revise a job in %s", dmagent.ErrInvalidTransition, j.Stage)
	}
	j.Stage = StagePlanned
	j.Params = params
	j.Revision++
	j.Artifacts = map[Stage]Artifact{}
	j.Attempts = map[Stage]int{}
	j.PendingRevision = nil
	j.PublishAt = nil
	j.AwaitingSince = nil
	j.LeaseToken = id.Nil
	return nil
}

// Fail moves the job to failed recording the stage and reason.
func (j *Job) Fail(reason string, now time.Time) error {
	stage := j.Stage
	if err := j.Transition(StageFailed, now); err != nil {
		return err
	}
	j.FailedStage = stage
	j.LastError = reason
	return nil
}
