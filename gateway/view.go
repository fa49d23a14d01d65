package gateway

import (
	"time"

	"github.com/alimaamoun/DM-Agent/job"
)

// JobView is the caller-facing form of a job.
type JobView struct {
	ID              string            `json:"id"`
	Date            string            `json:"date"`
	Platform        string            `json:"platform"`
	Theme           string            `json:"theme"`
	Stage           job.Stage         `json:"stage"`
	Source          job.Source        `json:"source"`
	Params          job.Params        `json:"params"`
	Artifacts       map[string]string `json:"artifacts,omitempty"`
	Attempts        map[job.Stage]int `json:"attempts,omitempty"`
	PostID          string            `json:"post_id,omitempty"`
	PublishAt       *time.Time        `json:"publish_at,omitempty"`
	AwaitingSince   *time.Time        `json:"awaiting_since,omitempty"`
	CancelRequested bool              `json:"cancel_requested,omitempty"`
	RevisionPending bool              `json:"revision_pending,omitempty"`
	Revision        int               `json:"revision"`
	FailedStage     job.Stage         `json:"failed_stage,omitempty"`
	LastError       string            `json:"last_error,omitempty"`
	ResubmittedFrom string            `json:"resubmitted_from,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// View converts j.
func View(j *job.Job) JobView {
	v := JobView{
		ID:              j.ID.String(),
		Date:            j.Slot.Date,
		Platform:        j.Slot.Platform,
		Theme:           j.Slot.Theme,
		Stage:           j.Stage,
		Source:          j.Source,
		Params:          j.Params,
		PostID:          j.PostID(),
		PublishAt:       j.PublishAt,
		AwaitingSince:   j.AwaitingSince,
		CancelRequested: j.CancelRequested,
		RevisionPending: j.PendingRevision != nil,
		Revision:        j.Revision,
		FailedStage:     j.FailedStage,
		LastError:       j.LastError,
		CreatedAt:       j.CreatedAt,
		UpdatedAt:       j.UpdatedAt,
	}
	if len(j.Attempts) > 0 {
		v.Attempts = j.Attempts
	}
	if len(j.Artifacts) > 0 {
		v.Artifacts = make(map[string]string, len(j.Artifacts))
		for stage, a := range j.Artifacts {
			v.Artifacts[string(stage)] = a.Ref
		}
	}
	if !j.ResubmittedFrom.IsNil() {
		v.ResubmittedFrom = j.ResubmittedFrom.String()
	}
	return v
}

// Views converts every job in js.
func Views(js []*job.Job) []JobView {
	out := make([]JobView, 0, len(js))
	for _, j := range js {
		out = append(out, View(j))
	}
	return out
}

// EntryView is the caller-facing form of a planned calendar entry.
type EntryView struct {
	Date      string    `json:"date"`
	Platform  string    `json:"platform"`
	Theme     string    `json:"theme"`
	PublishAt time.Time `json:"publish_at"`
}

// CalendarResult is the caller-facing form of a CalendarView.
type CalendarResult struct {
	From    string      `json:"from"`
	To      string      `json:"to"`
	Jobs    []JobView   `json:"jobs"`
	Planned []EntryView `json:"planned,omitempty"`
}

// Result converts the view.
func (c *CalendarView) Result() CalendarResult {
	r := CalendarResult{From: c.From, To: c.To, Jobs: Views(c.Jobs)}
	for _, e := range c.Planned {
		r.Planned = append(r.Planned, EntryView{
			Date:      e.Slot.Date,
			Platform:  e.Slot.Platform,
			Theme:     e.Slot.Theme,
			PublishAt: e.PublishAt,
		})
	}
	return r
}
