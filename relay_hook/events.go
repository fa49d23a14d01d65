package relayhook

import "time"

// Lifecycle event types. Each constant maps to one ext lifecycle hook and
// is used as Event.Type.
const (
	EventJobCreated        = "dmagent.job.created"
	EventJobAwaitingReview = "dmagent.job.awaiting_review"
	EventJobPublished      = "dmagent.job.published"
	EventJobFailed         = "dmagent.job.failed"
	EventJobCancelled      = "dmagent.job.cancelled"
	EventScheduleFired     = "dmagent.schedule.fired"
)

// AllEvents returns every event type this extension can emit.
func AllEvents() []string {
	return []string{
		EventJobCreated,
		EventJobAwaitingReview,
		EventJobPublished,
		EventJobFailed,
		EventJobCancelled,
		EventScheduleFired,
	}
}

// Event is one webhook delivery.
type Event struct {
	ID   string    `json:"id"`
	Type string    `json:"type"`
	At   time.Time `json:"at"`
	Data any       `json:"data"`
}
