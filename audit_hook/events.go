package audithook

// Actions, one per lifecycle hook the extension observes.
const (
	ActionJobCreated        = "job.created"
	ActionStageEntered      = "job.stage_entered"
	ActionJobAwaitingReview = "job.awaiting_review"
	ActionJobPublished      = "job.published"
	ActionJobFailed         = "job.failed"
	ActionJobCancelled      = "job.cancelled"
	ActionScheduleFired     = "schedule.fired"
)

// Categories.
const (
	CategoryJob      = "dmagent.job"
	CategoryReview   = "dmagent.review"
	CategorySchedule = "dmagent.schedule"
)

// Resources an audit event can name.
const (
	ResourceJob      = "job"
	ResourceCalendar = "calendar"
)

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionJobCreated,
		ActionStageEntered,
		ActionJobAwaitingReview,
		ActionJobPublished,
		ActionJobFailed,
		ActionJobCancelled,
		ActionScheduleFired,
	}
}
