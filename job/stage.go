package job

// Stage is a step of the content pipeline.
type Stage string

const (
	// StagePlanned means the job exists and waits for image generation.
	StagePlanned Stage = "planned"
	// StageImageGenerating means the image collaborator is being called.
	StageImageGenerating Stage = "image_generating"
	// StageComposing means the branding renderer is being called.
	StageComposing Stage = "composing"
	// StageCaptionGenerating means the caption collaborator is being called.
	StageCaptionGenerating Stage = "caption_generating"
	// StageAwaitingReview suspends the job until it is approved or rejected.
	StageAwaitingReview Stage = "awaiting_review"
	// StageScheduled means the job is approved and waits for PublishAt.
	StageScheduled Stage = "scheduled"
	// StagePublishing means the platform adapter is being called.
	StagePublishing Stage = "publishing"
	// StagePublished means the post is live.
	StagePublished Stage = "published"
	// StageFailed means a collaborator failed permanently or retries ran out.
	StageFailed Stage = "failed"
	// StageCancelled means the job was cancelled on request.
	StageCancelled Stage = "cancelled"
)

var forward = []Stage{
	StagePlanned,
	StageImageGenerating,
	StageComposing,
	StageCaptionGenerating,
	StageAwaitingReview,
	StageScheduled,
	StagePublishing,
	StagePublished,
}

// Stages returns every stage in pipeline order followed by failed and
// cancelled.
func Stages() []Stage {
	out := append([]Stage{}, forward...)
	return append(out, StageFailed, StageCancelled)
}

// ActiveStages returns the stages that count against a slot.
func ActiveStages() []Stage {
	return append([]Stage{}, forward[:len(forward)-1]...)
}

// TerminalStages returns published, failed and cancelled.
func TerminalStages() []Stage {
	return []Stage{StagePublished, StageFailed, StageCancelled}
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	return s.Terminal() || s.Order() >= 0
}

// Order returns the position of s in the forward order, or -1 for failed,
// cancelled and unknown stages.
func (s Stage) Order() int {
	for i, f := range forward {
		if f == s {
			return i
		}
	}
	return -1
}

// Terminal reports whether s ends the job.
func (s Stage) Terminal() bool {
	return s == StagePublished || s == StageFailed || s == StageCancelled
}

// Active reports whether a job in s still owns its slot.
func (s Stage) Active() bool {
	return !s.Terminal() && s.Order() >= 0
}

// InFlight reports whether s runs a collaborator call.
func (s Stage) InFlight() bool {
	switch s {
	case StageImageGenerating, StageComposing, StageCaptionGenerating, StagePublishing:
		return true
	}
	return false
}

// Interruptible reports whether a cancel or revise request can be recorded
// on s and honored at its next boundary. Publishing is excluded since the
// post may be live before the call returns.
func (s Stage) Interruptible() bool {
	return s.InFlight() && s != StagePublishing
}

// Cancellable reports whether a job in s can be cancelled or revised
// immediately.
func (s Stage) Cancellable() bool {
	return s == StagePlanned || s == StageAwaitingReview || s == StageScheduled
}

// Next returns the forward successor of s.
func (s Stage) Next() (Stage, bool) {
	i := s.Order()
	if i < 0 || i == len(forward)-1 {
		return "", false
	}
	return forward[i+1], true
}

// Before reports whether s comes strictly before o in the forward order.
func (s Stage) Before(o Stage) bool {
	a, b := s.Order(), o.Order()
	return a >= 0 && b >= 0 && a < b
}
