package dmagent

import "errors"

var (
	// Store errors.
	ErrMigrationFailed = errors.New("dmagent: migration failed")

	// Not found errors.
	ErrJobNotFound   = errors.New("dmagent: job not found")
	ErrLeaseNotFound = errors.New("dmagent: lease not found")

	// Conflict errors. ErrDuplicateActiveJob and ErrSlotPublished are
	// returned by job creation; the caller usually wants the existing job.
	ErrDuplicateActiveJob = errors.New("dmagent: slot already has an active job")
	ErrSlotPublished      = errors.New("dmagent: slot already published")

	// Contention errors. These are operational signals, never job failures,
	// and are never recorded as a job's last error.
	ErrStaleWrite    = errors.New("dmagent: stale write")
	ErrSlotBusy      = errors.New("dmagent: slot busy")
	ErrPoolSaturated = errors.New("dmagent: executor pool saturated")
	ErrLockExpired   = errors.New("dmagent: slot lease expired")

	// State errors.
	ErrInvalidTransition = errors.New("dmagent: invalid stage transition")
	ErrInvalidSlot       = errors.New("dmagent: invalid content slot")
	ErrNotRunnable       = errors.New("dmagent: job is not runnable")
	ErrRetriesExhausted  = errors.New("dmagent: retries exhausted")

	// Lifecycle errors.
	ErrPoolStopped     = errors.New("dmagent: executor pool stopped")
	ErrUnknownPlatform = errors.New("dmagent: unknown platform")
	ErrNotLeader       = errors.New("dmagent: not the leader")
	ErrLeadershipLost  = errors.New("dmagent: leadership lost")
)

// IsContention reports whether err is one of the concurrency signals that
// callers retry as an operation rather than record against a job.
func IsContention(err error) bool {
	return errors.Is(err, ErrStaleWrite) ||
		errors.Is(err, ErrSlotBusy) ||
		errors.Is(err, ErrPoolSaturated) ||
		errors.Is(err, ErrLockExpired)
}
