package dmagent

import "time"

// Config holds the orchestrator tunables shared by the pipeline, executor
// pool and scheduler.
type Config struct {
	// Workers is the fixed number of concurrent collaborator calls.
	Workers int

	// QueueSize bounds the number of tasks waiting for a worker.
	QueueSize int

	// SubmitWait is how long a submit waits for queue space before failing
	// with ErrPoolSaturated. Zero fails immediately on a full queue.
	SubmitWait time.Duration

	// MaxRetries is the number of retries after the first attempt for
	// transient collaborator errors.
	MaxRetries int

	// LeaseTTL is how long a slot lease lives without renewal. It should
	// cover the slowest expected collaborator call.
	LeaseTTL time.Duration

	// LockWait bounds how long the controller waits for a busy slot before
	// parking the job.
	LockWait time.Duration

	// MaxReviewWait cancels jobs left in review longer than this. Zero
	// disables the policy.
	MaxReviewWait time.Duration

	// PollInterval is how often the runner scans for runnable jobs.
	PollInterval time.Duration

	// RunnerConcurrency bounds how many jobs the runner advances at once.
	RunnerConcurrency int

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Workers:           4,
		QueueSize:         32,
		SubmitWait:        2 * time.Second,
		MaxRetries:        3,
		LeaseTTL:          5 * time.Minute,
		LockWait:          10 * time.Second,
		PollInterval:      5 * time.Second,
		RunnerConcurrency: 4,
		ShutdownTimeout:   30 * time.Second,
	}
}
