// Package ext defines the extension system for the orchestrator.
//
// Extensions are notified of job lifecycle events and can react to them:
// recording metrics, sending review notifications, writing audit logs.
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
//
// # Implementing an Extension
//
//	type MyExtension struct{}
//
//	func (e *MyExtension) Name() string { return "my-extension" }
//
//	// Opt in to specific hooks by implementing their interfaces.
//	func (e *MyExtension) OnJobPublished(ctx context.Context, j *job.Job) error {
//	    log.Printf("job %s published as %s", j.ID, j.PostID())
//	    return nil
//	}
//
// # Job Lifecycle Hooks
//
//   - [JobCreated]: a job was persisted for a slot
//   - [StageEntered]: a stage change was durably written
//   - [JobAwaitingReview]: the job paused for human approval
//   - [JobPublished]: the platform accepted the post
//   - [JobFailed]: the job failed terminally
//   - [JobCancelled]: the job was cancelled on request
//
// # Other Hooks
//
//   - [ScheduleFired]: the scheduler evaluated a tick
//   - [Shutdown]: the engine is shutting down gracefully
//
// The [Registry] fans out each event to all registered extensions that
// implement the corresponding hook interface. Hook errors are logged and
// never returned to the pipeline.
package ext
