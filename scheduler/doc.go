// Package scheduler turns a content calendar into jobs.
//
// A [Scheduler] ticks on a cron cadence ("@every 1m" by default). On each
// tick it takes or renews the scheduler:leader lease; instances that do
// not hold it skip the tick. The leader asks its [calendar.Source] for the
// entries due within the lookahead window and creates a scheduled_run job
// for each through the pipeline controller. Slots that already have an
// active or published job are skipped.
//
// [Scheduler.TickOnce] runs a single evaluation and backs the trigger
// command.
package scheduler
