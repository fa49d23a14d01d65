// Package pipeline moves content jobs through their stages.
//
// The [Controller] is the only writer of job state. Scheduled runs and
// interactive tools both create and mutate jobs through it, so every path
// is held to the same rules. A stage that calls a collaborator runs under
// the slot lease, and its result is committed only while that lease is
// still current and the job was neither cancelled, revised nor moved in
// the meantime.
//
// Jobs suspend in awaiting_review until approved or rejected, and in
// scheduled until their publish time. The [Runner] polls the store for
// jobs that can make progress and advances them with bounded concurrency.
package pipeline
