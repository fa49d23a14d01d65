// Package dmagent orchestrates social-media content jobs. A job moves a
// single calendar slot (date, platform, theme) through image generation,
// composition, captioning, human review, scheduling and publication.
//
// Two sources create jobs: a time-driven scheduler that reads the content
// calendar, and an interactive tool gateway driven by a chat assistant or
// an HTTP caller. Both funnel every mutation through the pipeline
// controller, which is the only writer of job state.
//
// # Architecture
//
// Each subsystem defines its own store interface (job, lease). A single
// backend implements all of them:
//
//   - store/memory: in-process maps, for tests and local runs
//   - store/redis: Redis with Lua scripts for the atomic checks
//   - store/postgres: PostgreSQL via pgx/v5 with a partial unique index
//
// At most one job is active per slot. Slot ownership while a stage runs is
// a lease with a TTL, so a crashed worker never wedges a slot. Writes use
// optimistic concurrency on the job's UpdatedAt timestamp.
//
// All entity IDs are TypeIDs such as "job_01h2xcejqtf2nbrexx3vqjhp41": a
// prefix naming the entity and a K-sortable UUIDv7 suffix.
package dmagent
