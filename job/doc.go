// Package job defines the content job entity, its stage state machine, and
// the store interface.
//
// # Content Job
//
// A [Job] produces the content for exactly one [Slot], a (date, platform,
// theme) position on the content calendar. It embeds [dmagent.Entity] for
// timestamps and progresses through stages:
//
//	planned → image_generating → composing → caption_generating
//	        → awaiting_review → scheduled → publishing → published
//
// Any active stage may move to failed. planned, awaiting_review and
// scheduled may move to cancelled directly; the stages that run a
// collaborator call are cancelled only after a cancel request was recorded,
// at the next stage boundary.
//
// The only backward move is a revision: [Job.Reset] returns the job to
// planned with new parameters, bumps Revision and drops every artifact.
//
// # Artifacts
//
// Each stage that calls a collaborator records an [Artifact] holding the
// produced reference and the slot lease token it was produced under.
//
// # Store
//
// [Store] is the persistence contract. UpdateJob is a compare-and-swap on
// UpdatedAt; CreateJob rejects a second active job for the same slot.
// [Update] wraps the read-modify-write cycle and [All] lists lazily.
package job
