// Package task defines units of work submitted to the executor pool.
//
// A [Task] names one collaborator call: generate an image, compose a
// branded layout, write a caption or publish a post. The call returns the
// reference that becomes the stage artifact.
//
// Collaborators classify failures as [ClassTransient] (timeouts, 5xx, rate
// limiting) or [ClassPermanent] (invalid input, auth, policy rejection).
// Only transient errors are retried.
package task
