// Package relayhook relays job lifecycle events to outbound webhooks.
// When registered as an extension, it sends a typed JSON event
// (dmagent.job.awaiting_review, dmagent.job.published, and so on) at every
// lifecycle point a downstream system cares about.
//
// Usage:
//
//	sender := relayhook.NewHTTPSender("https://hooks.example.com/dmagent",
//	    relayhook.WithSecret(secret),
//	)
//	hook := relayhook.New(sender)
//	engine.WithExtension(hook)
//
// To restrict which events are emitted:
//
//	hook := relayhook.New(sender,
//	    relayhook.WithEvents(
//	        relayhook.EventJobAwaitingReview,
//	        relayhook.EventJobFailed,
//	    ),
//	)
package relayhook
