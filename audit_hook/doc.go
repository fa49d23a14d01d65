// Package audithook records the job lifecycle as an audit trail.
//
// Every stage change, review outcome and scheduler tick becomes an
// [AuditEvent] passed to a [Recorder]. [Trail] is a bounded in-memory
// recorder the HTTP API reads from; [RecorderFunc] adapts any other
// backend.
//
//	trail := audithook.NewTrail(1024)
//	registry.Register(audithook.New(trail))
//
// # Selective filtering
//
//	audithook.New(recorder,
//	    audithook.WithActions(
//	        audithook.ActionJobFailed,
//	        audithook.ActionJobPublished,
//	    ),
//	)
package audithook
