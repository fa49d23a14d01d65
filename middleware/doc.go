// Package middleware provides composable middleware around collaborator
// calls.
//
// A [Middleware] wraps one task attempt. The executor runs every attempt
// through a chain built with [Chain]; the first middleware in the slice is
// the outermost wrapper.
//
//	// logging → recover → timeout → handler
//	chain := middleware.Chain(
//	    middleware.Logging(logger),
//	    middleware.Recover(logger),
//	    middleware.Timeout(2*time.Minute, nil),
//	)
//
// # Built-in Middleware
//
//   - [Logging]: logs kind, job, attempt and the failure class
//   - [Recover]: turns panics into permanent task errors
//   - [Timeout]: bounds each attempt; overruns are transient
//   - [Tracing]: wraps each attempt in an OpenTelemetry span
//   - [Metrics]: records attempt duration and outcome counters
package middleware
