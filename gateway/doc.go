// Package gateway is the interactive surface of the orchestrator.
//
// [Service] offers create-or-fetch, revision, review, cancellation,
// resubmission, status and calendar queries. It has no write path of its
// own: every mutation is a call on the pipeline controller followed by a
// kick of the runner, so interactive callers and the scheduler share one
// set of rules. The MCP server in gateway/mcp and the HTTP API both sit on
// top of a Service.
package gateway
