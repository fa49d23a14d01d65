// Package mcp serves the gateway as Model Context Protocol tools over
// newline-delimited JSON-RPC 2.0, typically on stdin and stdout.
//
// Supported methods are initialize, tools/list, tools/call and ping.
// Malformed tool arguments are JSON-RPC errors. Failures of the operation
// itself are tool results with isError set, carrying a [ToolError] whose
// Retryable flag marks lease, write or pool contention that the caller may
// simply retry.
package mcp
