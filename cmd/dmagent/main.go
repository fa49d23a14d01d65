// Command dmagent runs the DM-Agent content orchestrator.
//
//	dmagent serve      run the pipeline, the scheduler and the HTTP API
//	dmagent mcp        serve the MCP tools over stdio
//	dmagent migrate    prepare the store schema
//	dmagent trigger    run one scheduler tick now
//	dmagent check      verify the store and the Ollama models
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "dmagent:", err)
		os.Exit(1)
	}
}
