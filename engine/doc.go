// Package engine assembles DM-Agent from its configuration: the job store,
// slot leases, executor pool, pipeline controller and runner, calendar
// scheduler, tool gateway and the HTTP and MCP surfaces.
//
// The engine sits above every subsystem package and below cmd/dmagent.
// Subsystems never import it.
//
// # Building an Engine
//
//	cfg, err := config.Load(config.Path("config.yml"))
//	if err != nil { ... }
//
//	eng, err := engine.New(ctx, cfg,
//	    engine.WithLogger(logger),
//	    engine.WithNotifySink(mySink),
//	)
//
// Collaborators default to the Ollama, diffusion and renderer providers
// and to the platform publishers named in the configuration. Tests and
// embedders replace them with WithCollaborators.
//
// # Running
//
// Serve starts the pool, runner and scheduler, then serves the HTTP API
// until ctx is cancelled:
//
//	err := eng.Serve(ctx)
//
// ServeMCP speaks the MCP tool protocol over a reader and writer pair,
// typically stdin and stdout:
//
//	err := eng.ServeMCP(ctx, os.Stdin, os.Stdout)
//
// Stop drains in-flight stages within the configured shutdown timeout and
// closes the store.
package engine
