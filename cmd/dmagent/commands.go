package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/alimaamoun/DM-Agent/config"
	"github.com/alimaamoun/DM-Agent/engine"
)

type globals struct {
	configPath string
	debug      bool
}

func newRootCommand() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "dmagent",
		Short:         "Content job orchestrator for social media posts",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", config.Path(""), "config file (env CONFIG_PATH)")
	root.PersistentFlags().BoolVar(&g.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		serveCommand(g),
		mcpCommand(g),
		migrateCommand(g),
		triggerCommand(g),
		checkCommand(g),
	)
	return root
}

// setup loads the configuration, builds the logger and the engine.
func (g *globals) setup(ctx context.Context) (*engine.Engine, *slog.Logger, func(), error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	if g.debug {
		cfg.Debug = true
		cfg.Log.Level = "debug"
	}
	logger, sync, err := newLogger(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	eng, err := engine.New(ctx, cfg, engine.WithLogger(logger))
	if err != nil {
		sync()
		return nil, nil, nil, err
	}
	return eng, logger, sync, nil
}

func serveCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the pipeline, the scheduler and the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, _, sync, err := g.setup(cmd.Context())
			if err != nil {
				return err
			}
			defer sync()
			return eng.Serve(cmd.Context())
		},
	}
}

func mcpCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the MCP tools on stdin and stdout",
		Long:  "Serve the MCP tools on stdin and stdout. Logs go to stderr.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, _, sync, err := g.setup(cmd.Context())
			if err != nil {
				return err
			}
			defer sync()
			return eng.ServeMCP(cmd.Context(), os.Stdin, os.Stdout)
		},
	}
}

func migrateCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Prepare the store schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, logger, sync, err := g.setup(cmd.Context())
			if err != nil {
				return err
			}
			defer sync()
			defer eng.Close(context.WithoutCancel(cmd.Context()))

			if err := eng.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			logger.Info("store migrated", slog.String("backend", eng.Config().Store.Backend))
			return nil
		},
	}
}

func triggerCommand(g *globals) *cobra.Command {
	var drain bool
	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Create the jobs of the calendar entries that are due now",
		Long: "Run one scheduler tick. With --drain the created jobs are advanced " +
			"until each reaches review or a terminal stage before the command exits.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			eng, logger, sync, err := g.setup(ctx)
			if err != nil {
				return err
			}
			defer sync()

			sched := eng.Scheduler()
			if sched == nil {
				_ = eng.Close(ctx)
				return fmt.Errorf("trigger: no content calendar configured (set CONTENT_CALENDAR)")
			}
			if !drain {
				defer eng.Close(context.WithoutCancel(ctx))
				return runTick(ctx, eng, logger)
			}

			if err := eng.Start(ctx); err != nil {
				return err
			}
			defer func() {
				stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eng.Config().Pipeline.ShutdownTimeout)
				defer cancel()
				if err := eng.Stop(stopCtx); err != nil {
					logger.Error("engine stop", slog.String("error", err.Error()))
				}
			}()
			if err := runTick(ctx, eng, logger); err != nil {
				return err
			}
			return drainRunner(ctx, eng)
		},
	}
	cmd.Flags().BoolVar(&drain, "drain", false, "advance the created jobs before exiting")
	return cmd
}

func runTick(ctx context.Context, eng *engine.Engine, logger *slog.Logger) error {
	tick, err := eng.Scheduler().TickOnce(ctx)
	if err != nil {
		return fmt.Errorf("trigger: %w", err)
	}
	logger.Info("scheduler tick",
		slog.Int("due", tick.Due),
		slog.Int("created", tick.Created),
		slog.Int("skipped", tick.Skipped),
		slog.Int("failed", tick.Failed),
	)
	if tick.Failed > 0 {
		return fmt.Errorf("trigger: %d of %d due entries failed", tick.Failed, tick.Due)
	}
	return nil
}

// drainRunner advances runnable jobs until a scan starts nothing.
func drainRunner(ctx context.Context, eng *engine.Engine) error {
	runner := eng.Runner()
	for {
		runner.Wait()
		started, err := runner.RunOnce(ctx)
		if err != nil {
			return fmt.Errorf("trigger: %w", err)
		}
		runner.Wait()
		if started == 0 {
			return nil
		}
	}
}

func checkCommand(g *globals) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify the store connection and the Ollama models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, logger, sync, err := g.setup(cmd.Context())
			if err != nil {
				return err
			}
			defer sync()
			defer eng.Close(context.WithoutCancel(cmd.Context()))

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if err := eng.Check(ctx); err != nil {
				return fmt.Errorf("check: %w", err)
			}
			logger.Info("all checks passed", slog.Any("platforms", eng.Platforms().Names()))
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "overall check timeout")
	return cmd
}
