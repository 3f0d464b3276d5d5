package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/planbook/planbook/pkg/cmd"
	"github.com/planbook/planbook/pkg/log"
	"github.com/planbook/planbook/pkg/models"
	"github.com/planbook/planbook/pkg/notebook"
	"github.com/planbook/planbook/pkg/otelhelper"
	"github.com/planbook/planbook/pkg/registry"
	"github.com/planbook/planbook/pkg/state"
	cli "github.com/urfave/cli/v3"
)

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Execute a stored plan once and print the execution summary",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "plan-id",
				Usage:    "ID of the plan to execute",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL or data directory for persistence",
				Value:   "./data",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "plugins-path",
				Usage:   "Path to the directory containing agent and tool plugins",
				Value:   "./plugins",
				Sources: cli.EnvVars("PLUGINS_PATH"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for shared run state (in-memory when empty)",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.IntFlag{
				Name:  "max-parallelism",
				Usage: "Maximum nodes executing concurrently",
				Value: models.DefaultMaxParallelism,
			},
			&cli.BoolFlag{
				Name:  "continue-on-error",
				Usage: "Keep scheduling ready nodes after a failure",
			},
			&cli.BoolFlag{
				Name:  "disable-retry",
				Usage: "Ignore node retry budgets",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Global timeout for the whole run (0 means none)",
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export OpenTelemetry traces for the run",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.Bool("json-log"))

			logger := log.WithModule("run")

			persist := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				if err := persist.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			plan, err := persist.PlanByID(ctx, command.String("plan-id"))
			if err != nil {
				return err
			}

			reg := cmd.NewRegistry(ctx, logger, command.String("plugins-path"))

			opts := []notebook.Option{notebook.WithLogger(logger)}

			if command.Bool("tracing") {
				tracer, err := otelhelper.NewTracer(ctx, "planbook-run")
				if err != nil {
					return fmt.Errorf("failed to initialize tracer: %w", err)
				}

				opts = append(opts, notebook.WithTracer(tracer))
			}

			nb := notebook.NewNotebook(opts...)
			nb.RestorePlan(plan)

			nb.SubscribeStatusChanges(func(change notebook.StatusChange) {
				logger.Info("Node status changed",
					"node", change.NodeName, "from", change.From, "to", change.To, "reason", change.Reason)
			})

			ec, err := buildRunContext(ctx, command, logger, reg, plan)
			if err != nil {
				return err
			}

			summary, err := nb.ExecutePlan(ctx, plan, ec)

			if saveErr := persist.SavePlan(ctx, plan); saveErr != nil {
				logger.ErrorContext(ctx, "Failed to persist plan after run", "error", saveErr)
			}

			if err != nil {
				return err
			}

			return printSummary(summary)
		},
	}
}

func buildRunContext(
	ctx context.Context,
	command *cli.Command,
	logger *slog.Logger,
	reg *registry.Registry,
	plan *models.Plan,
) (*notebook.ExecutionContext, error) {
	opts := models.DefaultExecutionOptions()
	opts.MaxParallelism = command.Int("max-parallelism")
	opts.ContinueOnError = command.Bool("continue-on-error")
	opts.EnableRetry = !command.Bool("disable-retry")
	opts.GlobalTimeout = command.Duration("timeout")

	ec := notebook.NewExecutionContext(opts)
	ec.Registry = reg

	if redisURL := command.String("redis-url"); redisURL != "" {
		store, err := state.NewRedisStore(ctx, redisURL, "planbook:run:"+plan.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Redis state store: %w", err)
		}

		ec.State = store
	}

	for _, node := range plan.Nodes {
		if node.ToolName == "" {
			continue
		}

		if _, ok := ec.Tools[node.ToolName]; ok {
			continue
		}

		tool, err := reg.CreateTool(node.ToolName, nil)
		if err != nil {
			logger.WarnContext(ctx, "Tool referenced by plan is not registered",
				"tool", node.ToolName, "error", err)

			continue
		}

		ec.WithTool(tool)
	}

	return ec, nil
}

func printSummary(summary *models.ExecutionSummary) error {
	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal execution summary: %w", err)
	}

	_, err = fmt.Fprintln(os.Stdout, string(out))

	return err
}
