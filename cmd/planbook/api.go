package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/planbook/planbook/pkg/cmd"
	"github.com/planbook/planbook/pkg/log"
	"github.com/planbook/planbook/pkg/notebook"
	"github.com/planbook/planbook/pkg/persistence"
	"github.com/planbook/planbook/pkg/registry"
	"github.com/planbook/planbook/pkg/web"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

type API struct {
	logger      *slog.Logger
	notebook    *notebook.Notebook
	persistence persistence.Persistence
	registry    *registry.Registry
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	nb *notebook.Notebook,
	persist persistence.Persistence,
	reg *registry.Registry,
) *API {
	return &API{
		logger:      logger,
		notebook:    nb,
		persistence: persist,
		registry:    reg,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.notebook, a.persistence, a.registry, a.validate, a.logger)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Planbook API")
	})

	p := app.Group("/plans")
	p.Get("/", handlers.GetPlans)
	p.Post("/", handlers.CreatePlan)
	p.Get("/:id", handlers.GetPlan)
	p.Delete("/:id", handlers.DeletePlan)
	p.Get("/:id/summary", handlers.GetPlanSummary)

	// Authoring endpoints:
	p.Post("/:id/tasks", handlers.AddTask)
	p.Post("/:id/subplans", handlers.AddSubPlan)
	p.Post("/:id/groups", handlers.AddGroup)
	p.Post("/:id/dependencies", handlers.AddDependency)

	// Execution:
	p.Post("/:id/execute", handlers.ExecutePlan)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}

func apiCommand() *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Run the plan management HTTP API",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
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
				Name:    "event-bus",
				Usage:   "Event bus provider (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.Bool("json-log"))

			logger := log.WithModule("api")
			logger.InfoContext(ctx, "Initializing Planbook API")

			reg := cmd.NewRegistry(ctx, logger, command.String("plugins-path"))
			persist := cmd.NewPersistence(ctx, logger, command.String("database-url"))

			defer func() {
				err := persist.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			bus := cmd.NewEventBus(command.String("event-bus"), logger)
			defer func() {
				if err := bus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			nb := notebook.NewNotebook(
				notebook.WithLogger(logger),
				notebook.WithPublisher(bus),
			)

			if err := restorePlans(ctx, logger, nb, persist); err != nil {
				return err
			}

			api := NewAPI(logger, nb, persist, reg)

			return api.Start(command.Int("port"))
		},
	}
}

// restorePlans loads stored plans into the notebook at startup so the API
// serves them across restarts.
func restorePlans(ctx context.Context, logger *slog.Logger, nb *notebook.Notebook, persist persistence.Persistence) error {
	plans, err := persist.Plans(ctx)
	if err != nil {
		return err
	}

	for _, plan := range plans {
		nb.RestorePlan(plan)
	}

	logger.InfoContext(ctx, "Restored stored plans", "count", len(plans))

	return nil
}
