// Package main provides the flow API server.
package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/cflux/flow/pkg/actionbus"
	"github.com/cflux/flow/pkg/cmd"
	"github.com/cflux/flow/pkg/services"
	"github.com/cflux/flow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type API struct {
	logger   *slog.Logger
	runtime  *cmd.Runtime
	bus      actionbus.Bus
	gatherer prometheus.Gatherer
	validate *validator.Validate

	workflows *services.Workflow
	actions   *services.Actions
	instances *services.Instances
}

// NewAPI builds the services over rt. Fired actions go through bus, or are
// dispatched in-process when bus is nil.
func NewAPI(
	logger *slog.Logger,
	rt *cmd.Runtime,
	bus actionbus.Bus,
	gatherer prometheus.Gatherer,
) *API {
	if bus == nil {
		bus = rt.Direct()
	}

	return &API{
		logger:    logger,
		runtime:   rt,
		bus:       bus,
		gatherer:  gatherer,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		workflows: services.NewWorkflow(rt.Persistence, rt.Compiler, logger),
		actions:   services.NewActions(rt.Persistence, rt.Triggers, bus, logger),
		instances: services.NewInstances(rt.Persistence, rt.Engine, logger),
	}
}

// Seed stores the built-in system actions that do not exist yet.
func (a *API) Seed(ctx context.Context) error {
	defaults, err := services.DefaultActions()
	if err != nil {
		return err
	}

	created, err := a.actions.Seed(ctx, defaults)
	if err != nil {
		return err
	}

	a.logger.InfoContext(ctx, "Seeded system actions", "created", created, "total", len(defaults))

	return nil
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(
		a.workflows,
		a.actions,
		a.instances,
		a.runtime.Triggers,
		a.validate,
		a.runtime.Nodes,
	)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker(healthcheck.Config{
		Probe: func(c fiber.Ctx) bool {
			_, ok := a.workflows.HealthCheck(c.Context())

			return ok
		},
	}))

	if a.gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{})))
	}

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Flow API")
	})

	handlers.Register(app)

	return app
}

// Start serves the API until ctx is done.
func (a *API) Start(ctx context.Context, port int) error {
	app := a.App()

	go func() {
		<-ctx.Done()

		err := app.Shutdown()
		if err != nil {
			a.logger.Error("Failed to shut down API", "error", err)
		}
	}()

	return app.Listen(":" + strconv.Itoa(port))
}
