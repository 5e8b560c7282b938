package main

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/dukex/loyalflow/pkg/cmd"
	"github.com/dukex/loyalflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

const shutdownTimeout = 10 * time.Second

type API struct {
	logger   *slog.Logger
	app      *cmd.App
	validate *validator.Validate
}

func NewAPI(logger *slog.Logger, app *cmd.App) *API {
	return &API{
		logger:   logger,
		app:      app,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(
		a.logger,
		a.app.Persistence,
		a.app.Publishing,
		a.app.Executions,
		a.app.Restarts,
		a.app.Variables,
		a.validate,
	)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("loyalflow API")
	})

	handlers.RegisterRoutes(app)

	return app
}

// Start serves until ctx is done, then shuts the server down gracefully.
func (a *API) Start(ctx context.Context, port int) error {
	app := a.App()

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			a.logger.ErrorContext(shutdownCtx, "Failed to shut down API server", "error", err)
		}
	}()

	a.logger.InfoContext(ctx, "Starting loyalflow API", "port", port)

	return app.Listen(":" + strconv.Itoa(port))
}
