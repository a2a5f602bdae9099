package web

import (
	"log/slog"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	recoverer "github.com/gofiber/fiber/v3/middleware/recover"
)

// NewApp builds the HTTP surface: triggers, the progress stream, the
// connection endpoints and health checks.
func NewApp(log *slog.Logger, handlers *Handlers) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "flowrun",
		ErrorHandler: ErrorHandler(log),
	})

	app.Use(recoverer.New(recoverer.Config{EnableStackTrace: true}))
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker(healthcheck.Config{
		Probe: func(c fiber.Ctx) bool {
			return handlers.catalog.HealthCheck(c.Context()) == nil
		},
	}))

	app.Get("/", handlers.Root)

	app.All("/api/:tenant/:projectId/*", handlers.Trigger)
	app.All("/realtime/:tenant/:projectId/*", handlers.RealtimeTrigger)

	app.Get("/executions/:executionId/events", handlers.StreamEvents)

	app.Post("/connections", handlers.Connect)
	app.Delete("/connections/:connectionId", handlers.Disconnect)

	return app
}
