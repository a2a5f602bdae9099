// Package main provides the flowrun API server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/dukex/flowrun/pkg/cmd"
	"github.com/dukex/flowrun/pkg/connection"
	"github.com/dukex/flowrun/pkg/eventbus"
	"github.com/dukex/flowrun/pkg/orchestrator"
	"github.com/dukex/flowrun/pkg/web"
)

const (
	DefaultStreamTimeout = web.DefaultStreamTimeout
	shutdownTimeout      = 10 * time.Second
)

type Options struct {
	StreamTimeout     time.Duration
	ConnectionTimeout time.Duration
	PollInterval      time.Duration
	WorkerID          string

	// Embedded runs an orchestrator in this process, needed when the event
	// bus does not leave the process.
	Embedded bool
}

type API struct {
	logger       *slog.Logger
	runtime      *cmd.Runtime
	options      Options
	validate     *validator.Validate
	orchestrator *orchestrator.Orchestrator
}

func NewAPI(logger *slog.Logger, runtime *cmd.Runtime, options Options) *API {
	api := &API{
		logger:   logger,
		runtime:  runtime,
		options:  options,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}

	if options.Embedded {
		waiter := connection.NewWaiter(runtime.Bindings, logger,
			connection.WithPollInterval(options.PollInterval),
			connection.WithWaitTimeout(options.ConnectionTimeout),
		)

		api.orchestrator = orchestrator.New(logger, runtime.Executor, waiter,
			runtime.Bindings, runtime.Relay, runtime.EventBus, options.WorkerID,
			orchestrator.WithTracer(runtime.Tracer),
		)
	}

	return api
}

func (a *API) App() *fiber.App {
	var publisher eventbus.EventPublisher
	if a.runtime.EventBus != nil {
		publisher = a.runtime.EventBus
	}

	handlers := web.NewHandlers(web.Dependencies{
		Logger:        a.logger,
		Catalog:       a.runtime.Persistence,
		Workflows:     a.runtime.Registry,
		Runner:        a.runtime.Executor,
		Publisher:     publisher,
		Limiter:       a.runtime.Limiter,
		Bindings:      a.runtime.Bindings,
		Relay:         a.runtime.Relay,
		Validator:     a.validate,
		StreamTimeout: a.options.StreamTimeout,
	})

	return web.NewApp(a.logger, handlers)
}

// Start serves until ctx is cancelled, then drains in-flight requests and
// embedded executions.
func (a *API) Start(ctx context.Context, port int) error {
	if a.orchestrator != nil {
		if err := a.orchestrator.Start(ctx, a.runtime.EventBus); err != nil {
			return err
		}

		defer a.orchestrator.Wait()
	}

	app := a.App()
	listenErr := make(chan error, 1)

	go func() {
		listenErr <- app.Listen(":"+strconv.Itoa(port), fiber.ListenConfig{DisableStartupMessage: true})
	}()

	a.logger.InfoContext(ctx, "API listening", "port", port, "embedded_orchestrator", a.orchestrator != nil)

	select {
	case err := <-listenErr:
		return err
	case <-ctx.Done():
	}

	a.logger.InfoContext(ctx, "Shutting down API")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}
