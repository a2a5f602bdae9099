package cmd

import (
	"context"
	"errors"
	"log/slog"

	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"

	"github.com/dukex/flowrun/pkg/connection"
	"github.com/dukex/flowrun/pkg/eventbus"
	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/dukex/flowrun/pkg/ratelimit"
	"github.com/dukex/flowrun/pkg/registry"
	"github.com/dukex/flowrun/pkg/sweeper"
	"github.com/dukex/flowrun/pkg/workflow"
)

// Runtime holds the collaborators every flowrun binary builds from its
// flags. Close releases them in reverse order.
type Runtime struct {
	Logger      *slog.Logger
	Persistence persistence.Persistence
	Registry    *registry.Registry
	Executor    *workflow.Executor
	EventBus    *eventbus.WatermillEventBus
	Bindings    connection.BindingStore
	Relay       connection.Relay
	Limiter     ratelimit.Limiter
	Tracer      trace.Tracer
	Sweeper     *sweeper.Sweeper

	closers []func(context.Context) error
}

// NewRuntime wires storage, the node registry, the executor, the event bus
// and the real-time stores. On error everything already opened is closed.
func NewRuntime(ctx context.Context, logger *slog.Logger, command *cli.Command, serviceName string) (*Runtime, error) {
	rt := &Runtime{
		Logger:  logger,
		Sweeper: sweeper.New(logger.With("module", "sweeper")),
	}

	if err := rt.build(ctx, command, serviceName); err != nil {
		if closeErr := rt.Close(ctx); closeErr != nil {
			logger.ErrorContext(ctx, "Failed to release partially built runtime", "error", closeErr)
		}

		return nil, err
	}

	rt.Sweeper.Start()
	rt.onClose(func(context.Context) error {
		rt.Sweeper.Stop()

		return nil
	})

	return rt, nil
}

func (rt *Runtime) build(ctx context.Context, command *cli.Command, serviceName string) error {
	logger := rt.Logger

	flush, err := InitSentry(command.String("sentry-dsn"), command.String("environment"), serviceName)
	if err != nil {
		return err
	}

	rt.onClose(func(context.Context) error {
		flush()

		return nil
	})

	tracer, shutdown, err := NewTracer(ctx, logger, serviceName, command.Bool("otel-enabled"))
	if err != nil {
		return err
	}

	rt.Tracer = tracer
	rt.onClose(shutdown)

	rt.Persistence, err = NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	rt.onClose(rt.Persistence.Close)

	sink, closeSink, err := NewStatsSink(ctx, logger, command.String("stats-database-url"))
	if err != nil {
		return err
	}

	rt.onClose(func(context.Context) error { return closeSink() })

	var disconnectSecrets func(context.Context) error

	rt.Registry, disconnectSecrets, err = NewNodeRegistry(ctx, logger, rt.Sweeper, RegistryConfigFrom(command))
	if err != nil {
		return err
	}

	rt.onClose(disconnectSecrets)

	rt.Executor = workflow.NewExecutor(logger, rt.Registry,
		workflow.WithTracer(tracer),
		workflow.WithSink(sink),
	)

	rt.EventBus, err = NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), serviceName, logger)
	if err != nil {
		return err
	}

	rt.onClose(func(context.Context) error { return rt.EventBus.Close() })

	redisClient, err := NewRedisClient(ctx, command.String("redis-url"))
	if err != nil {
		return err
	}

	if redisClient != nil {
		rt.onClose(func(context.Context) error { return redisClient.Close() })
	}

	rt.Bindings, err = NewBindingStore(redisClient, command.Duration("binding-ttl"), rt.Sweeper, logger)
	if err != nil {
		return err
	}

	rt.Limiter, err = NewLimiter(redisClient, rt.Sweeper, logger)
	if err != nil {
		return err
	}

	relay, closeRelay, err := NewRelay(ctx, command.String("nats-url"), serviceName)
	if err != nil {
		return err
	}

	rt.Relay = relay
	rt.onClose(func(context.Context) error {
		closeRelay()

		return nil
	})

	return nil
}

func (rt *Runtime) onClose(closer func(context.Context) error) {
	rt.closers = append(rt.closers, closer)
}

// Close runs every registered closer, last opened first, and joins their
// errors.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error

	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}

	rt.closers = nil

	return errors.Join(errs...)
}
