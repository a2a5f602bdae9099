package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
	"go.opentelemetry.io/otel/trace"

	"github.com/dukex/flowrun/pkg/otelhelper"
	"github.com/dukex/flowrun/pkg/stats"
	"github.com/dukex/flowrun/pkg/stats/postgresql"
)

const sentryFlushTimeout = 2 * time.Second

// InitSentry enables error reporting when dsn is set. The returned function
// flushes buffered events.
func InitSentry(dsn, environment, release string) (func(), error) {
	if dsn == "" {
		return func() {}, nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
		Release:     release,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sentry: %w", err)
	}

	return func() { sentry.Flush(sentryFlushTimeout) }, nil
}

// NewTracer is otelhelper.NewTracer with logging of the chosen mode.
// nolint:ireturn // Returning interface is intentional for OpenTelemetry tracing
func NewTracer(ctx context.Context, logger *slog.Logger, serviceName string, enabled bool) (trace.Tracer, otelhelper.ShutdownFunc, error) {
	tracer, shutdown, err := otelhelper.NewTracer(ctx, serviceName, enabled)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create tracer: %w", err)
	}

	logger.InfoContext(ctx, "Tracing configured", "enabled", enabled)

	return tracer, shutdown, nil
}

// NewStatsSink writes execution logs to PostgreSQL when a URL is given and
// to the log otherwise.
func NewStatsSink(ctx context.Context, logger *slog.Logger, databaseURL string) (stats.Sink, func() error, error) {
	if parsePersistenceProvider(databaseURL) != "postgresql" {
		return stats.NewLogSink(logger.With("module", "stats")), func() error { return nil }, nil
	}

	sink, err := postgresql.NewSink(ctx, logger, databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create stats sink: %w", err)
	}

	return sink, sink.Close, nil
}
