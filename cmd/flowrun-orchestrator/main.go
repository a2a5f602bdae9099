package main

import (
	"context"
	"os"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/dukex/flowrun/pkg/cmd"
	"github.com/dukex/flowrun/pkg/connection"
	"github.com/dukex/flowrun/pkg/log"
	"github.com/dukex/flowrun/pkg/orchestrator"
)

func main() {
	command := &cli.Command{
		Name:                  "flowrun-orchestrator",
		EnableShellCompletion: true,
		Usage:                 "Run real-time workflow executions requested over the event bus",
		Flags:                 append(cmd.CommonFlags(), cmd.OrchestratorFlags()...),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.SetupWithFormat(command.String("log-level"), command.String("log-format"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "orchestrator-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("flowrun-orchestrator").With("worker_id", workerID)

			logger.InfoContext(ctx, "Initializing flowrun orchestrator")

			runtime, err := cmd.NewRuntime(ctx, logger, command, "flowrun-orchestrator")
			if err != nil {
				return err
			}

			defer func() {
				if err := runtime.Close(context.WithoutCancel(ctx)); err != nil {
					logger.ErrorContext(ctx, "Failed to close runtime", "error", err)
				}
			}()

			waiter := connection.NewWaiter(runtime.Bindings, logger,
				connection.WithPollInterval(command.Duration("poll-interval")),
				connection.WithWaitTimeout(command.Duration("connection-timeout")),
			)

			manager := NewManager(logger, runtime.EventBus, orchestrator.New(
				logger,
				runtime.Executor,
				waiter,
				runtime.Bindings,
				runtime.Relay,
				runtime.EventBus,
				workerID,
				orchestrator.WithTracer(runtime.Tracer),
			))

			return manager.Start(ctx)
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		log.WithModule("flowrun-orchestrator").Error("flowrun orchestrator stopped", "error", err)
		os.Exit(1)
	}
}
