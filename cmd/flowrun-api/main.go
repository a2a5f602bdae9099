package main

import (
	"context"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/dukex/flowrun/pkg/cmd"
	"github.com/dukex/flowrun/pkg/log"
)

const defaultPort = 9091

func main() {
	flags := slices.Concat([]cli.Flag{
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   "Port to run the API server on",
			Value:   defaultPort,
			Sources: cli.EnvVars("PORT"),
		},
		&cli.DurationFlag{
			Name:    "stream-timeout",
			Usage:   "Longest lifetime of a progress event stream",
			Value:   DefaultStreamTimeout,
			Sources: cli.EnvVars("STREAM_TIMEOUT"),
		},
	}, cmd.CommonFlags(), cmd.OrchestratorFlags())

	command := &cli.Command{
		Name:                  "flowrun-api",
		Usage:                 "Serve workflow triggers and real-time progress streams",
		EnableShellCompletion: true,
		Flags:                 flags,
		Action: func(ctx context.Context, command *cli.Command) error {
			log.SetupWithFormat(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("flowrun-api")

			logger.InfoContext(ctx, "Initializing flowrun API")

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			runtime, err := cmd.NewRuntime(ctx, logger, command, "flowrun-api")
			if err != nil {
				return err
			}

			defer func() {
				if err := runtime.Close(context.WithoutCancel(ctx)); err != nil {
					logger.ErrorContext(ctx, "Failed to close runtime", "error", err)
				}
			}()

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "api-" + uuid.New().String()[:8]
			}

			api := NewAPI(logger, runtime, Options{
				StreamTimeout:     command.Duration("stream-timeout"),
				ConnectionTimeout: command.Duration("connection-timeout"),
				PollInterval:      command.Duration("poll-interval"),
				WorkerID:          workerID,
				Embedded:          command.String("event-bus") == cmd.EventBusGoChannel,
			})

			return api.Start(ctx, command.Int("port"))
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		log.WithModule("flowrun-api").Error("flowrun API stopped", "error", err)
		os.Exit(1)
	}
}
