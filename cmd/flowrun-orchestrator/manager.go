// Package main provides the flowrun orchestrator worker.
package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/dukex/flowrun/pkg/eventbus"
)

// Runner consumes execution requests from a bus.
type Runner interface {
	Start(ctx context.Context, bus eventbus.EventSubscriber) error
	Wait()
}

type Manager struct {
	logger *slog.Logger
	bus    eventbus.EventSubscriber
	runner Runner
}

func NewManager(logger *slog.Logger, bus eventbus.EventSubscriber, runner Runner) *Manager {
	return &Manager{
		logger: logger.With("module", "flowrun-orchestrator"),
		bus:    bus,
		runner: runner,
	}
}

// Start consumes until SIGINT, SIGTERM or ctx cancellation, then waits for
// executions in flight.
func (m *Manager) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := m.runner.Start(ctx, m.bus); err != nil {
		return err
	}

	m.logger.InfoContext(ctx, "Orchestrator started successfully")

	<-ctx.Done()
	m.logger.InfoContext(ctx, "Shutting down orchestrator, waiting for running executions")

	m.runner.Wait()

	return nil
}
