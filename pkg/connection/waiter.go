package connection

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dukex/flowrun/pkg/models"
)

const (
	DefaultPollInterval = 500 * time.Millisecond
	DefaultWaitTimeout  = 15 * time.Second
)

// Waiter blocks until a client binds to an execution.
type Waiter struct {
	store    BindingStore
	logger   *slog.Logger
	interval time.Duration
	timeout  time.Duration
}

type WaiterOption func(*Waiter)

func WithPollInterval(interval time.Duration) WaiterOption {
	return func(w *Waiter) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

func WithWaitTimeout(timeout time.Duration) WaiterOption {
	return func(w *Waiter) {
		if timeout > 0 {
			w.timeout = timeout
		}
	}
}

func NewWaiter(store BindingStore, logger *slog.Logger, opts ...WaiterOption) *Waiter {
	w := &Waiter{
		store:    store,
		logger:   logger,
		interval: DefaultPollInterval,
		timeout:  DefaultWaitTimeout,
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Await polls the store until executionID has a binding. It fails with
// CONNECTION_TIMEOUT once the deadline passes and returns ctx.Err() when ctx
// ends first.
func (w *Waiter) Await(ctx context.Context, executionID string) (*models.ConnectionBinding, error) {
	deadline := time.NewTimer(w.timeout)
	defer deadline.Stop()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		binding, err := w.store.Get(ctx, executionID)
		if err == nil {
			return binding, nil
		}

		if !errors.Is(err, ErrBindingNotFound) {
			w.logger.WarnContext(ctx, "Binding lookup failed", "execution_id", executionID, "error", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, models.NewError(models.ErrConnectionTimeout,
				"no client connected to execution %s within %s", executionID, w.timeout)
		case <-ticker.C:
		}
	}
}
