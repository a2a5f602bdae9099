package eventbus_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/flowrun/pkg/channels/gochannel"
	"github.com/dukex/flowrun/pkg/eventbus"
	"github.com/dukex/flowrun/pkg/events"
	"github.com/dukex/flowrun/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBus(t *testing.T) *eventbus.WatermillEventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	bus := eventbus.NewWatermillEventBus(logger, pub, sub)

	t.Cleanup(func() { _ = bus.Close() })

	return bus
}

func TestWatermillEventBus_RoutesByType(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	bus := newBus(t)

	requested := make(chan *events.ExecutionRequested, 1)
	failed := make(chan *events.ExecutionFailed, 1)

	require.NoError(t, bus.Handle(events.ExecutionRequestedEvent, func(_ context.Context, event any) error {
		requested <- event.(*events.ExecutionRequested)

		return nil
	}))
	require.NoError(t, bus.Handle(events.ExecutionFailedEvent, func(_ context.Context, event any) error {
		failed <- event.(*events.ExecutionFailed)

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	require.NoError(t, bus.Publish(ctx, "exec-1", events.ExecutionRequested{
		BaseEvent:   events.NewBaseEvent(events.ExecutionRequestedEvent, "wf-1"),
		ExecutionID: "exec-1",
		Workflow:    models.Workflow{ID: "wf-1"},
	}))
	require.NoError(t, bus.Publish(ctx, "exec-1", events.ExecutionCompleted{
		BaseEvent:   events.NewBaseEvent(events.ExecutionCompletedEvent, "wf-1"),
		ExecutionID: "exec-1",
	}))
	require.NoError(t, bus.Publish(ctx, "exec-2", events.ExecutionFailed{
		BaseEvent:   events.NewBaseEvent(events.ExecutionFailedEvent, "wf-1"),
		ExecutionID: "exec-2",
		Error:       events.ExecutionError{Code: models.ErrConnectionTimeout, Message: "no client"},
	}))

	select {
	case event := <-requested:
		assert.Equal(t, "exec-1", event.ExecutionID)
		assert.Equal(t, "wf-1", event.Workflow.ID)
	case <-ctx.Done():
		t.Fatal("execution request not delivered")
	}

	select {
	case event := <-failed:
		assert.Equal(t, "exec-2", event.ExecutionID)
		assert.Equal(t, models.ErrConnectionTimeout, event.Error.Code)
	case <-ctx.Done():
		t.Fatal("execution failure not delivered")
	}
}

func TestWatermillEventBus_GenerateID(t *testing.T) {
	t.Parallel()

	bus := newBus(t)

	assert.NotEqual(t, bus.GenerateID(), bus.GenerateID())
}
