package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dukex/flowrun/pkg/connection"
	"github.com/dukex/flowrun/pkg/eventbus"
	"github.com/dukex/flowrun/pkg/events"
	"github.com/dukex/flowrun/pkg/mocks"
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/progress"
	"github.com/dukex/flowrun/pkg/protocol"
	"github.com/dukex/flowrun/pkg/workflow"
)

type countingHandler struct {
	calls atomic.Int64
}

func (h *countingHandler) Execute(
	_ context.Context,
	_ *models.Node,
	input any,
	_ *models.RequestContext,
	_ *models.ExecutionContext,
	_ *models.Workflow,
) (any, error) {
	h.calls.Add(1)

	return input, nil
}

func (h *countingHandler) Validate(*models.Node) error { return nil }

type responseHandler struct{}

func (responseHandler) Execute(
	_ context.Context,
	_ *models.Node,
	input any,
	_ *models.RequestContext,
	_ *models.ExecutionContext,
	_ *models.Workflow,
) (any, error) {
	return map[string]any{"status": 201, "data": input}, nil
}

func (responseHandler) Validate(*models.Node) error { return nil }

type stubRegistry map[models.NodeType]protocol.Handler

func (r stubRegistry) Handler(nodeType models.NodeType) (protocol.Handler, error) {
	return r[nodeType], nil
}

type recordingPublisher struct {
	mutex     sync.Mutex
	published []eventbus.Event
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.published = append(p.published, event)

	return nil
}

func (p *recordingPublisher) events() []eventbus.Event {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return append([]eventbus.Event(nil), p.published...)
}

type fixture struct {
	start        *countingHandler
	store        *connection.MemoryStore
	relay        *connection.MemoryRelay
	publisher    *recordingPublisher
	orchestrator *Orchestrator
}

func newFixture(t *testing.T, timeout time.Duration) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	f := &fixture{
		start:     &countingHandler{},
		store:     connection.NewMemoryStore(time.Minute),
		relay:     connection.NewMemoryRelay(),
		publisher: &recordingPublisher{},
	}

	executor := workflow.NewExecutor(logger, stubRegistry{
		models.NodeTypeStart:    f.start,
		models.NodeTypeResponse: responseHandler{},
	})

	waiter := connection.NewWaiter(f.store, logger,
		connection.WithPollInterval(10*time.Millisecond),
		connection.WithWaitTimeout(timeout),
	)

	f.orchestrator = New(logger, executor, waiter, f.store, f.relay, f.publisher, "worker-1")

	return f
}

func request(executionID string) *events.ExecutionRequested {
	return &events.ExecutionRequested{
		BaseEvent:   events.NewBaseEvent(events.ExecutionRequestedEvent, "wf-1"),
		ExecutionID: executionID,
		Workflow: models.Workflow{
			ID:        "wf-1",
			Tenant:    "acme",
			ProjectID: "p1",
			Method:    "POST",
			Nodes: []*models.Node{
				{ID: "start", Type: models.NodeTypeStart},
				{ID: "reply", Type: models.NodeTypeResponse},
			},
			Edges: []*models.Edge{{ID: "e1", Source: "start", Target: "reply"}},
		},
		InitialInput: map[string]any{"x": 1},
	}
}

func TestRun_HandshakeTimeout(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 50*time.Millisecond)

	result, record, err := f.orchestrator.Run(context.Background(), request("exec-timeout"))
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, models.ErrConnectionTimeout, models.TypeOf(err))
	assert.Zero(t, f.start.calls.Load())

	require.NotNil(t, record)
	assert.Equal(t, models.ExecutionStatusFailed, record.Status)
	assert.Empty(t, record.Nodes)

	published := f.publisher.events()
	require.Len(t, published, 1)

	failed, ok := published[0].(events.ExecutionFailed)
	require.True(t, ok)
	assert.Equal(t, "exec-timeout", failed.ExecutionID)
	assert.Equal(t, models.ErrConnectionTimeout, failed.Error.Code)
	assert.Equal(t, "worker-1", failed.WorkerID)
}

func TestRun_BindingMidWait(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	f := newFixture(t, 2*time.Second)

	feed, release, err := f.relay.Subscribe(ctx, "conn-1")
	require.NoError(t, err)

	defer release()

	go func() {
		time.Sleep(50 * time.Millisecond)

		_ = f.store.Put(ctx, models.ConnectionBinding{
			ExecutionID:  "exec-bound",
			ConnectionID: "conn-1",
			CreatedAt:    time.Now(),
		})
	}()

	result, record, err := f.orchestrator.Run(ctx, request("exec-bound"))
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 201, result.Status)
	assert.EqualValues(t, 1, f.start.calls.Load())

	var received []progress.Event

	for len(received) == 0 || !received[len(received)-1].Event.IsTerminal() {
		select {
		case payload := <-feed:
			var event progress.Event
			require.NoError(t, json.Unmarshal(payload, &event))
			assert.Equal(t, "exec-bound", event.ExecutionID)

			received = append(received, event)
		case <-ctx.Done():
			t.Fatal("progress feed did not reach a terminal event")
		}
	}

	types := make([]progress.EventType, 0, len(received))
	for _, event := range received {
		types = append(types, event.Event)
	}

	assert.Equal(t, []progress.EventType{
		progress.ExecutionPending,
		progress.ExecutionStarted,
		progress.NodeStarted,
		progress.NodeCompleted,
		progress.NodeStarted,
		progress.NodeCompleted,
		progress.ExecutionCompleted,
	}, types)

	_, err = f.store.Get(ctx, "exec-bound")
	require.ErrorIs(t, err, connection.ErrBindingNotFound)

	require.NotNil(t, record)
	assert.Equal(t, models.ExecutionStatusCompleted, record.Status)
	assert.Len(t, record.Nodes, 2)

	published := f.publisher.events()
	require.Len(t, published, 1)
	assert.Equal(t, events.ExecutionCompletedEvent, published[0].GetType())
}

func TestRun_StaleConnectionDoesNotAbort(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, time.Second)

	require.NoError(t, f.store.Put(ctx, models.ConnectionBinding{
		ExecutionID:  "exec-stale",
		ConnectionID: "gone",
		CreatedAt:    time.Now(),
	}))

	result, _, err := f.orchestrator.Run(ctx, request("exec-stale"))
	require.NoError(t, err)
	assert.Equal(t, 201, result.Status)
}

func TestHandleExecutionRequested_RunsInBackground(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 20*time.Millisecond)

	require.NoError(t, f.orchestrator.handleExecutionRequested(context.Background(), request("exec-bg")))
	require.NoError(t, f.orchestrator.handleExecutionRequested(context.Background(), "not an event"))

	f.orchestrator.Wait()

	published := f.publisher.events()
	require.Len(t, published, 1)
	assert.Equal(t, events.ExecutionFailedEvent, published[0].GetType())
}

func TestRun_PublishFailureKeepsResult(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, time.Second)

	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, "exec-pub", mock.AnythingOfType("events.ExecutionCompleted")).
		Return(errors.New("broker down")).Once()

	f.orchestrator.publisher = bus

	require.NoError(t, f.store.Put(ctx, models.ConnectionBinding{ExecutionID: "exec-pub", ConnectionID: "gone"}))

	result, _, err := f.orchestrator.Run(ctx, request("exec-pub"))
	require.NoError(t, err)
	assert.Equal(t, 201, result.Status)

	bus.AssertExpectations(t)
}
