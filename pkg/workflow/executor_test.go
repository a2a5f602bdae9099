package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/flowrun/pkg/datastore"
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/progress"
	"github.com/dukex/flowrun/pkg/protocol"
	"github.com/dukex/flowrun/pkg/registry"
	"github.com/dukex/flowrun/pkg/sandbox"
	"github.com/dukex/flowrun/pkg/secrets"
	"github.com/dukex/flowrun/pkg/stats"
)

type handlerFunc func(input any, execCtx *models.ExecutionContext) (any, error)

func (f handlerFunc) Execute(
	_ context.Context,
	_ *models.Node,
	input any,
	_ *models.RequestContext,
	execCtx *models.ExecutionContext,
	_ *models.Workflow,
) (any, error) {
	return f(input, execCtx)
}

func (f handlerFunc) Validate(*models.Node) error { return nil }

type stubRegistry map[models.NodeType]protocol.Handler

func (r stubRegistry) Handler(nodeType models.NodeType) (protocol.Handler, error) {
	handler, ok := r[nodeType]
	if !ok {
		return nil, registry.ErrNodeNotRegistered
	}

	return handler, nil
}

type failingSink struct{}

func (failingSink) RecordStep(context.Context, string, models.StepRecord) error {
	return errors.New("sink unavailable")
}

func (failingSink) Finalize(context.Context, string, models.ExecutionStatus, any, int64) error {
	return errors.New("sink unavailable")
}

type eventLog struct {
	mutex  sync.Mutex
	events []progress.Event
}

func (l *eventLog) Emit(_ context.Context, event progress.Event) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.events = append(l.events, event)
}

func (l *eventLog) types() []progress.EventType {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	out := make([]progress.EventType, 0, len(l.events))
	for _, event := range l.events {
		out = append(out, event.Event)
	}

	return out
}

func newRegistry(t *testing.T) *registry.Registry {
	t.Helper()

	r := registry.NewRegistry(slog.Default(), protocol.Dependencies{
		Sandbox:              sandbox.New(sandbox.DefaultConfig(), slog.Default()),
		Secrets:              secrets.NewMemoryStore(),
		Datastore:            datastore.NewMemoryConnector(),
		PlatformDatastoreURI: "memory://platform",
	})
	require.NoError(t, r.RegisterDefaultNodes())

	return r
}

func testWorkflow(nodes []*models.Node, edges []*models.Edge) *models.Workflow {
	return &models.Workflow{
		ID:        "wf-1",
		Tenant:    "acme",
		ProjectID: "p1",
		Method:    "POST",
		Nodes:     nodes,
		Edges:     edges,
	}
}

func TestExecute_SingleNode(t *testing.T) {
	t.Parallel()

	executor := NewExecutor(slog.Default(), newRegistry(t))
	wf := testWorkflow([]*models.Node{
		{ID: "start", Type: models.NodeTypeStart, Data: map[string]any{"hello": "world"}},
	}, nil)

	result, err := executor.Execute(context.Background(), wf, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 200, result.Status)
	assert.Equal(t, map[string]any{"hello": "world"}, result.Data)
	assert.Empty(t, result.Token)
}

func TestExecute_ConditionBranches(t *testing.T) {
	t.Parallel()

	wf := testWorkflow([]*models.Node{
		{ID: "cond", Type: models.NodeTypeCondition, Data: map[string]any{
			"condition": "{{input.x}}", "trueEdgeId": "e-yes", "falseEdgeId": "e-no",
		}},
		{ID: "yes", Type: models.NodeTypeResponse, Data: map[string]any{"status": 200, "body": "yes"}},
		{ID: "no", Type: models.NodeTypeResponse, Data: map[string]any{"status": 400, "body": "no"}},
	}, []*models.Edge{
		{ID: "e-yes", Source: "cond", Target: "yes"},
		{ID: "e-no", Source: "cond", Target: "no"},
	})

	executor := NewExecutor(slog.Default(), newRegistry(t))

	tests := []struct {
		name   string
		input  map[string]any
		status int
		data   any
	}{
		{name: "truthy follows trueEdgeId", input: map[string]any{"x": 1}, status: 200, data: "yes"},
		{name: "falsy follows falseEdgeId", input: map[string]any{"x": 0}, status: 400, data: "no"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result, err := executor.Execute(context.Background(), wf, tt.input, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.status, result.Status)
			assert.Equal(t, tt.data, result.Data)
		})
	}
}

func TestExecute_LoopOverItems(t *testing.T) {
	t.Parallel()

	sink := stats.NewMemorySink()
	executor := NewExecutor(slog.Default(), newRegistry(t), WithSink(sink))

	wf := testWorkflow([]*models.Node{
		{ID: "start", Type: models.NodeTypeStart},
		{ID: "each", Type: models.NodeTypeLoop, Data: map[string]any{
			"items": []any{1, 2, 3}, "trueEdgeId": "e-body", "falseEdgeId": "e-done",
		}},
		{ID: "body", Type: models.NodeTypeLogic, Data: map[string]any{"code": "return input.currentItem * 10;"}},
		{ID: "done", Type: models.NodeTypeResponse},
	}, []*models.Edge{
		{ID: "e-start", Source: "start", Target: "each"},
		{ID: "e-body", Source: "each", Target: "body"},
		{ID: "e-back", Source: "body", Target: "each"},
		{ID: "e-done", Source: "each", Target: "done"},
	})

	result, err := executor.Execute(context.Background(), wf, nil, nil, WithExecutionID("exec-loop"))
	require.NoError(t, err)

	data, ok := result.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, false, data["hasMoreItems"])
	assert.Equal(t, "e-done", data["nextEdgeId"])

	log, ok := sink.Log("exec-loop")
	require.True(t, ok)
	assert.True(t, log.Finalized)
	assert.Equal(t, models.ExecutionStatusCompleted, log.Status)

	var loopPasses, bodyPasses int

	var bodyOutputs []any

	for _, step := range log.Steps {
		switch step.NodeID {
		case "each":
			loopPasses++
		case "body":
			bodyPasses++

			bodyOutputs = append(bodyOutputs, step.Output)
		}
	}

	assert.Equal(t, 4, loopPasses)
	assert.Equal(t, 3, bodyPasses)
	require.Len(t, bodyOutputs, 3)
	assert.EqualValues(t, 10, bodyOutputs[0])
	assert.EqualValues(t, 30, bodyOutputs[2])
}

func TestExecute_Failures(t *testing.T) {
	t.Parallel()

	okHandler := handlerFunc(func(input any, _ *models.ExecutionContext) (any, error) { return input, nil })

	tests := []struct {
		name     string
		registry stubRegistry
		workflow *models.Workflow
		errType  models.ErrorType
		nodeID   string
		silent   bool
	}{
		{
			name:     "no entry node",
			registry: stubRegistry{models.NodeTypeStart: okHandler},
			workflow: testWorkflow([]*models.Node{
				{ID: "a", Type: models.NodeTypeStart},
				{ID: "b", Type: models.NodeTypeStart},
			}, []*models.Edge{
				{ID: "e1", Source: "a", Target: "b"},
				{ID: "e2", Source: "b", Target: "a"},
			}),
			errType: models.ErrNoEntryNode,
			silent:  true,
		},
		{
			name:     "more than one entry node",
			registry: stubRegistry{models.NodeTypeStart: okHandler},
			workflow: testWorkflow([]*models.Node{
				{ID: "a", Type: models.NodeTypeStart},
				{ID: "b", Type: models.NodeTypeStart},
			}, nil),
			errType: models.ErrNoEntryNode,
			silent:  true,
		},
		{
			name:     "unknown handler",
			registry: stubRegistry{models.NodeTypeStart: okHandler},
			workflow: testWorkflow([]*models.Node{
				{ID: "a", Type: models.NodeTypeStart},
				{ID: "b", Type: models.NodeTypeLogic},
			}, []*models.Edge{{ID: "e1", Source: "a", Target: "b"}}),
			errType: models.ErrExecutionFailed,
			nodeID:  "b",
		},
		{
			name: "handler error is tagged",
			registry: stubRegistry{
				models.NodeTypeStart: handlerFunc(func(any, *models.ExecutionContext) (any, error) {
					return nil, models.NewError(models.ErrValidationFailed, "bad input")
				}),
			},
			workflow: testWorkflow([]*models.Node{{ID: "a", Type: models.NodeTypeStart}}, nil),
			errType:  models.ErrValidationFailed,
			nodeID:   "a",
		},
		{
			name: "unknown nextEdgeId",
			registry: stubRegistry{
				models.NodeTypeCondition: handlerFunc(func(any, *models.ExecutionContext) (any, error) {
					return map[string]any{"conditionResult": true, "nextEdgeId": "ghost"}, nil
				}),
				models.NodeTypeStart: okHandler,
			},
			workflow: testWorkflow([]*models.Node{
				{ID: "cond", Type: models.NodeTypeCondition},
				{ID: "next", Type: models.NodeTypeStart},
			}, []*models.Edge{{ID: "e1", Source: "cond", Target: "next"}}),
			errType: models.ErrInvalidEdge,
			nodeID:  "cond",
		},
		{
			name: "jwtVerify unauthenticated",
			registry: stubRegistry{
				models.NodeTypeStart: okHandler,
				models.NodeTypeJWTVerify: handlerFunc(func(any, *models.ExecutionContext) (any, error) {
					return map[string]any{"isAuthenticated": false}, nil
				}),
			},
			workflow: testWorkflow([]*models.Node{
				{ID: "a", Type: models.NodeTypeStart},
				{ID: "auth", Type: models.NodeTypeJWTVerify},
				{ID: "after", Type: models.NodeTypeStart},
			}, []*models.Edge{
				{ID: "e1", Source: "a", Target: "auth"},
				{ID: "e2", Source: "auth", Target: "after"},
			}),
			errType: models.ErrAccessDenied,
			nodeID:  "auth",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			events := &eventLog{}
			executor := NewExecutor(slog.Default(), tt.registry)

			_, err := executor.Execute(context.Background(), tt.workflow, nil, nil, WithEmitter(events))
			require.Error(t, err)

			execErr, ok := models.AsExecutionError(err)
			require.True(t, ok)
			assert.Equal(t, tt.errType, execErr.Type)
			assert.Equal(t, tt.nodeID, execErr.NodeID)

			types := events.types()
			if tt.silent {
				assert.Empty(t, types)

				return
			}

			require.NotEmpty(t, types)
			assert.Equal(t, progress.ExecutionStarted, types[0])
			assert.Equal(t, progress.ExecutionFailed, types[len(types)-1])
		})
	}
}

func TestExecute_UnknownEdgeListsKnownEdges(t *testing.T) {
	t.Parallel()

	executor := NewExecutor(slog.Default(), stubRegistry{
		models.NodeTypeCondition: handlerFunc(func(any, *models.ExecutionContext) (any, error) {
			return map[string]any{"nextEdgeId": "ghost"}, nil
		}),
	})

	wf := testWorkflow([]*models.Node{
		{ID: "cond", Type: models.NodeTypeCondition},
		{ID: "other", Type: models.NodeTypeCondition},
	}, []*models.Edge{{ID: "e1", Source: "cond", Target: "other"}})

	_, err := executor.Execute(context.Background(), wf, nil, nil)
	require.Error(t, err)

	execErr, ok := models.AsExecutionError(err)
	require.True(t, ok)
	assert.Contains(t, execErr.Message, "ghost")
	assert.Equal(t, []string{"e1"}, execErr.Details.(map[string]any)["knownEdgeIds"])
}

func TestExecute_EmitsNodeEvents(t *testing.T) {
	t.Parallel()

	events := &eventLog{}
	executor := NewExecutor(slog.Default(), newRegistry(t))

	wf := testWorkflow([]*models.Node{
		{ID: "start", Type: models.NodeTypeStart, Data: map[string]any{"n": 2}},
		{ID: "done", Type: models.NodeTypeResponse},
	}, []*models.Edge{{ID: "e1", Source: "start", Target: "done"}})

	_, err := executor.Execute(context.Background(), wf, nil, nil,
		WithEmitter(events), WithExecutionID("exec-events"))
	require.NoError(t, err)

	assert.Equal(t, []progress.EventType{
		progress.ExecutionStarted,
		progress.NodeStarted,
		progress.NodeCompleted,
		progress.NodeStarted,
		progress.NodeCompleted,
		progress.ExecutionCompleted,
	}, events.types())

	for _, event := range events.events {
		assert.Equal(t, "exec-events", event.ExecutionID)
	}
}

func TestExecute_SinkFailuresAreSwallowed(t *testing.T) {
	t.Parallel()

	executor := NewExecutor(slog.Default(), newRegistry(t), WithSink(failingSink{}))
	wf := testWorkflow([]*models.Node{{ID: "start", Type: models.NodeTypeStart}}, nil)

	result, err := executor.Execute(context.Background(), wf, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 200, result.Status)
}

func TestExecute_TokenSurfaced(t *testing.T) {
	t.Parallel()

	executor := NewExecutor(slog.Default(), stubRegistry{
		models.NodeTypeStart: handlerFunc(func(any, *models.ExecutionContext) (any, error) {
			return map[string]any{"status": 201, "data": "created", "token": "Bearer abc"}, nil
		}),
	})

	result, err := executor.Execute(context.Background(),
		testWorkflow([]*models.Node{{ID: "a", Type: models.NodeTypeStart}}, nil), nil, nil)
	require.NoError(t, err)

	assert.Equal(t, &models.TerminalResult{Status: 201, Data: "created", Token: "Bearer abc"}, result)
}

// The executor does not detect cycles; only the caller's context stops one.
func TestExecute_SelfLoopRunsUntilContextEnds(t *testing.T) {
	t.Parallel()

	var passes int

	executor := NewExecutor(slog.Default(), stubRegistry{
		models.NodeTypeStart: handlerFunc(func(input any, _ *models.ExecutionContext) (any, error) {
			passes++

			return input, nil
		}),
	})

	wf := testWorkflow([]*models.Node{
		{ID: "entry", Type: models.NodeTypeStart},
		{ID: "spin", Type: models.NodeTypeStart},
	}, []*models.Edge{
		{ID: "e1", Source: "entry", Target: "spin"},
		{ID: "e2", Source: "spin", Target: "spin"},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := executor.Execute(ctx, wf, nil, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Greater(t, passes, 2)
}
