// Package orchestrator runs workflows in real-time mode: it waits for the
// client to bind a connection to the execution, then streams every lifecycle
// and node event to that connection while the workflow runs.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dukex/flowrun/pkg/connection"
	"github.com/dukex/flowrun/pkg/eventbus"
	"github.com/dukex/flowrun/pkg/events"
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/otelhelper"
	"github.com/dukex/flowrun/pkg/progress"
	"github.com/dukex/flowrun/pkg/workflow"
)

// Runner executes one workflow.
type Runner interface {
	Execute(
		ctx context.Context,
		wf *models.Workflow,
		input any,
		requestCtx *models.RequestContext,
		opts ...workflow.RunOption,
	) (*models.TerminalResult, error)
}

// Awaiter blocks until an execution has a connection binding.
type Awaiter interface {
	Await(ctx context.Context, executionID string) (*models.ConnectionBinding, error)
}

type Orchestrator struct {
	logger    *slog.Logger
	runner    Runner
	waiter    Awaiter
	bindings  connection.BindingStore
	pusher    connection.Pusher
	publisher eventbus.EventPublisher
	workerID  string
	tracer    trace.Tracer
	running   sync.WaitGroup
}

type Option func(*Orchestrator)

func WithTracer(tracer trace.Tracer) Option {
	return func(o *Orchestrator) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

func New(
	logger *slog.Logger,
	runner Runner,
	waiter Awaiter,
	bindings connection.BindingStore,
	pusher connection.Pusher,
	publisher eventbus.EventPublisher,
	workerID string,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		logger:    logger.With("module", "orchestrator", "worker_id", workerID),
		runner:    runner,
		waiter:    waiter,
		bindings:  bindings,
		pusher:    pusher,
		publisher: publisher,
		workerID:  workerID,
		tracer:    otelhelper.NoopTracer(),
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Start registers the execution request handler and subscribes to the bus.
func (o *Orchestrator) Start(ctx context.Context, bus eventbus.EventSubscriber) error {
	o.logger.InfoContext(ctx, "Starting orchestrator")

	if err := bus.Handle(events.ExecutionRequestedEvent, o.handleExecutionRequested); err != nil {
		return err
	}

	if err := bus.Subscribe(ctx); err != nil {
		o.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	return nil
}

// Wait blocks until every accepted execution has finished.
func (o *Orchestrator) Wait() {
	o.running.Wait()
}

// handleExecutionRequested acknowledges the message right away and runs the
// execution in the background. A request is attempted at most once.
func (o *Orchestrator) handleExecutionRequested(ctx context.Context, event any) error {
	request, ok := event.(*events.ExecutionRequested)
	if !ok {
		o.logger.ErrorContext(ctx, "Invalid event type for ExecutionRequested")

		return nil
	}

	o.running.Add(1)

	go func() {
		defer o.running.Done()

		_, _, _ = o.Run(context.WithoutCancel(ctx), request)
	}()

	return nil
}

// Run performs one real-time execution end to end and returns its terminal
// result, the execution record and the failure, if any.
func (o *Orchestrator) Run(
	ctx context.Context,
	request *events.ExecutionRequested,
) (*models.TerminalResult, *models.ExecutionRecord, error) {
	executionID := request.ExecutionID
	wf := request.Workflow

	logger := o.logger.With(
		"execution_id", executionID,
		"workflow_id", wf.ID,
		"tenant", wf.Tenant,
		"project_id", wf.ProjectID,
	)

	startedAt := time.Now()
	recorder := progress.NewRecorder(executionID, wf.ID, nil)

	defer o.release(ctx, logger, executionID)

	pending := progress.NewEvent(executionID, progress.ExecutionPending, map[string]any{"workflowId": wf.ID})
	recorder.Emit(ctx, pending)

	logger.InfoContext(ctx, "Waiting for client connection")

	binding, err := o.await(ctx, executionID)
	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			logger.WarnContext(ctx, "No client connected", "error", err)
		}

		recorder.Emit(ctx, progress.NewEvent(executionID, progress.ExecutionFailed, map[string]any{
			"error": err.Error(),
			"type":  models.TypeOf(err),
		}))
		o.fail(ctx, logger, request, err, startedAt)

		return nil, snapshot(ctx, logger, recorder), err
	}

	logger = logger.With("connection_id", binding.ConnectionID)
	logger.InfoContext(ctx, "Client connected, starting execution")

	push := progress.NewPushEmitter(logger, o.pusher, binding.ConnectionID)
	push.Emit(ctx, pending)

	result, err := o.runner.Execute(ctx, &wf, request.InitialInput, &request.RequestContext,
		workflow.WithExecutionID(executionID),
		workflow.WithEmitter(progress.Multi{recorder, push}),
	)
	if err != nil {
		o.fail(ctx, logger, request, err, startedAt)

		return nil, snapshot(ctx, logger, recorder), err
	}

	completed := events.ExecutionCompleted{
		BaseEvent:   o.baseEvent(events.ExecutionCompletedEvent, wf.ID),
		ExecutionID: executionID,
		Result:      result,
		DurationMs:  time.Since(startedAt).Milliseconds(),
	}

	if err := o.publisher.Publish(ctx, executionID, completed); err != nil {
		logger.ErrorContext(ctx, "Failed to publish execution completed event", "error", err)
	}

	return result, snapshot(ctx, logger, recorder), nil
}

func (o *Orchestrator) fail(
	ctx context.Context,
	logger *slog.Logger,
	request *events.ExecutionRequested,
	cause error,
	startedAt time.Time,
) {
	if models.TypeOf(cause) == models.ErrExecutionFailed {
		hub := sentry.CurrentHub().Clone()
		hub.WithScope(func(scope *sentry.Scope) {
			scope.SetTag("execution_id", request.ExecutionID)
			scope.SetTag("workflow_id", request.Workflow.ID)
			scope.SetTag("tenant", request.Workflow.Tenant)
			hub.CaptureException(cause)
		})
	}

	failed := events.ExecutionFailed{
		BaseEvent:   o.baseEvent(events.ExecutionFailedEvent, request.Workflow.ID),
		ExecutionID: request.ExecutionID,
		Error:       events.NewExecutionError(cause),
		DurationMs:  time.Since(startedAt).Milliseconds(),
	}

	if err := o.publisher.Publish(ctx, request.ExecutionID, failed); err != nil {
		logger.ErrorContext(ctx, "Failed to publish execution failed event", "error", err)
	}
}

func (o *Orchestrator) await(ctx context.Context, executionID string) (*models.ConnectionBinding, error) {
	ctx, span := otelhelper.StartSpan(ctx, o.tracer, "orchestrator.await_connection",
		attribute.String(otelhelper.ExecutionIDKey, executionID),
	)
	defer span.End()

	binding, err := o.waiter.Await(ctx, executionID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	span.SetAttributes(attribute.String(otelhelper.ConnectionIDKey, binding.ConnectionID))

	return binding, nil
}

// release drops the execution's binding whatever the outcome.
func (o *Orchestrator) release(ctx context.Context, logger *slog.Logger, executionID string) {
	ctx = context.WithoutCancel(ctx)

	if err := o.bindings.Delete(ctx, executionID); err != nil && !errors.Is(err, connection.ErrBindingNotFound) {
		logger.WarnContext(ctx, "Failed to delete connection binding", "error", err)
	}
}

func (o *Orchestrator) baseEvent(eventType events.EventType, workflowID string) events.BaseEvent {
	base := events.NewBaseEvent(eventType, workflowID)
	base.WorkerID = o.workerID

	return base
}

func snapshot(ctx context.Context, logger *slog.Logger, recorder *progress.Recorder) *models.ExecutionRecord {
	record, err := recorder.Snapshot()
	if err != nil {
		logger.WarnContext(ctx, "Failed to snapshot execution record", "error", err)

		return nil
	}

	return record
}
