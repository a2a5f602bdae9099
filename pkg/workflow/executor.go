// Package workflow walks a workflow graph from its entry node to a terminal
// result, one node at a time.
package workflow

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/otelhelper"
	"github.com/dukex/flowrun/pkg/progress"
	"github.com/dukex/flowrun/pkg/protocol"
	"github.com/dukex/flowrun/pkg/stats"
)

// Registry resolves the handler of a node type.
type Registry interface {
	Handler(nodeType models.NodeType) (protocol.Handler, error)
}

// Executor runs workflows. It holds no per-run state and is safe for
// concurrent use.
type Executor struct {
	logger   *slog.Logger
	registry Registry
	tracer   trace.Tracer
	sink     stats.Sink
}

func NewExecutor(logger *slog.Logger, registry Registry, opts ...Option) *Executor {
	e := &Executor{
		logger:   logger.With("module", "workflow_executor"),
		registry: registry,
		tracer:   otelhelper.NoopTracer(),
		sink:     stats.Noop{},
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// run is the state of one execution.
type run struct {
	id         string
	workflow   *models.Workflow
	graph      *graph
	requestCtx *models.RequestContext
	execCtx    *models.ExecutionContext
	emitter    progress.Emitter
	logger     *slog.Logger
}

// Execute runs workflow with input as the entry node's input and returns the
// terminal result. Failures are *models.ExecutionError values tagged with the
// failing node when one is involved.
func (e *Executor) Execute(
	ctx context.Context,
	workflow *models.Workflow,
	input any,
	requestCtx *models.RequestContext,
	opts ...RunOption,
) (*models.TerminalResult, error) {
	cfg := runConfig{
		executionID: uuid.NewString(),
		emitter:     progress.Noop{},
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	r := &run{
		id:         cfg.executionID,
		workflow:   workflow,
		graph:      newGraph(workflow),
		requestCtx: requestCtx,
		execCtx:    models.NewExecutionContext(),
		emitter:    cfg.emitter,
		logger: e.logger.With(
			"execution_id", cfg.executionID,
			"workflow_id", workflow.ID,
			"tenant", workflow.Tenant,
			"project_id", workflow.ProjectID,
		),
	}

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.execute",
		attribute.String(otelhelper.ExecutionIDKey, r.id),
		attribute.String(otelhelper.WorkflowIDKey, workflow.ID),
		attribute.String(otelhelper.TenantKey, workflow.Tenant),
		attribute.String(otelhelper.ProjectIDKey, workflow.ProjectID),
	)
	defer span.End()

	entry, err := r.graph.entry()
	if err != nil {
		otelhelper.SetError(span, err)
		r.logger.WarnContext(ctx, "Workflow cannot start", "error", err)

		return nil, err
	}

	startedAt := time.Now()

	r.logger.InfoContext(ctx, "Starting workflow execution")
	r.emit(ctx, progress.ExecutionStarted, map[string]any{"workflowId": workflow.ID})

	result, err := e.walk(ctx, r, entry, input)
	duration := time.Since(startedAt).Milliseconds()

	if err != nil {
		otelhelper.SetError(span, err)
		r.logger.ErrorContext(ctx, "Workflow execution failed", "error", err, "duration_ms", duration)
		r.emit(ctx, progress.ExecutionFailed, failureData(err))
		e.finalize(ctx, r, models.ExecutionStatusFailed, failureData(err), duration)

		return nil, err
	}

	r.logger.InfoContext(ctx, "Workflow execution completed", "status", result.Status, "duration_ms", duration)
	r.emit(ctx, progress.ExecutionCompleted, map[string]any{"result": result})
	e.finalize(ctx, r, models.ExecutionStatusCompleted, result, duration)

	return result, nil
}

func (e *Executor) walk(ctx context.Context, r *run, entry *models.Node, input any) (*models.TerminalResult, error) {
	current := entry
	running := input

	for current != nil {
		if err := ctx.Err(); err != nil {
			return nil, models.AtNode(err, current)
		}

		output, err := e.step(ctx, r, current, running)
		if err != nil {
			return nil, models.AtNode(err, current)
		}

		if current.Type == models.NodeTypeJWTVerify && !authenticated(output) {
			return nil, models.AtNode(models.NewError(models.ErrAccessDenied, "authentication failed"), current)
		}

		next, err := r.graph.next(current, output)
		if err != nil {
			return nil, models.AtNode(err, current)
		}

		running = output
		current = next
	}

	return terminalResult(running), nil
}

// step runs one node: handler lookup, progress events, audit record and
// context update.
func (e *Executor) step(ctx context.Context, r *run, node *models.Node, input any) (any, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.node",
		attribute.String(otelhelper.ExecutionIDKey, r.id),
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.NodeTypeKey, string(node.Type)),
	)
	defer span.End()

	logger := r.logger.With("node_id", node.ID, "node_type", node.Type)

	handler, err := e.registry.Handler(node.Type)
	if err != nil {
		err = models.AtNode(models.NewError(models.ErrExecutionFailed, "no handler for node type %q", node.Type), node)
		otelhelper.SetError(span, err)
		r.emit(ctx, progress.NodeFailed, nodeData(node, map[string]any{"error": err.Error()}))

		return nil, err
	}

	r.emit(ctx, progress.NodeStarted, nodeData(node, nil))
	logger.DebugContext(ctx, "Executing node")

	startedAt := time.Now()
	output, err := handler.Execute(ctx, node, input, r.requestCtx, r.execCtx, r.workflow)
	finishedAt := time.Now()

	record := models.StepRecord{
		NodeID:     node.ID,
		NodeType:   node.Type,
		Status:     models.StepStatusSuccess,
		StartedAt:  startedAt.UTC(),
		FinishedAt: finishedAt.UTC(),
		DurationMs: finishedAt.Sub(startedAt).Milliseconds(),
		Input:      input,
		Output:     output,
	}

	if err != nil {
		err = models.AtNode(err, node)
		record.Status = models.StepStatusError
		record.Output = nil
		record.Error = err.Error()

		e.record(ctx, r, record)
		otelhelper.SetError(span, err)
		logger.WarnContext(ctx, "Node failed", "error", err, "duration_ms", record.DurationMs)
		r.emit(ctx, progress.NodeFailed, nodeData(node, map[string]any{"error": err.Error()}))

		return nil, err
	}

	r.execCtx.Set(node.ID, output)
	e.record(ctx, r, record)

	logger.DebugContext(ctx, "Node completed", "duration_ms", record.DurationMs)
	r.emit(ctx, progress.NodeCompleted, nodeData(node, map[string]any{"output": output}))

	return output, nil
}

func (e *Executor) record(ctx context.Context, r *run, step models.StepRecord) {
	if err := e.sink.RecordStep(ctx, r.id, step); err != nil {
		r.logger.WarnContext(ctx, "Failed to record step", "node_id", step.NodeID, "error", err)
	}
}

func (e *Executor) finalize(ctx context.Context, r *run, status models.ExecutionStatus, response any, durationMs int64) {
	// The run is over; a cancelled request must not drop the final record.
	ctx = context.WithoutCancel(ctx)

	if err := e.sink.Finalize(ctx, r.id, status, response, durationMs); err != nil {
		r.logger.WarnContext(ctx, "Failed to finalize execution log", "error", err)
	}
}

func (r *run) emit(ctx context.Context, eventType progress.EventType, data map[string]any) {
	r.emitter.Emit(ctx, progress.NewEvent(r.id, eventType, data))
}

func nodeData(node *models.Node, extra map[string]any) map[string]any {
	data := map[string]any{
		"nodeId":   node.ID,
		"nodeType": node.Type,
	}

	for k, v := range extra {
		data[k] = v
	}

	return data
}

func failureData(err error) map[string]any {
	data := map[string]any{
		"error": err.Error(),
		"type":  models.TypeOf(err),
	}

	var execErr *models.ExecutionError
	if errors.As(err, &execErr) && execErr.NodeID != "" {
		data["nodeId"] = execErr.NodeID
		data["nodeType"] = execErr.NodeType
	}

	return data
}

func authenticated(output any) bool {
	m, ok := output.(map[string]any)
	if !ok {
		return false
	}

	value, ok := m["isAuthenticated"].(bool)

	return ok && value
}

// terminalResult coerces the last running value into {status, data, token?}.
func terminalResult(value any) *models.TerminalResult {
	result := &models.TerminalResult{Status: http.StatusOK, Data: value}

	m, ok := value.(map[string]any)
	if !ok {
		return result
	}

	if status, ok := statusCode(m["status"]); ok {
		result.Status = status
		result.Data = m["data"]
	}

	if token, ok := m["token"].(string); ok {
		result.Token = token
	}

	return result
}

func statusCode(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
