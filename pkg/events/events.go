// Package events defines the messages exchanged between the trigger surface and the orchestrator.
package events

import (
	"time"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic carries every execution message.
const Topic = "flowrun.executions"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	ExecutionRequestedEvent EventType = "execution.requested"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id"`
	WorkerID   string         `json:"worker_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ExecutionRequested asks an orchestrator to run a workflow on behalf of a
// client that will connect out-of-band with ExecutionID.
type ExecutionRequested struct {
	BaseEvent

	ExecutionID    string                `json:"execution_id"`
	Workflow       models.Workflow       `json:"workflow"`
	InitialInput   any                   `json:"initial_input,omitempty"`
	RequestContext models.RequestContext `json:"request_context"`
}

func (e ExecutionRequested) GetType() EventType {
	return ExecutionRequestedEvent
}

type ExecutionCompleted struct {
	BaseEvent

	ExecutionID string                 `json:"execution_id"`
	Result      *models.TerminalResult `json:"result,omitempty"`
	DurationMs  int64                  `json:"duration_ms"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

type ExecutionFailed struct {
	BaseEvent

	ExecutionID string         `json:"execution_id"`
	Error       ExecutionError `json:"error"`
	DurationMs  int64          `json:"duration_ms"`
}

// ExecutionError is the wire form of a models.ExecutionError.
type ExecutionError struct {
	NodeID   string           `json:"node_id,omitempty"`
	NodeType models.NodeType  `json:"node_type,omitempty"`
	Message  string           `json:"message"`
	Code     models.ErrorType `json:"code"`
	Details  any              `json:"details,omitempty"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
		Metadata:   make(map[string]any),
	}
}

// NewExecutionError converts any error into its wire form.
func NewExecutionError(err error) ExecutionError {
	execErr, ok := models.AsExecutionError(err)
	if !ok {
		execErr = models.WrapError(models.ErrExecutionFailed, err)
	}

	return ExecutionError{
		NodeID:   execErr.NodeID,
		NodeType: execErr.NodeType,
		Message:  execErr.Message,
		Code:     execErr.Type,
		Details:  execErr.Details,
	}
}
