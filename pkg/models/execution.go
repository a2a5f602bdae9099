package models

import (
	"strings"
	"time"
)

// RequestParams are the routing path parameters of a trigger.
type RequestParams struct {
	Tenant    string `json:"tenant"    validate:"required"`
	ProjectID string `json:"projectId" validate:"required"`
	Path      string `json:"path"`
}

// RequestContext is the normalized, read-only view of the triggering event.
type RequestContext struct {
	Method   string              `json:"method"`
	Params   RequestParams       `json:"params"`
	Query    map[string]string   `json:"query"`
	Headers  map[string][]string `json:"headers"`
	Body     any                 `json:"body,omitempty"`
	RawBody  string              `json:"rawBody,omitempty"`
	SourceIP string              `json:"sourceIp,omitempty"`
}

// Header returns the first value of the named header, matched case-insensitively.
func (r *RequestContext) Header(name string) string {
	if r == nil {
		return ""
	}

	for key, values := range r.Headers {
		if len(values) > 0 && strings.EqualFold(key, name) {
			return values[0]
		}
	}

	return ""
}

// StepStatus is the outcome of one executed node.
type StepStatus string

const (
	StepStatusSuccess StepStatus = "success"
	StepStatusError   StepStatus = "error"
)

// StepRecord is the append-only audit entry of one executed node.
type StepRecord struct {
	NodeID     string     `json:"nodeId"`
	NodeType   NodeType   `json:"nodeType"`
	Status     StepStatus `json:"status"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt time.Time  `json:"finishedAt"`
	DurationMs int64      `json:"durationMs"`
	Input      any        `json:"input,omitempty"`
	Output     any        `json:"output,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// ExecutionStatus is the lifecycle state of a whole run.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// NodeRunStatus is the state of a node inside an orchestrated run.
type NodeRunStatus string

const (
	NodeRunStatusRunning   NodeRunStatus = "running"
	NodeRunStatusCompleted NodeRunStatus = "completed"
	NodeRunStatusFailed    NodeRunStatus = "failed"
)

// NodeRunState tracks one node inside an ExecutionRecord.
type NodeRunState struct {
	Status      NodeRunStatus `json:"status"`
	StartedAt   time.Time     `json:"startedAt"`
	CompletedAt *time.Time    `json:"completedAt,omitempty"`
	Output      any           `json:"output,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// ExecutionRecord is the in-memory state of one real-time run.
type ExecutionRecord struct {
	ID          string                   `json:"id"`
	WorkflowID  string                   `json:"workflowId"`
	Status      ExecutionStatus          `json:"status"`
	Nodes       map[string]*NodeRunState `json:"nodes"`
	Context     map[string]any           `json:"context,omitempty"`
	Output      *TerminalResult          `json:"output,omitempty"`
	Error       string                   `json:"error,omitempty"`
	StartedAt   time.Time                `json:"startedAt"`
	CompletedAt *time.Time               `json:"completedAt,omitempty"`
}

// NewExecutionRecord starts a running record.
func NewExecutionRecord(id, workflowID string) *ExecutionRecord {
	return &ExecutionRecord{
		ID:         id,
		WorkflowID: workflowID,
		Status:     ExecutionStatusRunning,
		Nodes:      make(map[string]*NodeRunState),
		StartedAt:  time.Now().UTC(),
	}
}

// TerminalResult is the HTTP-style outcome of a completed run.
type TerminalResult struct {
	Status int    `json:"status"`
	Data   any    `json:"data"`
	Token  string `json:"token,omitempty"`
}

// ConnectionBinding maps an execution to a live push channel.
type ConnectionBinding struct {
	ExecutionID  string    `json:"executionId"  validate:"required"`
	ConnectionID string    `json:"connectionId" validate:"required"`
	CreatedAt    time.Time `json:"createdAt"`
}
