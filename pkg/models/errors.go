package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType is the engine-wide error taxonomy.
type ErrorType string

const (
	ErrMissingParams             ErrorType = "MISSING_PARAMS"
	ErrWorkflowNotFound          ErrorType = "WORKFLOW_NOT_FOUND"
	ErrProjectNotFound           ErrorType = "PROJECT_NOT_FOUND"
	ErrExecutionFailed           ErrorType = "EXECUTION_FAILED"
	ErrParameterProcessingFailed ErrorType = "PARAMETER_PROCESSING_FAILED"
	ErrValidationFailed          ErrorType = "VALIDATION_FAILED"
	ErrUnexpectedParams          ErrorType = "UNEXPECTED_PARAMS"
	ErrRateLimitExceeded         ErrorType = "RATE_LIMIT_EXCEEDED"
	ErrCORS                      ErrorType = "CORS_ERROR"
	ErrNoEntryNode               ErrorType = "NO_ENTRY_NODE"
	ErrInvalidEdge               ErrorType = "INVALID_EDGE"
	ErrAccessDenied              ErrorType = "ACCESS_DENIED"
	ErrConnectionTimeout         ErrorType = "CONNECTION_TIMEOUT"
)

// ExecutionError is the structured error raised by handlers, the executor and
// the trigger pre-conditions. NodeID and NodeType are set once the error has
// crossed a node boundary.
type ExecutionError struct {
	Type     ErrorType `json:"type"`
	Message  string    `json:"message"`
	Details  any       `json:"details,omitempty"`
	NodeID   string    `json:"nodeId,omitempty"`
	NodeType NodeType  `json:"nodeType,omitempty"`
	Err      error     `json:"-"`
}

func (e *ExecutionError) Error() string {
	var b strings.Builder

	b.WriteString(string(e.Type))
	b.WriteString(": ")
	b.WriteString(e.Message)

	if e.NodeID != "" {
		fmt.Fprintf(&b, " (node %s [%s])", e.NodeID, e.NodeType)
	}

	return b.String()
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Is matches another ExecutionError of the same type.
func (e *ExecutionError) Is(target error) bool {
	var other *ExecutionError
	if errors.As(target, &other) {
		return other.Type == e.Type && other.Message == ""
	}

	return false
}

// WithDetails returns e with details attached.
func (e *ExecutionError) WithDetails(details any) *ExecutionError {
	e.Details = details

	return e
}

// NewError creates an ExecutionError of the given type.
func NewError(errType ErrorType, format string, args ...any) *ExecutionError {
	return &ExecutionError{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
	}
}

// WrapError creates an ExecutionError that keeps err as its cause and message.
func WrapError(errType ErrorType, err error) *ExecutionError {
	return &ExecutionError{
		Type:    errType,
		Message: err.Error(),
		Err:     err,
	}
}

// Kind returns a sentinel usable with errors.Is to match any error of errType.
func Kind(errType ErrorType) error {
	return &ExecutionError{Type: errType}
}

// AsExecutionError extracts the ExecutionError carried by err.
func AsExecutionError(err error) (*ExecutionError, bool) {
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return execErr, true
	}

	return nil, false
}

// TypeOf returns the taxonomy type carried by err, or EXECUTION_FAILED for
// anything unstructured.
func TypeOf(err error) ErrorType {
	if execErr, ok := AsExecutionError(err); ok {
		return execErr.Type
	}

	return ErrExecutionFailed
}

// AtNode tags err with the failing node. Errors already tagged keep their
// original node; unstructured errors become EXECUTION_FAILED.
func AtNode(err error, node *Node) *ExecutionError {
	execErr, ok := AsExecutionError(err)
	if !ok {
		execErr = WrapError(ErrExecutionFailed, err)
	}

	if execErr.NodeID == "" && node != nil {
		execErr.NodeID = node.ID
		execErr.NodeType = node.Type
	}

	return execErr
}

// IsAccessDenied reports whether err is an access-denied failure.
func IsAccessDenied(err error) bool {
	return TypeOf(err) == ErrAccessDenied
}

// IsNotFound reports whether err is one of the *_NOT_FOUND types.
func IsNotFound(err error) bool {
	switch TypeOf(err) {
	case ErrWorkflowNotFound, ErrProjectNotFound:
		return true
	default:
		return false
	}
}
