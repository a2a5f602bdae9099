package persistence

import (
	"errors"
	"fmt"
)

var (
	// ErrWorkflowNotFound indicates no deployed workflow answers the route.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrProjectNotFound indicates the tenant has no such project.
	ErrProjectNotFound = errors.New("project not found")
)

// WorkflowError wraps workflow lookup errors with the route that was asked for.
type WorkflowError struct {
	Op        string
	Tenant    string
	ProjectID string
	Route     string
	Err       error
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("%s operation failed for workflow %s/%s %s: %v", e.Op, e.Tenant, e.ProjectID, e.Route, e.Err)
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

func (e *WorkflowError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func NewWorkflowError(op, tenant, projectID, route string, err error) *WorkflowError {
	return &WorkflowError{
		Op:        op,
		Tenant:    tenant,
		ProjectID: projectID,
		Route:     route,
		Err:       err,
	}
}

// ProjectError wraps project lookup errors.
type ProjectError struct {
	Op        string
	Tenant    string
	ProjectID string
	Err       error
}

func (e *ProjectError) Error() string {
	return fmt.Sprintf("%s operation failed for project %s/%s: %v", e.Op, e.Tenant, e.ProjectID, e.Err)
}

func (e *ProjectError) Unwrap() error {
	return e.Err
}

func (e *ProjectError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

func IsProjectNotFound(err error) bool {
	return errors.Is(err, ErrProjectNotFound)
}
