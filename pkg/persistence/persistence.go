// Package persistence provides the read side of workflow and project storage
// used by trigger pre-conditions.
package persistence

import (
	"context"
	"strings"

	"github.com/dukex/flowrun/pkg/models"
)

type Persistence interface {
	// WorkflowByRoute returns the deployed workflow of the project that
	// answers method and path.
	WorkflowByRoute(ctx context.Context, tenant, projectID, method, path string) (*models.Workflow, error)
	ProjectByID(ctx context.Context, tenant, projectID string) (*models.Project, error)

	SaveWorkflow(ctx context.Context, workflow *models.Workflow) error
	SaveProject(ctx context.Context, project *models.Project) error

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// NormalizePath trims surrounding slashes and returns "/a/b" form.
func NormalizePath(path string) string {
	return "/" + strings.Trim(path, "/")
}

// MatchRoute reports whether workflow answers method and path. Pattern
// segments starting with ":" match any single segment. "ALL" matches any
// method.
func MatchRoute(workflow *models.Workflow, method, path string) bool {
	if !strings.EqualFold(workflow.Method, method) && !strings.EqualFold(workflow.Method, "ALL") {
		return false
	}

	pattern := strings.Split(NormalizePath(workflow.Path), "/")
	segments := strings.Split(NormalizePath(path), "/")

	if len(pattern) != len(segments) {
		return false
	}

	for i, part := range pattern {
		if strings.HasPrefix(part, ":") && segments[i] != "" {
			continue
		}

		if part != segments[i] {
			return false
		}
	}

	return true
}

// SelectRoute picks the deployed workflow answering method and path. Exact
// paths win over parameterized ones.
func SelectRoute(workflows []*models.Workflow, method, path string) *models.Workflow {
	var fallback *models.Workflow

	for _, workflow := range workflows {
		if !workflow.IsDeployed || !MatchRoute(workflow, method, path) {
			continue
		}

		if NormalizePath(workflow.Path) == NormalizePath(path) {
			return workflow
		}

		if fallback == nil {
			fallback = workflow
		}
	}

	return fallback
}
