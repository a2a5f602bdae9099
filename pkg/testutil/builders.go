// Package testutil provides test data builders for workflows and projects.
package testutil

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/dukex/flowrun/pkg/models"
)

const (
	DefaultTenant  = "acme"
	DefaultProject = "p1"
)

// CreateTestWorkflow creates a deployed workflow routed at POST /test with
// default values that can be overridden.
func CreateTestWorkflow(overrides ...func(*models.Workflow)) *models.Workflow {
	workflow := &models.Workflow{
		ID:         uuid.New().String(),
		Tenant:     DefaultTenant,
		ProjectID:  DefaultProject,
		Name:       "Test Workflow",
		Method:     "POST",
		Path:       "/test",
		IsDeployed: true,
	}

	for _, override := range overrides {
		override(workflow)
	}

	return workflow
}

// WithID sets the workflow id.
func WithID(id string) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.ID = id
	}
}

// WithRoute sets the method and path the workflow answers.
func WithRoute(method, path string) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Method = method
		w.Path = path
	}
}

// WithProject moves the workflow to another tenant and project.
func WithProject(tenant, projectID string) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Tenant = tenant
		w.ProjectID = projectID
	}
}

// WithNode appends a node.
func WithNode(id string, nodeType models.NodeType, data map[string]any) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Nodes = append(w.Nodes, &models.Node{ID: id, Type: nodeType, Data: data})
	}
}

// WithEdge appends an edge with a generated id.
func WithEdge(source, target string) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Edges = append(w.Edges, &models.Edge{
			ID:     fmt.Sprintf("e%d", len(w.Edges)+1),
			Source: source,
			Target: target,
		})
	}
}

// WithDeployed sets whether the workflow is routable.
func WithDeployed(deployed bool) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.IsDeployed = deployed
	}
}

// CreateTestProject creates a project without origin or rate restrictions.
func CreateTestProject(overrides ...func(*models.Project)) *models.Project {
	project := &models.Project{
		ID:     DefaultProject,
		Tenant: DefaultTenant,
		Name:   "Test Project",
	}

	for _, override := range overrides {
		override(project)
	}

	return project
}
