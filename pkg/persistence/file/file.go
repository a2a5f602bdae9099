// Package file provides file-based persistence for local development.
// Layout under root:
//
//	projects/<tenant>/<projectId>.json
//	workflows/<tenant>/<projectId>/<workflowId>.json
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
)

// Persistence implements persistence.Persistence on the file system.
type Persistence struct {
	root string
}

var _ persistence.Persistence = (*Persistence)(nil)

// NewPersistence accepts a plain directory or a file:// URL.
func NewPersistence(root string) *Persistence {
	return &Persistence{root: strings.Replace(root, "file://", "", 1)}
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory exists.
func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); err != nil {
		return fmt.Errorf("file persistence root unavailable: %w", err)
	}

	return nil
}

func (p *Persistence) projectPath(tenant, projectID string) string {
	return filepath.Join(p.root, "projects", safe(tenant), safe(projectID)+".json")
}

func (p *Persistence) workflowDir(tenant, projectID string) string {
	return filepath.Join(p.root, "workflows", safe(tenant), safe(projectID))
}

func (p *Persistence) ProjectByID(_ context.Context, tenant, projectID string) (*models.Project, error) {
	var project models.Project

	err := readJSON(p.projectPath(tenant, projectID), &project)
	if err != nil {
		if os.IsNotExist(err) {
			err = persistence.ErrProjectNotFound
		}

		return nil, &persistence.ProjectError{Op: "ProjectByID", Tenant: tenant, ProjectID: projectID, Err: err}
	}

	return &project, nil
}

func (p *Persistence) WorkflowByRoute(_ context.Context, tenant, projectID, method, path string) (*models.Workflow, error) {
	route := method + " " + persistence.NormalizePath(path)

	workflows, err := p.projectWorkflows(tenant, projectID)
	if err != nil {
		return nil, persistence.NewWorkflowError("WorkflowByRoute", tenant, projectID, route, err)
	}

	workflow := persistence.SelectRoute(workflows, method, path)
	if workflow == nil {
		return nil, persistence.NewWorkflowError("WorkflowByRoute", tenant, projectID, route, persistence.ErrWorkflowNotFound)
	}

	return workflow, nil
}

func (p *Persistence) projectWorkflows(tenant, projectID string) ([]*models.Workflow, error) {
	dir := p.workflowDir(tenant, projectID)

	files, err := fs.Glob(os.DirFS(dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow files: %w", err)
	}

	workflows := make([]*models.Workflow, 0, len(files))

	for _, name := range files {
		var workflow models.Workflow
		if err := readJSON(filepath.Join(dir, name), &workflow); err != nil {
			return nil, fmt.Errorf("failed to load workflow %s: %w", name, err)
		}

		workflows = append(workflows, &workflow)
	}

	return workflows, nil
}

func (p *Persistence) SaveWorkflow(_ context.Context, workflow *models.Workflow) error {
	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	path := filepath.Join(p.workflowDir(workflow.Tenant, workflow.ProjectID), safe(workflow.ID)+".json")

	return writeJSON(path, workflow)
}

func (p *Persistence) SaveProject(_ context.Context, project *models.Project) error {
	return writeJSON(p.projectPath(project.Tenant, project.ID), project)
}

func readJSON(path string, out any) error {
	body, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", filepath.Base(path), err)
	}

	return nil
}

func writeJSON(path string, value any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}

	return nil
}

// safe keeps identifiers from escaping their directory.
func safe(id string) string {
	return strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(id)
}
