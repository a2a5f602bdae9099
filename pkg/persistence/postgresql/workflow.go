package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
)

// WorkflowRepository handles workflow-related database operations.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

// ByRoute loads the deployed workflows of the project that accept method and
// picks the one whose path matches.
func (r *WorkflowRepository) ByRoute(ctx context.Context, tenant, projectID, method, path string) (*models.Workflow, error) {
	route := method + " " + persistence.NormalizePath(path)

	query := `
		SELECT
			tenant
		  , project_id
		  , id
		  , name
		  , method
		  , path
		  , is_deployed
		  , nodes
		  , edges
		  , created_at
		  , updated_at
		FROM workflows
		WHERE tenant = $1
		  AND project_id = $2
		  AND is_deployed
		  AND (UPPER(method) = $3 OR UPPER(method) = 'ALL')
	`

	rows, err := r.db.QueryContext(ctx, query, tenant, projectID, strings.ToUpper(method))
	if err != nil {
		return nil, persistence.NewWorkflowError("WorkflowByRoute", tenant, projectID, route,
			fmt.Errorf("failed to query workflows: %w", err))
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	var candidates []*models.Workflow

	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, persistence.NewWorkflowError("WorkflowByRoute", tenant, projectID, route, err)
		}

		candidates = append(candidates, workflow)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewWorkflowError("WorkflowByRoute", tenant, projectID, route,
			fmt.Errorf("error iterating workflows: %w", err))
	}

	workflow := persistence.SelectRoute(candidates, method, path)
	if workflow == nil {
		return nil, persistence.NewWorkflowError("WorkflowByRoute", tenant, projectID, route, persistence.ErrWorkflowNotFound)
	}

	return workflow, nil
}

// Save upserts a workflow.
func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	nodes, err := json.Marshal(workflow.Nodes)
	if err != nil {
		return fmt.Errorf("failed to marshal nodes: %w", err)
	}

	edges, err := json.Marshal(workflow.Edges)
	if err != nil {
		return fmt.Errorf("failed to marshal edges: %w", err)
	}

	query := `
		INSERT INTO workflows (tenant, project_id, id, name, method, path, is_deployed, nodes, edges, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (tenant, project_id, id) DO UPDATE SET
			name = EXCLUDED.name,
			method = EXCLUDED.method,
			path = EXCLUDED.path,
			is_deployed = EXCLUDED.is_deployed,
			nodes = EXCLUDED.nodes,
			edges = EXCLUDED.edges,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		workflow.Tenant, workflow.ProjectID, workflow.ID, workflow.Name,
		workflow.Method, persistence.NormalizePath(workflow.Path), workflow.IsDeployed,
		nodes, edges, workflow.CreatedAt, workflow.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save workflow %s: %w", workflow.ID, err)
	}

	return nil
}

func scanWorkflow(rows *sql.Rows) (*models.Workflow, error) {
	var (
		workflow     models.Workflow
		nodes, edges []byte
	)

	err := rows.Scan(
		&workflow.Tenant,
		&workflow.ProjectID,
		&workflow.ID,
		&workflow.Name,
		&workflow.Method,
		&workflow.Path,
		&workflow.IsDeployed,
		&nodes,
		&edges,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	if err := json.Unmarshal(nodes, &workflow.Nodes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal nodes of %s: %w", workflow.ID, err)
	}

	if err := json.Unmarshal(edges, &workflow.Edges); err != nil {
		return nil, fmt.Errorf("failed to unmarshal edges of %s: %w", workflow.ID, err)
	}

	return &workflow, nil
}

// ProjectRepository handles project lookups.
type ProjectRepository struct {
	db *sql.DB
}

func NewProjectRepository(db *sql.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

func (r *ProjectRepository) ByID(ctx context.Context, tenant, projectID string) (*models.Project, error) {
	var (
		project models.Project
		origins []byte
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT tenant, id, name, allowed_origins, rate_limit
		FROM projects
		WHERE tenant = $1 AND id = $2
	`, tenant, projectID).Scan(&project.Tenant, &project.ID, &project.Name, &origins, &project.RateLimit)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = persistence.ErrProjectNotFound
		}

		return nil, &persistence.ProjectError{Op: "ProjectByID", Tenant: tenant, ProjectID: projectID, Err: err}
	}

	if err := json.Unmarshal(origins, &project.AllowedOrigins); err != nil {
		return nil, fmt.Errorf("failed to unmarshal allowed origins: %w", err)
	}

	return &project, nil
}

func (r *ProjectRepository) Save(ctx context.Context, project *models.Project) error {
	origins := project.AllowedOrigins
	if origins == nil {
		origins = []string{}
	}

	data, err := json.Marshal(origins)
	if err != nil {
		return fmt.Errorf("failed to marshal allowed origins: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO projects (tenant, id, name, allowed_origins, rate_limit)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant, id) DO UPDATE SET
			name = EXCLUDED.name,
			allowed_origins = EXCLUDED.allowed_origins,
			rate_limit = EXCLUDED.rate_limit
	`, project.Tenant, project.ID, project.Name, data, project.RateLimit)
	if err != nil {
		return fmt.Errorf("failed to save project %s: %w", project.ID, err)
	}

	return nil
}
