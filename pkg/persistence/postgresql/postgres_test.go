//go:build integration

package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/dukex/flowrun/pkg/persistence/postgresql"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	for _, table := range []string{"workflows", "projects", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	require.NoError(t, db.Close())
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("flowrun_test"),
			postgres.WithUsername("flowrun"),
			postgres.WithPassword("flowrun"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)
		require.NoError(t, p.Close(ctx))
		cancel()
	})

	return p, ctx, databaseURL
}

func TestPersistence_Migrations(t *testing.T) {
	p, ctx, databaseURL := setupTestDB(t)

	require.NoError(t, p.HealthCheck(ctx))

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() { require.NoError(t, db.Close()) }()

	for _, table := range []string{"workflows", "projects"} {
		var exists bool

		err := db.QueryRowContext(ctx,
			"SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_name = $1)", table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, table)
	}
}

func TestPersistence_WorkflowByRoute(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	require.NoError(t, p.SaveWorkflow(ctx, &models.Workflow{
		ID: "wf-1", Tenant: "acme", ProjectID: "p1", Method: "POST", Path: "/signup", IsDeployed: true,
		Nodes: []*models.Node{{ID: "start", Type: models.NodeTypeStart, Data: map[string]any{"ok": true}}},
	}))
	require.NoError(t, p.SaveWorkflow(ctx, &models.Workflow{
		ID: "wf-2", Tenant: "acme", ProjectID: "p1", Method: "POST", Path: "/draft", IsDeployed: false,
		Nodes: []*models.Node{{ID: "start", Type: models.NodeTypeStart}},
	}))

	workflow, err := p.WorkflowByRoute(ctx, "acme", "p1", "post", "signup")
	require.NoError(t, err)
	assert.Equal(t, "wf-1", workflow.ID)
	assert.Equal(t, true, workflow.Nodes[0].Data["ok"])

	_, err = p.WorkflowByRoute(ctx, "acme", "p1", "POST", "/draft")
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestPersistence_ProjectByID(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	require.NoError(t, p.SaveProject(ctx, &models.Project{
		ID: "p1", Tenant: "acme", Name: "Acme", AllowedOrigins: []string{"https://acme.io"}, RateLimit: 5,
	}))

	project, err := p.ProjectByID(ctx, "acme", "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://acme.io"}, project.AllowedOrigins)
	assert.Equal(t, 5, project.RateLimit)

	_, err = p.ProjectByID(ctx, "acme", "nope")
	assert.True(t, persistence.IsProjectNotFound(err))
}
