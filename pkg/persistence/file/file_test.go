package file

import (
	"context"
	"testing"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersistence_RoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := NewPersistence("file://" + t.TempDir())

	require.NoError(t, p.HealthCheck(ctx))

	require.NoError(t, p.SaveProject(ctx, &models.Project{
		ID: "p1", Tenant: "acme", AllowedOrigins: []string{"https://app.acme.io"}, RateLimit: 10,
	}))

	require.NoError(t, p.SaveWorkflow(ctx, &models.Workflow{
		ID: "wf-users", Tenant: "acme", ProjectID: "p1", Method: "GET", Path: "/users/:id", IsDeployed: true,
		Nodes: []*models.Node{{ID: "start", Type: models.NodeTypeStart}},
	}))

	project, err := p.ProjectByID(ctx, "acme", "p1")
	require.NoError(t, err)
	assert.Equal(t, 10, project.RateLimit)

	workflow, err := p.WorkflowByRoute(ctx, "acme", "p1", "GET", "users/7")
	require.NoError(t, err)
	assert.Equal(t, "wf-users", workflow.ID)
	assert.False(t, workflow.CreatedAt.IsZero())
	require.Len(t, workflow.Nodes, 1)
}

func TestPersistence_NotFound(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := NewPersistence(t.TempDir())

	_, err := p.ProjectByID(ctx, "acme", "missing")
	require.Error(t, err)
	assert.True(t, persistence.IsProjectNotFound(err))

	_, err = p.WorkflowByRoute(ctx, "acme", "missing", "GET", "/")
	require.Error(t, err)
	assert.True(t, persistence.IsWorkflowNotFound(err))
}
