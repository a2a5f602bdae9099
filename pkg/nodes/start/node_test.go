package start

import (
	"context"
	"testing"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartNode_Execute(t *testing.T) {
	t.Parallel()

	node := &models.Node{ID: "start", Type: models.NodeTypeStart, Data: map[string]any{"greeting": "hello"}}

	out, err := NewStartNode().Execute(context.Background(), node, "ignored", nil, models.NewExecutionContext(), nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"greeting": "hello"}, out)
}

func TestStartNode_Execute_NilData(t *testing.T) {
	t.Parallel()

	out, err := NewStartNode().Execute(context.Background(), &models.Node{ID: "start"}, nil, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, out)
}

func TestStartNodeFactory(t *testing.T) {
	t.Parallel()

	factory := NewStartNodeFactory()
	assert.Equal(t, models.NodeTypeStart, factory.ID())
	assert.NotEmpty(t, factory.Name())
	assert.NotEmpty(t, factory.Description())
	assert.Equal(t, "object", factory.Schema()["type"])
}
