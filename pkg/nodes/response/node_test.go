package response

import (
	"context"
	"testing"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponseNode_Execute(t *testing.T) {
	t.Parallel()

	workflow := &models.Workflow{
		Nodes: []*models.Node{
			{ID: "token", Type: models.NodeTypeJWTGenerate},
			{ID: "reply", Type: models.NodeTypeResponse},
		},
	}

	withToken := models.NewExecutionContext()
	withToken.Set("user", map[string]any{"name": "ada"})
	withToken.Set("token", map[string]any{"token": "Bearer abc"})

	tests := []struct {
		name    string
		data    map[string]any
		input   any
		execCtx *models.ExecutionContext
		want    map[string]any
	}{
		{
			name:    "defaults to input and 200",
			input:   map[string]any{"ok": true},
			execCtx: models.NewExecutionContext(),
			want:    map[string]any{"status": 200, "data": map[string]any{"ok": true}},
		},
		{
			name:    "custom status and resolved body",
			data:    map[string]any{"status": 201, "body": map[string]any{"name": "{{user.result.name}}"}},
			execCtx: withToken,
			want:    map[string]any{"status": 201, "data": map[string]any{"name": "ada"}, "token": "Bearer abc"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			node := &models.Node{ID: "reply", Type: models.NodeTypeResponse, Data: tt.data}

			out, err := NewResponseNode(nil).Execute(context.Background(), node, tt.input, nil, tt.execCtx, workflow)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}
