package events

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutionRequested_Wire(t *testing.T) {
	t.Parallel()

	event := ExecutionRequested{
		BaseEvent:    NewBaseEvent(ExecutionRequestedEvent, "wf-1"),
		ExecutionID:  "exec-1",
		Workflow:     models.Workflow{ID: "wf-1", Tenant: "acme", ProjectID: "p1"},
		InitialInput: map[string]any{"x": float64(1)},
		RequestContext: models.RequestContext{
			Method: "POST",
			Params: models.RequestParams{Tenant: "acme", ProjectID: "p1", Path: "/orders"},
		},
	}

	assert.Equal(t, ExecutionRequestedEvent, event.GetType())
	assert.NotEmpty(t, event.ID)

	payload, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded ExecutionRequested
	require.NoError(t, json.Unmarshal(payload, &decoded))

	assert.Equal(t, "exec-1", decoded.ExecutionID)
	assert.Equal(t, "wf-1", decoded.WorkflowID)
	assert.Equal(t, "/orders", decoded.RequestContext.Params.Path)
	assert.Equal(t, map[string]any{"x": float64(1)}, decoded.InitialInput)
}

func TestNewExecutionError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		wantCode models.ErrorType
		wantNode string
	}{
		{
			name:     "structured",
			err:      models.NewError(models.ErrAccessDenied, "no token").WithDetails(map[string]any{"reason": "missing"}),
			wantCode: models.ErrAccessDenied,
		},
		{
			name:     "tagged",
			err:      models.AtNode(errors.New("boom"), &models.Node{ID: "n1", Type: models.NodeTypeLogic}),
			wantCode: models.ErrExecutionFailed,
			wantNode: "n1",
		},
		{
			name:     "plain",
			err:      errors.New("boom"),
			wantCode: models.ErrExecutionFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			wire := NewExecutionError(tt.err)
			assert.Equal(t, tt.wantCode, wire.Code)
			assert.Equal(t, tt.wantNode, wire.NodeID)
			assert.NotEmpty(t, wire.Message)
		})
	}
}
