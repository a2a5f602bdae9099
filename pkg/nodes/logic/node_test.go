package logic

import (
	"context"
	"log/slog"
	"testing"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/sandbox"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLogicNode() *LogicNode {
	return NewLogicNode(
		sandbox.New(sandbox.Config{DisableFetch: true}, slog.Default()),
		validator.New(validator.WithRequiredStructEnabled()),
	)
}

func logicNode(code string) *models.Node {
	return &models.Node{ID: "logic-1", Type: models.NodeTypeLogic, Data: map[string]any{"code": code}}
}

func TestLogicNode_Execute_ReturnsValue(t *testing.T) {
	t.Parallel()

	execCtx := models.NewExecutionContext()
	execCtx.Set("start", map[string]any{"factor": 3})

	out, err := newLogicNode().Execute(
		context.Background(),
		logicNode("return { total: input.n * context.start.result.factor };"),
		map[string]any{"n": 2},
		nil,
		execCtx,
		nil,
	)
	require.NoError(t, err)

	result, ok := out.(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 6, result["total"])
}

func TestLogicNode_Execute_UndefinedKeepsInput(t *testing.T) {
	t.Parallel()

	input := map[string]any{"keep": true}

	out, err := newLogicNode().Execute(context.Background(), logicNode("const x = 1;"), input, nil, models.NewExecutionContext(), nil)
	require.NoError(t, err)
	assert.Equal(t, input, out)
}

func TestLogicNode_Execute_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		node    *models.Node
		errType models.ErrorType
		message string
	}{
		{name: "thrown error", node: logicNode("throw new Error('boom');"), errType: models.ErrExecutionFailed, message: "boom"},
		{name: "timeout", node: &models.Node{ID: "l", Type: models.NodeTypeLogic, Data: map[string]any{"code": "while (true) {}", "timeoutMs": 50}}, errType: models.ErrExecutionFailed, message: "execution timeout"},
		{name: "missing code", node: &models.Node{ID: "l", Type: models.NodeTypeLogic, Data: map[string]any{}}, errType: models.ErrValidationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := newLogicNode().Execute(context.Background(), tt.node, nil, nil, models.NewExecutionContext(), nil)
			require.Error(t, err)
			assert.Equal(t, tt.errType, models.TypeOf(err))

			if tt.message != "" {
				assert.Contains(t, err.Error(), tt.message)
			}
		})
	}
}

func TestLogicNode_Validate(t *testing.T) {
	t.Parallel()

	n := newLogicNode()
	require.NoError(t, n.Validate(logicNode("return 1;")))
	require.Error(t, n.Validate(&models.Node{ID: "l", Type: models.NodeTypeLogic, Data: map[string]any{"timeoutMs": -1}}))
}
