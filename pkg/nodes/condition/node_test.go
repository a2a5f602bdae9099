package condition

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

func newConditionNode() *ConditionNode {
	return NewConditionNode(
		sandbox.New(sandbox.Config{DisableFetch: true}, slog.Default()),
		validator.New(validator.WithRequiredStructEnabled()),
	)
}

func conditionNode(expr string) *models.Node {
	return &models.Node{
		ID:   "cond",
		Type: models.NodeTypeCondition,
		Data: map[string]any{
			"condition":   expr,
			"trueEdgeId":  "e-true",
			"falseEdgeId": "e-false",
		},
	}
}

func TestConditionNode_Execute(t *testing.T) {
	t.Parallel()

	execCtx := models.NewExecutionContext()
	execCtx.Set("login", map[string]any{"role": "admin"})

	tests := []struct {
		name   string
		expr   string
		input  any
		result bool
		edge   string
	}{
		{name: "truthy placeholder", expr: "{{input.x}}", input: map[string]any{"x": 1}, result: true, edge: "e-true"},
		{name: "falsy placeholder", expr: "{{input.x}}", input: map[string]any{"x": 0}, result: false, edge: "e-false"},
		{name: "comparison", expr: "{{input.x}} > 5", input: map[string]any{"x": 7}, result: true, edge: "e-true"},
		{name: "string from context", expr: `{{login.result.role}} === "admin"`, input: nil, result: true, edge: "e-true"},
		{name: "missing path is undefined", expr: "{{input.nope}}", input: map[string]any{}, result: false, edge: "e-false"},
		{name: "plain javascript", expr: "input.items.length === 2", input: map[string]any{"items": []any{1, 2}}, result: true, edge: "e-true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			out, err := newConditionNode().Execute(context.Background(), conditionNode(tt.expr), tt.input, nil, execCtx, nil)
			require.NoError(t, err)
			assert.Equal(t, map[string]any{"conditionResult": tt.result, "nextEdgeId": tt.edge}, out)
		})
	}
}

func TestConditionNode_Execute_Errors(t *testing.T) {
	t.Parallel()

	_, err := newConditionNode().Execute(context.Background(), conditionNode("input.a.b.c"), map[string]any{}, nil, models.NewExecutionContext(), nil)
	require.Error(t, err)
	assert.Equal(t, models.ErrExecutionFailed, models.TypeOf(err))

	loop := conditionNode("(() => { while (true) {} })()")
	loop.Data["timeoutMs"] = 50

	_, err = newConditionNode().Execute(context.Background(), loop, nil, nil, models.NewExecutionContext(), nil)
	require.Error(t, err)
	assert.True(t, sandbox.IsTimeout(err))
}

func TestConditionNode_Validate(t *testing.T) {
	t.Parallel()

	n := newConditionNode()
	require.NoError(t, n.Validate(conditionNode("true")))

	err := n.Validate(&models.Node{ID: "c", Type: models.NodeTypeCondition, Data: map[string]any{"condition": "true"}})
	require.Error(t, err)
	assert.Equal(t, models.ErrValidationFailed, models.TypeOf(err))
}
