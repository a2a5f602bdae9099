// Package condition provides the two-way branching node.
package condition

import (
	"context"
	"time"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/protocol"
	"github.com/dukex/flowrun/pkg/sandbox"
	"github.com/dukex/flowrun/pkg/template"
	"github.com/go-playground/validator/v10"
)

// DefaultTimeout bounds condition evaluation when the node sets none.
const DefaultTimeout = 500 * time.Millisecond

// ConditionNode evaluates a boolean expression and selects trueEdgeId or
// falseEdgeId. Placeholders are substituted with JSON literals before the
// expression runs in the sandbox.
type ConditionNode struct {
	sandbox  *sandbox.Sandbox
	validate *validator.Validate
}

// NewConditionNode creates a condition node handler.
func NewConditionNode(sb *sandbox.Sandbox, validate *validator.Validate) *ConditionNode {
	return &ConditionNode{sandbox: sb, validate: validate}
}

func (n *ConditionNode) Execute(
	ctx context.Context,
	node *models.Node,
	input any,
	_ *models.RequestContext,
	executionCtx *models.ExecutionContext,
	_ *models.Workflow,
) (any, error) {
	data, err := protocol.DecodeData[models.ConditionData](n.validate, node)
	if err != nil {
		return nil, err
	}

	timeout := DefaultTimeout
	if data.TimeoutMs > 0 {
		timeout = time.Duration(data.TimeoutMs) * time.Millisecond
	}

	expr := template.Substitute(data.Condition, template.NewScope(input, executionCtx))

	result, err := n.sandbox.Run(ctx, sandbox.Script{
		Name: node.ID,
		Body: "return !!(" + expr + "\n);",
		Globals: map[string]any{
			"input":   input,
			"context": executionCtx.AsMap(),
		},
		Timeout: timeout,
	})
	if err != nil {
		return nil, models.WrapError(models.ErrExecutionFailed, err)
	}

	matched, _ := result.Value.(bool)

	next := data.FalseEdgeID
	if matched {
		next = data.TrueEdgeID
	}

	return map[string]any{
		"conditionResult": matched,
		"nextEdgeId":      next,
	}, nil
}

func (n *ConditionNode) Validate(node *models.Node) error {
	_, err := protocol.DecodeData[models.ConditionData](n.validate, node)

	return err
}
