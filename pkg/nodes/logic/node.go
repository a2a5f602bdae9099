// Package logic provides the node that runs user code in the sandbox.
package logic

import (
	"context"
	"time"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/protocol"
	"github.com/dukex/flowrun/pkg/sandbox"
	"github.com/go-playground/validator/v10"
)

// LogicNode runs the configured code with the running input and the
// execution context as its only globals. The returned value becomes the next
// input; returning nothing keeps the current one.
type LogicNode struct {
	sandbox  *sandbox.Sandbox
	validate *validator.Validate
}

// NewLogicNode creates a logic node handler.
func NewLogicNode(sb *sandbox.Sandbox, validate *validator.Validate) *LogicNode {
	return &LogicNode{sandbox: sb, validate: validate}
}

func (n *LogicNode) Execute(
	ctx context.Context,
	node *models.Node,
	input any,
	_ *models.RequestContext,
	executionCtx *models.ExecutionContext,
	_ *models.Workflow,
) (any, error) {
	data, err := protocol.DecodeData[models.LogicData](n.validate, node)
	if err != nil {
		return nil, err
	}

	globals := map[string]any{
		"input":   input,
		"context": executionCtx.AsMap(),
	}

	result, err := n.sandbox.Run(ctx, sandbox.Script{
		Name:    node.ID,
		Body:    data.Code,
		Globals: globals,
		Timeout: time.Duration(data.TimeoutMs) * time.Millisecond,
	})
	if err != nil {
		return nil, models.WrapError(models.ErrExecutionFailed, err)
	}

	if result.Undefined {
		return input, nil
	}

	return result.Value, nil
}

func (n *LogicNode) Validate(node *models.Node) error {
	_, err := protocol.DecodeData[models.LogicData](n.validate, node)

	return err
}
