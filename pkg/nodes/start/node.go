// Package start provides the entry node that seeds a workflow with static data.
package start

import (
	"context"

	"github.com/dukex/flowrun/pkg/models"
)

// StartNode returns its configured data unchanged.
type StartNode struct{}

// NewStartNode creates a start node handler.
func NewStartNode() *StartNode {
	return &StartNode{}
}

// Execute returns node.Data as the first running input.
func (n *StartNode) Execute(
	_ context.Context,
	node *models.Node,
	_ any,
	_ *models.RequestContext,
	_ *models.ExecutionContext,
	_ *models.Workflow,
) (any, error) {
	if node.Data == nil {
		return map[string]any{}, nil
	}

	return node.Data, nil
}

// Validate accepts any data object.
func (n *StartNode) Validate(*models.Node) error {
	return nil
}
