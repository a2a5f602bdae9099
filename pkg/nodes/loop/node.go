// Package loop provides the node that iterates over an items array.
package loop

import (
	"context"
	"reflect"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/protocol"
	"github.com/dukex/flowrun/pkg/template"
	"github.com/go-playground/validator/v10"
)

// LoopNode hands out one item per entry. Its cursor lives in the execution
// context so it survives re-entries through the loop body; items are resolved
// once, when the cursor is fresh. Exiting through falseEdgeId resets the
// cursor so a later entry starts over.
type LoopNode struct {
	validate *validator.Validate
}

// NewLoopNode creates a loop node handler.
func NewLoopNode(validate *validator.Validate) *LoopNode {
	return &LoopNode{validate: validate}
}

func (n *LoopNode) Execute(
	_ context.Context,
	node *models.Node,
	input any,
	_ *models.RequestContext,
	executionCtx *models.ExecutionContext,
	_ *models.Workflow,
) (any, error) {
	data, err := protocol.DecodeData[models.LoopData](n.validate, node)
	if err != nil {
		return nil, err
	}

	state := executionCtx.Loop(node.ID)

	if state.Items == nil {
		resolved := template.Resolve(data.Items, template.NewScope(input, executionCtx))

		items, ok := toSlice(resolved)
		if !ok {
			executionCtx.ResetLoop(node.ID)

			return nil, models.NewError(models.ErrExecutionFailed, "loop items must resolve to an array, got %T", resolved)
		}

		state.Items = items
	}

	total := len(state.Items)

	if state.Index < total {
		current := state.Items[state.Index]
		state.Index++

		return map[string]any{
			"hasMoreItems": true,
			"nextEdgeId":   data.TrueEdgeID,
			"currentItem":  current,
			"loopContext": map[string]any{
				"index": state.Index - 1,
				"total": total,
			},
		}, nil
	}

	executionCtx.ResetLoop(node.ID)

	return map[string]any{
		"hasMoreItems": false,
		"nextEdgeId":   data.FalseEdgeID,
		"currentItem":  nil,
		"loopContext": map[string]any{
			"index": total,
			"total": total,
		},
	}, nil
}

func (n *LoopNode) Validate(node *models.Node) error {
	_, err := protocol.DecodeData[models.LoopData](n.validate, node)

	return err
}

func toSlice(value any) ([]any, bool) {
	if items, ok := value.([]any); ok {
		return items, true
	}

	rv := reflect.ValueOf(value)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, false
	}

	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}

	return items, true
}
