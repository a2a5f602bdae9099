package loop

import (
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/protocol"
)

// LoopNodeFactory creates LoopNode instances.
type LoopNodeFactory struct{}

// NewLoopNodeFactory creates a new factory instance.
func NewLoopNodeFactory() protocol.NodeFactory {
	return &LoopNodeFactory{}
}

// Create creates a new LoopNode instance.
func (f *LoopNodeFactory) Create(deps protocol.Dependencies) (protocol.Handler, error) {
	return NewLoopNode(deps.Validator), nil
}

// ID returns the factory ID.
func (f *LoopNodeFactory) ID() models.NodeType {
	return models.NodeTypeLoop
}

// Name returns the factory name.
func (f *LoopNodeFactory) Name() string {
	return "Loop"
}

// Description returns the factory description.
func (f *LoopNodeFactory) Description() string {
	return "Iterates over an array. Each pass follows the true edge with the current item; the false edge is taken once all items are consumed."
}

// Schema returns the JSON schema for Loop node data.
func (f *LoopNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"items": map[string]any{
				"description": "Array to iterate, or a {{path}} placeholder resolving to one",
				"examples": []any{
					"{{context.fetchUsers.result}}",
					[]any{1, 2, 3},
				},
			},
			"trueEdgeId": map[string]any{
				"type":        "string",
				"description": "Edge into the loop body",
			},
			"falseEdgeId": map[string]any{
				"type":        "string",
				"description": "Edge followed after the last item",
			},
		},
		"required": []string{"items", "trueEdgeId", "falseEdgeId"},
	}
}
