package condition

import (
	"errors"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/protocol"
)

// ConditionNodeFactory creates ConditionNode instances.
type ConditionNodeFactory struct{}

// NewConditionNodeFactory creates a new factory instance.
func NewConditionNodeFactory() protocol.NodeFactory {
	return &ConditionNodeFactory{}
}

// Create creates a new ConditionNode instance.
func (f *ConditionNodeFactory) Create(deps protocol.Dependencies) (protocol.Handler, error) {
	if deps.Sandbox == nil {
		return nil, errors.New("condition node requires a sandbox")
	}

	return NewConditionNode(deps.Sandbox, deps.Validator), nil
}

// ID returns the factory ID.
func (f *ConditionNodeFactory) ID() models.NodeType {
	return models.NodeTypeCondition
}

// Name returns the factory name.
func (f *ConditionNodeFactory) Name() string {
	return "Condition"
}

// Description returns the factory description.
func (f *ConditionNodeFactory) Description() string {
	return "Evaluates a condition and routes execution through the true or false edge."
}

// Schema returns the JSON schema for Condition node data.
func (f *ConditionNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"condition": map[string]any{
				"type":        "string",
				"description": "JavaScript expression. {{path}} placeholders are replaced by JSON literals first.",
				"examples": []string{
					"{{input.x}} > 0",
					`{{context.login.result.role}} === "admin"`,
					"input.items.length > 10",
				},
			},
			"trueEdgeId": map[string]any{
				"type":        "string",
				"description": "Edge followed when the condition is truthy",
			},
			"falseEdgeId": map[string]any{
				"type":        "string",
				"description": "Edge followed when the condition is falsy",
			},
			"timeoutMs": map[string]any{
				"type":    "integer",
				"minimum": 0,
			},
		},
		"required": []string{"condition", "trueEdgeId", "falseEdgeId"},
	}
}
