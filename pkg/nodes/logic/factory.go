package logic

import (
	"errors"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/protocol"
)

// LogicNodeFactory creates LogicNode instances.
type LogicNodeFactory struct{}

// NewLogicNodeFactory creates a new factory instance.
func NewLogicNodeFactory() protocol.NodeFactory {
	return &LogicNodeFactory{}
}

// Create creates a new LogicNode instance.
func (f *LogicNodeFactory) Create(deps protocol.Dependencies) (protocol.Handler, error) {
	if deps.Sandbox == nil {
		return nil, errors.New("logic node requires a sandbox")
	}

	return NewLogicNode(deps.Sandbox, deps.Validator), nil
}

// ID returns the factory ID.
func (f *LogicNodeFactory) ID() models.NodeType {
	return models.NodeTypeLogic
}

// Name returns the factory name.
func (f *LogicNodeFactory) Name() string {
	return "Logic"
}

// Description returns the factory description.
func (f *LogicNodeFactory) Description() string {
	return "Runs custom JavaScript with the current input and execution context. The returned value becomes the next input."
}

// Schema returns the JSON schema for Logic node data.
func (f *LogicNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"code": map[string]any{
				"type":        "string",
				"description": "Body of an async function. `input`, `context` and `fetch` are in scope.",
				"examples": []string{
					"return { total: input.items.length };",
					"const res = await fetch('https://api.example.com/users'); return await res.json();",
				},
			},
			"timeoutMs": map[string]any{
				"type":        "integer",
				"minimum":     0,
				"description": "Wall-clock limit in milliseconds. Defaults to 2000.",
			},
		},
		"required": []string{"code"},
	}
}
