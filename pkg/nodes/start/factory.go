package start

import (
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/protocol"
)

// StartNodeFactory creates StartNode instances.
type StartNodeFactory struct{}

// NewStartNodeFactory creates a new factory instance.
func NewStartNodeFactory() protocol.NodeFactory {
	return &StartNodeFactory{}
}

// Create creates a new StartNode instance.
func (f *StartNodeFactory) Create(protocol.Dependencies) (protocol.Handler, error) {
	return NewStartNode(), nil
}

// ID returns the factory ID.
func (f *StartNodeFactory) ID() models.NodeType {
	return models.NodeTypeStart
}

// Name returns the factory name.
func (f *StartNodeFactory) Name() string {
	return "Start"
}

// Description returns the factory description.
func (f *StartNodeFactory) Description() string {
	return "Entry point of a workflow. Its data becomes the input of the next node."
}

// Schema returns the JSON schema for Start node data.
func (f *StartNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"description":          "Static values passed to the next node",
		"additionalProperties": true,
		"examples": []map[string]any{
			{"greeting": "hello"},
		},
	}
}
