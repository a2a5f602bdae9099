package response

import (
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/protocol"
)

// ResponseNodeFactory creates ResponseNode instances.
type ResponseNodeFactory struct{}

// NewResponseNodeFactory creates a new factory instance.
func NewResponseNodeFactory() protocol.NodeFactory {
	return &ResponseNodeFactory{}
}

// Create creates a new ResponseNode instance.
func (f *ResponseNodeFactory) Create(deps protocol.Dependencies) (protocol.Handler, error) {
	return NewResponseNode(deps.Validator), nil
}

// ID returns the factory ID.
func (f *ResponseNodeFactory) ID() models.NodeType {
	return models.NodeTypeResponse
}

// Name returns the factory name.
func (f *ResponseNodeFactory) Name() string {
	return "Response"
}

// Description returns the factory description.
func (f *ResponseNodeFactory) Description() string {
	return "Formats the HTTP response of the workflow. Attaches a token generated earlier in the run."
}

// Schema returns the JSON schema for Response node data.
func (f *ResponseNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"status": map[string]any{
				"type":        "integer",
				"minimum":     100,
				"maximum":     599,
				"description": "HTTP status code. Defaults to 200.",
			},
			"body": map[string]any{
				"description": "Response body. Placeholders are resolved; the current input is used when omitted.",
				"examples": []any{
					map[string]any{"user": "{{context.findUser.result}}"},
				},
			},
		},
	}
}
