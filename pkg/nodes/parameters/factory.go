package parameters

import (
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/protocol"
)

// ParametersNodeFactory creates ParametersNode instances.
type ParametersNodeFactory struct{}

// NewParametersNodeFactory creates a new factory instance.
func NewParametersNodeFactory() protocol.NodeFactory {
	return &ParametersNodeFactory{}
}

// Create creates a new ParametersNode instance.
func (f *ParametersNodeFactory) Create(deps protocol.Dependencies) (protocol.Handler, error) {
	return NewParametersNode(deps.Validator), nil
}

// ID returns the factory ID.
func (f *ParametersNodeFactory) ID() models.NodeType {
	return models.NodeTypeParameters
}

// Name returns the factory name.
func (f *ParametersNodeFactory) Name() string {
	return "Parameters"
}

// Description returns the factory description.
func (f *ParametersNodeFactory) Description() string {
	return "Collects values from path params, body, query and headers, then checks required keys and validation rules."
}

// Schema returns the JSON schema for Parameters node data.
func (f *ParametersNodeFactory) Schema() map[string]any {
	rule := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"regex": map[string]any{"type": "string"},
			"min":   map[string]any{"type": "number"},
			"max":   map[string]any{"type": "number"},
			"enum":  map[string]any{"type": "array"},
		},
		"additionalProperties": false,
	}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"sources": map[string]any{
				"type":     "array",
				"maxItems": 4,
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"from": map[string]any{
							"type": "string",
							"enum": []string{"params", "body", "query", "headers"},
						},
						"required": map[string]any{
							"type":  "array",
							"items": map[string]any{"type": "string"},
						},
						"mapping": map[string]any{
							"type":                 "object",
							"description":          "target key to source key",
							"additionalProperties": map[string]any{"type": "string"},
						},
						"validation": map[string]any{
							"type":                 "object",
							"additionalProperties": rule,
						},
						"caseSensitive": map[string]any{"type": "boolean"},
					},
					"required": []string{"from"},
				},
			},
			"strictMode": map[string]any{
				"type":        "boolean",
				"description": "Reject keys no source declares",
			},
		},
		"required": []string{"sources"},
		"examples": []map[string]any{
			{
				"sources": []map[string]any{
					{
						"from":       "body",
						"required":   []string{"email"},
						"validation": map[string]any{"email": map[string]any{"regex": "^[^@]+@[^@]+$"}},
					},
				},
				"strictMode": true,
			},
		},
	}
}
