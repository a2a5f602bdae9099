package jwt

import (
	"errors"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/protocol"
)

var errNoSecrets = errors.New("jwt nodes require a secret resolver")

var algorithms = []string{"HS256", "HS384", "HS512"}

// GenerateNodeFactory creates GenerateNode instances.
type GenerateNodeFactory struct{}

// NewGenerateNodeFactory creates a new factory instance.
func NewGenerateNodeFactory() protocol.NodeFactory {
	return &GenerateNodeFactory{}
}

// Create creates a new GenerateNode instance.
func (f *GenerateNodeFactory) Create(deps protocol.Dependencies) (protocol.Handler, error) {
	if deps.Secrets == nil {
		return nil, errNoSecrets
	}

	return NewGenerateNode(deps.Secrets, deps.Validator), nil
}

// ID returns the factory ID.
func (f *GenerateNodeFactory) ID() models.NodeType {
	return models.NodeTypeJWTGenerate
}

// Name returns the factory name.
func (f *GenerateNodeFactory) Name() string {
	return "Generate JWT"
}

// Description returns the factory description.
func (f *GenerateNodeFactory) Description() string {
	return "Signs the payload with the project's jwt secret and returns a bearer token."
}

// Schema returns the JSON schema for jwtGenerate node data.
func (f *GenerateNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"provider": map[string]any{
				"type":        "string",
				"description": "Secret provider holding the signing key. Defaults to jwt.",
			},
			"payload": map[string]any{
				"description": "Claims object; placeholders are resolved",
				"examples": []any{
					map[string]any{"sub": "{{context.login.result._id}}", "role": "user"},
				},
			},
			"expiresIn": map[string]any{
				"type":     "string",
				"examples": []string{"15m", "24h", "7d", "3600"},
			},
			"algorithm": map[string]any{
				"type": "string",
				"enum": algorithms,
			},
		},
		"required": []string{"payload"},
	}
}

// VerifyNodeFactory creates VerifyNode instances.
type VerifyNodeFactory struct{}

// NewVerifyNodeFactory creates a new factory instance.
func NewVerifyNodeFactory() protocol.NodeFactory {
	return &VerifyNodeFactory{}
}

// Create creates a new VerifyNode instance.
func (f *VerifyNodeFactory) Create(deps protocol.Dependencies) (protocol.Handler, error) {
	if deps.Secrets == nil {
		return nil, errNoSecrets
	}

	return NewVerifyNode(deps.Secrets, deps.Validator), nil
}

// ID returns the factory ID.
func (f *VerifyNodeFactory) ID() models.NodeType {
	return models.NodeTypeJWTVerify
}

// Name returns the factory name.
func (f *VerifyNodeFactory) Name() string {
	return "Verify JWT"
}

// Description returns the factory description.
func (f *VerifyNodeFactory) Description() string {
	return "Verifies the bearer token carried by an earlier node's authorization field. Fails the run when it is missing or invalid."
}

// Schema returns the JSON schema for jwtVerify node data.
func (f *VerifyNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"provider": map[string]any{"type": "string"},
			"tokenSource": map[string]any{
				"type":        "string",
				"description": "Node whose result carries the authorization field. Defaults to the first executed node.",
			},
			"algorithm": map[string]any{
				"type": "string",
				"enum": algorithms,
			},
		},
	}
}
