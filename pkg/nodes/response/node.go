// Package response provides the node that shapes the terminal result.
package response

import (
	"context"
	"net/http"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/protocol"
	"github.com/dukex/flowrun/pkg/template"
	"github.com/go-playground/validator/v10"
)

// ResponseNode wraps the current value as {status, data, token?}. The token
// comes from a jwtGenerate node that already ran in this execution.
type ResponseNode struct {
	validate *validator.Validate
}

// NewResponseNode creates a response node handler.
func NewResponseNode(validate *validator.Validate) *ResponseNode {
	return &ResponseNode{validate: validate}
}

func (n *ResponseNode) Execute(
	_ context.Context,
	node *models.Node,
	input any,
	_ *models.RequestContext,
	executionCtx *models.ExecutionContext,
	workflow *models.Workflow,
) (any, error) {
	data, err := protocol.DecodeData[models.ResponseData](n.validate, node)
	if err != nil {
		return nil, err
	}

	status := data.Status
	if status == 0 {
		status = http.StatusOK
	}

	body := input
	if data.Body != nil {
		body = template.Resolve(data.Body, template.NewScope(input, executionCtx))
	}

	out := map[string]any{
		"status": status,
		"data":   body,
	}

	if token := generatedToken(executionCtx, workflow); token != "" {
		out["token"] = token
	}

	return out, nil
}

func (n *ResponseNode) Validate(node *models.Node) error {
	_, err := protocol.DecodeData[models.ResponseData](n.validate, node)

	return err
}

func generatedToken(executionCtx *models.ExecutionContext, workflow *models.Workflow) string {
	if workflow == nil || executionCtx == nil {
		return ""
	}

	for _, node := range workflow.NodesOfType(models.NodeTypeJWTGenerate) {
		result, ok := executionCtx.Result(node.ID)
		if !ok {
			continue
		}

		if m, ok := result.(map[string]any); ok {
			if token, ok := m["token"].(string); ok && token != "" {
				return token
			}
		}
	}

	return ""
}
