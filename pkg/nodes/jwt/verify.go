package jwt

import (
	"context"
	"strings"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/protocol"
	"github.com/dukex/flowrun/pkg/secrets"
	"github.com/go-playground/validator/v10"
	jwtlib "github.com/golang-jwt/jwt/v5"
)

// AuthorizationField is the result field the token is read from.
const AuthorizationField = "authorization"

// VerifyNode checks the bearer token found in the token source node's
// result. The source is the node named by tokenSource, or the first node
// recorded in the execution context.
type VerifyNode struct {
	secrets  secrets.Resolver
	validate *validator.Validate
}

// NewVerifyNode creates a jwtVerify handler.
func NewVerifyNode(resolver secrets.Resolver, validate *validator.Validate) *VerifyNode {
	return &VerifyNode{secrets: resolver, validate: validate}
}

func (n *VerifyNode) Execute(
	ctx context.Context,
	node *models.Node,
	_ any,
	requestCtx *models.RequestContext,
	executionCtx *models.ExecutionContext,
	workflow *models.Workflow,
) (any, error) {
	data, err := protocol.DecodeData[models.JWTVerifyData](n.validate, node)
	if err != nil {
		return nil, err
	}

	raw, err := bearerToken(executionCtx, data.TokenSource)
	if err != nil {
		return nil, err
	}

	key, err := signingKey(ctx, n.secrets, workflow, requestCtx, data.Provider)
	if err != nil {
		return nil, err
	}

	algorithm := data.Algorithm
	if algorithm == "" {
		algorithm = DefaultAlgorithm
	}

	claims := jwtlib.MapClaims{}

	_, err = jwtlib.ParseWithClaims(raw, claims, func(*jwtlib.Token) (any, error) {
		return key, nil
	}, jwtlib.WithValidMethods([]string{algorithm}))
	if err != nil {
		return nil, &models.ExecutionError{
			Type:    models.ErrAccessDenied,
			Message: "invalid token: " + err.Error(),
			Err:     err,
		}
	}

	return map[string]any{
		"isAuthenticated": true,
		"data":            map[string]any(claims),
	}, nil
}

func (n *VerifyNode) Validate(node *models.Node) error {
	_, err := protocol.DecodeData[models.JWTVerifyData](n.validate, node)

	return err
}

func bearerToken(executionCtx *models.ExecutionContext, source string) (string, error) {
	var (
		result any
		ok     bool
	)

	if source != "" {
		result, ok = executionCtx.Result(source)
	} else {
		_, result, ok = executionCtx.First()
	}

	if !ok {
		return "", models.NewError(models.ErrAccessDenied, "missing bearer token")
	}

	fields, _ := result.(map[string]any)

	header, _ := fields[AuthorizationField].(string)
	if header == "" {
		return "", models.NewError(models.ErrAccessDenied, "missing bearer token")
	}

	token, found := strings.CutPrefix(header, BearerPrefix)
	if !found || strings.TrimSpace(token) == "" {
		return "", models.NewError(models.ErrAccessDenied, "malformed bearer token")
	}

	return strings.TrimSpace(token), nil
}
