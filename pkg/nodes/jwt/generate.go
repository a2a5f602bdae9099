// Package jwt provides the token issuing and verifying nodes.
package jwt

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/protocol"
	"github.com/dukex/flowrun/pkg/secrets"
	"github.com/dukex/flowrun/pkg/template"
	"github.com/go-playground/validator/v10"
	jwtlib "github.com/golang-jwt/jwt/v5"
)

const (
	// SecretKey is the secret data field holding the signing key.
	SecretKey = "secret"

	// BearerPrefix precedes issued tokens and is stripped before verification.
	BearerPrefix = "Bearer "

	DefaultAlgorithm = "HS256"
)

// GenerateNode signs the resolved payload with the project's jwt secret.
type GenerateNode struct {
	secrets  secrets.Resolver
	validate *validator.Validate
	now      func() time.Time
}

// NewGenerateNode creates a jwtGenerate handler.
func NewGenerateNode(resolver secrets.Resolver, validate *validator.Validate) *GenerateNode {
	return &GenerateNode{secrets: resolver, validate: validate, now: time.Now}
}

func (n *GenerateNode) Execute(
	ctx context.Context,
	node *models.Node,
	input any,
	requestCtx *models.RequestContext,
	executionCtx *models.ExecutionContext,
	workflow *models.Workflow,
) (any, error) {
	data, err := protocol.DecodeData[models.JWTGenerateData](n.validate, node)
	if err != nil {
		return nil, err
	}

	key, err := signingKey(ctx, n.secrets, workflow, requestCtx, data.Provider)
	if err != nil {
		return nil, err
	}

	claims := jwtlib.MapClaims{}

	payload := template.Resolve(data.Payload, template.NewScope(input, executionCtx))
	switch p := payload.(type) {
	case nil:
	case map[string]any:
		for k, v := range p {
			claims[k] = v
		}
	default:
		return nil, models.NewError(models.ErrExecutionFailed, "jwt payload must be an object, got %T", payload)
	}

	now := n.now()
	claims["iat"] = now.Unix()

	if data.ExpiresIn != "" {
		ttl, err := parseExpiry(data.ExpiresIn)
		if err != nil {
			return nil, models.WrapError(models.ErrExecutionFailed, err)
		}

		claims["exp"] = now.Add(ttl).Unix()
	}

	signed, err := jwtlib.NewWithClaims(signingMethod(data.Algorithm), claims).SignedString(key)
	if err != nil {
		return nil, models.WrapError(models.ErrExecutionFailed, err)
	}

	return map[string]any{"token": BearerPrefix + signed}, nil
}

func (n *GenerateNode) Validate(node *models.Node) error {
	data, err := protocol.DecodeData[models.JWTGenerateData](n.validate, node)
	if err != nil {
		return err
	}

	if data.ExpiresIn != "" {
		if _, err := parseExpiry(data.ExpiresIn); err != nil {
			return models.WrapError(models.ErrValidationFailed, err)
		}
	}

	return nil
}

func signingKey(
	ctx context.Context,
	resolver secrets.Resolver,
	workflow *models.Workflow,
	requestCtx *models.RequestContext,
	provider string,
) ([]byte, error) {
	if provider == "" {
		provider = secrets.ProviderJWT
	}

	secret, err := protocol.ResolveSecret(ctx, resolver, workflow, requestCtx, provider)
	if err != nil {
		return nil, err
	}

	key := secret.String(SecretKey)
	if key == "" {
		return nil, models.NewError(models.ErrExecutionFailed, "%s secret has no %q value", provider, SecretKey)
	}

	return []byte(key), nil
}

func signingMethod(algorithm string) jwtlib.SigningMethod {
	switch algorithm {
	case "HS384":
		return jwtlib.SigningMethodHS384
	case "HS512":
		return jwtlib.SigningMethodHS512
	default:
		return jwtlib.SigningMethodHS256
	}
}

// parseExpiry accepts Go durations ("15m", "2h"), a day suffix ("7d") or a
// plain number of seconds.
func parseExpiry(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)

	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}

	if days, ok := strings.CutSuffix(value, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid expiresIn %q", value)
		}

		return time.Duration(n) * 24 * time.Hour, nil
	}

	ttl, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid expiresIn %q", value)
	}

	return ttl, nil
}
