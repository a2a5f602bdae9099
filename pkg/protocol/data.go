package protocol

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/secrets"
	"github.com/go-playground/validator/v10"
)

// DecodeData decodes node.Data into T and validates its struct tags. Failures
// are VALIDATION_FAILED errors whose details list every field problem.
func DecodeData[T any](validate *validator.Validate, node *models.Node) (T, error) {
	data, err := models.DecodeData[T](node)
	if err != nil {
		return data, models.WrapError(models.ErrValidationFailed, err)
	}

	if validate == nil {
		return data, nil
	}

	err = validate.Struct(data)
	if err == nil {
		return data, nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return data, models.WrapError(models.ErrValidationFailed, err)
	}

	details := make([]string, 0, len(validationErrors))
	for _, fieldErr := range validationErrors {
		details = append(details, fmt.Sprintf("%s failed on '%s'", fieldErr.Namespace(), fieldErr.Tag()))
	}

	return data, models.NewError(models.ErrValidationFailed, "invalid %s node data", node.Type).WithDetails(details)
}

// ProjectScope returns the tenant and project an execution runs under,
// preferring the workflow's own ownership over request path parameters.
func ProjectScope(workflow *models.Workflow, requestCtx *models.RequestContext) (string, string) {
	var tenant, projectID string

	if workflow != nil {
		tenant, projectID = workflow.Tenant, workflow.ProjectID
	}

	if requestCtx != nil {
		if tenant == "" {
			tenant = requestCtx.Params.Tenant
		}

		if projectID == "" {
			projectID = requestCtx.Params.ProjectID
		}
	}

	return tenant, projectID
}

// ResolveSecret looks up the provider secret of the execution's project.
// A missing secret is a configuration failure of the calling node.
func ResolveSecret(
	ctx context.Context,
	resolver secrets.Resolver,
	workflow *models.Workflow,
	requestCtx *models.RequestContext,
	provider string,
) (*models.Secret, error) {
	if resolver == nil {
		return nil, models.NewError(models.ErrExecutionFailed, "no secret resolver configured")
	}

	tenant, projectID := ProjectScope(workflow, requestCtx)

	secret, err := resolver.SecretByProvider(ctx, tenant, projectID, provider)
	if secrets.IsNotFound(err) || (err == nil && secret == nil) {
		return nil, &models.ExecutionError{
			Type:    models.ErrExecutionFailed,
			Message: fmt.Sprintf("no %s secret configured for project %s", provider, projectID),
			Err:     secrets.ErrSecretNotFound,
		}
	}

	if err != nil {
		return nil, models.WrapError(models.ErrExecutionFailed, err)
	}

	return secret, nil
}
