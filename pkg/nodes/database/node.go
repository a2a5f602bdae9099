// Package database provides the node that runs operations against the
// platform-managed datastore, scoped per tenant and project.
package database

import (
	"context"
	"log/slog"

	"github.com/dukex/flowrun/pkg/datastore"
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/protocol"
	"github.com/dukex/flowrun/pkg/secrets"
	"github.com/dukex/flowrun/pkg/template"
	"github.com/go-playground/validator/v10"
)

// SecretURI is the database secret field that overrides the platform URI.
const SecretURI = "uri"

// DatabaseName returns the datastore database that holds a tenant's data.
func DatabaseName(tenant string) string {
	return "tenant_" + tenant
}

// CollectionName returns the scoped collection name of a project collection.
func CollectionName(projectID, collection string) string {
	return projectID + "_" + collection
}

// DatabaseNode provisions the scoped collection on first use and validates
// writes against the stored field schema, if any.
type DatabaseNode struct {
	logger      *slog.Logger
	secrets     secrets.Resolver
	connector   datastore.Connector
	validate    *validator.Validate
	platformURI string
}

// NewDatabaseNode creates a database node handler. platformURI is used when
// the project has no database secret.
func NewDatabaseNode(
	logger *slog.Logger,
	resolver secrets.Resolver,
	connector datastore.Connector,
	validate *validator.Validate,
	platformURI string,
) *DatabaseNode {
	return &DatabaseNode{
		logger:      logger,
		secrets:     resolver,
		connector:   connector,
		validate:    validate,
		platformURI: platformURI,
	}
}

func (n *DatabaseNode) Execute(
	ctx context.Context,
	node *models.Node,
	input any,
	requestCtx *models.RequestContext,
	executionCtx *models.ExecutionContext,
	workflow *models.Workflow,
) (any, error) {
	data, err := protocol.DecodeData[models.DatabaseData](n.validate, node)
	if err != nil {
		return nil, err
	}

	tenant, projectID := protocol.ProjectScope(workflow, requestCtx)
	if tenant == "" || projectID == "" {
		return nil, models.NewError(models.ErrMissingParams, "tenant and project are required")
	}

	uri, err := n.uri(ctx, workflow, requestCtx)
	if err != nil {
		return nil, err
	}

	session, err := n.connector.Connect(ctx, uri)
	if err != nil {
		return nil, models.WrapError(models.ErrExecutionFailed, err)
	}

	defer func() {
		if err := session.Close(context.WithoutCancel(ctx)); err != nil {
			n.logger.WarnContext(ctx, "Failed to close datastore session", "node_id", node.ID, "error", err)
		}
	}()

	database := DatabaseName(tenant)
	collection := CollectionName(projectID, data.Collection)

	err = session.EnsureCollection(ctx, database, collection)
	if err != nil {
		return nil, models.WrapError(models.ErrExecutionFailed, err)
	}

	scope := template.NewScope(input, executionCtx)
	query := template.Resolve(data.Query, scope)
	payload := template.Resolve(data.Data, scope)

	if data.Operation.IsWrite() {
		err = n.checkSchema(ctx, session, database, collection, data.Operation, payload)
		if err != nil {
			return nil, err
		}
	}

	result, err := datastore.Execute(ctx, session.Collection(database, collection), data.Operation, query, payload, data.Options)
	if err != nil {
		return nil, models.WrapError(models.ErrExecutionFailed, err)
	}

	return result, nil
}

func (n *DatabaseNode) Validate(node *models.Node) error {
	_, err := protocol.DecodeData[models.DatabaseData](n.validate, node)

	return err
}

func (n *DatabaseNode) uri(ctx context.Context, workflow *models.Workflow, requestCtx *models.RequestContext) (string, error) {
	if n.secrets != nil {
		secret, err := protocol.ResolveSecret(ctx, n.secrets, workflow, requestCtx, secrets.ProviderDatabase)

		switch {
		case err == nil && secret.String(SecretURI) != "":
			return secret.String(SecretURI), nil
		case err != nil && !secrets.IsNotFound(err):
			return "", err
		}
	}

	if n.platformURI == "" {
		return "", models.NewError(models.ErrExecutionFailed, "no platform datastore configured")
	}

	return n.platformURI, nil
}

func (n *DatabaseNode) checkSchema(
	ctx context.Context,
	session datastore.Session,
	database, collection string,
	op models.DatastoreOperation,
	payload any,
) error {
	schema, err := loadSchema(ctx, session, database, collection)
	if err != nil {
		return models.WrapError(models.ErrExecutionFailed, err)
	}

	if schema == nil {
		return nil
	}

	var (
		docs    []map[string]any
		partial bool
	)

	switch op {
	case models.OpInsertOne:
		if doc, ok := payload.(map[string]any); ok {
			docs = []map[string]any{doc}
		}
	case models.OpInsertMany:
		items, _ := payload.([]any)
		for _, item := range items {
			if doc, ok := item.(map[string]any); ok {
				docs = append(docs, doc)
			}
		}
	case models.OpUpdateOne, models.OpUpdateMany:
		partial = true

		if doc, ok := payload.(map[string]any); ok {
			docs = []map[string]any{datastore.UpdatedFields(datastore.UpdateDocument(doc))}
		}
	}

	// shape errors are reported by datastore.Execute
	if len(docs) == 0 {
		return nil
	}

	violations, err := schema.check(docs, partial)
	if err != nil {
		return models.WrapError(models.ErrExecutionFailed, err)
	}

	if len(violations) > 0 {
		return models.NewError(models.ErrValidationFailed, "%d schema violation(s) in %s", len(violations), collection).
			WithDetails(violations)
	}

	return nil
}
