// Package mongodb provides the node that runs one operation against a
// tenant-owned MongoDB configured through a secret.
package mongodb

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

// Secret data fields.
const (
	SecretURI      = "uri"
	SecretDatabase = "database"
)

// MongoDBNode opens a connection per invocation and always closes it before
// returning.
type MongoDBNode struct {
	logger    *slog.Logger
	secrets   secrets.Resolver
	connector datastore.Connector
	validate  *validator.Validate
}

// NewMongoDBNode creates a mongodb node handler.
func NewMongoDBNode(
	logger *slog.Logger,
	resolver secrets.Resolver,
	connector datastore.Connector,
	validate *validator.Validate,
) *MongoDBNode {
	return &MongoDBNode{
		logger:    logger,
		secrets:   resolver,
		connector: connector,
		validate:  validate,
	}
}

func (n *MongoDBNode) Execute(
	ctx context.Context,
	node *models.Node,
	input any,
	requestCtx *models.RequestContext,
	executionCtx *models.ExecutionContext,
	workflow *models.Workflow,
) (any, error) {
	data, err := protocol.DecodeData[models.MongoDBData](n.validate, node)
	if err != nil {
		return nil, err
	}

	provider := data.Provider
	if provider == "" {
		provider = secrets.ProviderMongoDB
	}

	secret, err := protocol.ResolveSecret(ctx, n.secrets, workflow, requestCtx, provider)
	if err != nil {
		return nil, err
	}

	uri := secret.String(SecretURI)
	if uri == "" {
		return nil, models.NewError(models.ErrExecutionFailed, "%s secret has no %q value", provider, SecretURI)
	}

	database := data.Database
	if database == "" {
		database = secret.String(SecretDatabase)
	}

	if database == "" {
		return nil, models.NewError(models.ErrExecutionFailed, "no database configured for node %s", node.ID)
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

	scope := template.NewScope(input, executionCtx)

	result, err := datastore.Execute(
		ctx,
		session.Collection(database, data.Collection),
		data.Operation,
		template.Resolve(data.Query, scope),
		template.Resolve(data.Data, scope),
		data.Options,
	)
	if err != nil {
		return nil, models.WrapError(models.ErrExecutionFailed, err)
	}

	return result, nil
}

func (n *MongoDBNode) Validate(node *models.Node) error {
	_, err := protocol.DecodeData[models.MongoDBData](n.validate, node)

	return err
}
