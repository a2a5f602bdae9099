package mongodb

import (
	"errors"
	"log/slog"

	"github.com/dukex/flowrun/pkg/datastore"
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/protocol"
)

// MongoDBNodeFactory creates MongoDBNode instances.
type MongoDBNodeFactory struct{}

// NewMongoDBNodeFactory creates a new factory instance.
func NewMongoDBNodeFactory() protocol.NodeFactory {
	return &MongoDBNodeFactory{}
}

// Create creates a new MongoDBNode instance.
func (f *MongoDBNodeFactory) Create(deps protocol.Dependencies) (protocol.Handler, error) {
	if deps.Secrets == nil || deps.Datastore == nil {
		return nil, errors.New("mongodb node requires a secret resolver and a datastore connector")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return NewMongoDBNode(logger, deps.Secrets, deps.Datastore, deps.Validator), nil
}

// ID returns the factory ID.
func (f *MongoDBNodeFactory) ID() models.NodeType {
	return models.NodeTypeMongoDB
}

// Name returns the factory name.
func (f *MongoDBNodeFactory) Name() string {
	return "MongoDB"
}

// Description returns the factory description.
func (f *MongoDBNodeFactory) Description() string {
	return "Runs a query or write against the project's own MongoDB, configured through a secret."
}

// Schema returns the JSON schema for MongoDB node data.
func (f *MongoDBNodeFactory) Schema() map[string]any {
	return datastore.OperationSchema(map[string]any{
		"provider": map[string]any{
			"type":        "string",
			"description": "Secret provider holding uri and database. Defaults to mongodb.",
		},
		"database": map[string]any{
			"type":        "string",
			"description": "Overrides the database stored in the secret",
		},
	})
}
