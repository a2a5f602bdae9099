package database

import (
	"errors"
	"log/slog"

	"github.com/dukex/flowrun/pkg/datastore"
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/protocol"
)

// DatabaseNodeFactory creates DatabaseNode instances.
type DatabaseNodeFactory struct{}

// NewDatabaseNodeFactory creates a new factory instance.
func NewDatabaseNodeFactory() protocol.NodeFactory {
	return &DatabaseNodeFactory{}
}

// Create creates a new DatabaseNode instance.
func (f *DatabaseNodeFactory) Create(deps protocol.Dependencies) (protocol.Handler, error) {
	if deps.Datastore == nil {
		return nil, errors.New("database node requires a datastore connector")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return NewDatabaseNode(logger, deps.Secrets, deps.Datastore, deps.Validator, deps.PlatformDatastoreURI), nil
}

// ID returns the factory ID.
func (f *DatabaseNodeFactory) ID() models.NodeType {
	return models.NodeTypeDatabase
}

// Name returns the factory name.
func (f *DatabaseNodeFactory) Name() string {
	return "Database"
}

// Description returns the factory description.
func (f *DatabaseNodeFactory) Description() string {
	return "Reads and writes project collections in the platform datastore. Writes are checked against the collection schema."
}

// Schema returns the JSON schema for Database node data.
func (f *DatabaseNodeFactory) Schema() map[string]any {
	return datastore.OperationSchema(nil)
}
