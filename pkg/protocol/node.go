// Package protocol defines the contract between the graph executor and node handlers.
package protocol

import (
	"context"
	"log/slog"

	"github.com/dukex/flowrun/pkg/datastore"
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/sandbox"
	"github.com/dukex/flowrun/pkg/secrets"
	"github.com/go-playground/validator/v10"
)

// Handler executes one node kind. It knows nothing about traversal: it gets
// the node, the running input and read access to the request and execution
// contexts, and returns the node output.
type Handler interface {
	Execute(
		ctx context.Context,
		node *models.Node,
		input any,
		requestCtx *models.RequestContext,
		executionCtx *models.ExecutionContext,
		workflow *models.Workflow,
	) (any, error)

	// Validate checks the node's typed data at workflow-load time.
	Validate(node *models.Node) error
}

// Dependencies are the injected collaborators handlers may use.
type Dependencies struct {
	Logger    *slog.Logger
	Validator *validator.Validate
	Sandbox   *sandbox.Sandbox
	Secrets   secrets.Resolver
	Datastore datastore.Connector
	// PlatformDatastoreURI is used by the database node when the project has
	// no database secret of its own.
	PlatformDatastoreURI string
}

// NodeFactory creates handlers and describes the node type.
type NodeFactory interface {
	// Create builds the handler with its dependencies.
	Create(deps Dependencies) (Handler, error)

	// ID returns the node type tag this factory serves.
	ID() models.NodeType

	// Name returns the human-readable name for this node type.
	Name() string

	// Description returns a description of what this node does.
	Description() string

	// Schema returns the JSON schema of the node data.
	Schema() map[string]any
}
