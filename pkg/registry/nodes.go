package registry

import (
	"errors"

	"github.com/dukex/flowrun/pkg/nodes/condition"
	"github.com/dukex/flowrun/pkg/nodes/database"
	"github.com/dukex/flowrun/pkg/nodes/jwt"
	"github.com/dukex/flowrun/pkg/nodes/logic"
	"github.com/dukex/flowrun/pkg/nodes/loop"
	"github.com/dukex/flowrun/pkg/nodes/mongodb"
	"github.com/dukex/flowrun/pkg/nodes/parameters"
	"github.com/dukex/flowrun/pkg/nodes/response"
	"github.com/dukex/flowrun/pkg/nodes/start"
	"github.com/dukex/flowrun/pkg/protocol"
)

// DefaultNodes returns the factories of all built-in node types.
func DefaultNodes() []protocol.NodeFactory {
	return []protocol.NodeFactory{
		start.NewStartNodeFactory(),
		parameters.NewParametersNodeFactory(),
		logic.NewLogicNodeFactory(),
		mongodb.NewMongoDBNodeFactory(),
		database.NewDatabaseNodeFactory(),
		jwt.NewGenerateNodeFactory(),
		jwt.NewVerifyNodeFactory(),
		condition.NewConditionNodeFactory(),
		loop.NewLoopNodeFactory(),
		response.NewResponseNodeFactory(),
	}
}

// RegisterDefaultNodes registers all built-in node factories with the registry.
// Every factory is attempted; the returned error joins the failures of those
// whose dependencies are missing.
func (r *Registry) RegisterDefaultNodes() error {
	var errs []error

	for _, factory := range DefaultNodes() {
		if err := r.RegisterNode(factory); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
