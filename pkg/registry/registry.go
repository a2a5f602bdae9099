// Package registry keeps the dispatch table from node type to handler.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/protocol"
	"github.com/go-playground/validator/v10"
	"github.com/xeipuuv/gojsonschema"
)

var ErrNodeNotRegistered = errors.New("node type not registered")

type entry struct {
	factory protocol.NodeFactory
	handler protocol.Handler
}

type Registry struct {
	logger  *slog.Logger
	deps    protocol.Dependencies
	mutex   sync.RWMutex
	entries map[models.NodeType]entry
}

func NewRegistry(logger *slog.Logger, deps protocol.Dependencies) *Registry {
	if deps.Logger == nil {
		deps.Logger = logger
	}

	if deps.Validator == nil {
		deps.Validator = validator.New(validator.WithRequiredStructEnabled())
	}

	return &Registry{
		logger:  logger,
		deps:    deps,
		entries: make(map[models.NodeType]entry),
	}
}

// RegisterNode builds the factory's handler and adds it to the table. A later
// registration for the same type replaces the earlier one.
func (r *Registry) RegisterNode(factory protocol.NodeFactory) error {
	handler, err := factory.Create(r.deps)
	if err != nil {
		return fmt.Errorf("failed to create %s handler: %w", factory.ID(), err)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.entries[factory.ID()] = entry{factory: factory, handler: handler}

	r.logger.Debug("Registered node", "type", factory.ID())

	return nil
}

// Handler returns the handler for nodeType.
func (r *Registry) Handler(nodeType models.NodeType) (protocol.Handler, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	e, ok := r.entries[nodeType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotRegistered, nodeType)
	}

	return e.handler, nil
}

// GetAvailableNodes returns the registered factories ordered by type.
func (r *Registry) GetAvailableNodes() []protocol.NodeFactory {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	factories := make([]protocol.NodeFactory, 0, len(r.entries))
	for _, e := range r.entries {
		factories = append(factories, e.factory)
	}

	sort.Slice(factories, func(i, j int) bool {
		return factories[i].ID() < factories[j].ID()
	})

	return factories
}

// ValidateWorkflow checks a workflow before it is executed: every node has a
// registered handler and valid data, ids are unique and not reserved, every
// edge endpoint exists, every branch edge id points at an edge leaving its
// node and exactly one node has no incoming edge.
func (r *Registry) ValidateWorkflow(workflow *models.Workflow) error {
	if workflow == nil {
		return models.NewError(models.ErrWorkflowNotFound, "workflow is nil")
	}

	err := r.deps.Validator.Struct(workflow)
	if err != nil {
		return models.WrapError(models.ErrValidationFailed, err)
	}

	nodes := make(map[string]*models.Node, len(workflow.Nodes))

	for _, node := range workflow.Nodes {
		if models.IsReservedNodeID(node.ID) {
			return models.AtNode(models.NewError(models.ErrValidationFailed, "node id %q is reserved", node.ID), node)
		}

		if _, dup := nodes[node.ID]; dup {
			return models.NewError(models.ErrValidationFailed, "duplicate node id %s", node.ID)
		}

		nodes[node.ID] = node

		err = r.validateNode(node)
		if err != nil {
			return models.AtNode(err, node)
		}
	}

	edges := make(map[string]*models.Edge, len(workflow.Edges))

	for _, edge := range workflow.Edges {
		if _, dup := edges[edge.ID]; dup {
			return models.NewError(models.ErrInvalidEdge, "duplicate edge id %s", edge.ID)
		}

		if nodes[edge.Source] == nil {
			return models.NewError(models.ErrInvalidEdge, "edge %s references unknown source node %s", edge.ID, edge.Source)
		}

		if nodes[edge.Target] == nil {
			return models.NewError(models.ErrInvalidEdge, "edge %s references unknown target node %s", edge.ID, edge.Target)
		}

		edges[edge.ID] = edge
	}

	for _, node := range workflow.Nodes {
		err = validateBranches(node, edges)
		if err != nil {
			return models.AtNode(err, node)
		}
	}

	if _, err := workflow.EntryNode(); err != nil {
		return err
	}

	return nil
}

func (r *Registry) validateNode(node *models.Node) error {
	r.mutex.RLock()
	e, ok := r.entries[node.Type]
	r.mutex.RUnlock()

	if !ok {
		return models.NewError(models.ErrExecutionFailed, "no handler registered for node type %q", node.Type)
	}

	data := node.Data
	if data == nil {
		data = map[string]any{}
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(e.factory.Schema()), gojsonschema.NewGoLoader(data))
	if err != nil {
		return models.WrapError(models.ErrValidationFailed, err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, resultErr := range result.Errors() {
			details = append(details, resultErr.String())
		}

		return models.NewError(models.ErrValidationFailed, "invalid %s node data: %s", node.Type, strings.Join(details, "; ")).
			WithDetails(details)
	}

	return e.handler.Validate(node)
}

func validateBranches(node *models.Node, edges map[string]*models.Edge) error {
	if !node.Type.IsBranching() {
		return nil
	}

	var trueEdge, falseEdge string

	switch node.Type {
	case models.NodeTypeCondition:
		data, err := models.DecodeData[models.ConditionData](node)
		if err != nil {
			return models.WrapError(models.ErrValidationFailed, err)
		}

		trueEdge, falseEdge = data.TrueEdgeID, data.FalseEdgeID
	case models.NodeTypeLoop:
		data, err := models.DecodeData[models.LoopData](node)
		if err != nil {
			return models.WrapError(models.ErrValidationFailed, err)
		}

		trueEdge, falseEdge = data.TrueEdgeID, data.FalseEdgeID
	}

	for _, id := range []string{trueEdge, falseEdge} {
		edge, ok := edges[id]
		if !ok {
			return models.NewError(models.ErrInvalidEdge, "branch edge %s does not exist", id)
		}

		if edge.Source != node.ID {
			return models.NewError(models.ErrInvalidEdge, "branch edge %s does not leave node %s", id, node.ID)
		}
	}

	return nil
}
