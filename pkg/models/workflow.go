// Package models defines the core domain models for graph-based workflow execution
package models

import "time"

// Workflow is a user-authored directed graph of nodes and edges, routed by
// tenant, project, method and path.
type Workflow struct {
	ID         string    `json:"id"          validate:"required"`
	Tenant     string    `json:"tenant"      validate:"required"`
	ProjectID  string    `json:"projectId"   validate:"required"`
	Name       string    `json:"name"`
	Method     string    `json:"method"      validate:"required"`
	Path       string    `json:"path"`
	Nodes      []*Node   `json:"nodes"       validate:"required,min=1,dive"`
	Edges      []*Edge   `json:"edges"       validate:"dive"`
	IsDeployed bool      `json:"isDeployed"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Edge is a directed connection between two nodes, addressable by id for
// explicit branch selection.
type Edge struct {
	ID     string `json:"id"     validate:"required"`
	Source string `json:"source" validate:"required"`
	Target string `json:"target" validate:"required"`
}

// NodeByID returns the node with the given id or nil.
func (w *Workflow) NodeByID(id string) *Node {
	for _, node := range w.Nodes {
		if node.ID == id {
			return node
		}
	}

	return nil
}

// EntryNode returns the only node without incoming edges. Zero or several
// candidates fail with NO_ENTRY_NODE.
func (w *Workflow) EntryNode() (*Node, error) {
	targets := make(map[string]bool, len(w.Edges))

	for _, edge := range w.Edges {
		if edge != nil {
			targets[edge.Target] = true
		}
	}

	var candidates []*Node

	for _, node := range w.Nodes {
		if !targets[node.ID] {
			candidates = append(candidates, node)
		}
	}

	switch len(candidates) {
	case 1:
		return candidates[0], nil
	case 0:
		return nil, NewError(ErrNoEntryNode, "workflow has no node without incoming edges")
	default:
		ids := make([]string, 0, len(candidates))
		for _, node := range candidates {
			ids = append(ids, node.ID)
		}

		return nil, NewError(ErrNoEntryNode, "workflow has %d candidate entry nodes", len(candidates)).
			WithDetails(map[string]any{"candidates": ids})
	}
}

// NodesOfType returns the nodes whose type matches nodeType, in declaration order.
func (w *Workflow) NodesOfType(nodeType NodeType) []*Node {
	var nodes []*Node

	for _, node := range w.Nodes {
		if node.Type == nodeType {
			nodes = append(nodes, node)
		}
	}

	return nodes
}

// Project is the read-side view of a project used by trigger pre-conditions.
type Project struct {
	ID             string   `json:"id"`
	Tenant         string   `json:"tenant"`
	Name           string   `json:"name"`
	AllowedOrigins []string `json:"allowedOrigins"`
	// RateLimit is the number of admitted invocations per window. Zero disables the check.
	RateLimit int `json:"rateLimit"`
}

// Secret is an opaque tenant/project/provider-scoped credential bundle.
type Secret struct {
	Tenant   string         `json:"tenant"   bson:"tenant"`
	Project  string         `json:"project"  bson:"project"`
	Provider string         `json:"provider" bson:"provider"`
	Data     map[string]any `json:"data"     bson:"data"`
}

// String returns the string value stored under key, or "".
func (s *Secret) String(key string) string {
	if s == nil || s.Data == nil {
		return ""
	}

	value, _ := s.Data[key].(string)

	return value
}
