package workflow

import (
	"slices"

	"github.com/dukex/flowrun/pkg/models"
)

// graph indexes a workflow for traversal. Edge slices keep declaration order
// so "first outgoing edge" is stable.
type graph struct {
	nodes         map[string]*models.Node
	edges         map[string]*models.Edge
	edgeIDs       []string
	edgesBySource map[string][]*models.Edge
	workflow      *models.Workflow
}

func newGraph(wf *models.Workflow) *graph {
	g := &graph{
		nodes:         make(map[string]*models.Node, len(wf.Nodes)),
		edges:         make(map[string]*models.Edge, len(wf.Edges)),
		edgesBySource: make(map[string][]*models.Edge),
		workflow:      wf,
	}

	for _, node := range wf.Nodes {
		g.nodes[node.ID] = node
	}

	for _, edge := range wf.Edges {
		if edge == nil {
			continue
		}

		g.edges[edge.ID] = edge
		g.edgeIDs = append(g.edgeIDs, edge.ID)
		g.edgesBySource[edge.Source] = append(g.edgesBySource[edge.Source], edge)
	}

	return g
}

// entry returns the only node without incoming edges.
func (g *graph) entry() (*models.Node, error) {
	return g.workflow.EntryNode()
}

// next picks the successor of node. Branching nodes name their edge through
// nextEdgeId in output; everything else follows its first outgoing edge.
// A nil node with a nil error means the run is over.
func (g *graph) next(node *models.Node, output any) (*models.Node, error) {
	if node.Type.IsBranching() {
		edgeID := nextEdgeID(output)
		if edgeID == "" {
			return nil, models.NewError(models.ErrInvalidEdge, "node returned no nextEdgeId").
				WithDetails(map[string]any{"knownEdgeIds": g.edgeIDs})
		}

		edge, ok := g.edges[edgeID]
		if !ok {
			return nil, models.NewError(models.ErrInvalidEdge, "edge %q does not exist", edgeID).
				WithDetails(map[string]any{"edgeId": edgeID, "knownEdgeIds": slices.Clone(g.edgeIDs)})
		}

		return g.target(edge)
	}

	outgoing := g.edgesBySource[node.ID]
	if len(outgoing) == 0 {
		return nil, nil
	}

	return g.target(outgoing[0])
}

func (g *graph) target(edge *models.Edge) (*models.Node, error) {
	node, ok := g.nodes[edge.Target]
	if !ok {
		return nil, models.NewError(models.ErrInvalidEdge, "edge %q targets unknown node %q", edge.ID, edge.Target)
	}

	return node, nil
}

func nextEdgeID(output any) string {
	m, ok := output.(map[string]any)
	if !ok {
		return ""
	}

	id, _ := m["nextEdgeId"].(string)

	return id
}
