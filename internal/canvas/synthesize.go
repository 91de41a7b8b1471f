package canvas

import "github.com/renvik/convograph/pkg/schema"

// Default placement of a freshly created synthetic node relative to its
// owning node, used only when the decision carries no stored position.
const (
	decisionOffsetX = 180
	decisionOffsetY = 120
)

// Synthesize reconciles synthetic decision nodes against the decisions
// currently present on semantic nodes, returning the new node slice:
// missing synthetic nodes are created, stale projections refreshed
// (positions preserved, they belong to the user's drag history), and
// orphans dropped. Semantic nodes pass through untouched in input order;
// synthetic nodes follow in owner-then-function order.
func Synthesize(nodes []Node) []Node {
	existing := make(map[string]*Node)
	for i := range nodes {
		if nodes[i].Synthetic() {
			existing[nodes[i].ID] = &nodes[i]
		}
	}

	out := make([]Node, 0, len(nodes))
	for i := range nodes {
		if !nodes[i].Synthetic() {
			out = append(out, nodes[i])
		}
	}

	for i := range nodes {
		node := &nodes[i]
		if node.Synthetic() {
			continue
		}
		for fi := range node.Data.Functions {
			fn := &node.Data.Functions[fi]
			if fn.Decision == nil {
				continue
			}
			out = append(out, synthesizeOne(node, fn, existing))
		}
	}

	return out
}

// synthesizeOne creates or refreshes the synthetic node for one decision.
func synthesizeOne(owner *Node, fn *schema.FlowFunction, existing map[string]*Node) Node {
	id := DecisionNodeID(owner.ID, fn.Name)
	projection := &DecisionProjection{
		Label:          fn.Name,
		Action:         fn.Decision.Action,
		ConditionCount: len(fn.Decision.Conditions),
		SourceNodeID:   owner.ID,
		FunctionName:   fn.Name,
	}

	if prev, ok := existing[id]; ok {
		refreshed := *prev
		refreshed.Projection = projection
		return refreshed
	}

	pos := schema.Position{
		X: owner.Position.X + decisionOffsetX,
		Y: owner.Position.Y + decisionOffsetY,
	}
	if fn.Decision.DecisionNodePosition != nil {
		pos = *fn.Decision.DecisionNodePosition
	}

	return Node{
		ID:         id,
		Kind:       KindDecision,
		Position:   pos,
		Projection: projection,
	}
}

// CommitDecisionPosition records a drag of a synthetic decision node back
// onto the owning function's decision block. This is the only path where
// presentation state flows into semantic state outside the adapter, and it
// runs within the same settle cycle as the drag-end event.
func CommitDecisionPosition(g *Graph, decisionNodeID string, pos schema.Position) bool {
	node := g.Node(decisionNodeID)
	if node == nil || !node.Synthetic() || node.Projection == nil {
		return false
	}

	fn := g.Function(node.Projection.SourceNodeID, node.Projection.FunctionName)
	if fn == nil || fn.Decision == nil {
		return false
	}

	node.Position = pos
	p := pos
	fn.Decision.DecisionNodePosition = &p
	return true
}
