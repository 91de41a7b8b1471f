package canvas

import (
	"fmt"

	"github.com/renvik/convograph/pkg/schema"
)

// Lateral spacing between simultaneous self-loops on one node.
const loopOffsetStep = 40

// DeriveEdges computes the full presentation edge set from current routing
// metadata. It is pure and idempotent: identical node input yields an
// identical edge slice, ordered by source node, then function order, then
// condition order. Callers replace the graph's edge set wholesale with the
// result; hand-editing derived edges is never valid.
func DeriveEdges(nodes []Node) []Edge {
	var edges []Edge

	for i := range nodes {
		node := &nodes[i]
		if node.Synthetic() {
			continue
		}

		loopOrdinal := 0
		for fi := range node.Data.Functions {
			fn := &node.Data.Functions[fi]

			if fn.Decision != nil {
				edges = append(edges, deriveDecisionEdges(node.ID, fn)...)
				continue
			}
			if fn.NextNodeID == "" {
				continue
			}

			e := Edge{
				ID:     fmt.Sprintf("%s:%s", node.ID, fn.Name),
				Source: node.ID,
				Target: fn.NextNodeID,
				Label:  fn.Name,
			}
			if fn.NextNodeID == node.ID {
				e.LoopOffset = loopOffsetStep * (loopOrdinal + 1)
				loopOrdinal++
			}
			edges = append(edges, e)
		}
	}

	return edges
}

// deriveDecisionEdges emits the structural edge into the synthetic decision
// node plus one labeled edge per condition and one for the default.
func deriveDecisionEdges(nodeID string, fn *schema.FlowFunction) []Edge {
	decisionID := DecisionNodeID(nodeID, fn.Name)

	edges := []Edge{{
		ID:     fmt.Sprintf("%s:%s", nodeID, decisionID),
		Source: nodeID,
		Target: decisionID,
	}}

	for ci, cond := range fn.Decision.Conditions {
		if cond.NextNodeID == "" {
			continue
		}
		edges = append(edges, Edge{
			ID:     fmt.Sprintf("%s:cond%d", decisionID, ci),
			Source: decisionID,
			Target: cond.NextNodeID,
			Label:  fmt.Sprintf("%s %s", cond.Operator, cond.Value),
		})
	}

	if fn.Decision.DefaultNextNodeID != "" {
		edges = append(edges, Edge{
			ID:     fmt.Sprintf("%s:default", decisionID),
			Source: decisionID,
			Target: fn.Decision.DefaultNextNodeID,
			Label:  "default",
		})
	}

	return edges
}
