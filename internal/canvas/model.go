package canvas

import (
	"fmt"

	"github.com/renvik/convograph/pkg/schema"
)

// KindDecision is the extra presentation-only node kind: a synthetic node
// projected from a function's decision block. It never appears in a
// FlowDocument.
const KindDecision schema.NodeKind = "decision"

// Node is one presentation node on the canvas. Semantic nodes carry the
// canonical NodeData verbatim; synthetic decision nodes carry a Projection
// instead and their Data stays zero.
type Node struct {
	ID         string
	Kind       schema.NodeKind
	Position   schema.Position
	Data       schema.NodeData
	Projection *DecisionProjection
}

// DecisionProjection is the derived payload of a synthetic decision node.
// It is always recomputable from the owning function; only the node's
// position is user-authored.
type DecisionProjection struct {
	Label          string
	Action         string
	ConditionCount int
	SourceNodeID   string
	FunctionName   string
}

// Synthetic reports whether the node is a visualization-only decision node.
func (n *Node) Synthetic() bool {
	return n.Kind == KindDecision
}

// Edge is one derived presentation edge. LoopOffset is a stable lateral
// offset in canvas units for self-loops so simultaneous loops on the same
// node never coincide; it is zero for ordinary edges.
type Edge struct {
	ID         string
	Source     string
	Target     string
	Label      string
	LoopOffset int
}

// Graph is the full presentation state: canvas nodes (semantic plus
// synthetic) and derived edges, carrying the document-level fields needed
// to reconstruct the canonical form losslessly.
type Graph struct {
	Schema          string
	DocID           string
	Meta            schema.Meta
	Context         *schema.ContextStrategy
	GlobalFunctions []schema.FlowFunction
	Nodes           []Node
	Edges           []Edge
}

// DecisionNodeID returns the deterministic synthetic node id for the
// decision on function fnName of node nodeID.
func DecisionNodeID(nodeID, fnName string) string {
	return fmt.Sprintf("decision-%s-%s", nodeID, fnName)
}

// Node returns the node with the given id, or nil.
func (g *Graph) Node(id string) *Node {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i]
		}
	}
	return nil
}

// Function returns the named function on the given semantic node, or nil.
func (g *Graph) Function(nodeID, fnName string) *schema.FlowFunction {
	n := g.Node(nodeID)
	if n == nil || n.Synthetic() {
		return nil
	}
	for i := range n.Data.Functions {
		if n.Data.Functions[i].Name == fnName {
			return &n.Data.Functions[i]
		}
	}
	return nil
}

// Clone returns a deep structural copy of the graph. Undo snapshots and
// settle-cycle whole-value replacement both go through here.
func (g *Graph) Clone() *Graph {
	if g == nil {
		return nil
	}
	out := *g
	if g.Context != nil {
		ctx := *g.Context
		out.Context = &ctx
	}
	if g.GlobalFunctions != nil {
		out.GlobalFunctions = make([]schema.FlowFunction, len(g.GlobalFunctions))
		for i := range g.GlobalFunctions {
			out.GlobalFunctions[i] = *g.GlobalFunctions[i].Clone()
		}
	}
	out.Nodes = make([]Node, len(g.Nodes))
	for i := range g.Nodes {
		out.Nodes[i] = *g.Nodes[i].Clone()
	}
	if g.Edges != nil {
		out.Edges = append([]Edge(nil), g.Edges...)
	}
	return &out
}

// Clone returns a deep structural copy of the node.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := *n
	sn := schema.FlowNode{Data: n.Data}
	out.Data = sn.Clone().Data
	if n.Projection != nil {
		p := *n.Projection
		out.Projection = &p
	}
	return &out
}

// EdgesEqual reports whether two derived edge sets are structurally
// identical. Callers use it to skip redundant replacement (and the
// render/undo churn that would follow).
func EdgesEqual(a, b []Edge) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
