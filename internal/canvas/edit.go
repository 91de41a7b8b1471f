package canvas

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/renvik/convograph/pkg/schema"
)

// Edit helpers are the per-field update entry points external collaborators
// (inspector forms, import/export UI) use to mutate semantic state. They
// rewrite routing metadata only; the caller settles the graph afterwards so
// synthetic nodes and edges are recomputed, never patched.

// AddNode creates a fresh semantic node with a minted id and appends it.
func AddNode(g *Graph, kind schema.NodeKind, pos schema.Position) *Node {
	id := fmt.Sprintf("node-%s", uuid.New().String()[:8])
	g.Nodes = append(g.Nodes, Node{ID: id, Kind: kind, Position: pos})
	return g.Node(id)
}

// DuplicateNode deep-copies a semantic node under a minted id, offset on
// the canvas. A duplicated initial node becomes a step: the flow keeps
// exactly one entry point.
func DuplicateNode(g *Graph, id string) (*Node, error) {
	src := g.Node(id)
	if src == nil || src.Synthetic() {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "node %q not found", id).WithNode(id)
	}

	cp := src.Clone()
	cp.ID = fmt.Sprintf("%s-copy-%s", id, uuid.New().String()[:8])
	cp.Position.X += 60
	cp.Position.Y += 60
	if cp.Kind == schema.NodeKindInitial {
		cp.Kind = schema.NodeKindStep
	}
	// Stored decision positions belong to the source's synthetic nodes.
	for i := range cp.Data.Functions {
		if cp.Data.Functions[i].Decision != nil {
			cp.Data.Functions[i].Decision.DecisionNodePosition = nil
		}
	}

	g.Nodes = append(g.Nodes, *cp)
	return g.Node(cp.ID), nil
}

// RenameNode changes a semantic node's id and cascades the rewrite through
// every routing reference: plain targets, condition targets and decision
// defaults, across all nodes and global functions.
func RenameNode(g *Graph, oldID, newID string) error {
	if newID == "" {
		return schema.NewError(schema.ErrCodeValidation, "new node id is empty")
	}
	node := g.Node(oldID)
	if node == nil || node.Synthetic() {
		return schema.NewErrorf(schema.ErrCodeNotFound, "node %q not found", oldID).WithNode(oldID)
	}
	if oldID == newID {
		return nil
	}
	if g.Node(newID) != nil {
		return schema.NewErrorf(schema.ErrCodeConflict, "node id %q already in use", newID).WithNode(newID)
	}

	node.ID = newID
	for i := range g.Nodes {
		if g.Nodes[i].Synthetic() {
			continue
		}
		rewriteTargets(g.Nodes[i].Data.Functions, oldID, newID)
	}
	rewriteTargets(g.GlobalFunctions, oldID, newID)
	return nil
}

func rewriteTargets(fns []schema.FlowFunction, oldID, newID string) {
	for i := range fns {
		fn := &fns[i]
		if fn.NextNodeID == oldID {
			fn.NextNodeID = newID
		}
		if fn.Decision == nil {
			continue
		}
		if fn.Decision.DefaultNextNodeID == oldID {
			fn.Decision.DefaultNextNodeID = newID
		}
		for ci := range fn.Decision.Conditions {
			if fn.Decision.Conditions[ci].NextNodeID == oldID {
				fn.Decision.Conditions[ci].NextNodeID = newID
			}
		}
	}
}

// DeleteNode removes a semantic node. The sole initial node and the last
// remaining node are protected. References held by other functions are
// left dangling on purpose: the validator flags them, and the user may
// repoint them via undo or a later edit. Clearing them silently would
// destroy intent.
func DeleteNode(g *Graph, id string) error {
	node := g.Node(id)
	if node == nil || node.Synthetic() {
		return schema.NewErrorf(schema.ErrCodeNotFound, "node %q not found", id).WithNode(id)
	}
	if node.Kind == schema.NodeKindInitial {
		return schema.NewError(schema.ErrCodeConflict, "cannot delete the initial node").WithNode(id)
	}

	semantic := 0
	for i := range g.Nodes {
		if !g.Nodes[i].Synthetic() {
			semantic++
		}
	}
	if semantic <= 1 {
		return schema.NewError(schema.ErrCodeConflict, "cannot delete the last node").WithNode(id)
	}

	out := g.Nodes[:0]
	for i := range g.Nodes {
		if g.Nodes[i].ID != id {
			out = append(out, g.Nodes[i])
		}
	}
	g.Nodes = out
	return nil
}

// SetNextNode sets the plain routing target of a function. Functions
// routing through a decision update the decision's default instead, so the
// two routing modes never fight.
func SetNextNode(g *Graph, nodeID, fnName, target string) error {
	fn := g.Function(nodeID, fnName)
	if fn == nil {
		return functionNotFound(nodeID, fnName)
	}
	if fn.Decision != nil {
		fn.Decision.DefaultNextNodeID = target
		return nil
	}
	fn.NextNodeID = target
	return nil
}

// CreateDecision turns a plain function into a decision-routed one. An
// existing plain target is rewritten into the decision's default and the
// vestigial field cleared.
func CreateDecision(g *Graph, nodeID, fnName, action string) error {
	fn := g.Function(nodeID, fnName)
	if fn == nil {
		return functionNotFound(nodeID, fnName)
	}
	if fn.Decision != nil {
		return schema.NewErrorf(schema.ErrCodeConflict,
			"function %q already has a decision", fnName).WithNode(nodeID)
	}

	fn.Decision = &schema.Decision{
		Action:            action,
		DefaultNextNodeID: fn.NextNodeID,
	}
	fn.NextNodeID = ""
	return nil
}

// RemoveDecision drops a function's decision block, folding the default
// target back into plain routing. The synthesizer removes the matching
// synthetic node on the next settle cycle.
func RemoveDecision(g *Graph, nodeID, fnName string) error {
	fn := g.Function(nodeID, fnName)
	if fn == nil {
		return functionNotFound(nodeID, fnName)
	}
	if fn.Decision == nil {
		return nil
	}
	fn.NextNodeID = fn.Decision.DefaultNextNodeID
	fn.Decision = nil
	return nil
}

// AddCondition appends a branch to a function's decision.
func AddCondition(g *Graph, nodeID, fnName string, cond schema.DecisionCondition) error {
	fn := g.Function(nodeID, fnName)
	if fn == nil {
		return functionNotFound(nodeID, fnName)
	}
	if fn.Decision == nil {
		return schema.NewErrorf(schema.ErrCodeNotFound,
			"function %q has no decision", fnName).WithNode(nodeID)
	}
	fn.Decision.Conditions = append(fn.Decision.Conditions, cond)
	return nil
}

func functionNotFound(nodeID, fnName string) error {
	return schema.NewErrorf(schema.ErrCodeNotFound,
		"function %q not found on node %q", fnName, nodeID).WithNode(nodeID)
}
