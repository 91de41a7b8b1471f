package canvas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renvik/convograph/pkg/schema"
)

func plainNode(id string, kind schema.NodeKind, fns ...schema.FlowFunction) Node {
	return Node{ID: id, Kind: kind, Data: schema.NodeData{Functions: fns}}
}

// --- Plain routing ---

func TestDerive_PlainFunction_SingleEdge(t *testing.T) {
	nodes := []Node{
		plainNode("a", schema.NodeKindInitial, schema.FlowFunction{Name: "go_b", NextNodeID: "b"}),
		plainNode("b", schema.NodeKindEnd),
	}

	edges := DeriveEdges(nodes)
	require.Len(t, edges, 1)
	assert.Equal(t, "a", edges[0].Source)
	assert.Equal(t, "b", edges[0].Target)
	assert.Equal(t, "go_b", edges[0].Label)
	assert.Zero(t, edges[0].LoopOffset)
}

func TestDerive_UnroutedFunction_NoEdge(t *testing.T) {
	nodes := []Node{
		plainNode("a", schema.NodeKindInitial, schema.FlowFunction{Name: "collect"}),
	}
	assert.Empty(t, DeriveEdges(nodes))
}

func TestDerive_Idempotent(t *testing.T) {
	nodes := []Node{
		plainNode("a", schema.NodeKindInitial,
			schema.FlowFunction{Name: "one", NextNodeID: "b"},
			schema.FlowFunction{Name: "two", NextNodeID: "a"},
		),
		plainNode("b", schema.NodeKindStep, schema.FlowFunction{
			Name: "route",
			Decision: &schema.Decision{
				Action:            "args.count",
				Conditions:        []schema.DecisionCondition{{Operator: schema.OpLess, Value: "3", NextNodeID: "a"}},
				DefaultNextNodeID: "b",
			},
		}),
	}
	nodes = Synthesize(nodes)

	first := DeriveEdges(nodes)
	second := DeriveEdges(nodes)
	assert.True(t, EdgesEqual(first, second))
	assert.Equal(t, first, second)
}

// --- Decision routing ---

func TestDerive_Decision_StructuralAndBranchEdges(t *testing.T) {
	nodes := []Node{
		plainNode("triage", schema.NodeKindInitial, schema.FlowFunction{
			Name: "score",
			Decision: &schema.Decision{
				Action: "args.score",
				Conditions: []schema.DecisionCondition{
					{Operator: schema.OpGreaterEqual, Value: "8", NextNodeID: "urgent"},
					{Operator: schema.OpGreaterEqual, Value: "4", NextNodeID: "normal"},
				},
				DefaultNextNodeID: "low",
			},
		}),
		plainNode("urgent", schema.NodeKindStep),
		plainNode("normal", schema.NodeKindStep),
		plainNode("low", schema.NodeKindEnd),
	}
	nodes = Synthesize(nodes)

	edges := DeriveEdges(nodes)
	require.Len(t, edges, 4)

	decisionID := DecisionNodeID("triage", "score")
	assert.Equal(t, Edge{ID: "triage:" + decisionID, Source: "triage", Target: decisionID}, edges[0])
	assert.Equal(t, decisionID, edges[1].Source)
	assert.Equal(t, "urgent", edges[1].Target)
	assert.Equal(t, ">= 8", edges[1].Label)
	assert.Equal(t, "normal", edges[2].Target)
	assert.Equal(t, ">= 4", edges[2].Label)
	assert.Equal(t, "low", edges[3].Target)
	assert.Equal(t, "default", edges[3].Label)
}

func TestDerive_Decision_SkipsEmptyBranchTargets(t *testing.T) {
	nodes := []Node{
		plainNode("a", schema.NodeKindInitial, schema.FlowFunction{
			Name: "route",
			Decision: &schema.Decision{
				Action:     "args.x",
				Conditions: []schema.DecisionCondition{{Operator: schema.OpEqual, Value: "1"}},
			},
		}),
	}
	nodes = Synthesize(nodes)

	edges := DeriveEdges(nodes)
	require.Len(t, edges, 1, "only the structural edge into the decision node")
	assert.Equal(t, DecisionNodeID("a", "route"), edges[0].Target)
}

// --- Self-loops ---

func TestDerive_SelfLoop_Valid(t *testing.T) {
	nodes := []Node{
		plainNode("a", schema.NodeKindInitial, schema.FlowFunction{Name: "retry", NextNodeID: "a"}),
	}

	edges := DeriveEdges(nodes)
	require.Len(t, edges, 1)
	assert.Equal(t, "a", edges[0].Source)
	assert.Equal(t, "a", edges[0].Target)
	assert.Equal(t, loopOffsetStep, edges[0].LoopOffset)
}

func TestDerive_TwoSelfLoops_DistinctOffsets(t *testing.T) {
	nodes := []Node{
		plainNode("a", schema.NodeKindInitial,
			schema.FlowFunction{Name: "retry", NextNodeID: "a"},
			schema.FlowFunction{Name: "clarify", NextNodeID: "a"},
		),
	}

	edges := DeriveEdges(nodes)
	require.Len(t, edges, 2)
	assert.NotZero(t, edges[0].LoopOffset)
	assert.NotZero(t, edges[1].LoopOffset)
	assert.NotEqual(t, edges[0].LoopOffset, edges[1].LoopOffset)
}

func TestDerive_SelfLoopOffsets_StableAcrossRuns(t *testing.T) {
	nodes := []Node{
		plainNode("a", schema.NodeKindInitial,
			schema.FlowFunction{Name: "retry", NextNodeID: "a"},
			schema.FlowFunction{Name: "advance", NextNodeID: "b"},
			schema.FlowFunction{Name: "clarify", NextNodeID: "a"},
		),
		plainNode("b", schema.NodeKindEnd),
	}

	first := DeriveEdges(nodes)
	second := DeriveEdges(nodes)
	assert.Equal(t, first, second)
	// Ordinals count self-loop functions only.
	assert.Equal(t, loopOffsetStep, first[0].LoopOffset)
	assert.Zero(t, first[1].LoopOffset)
	assert.Equal(t, 2*loopOffsetStep, first[2].LoopOffset)
}
