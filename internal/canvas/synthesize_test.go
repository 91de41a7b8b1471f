package canvas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renvik/convograph/pkg/schema"
)

func decisionFn(name, defaultTarget string, conds ...schema.DecisionCondition) schema.FlowFunction {
	return schema.FlowFunction{
		Name: name,
		Decision: &schema.Decision{
			Action:            "args." + name,
			Conditions:        conds,
			DefaultNextNodeID: defaultTarget,
		},
	}
}

// --- Creation ---

func TestSynthesize_CreatesOnePerDecision(t *testing.T) {
	nodes := []Node{
		plainNode("a", schema.NodeKindInitial,
			decisionFn("route", "b"),
			decisionFn("escalate", "b"),
			schema.FlowFunction{Name: "plain", NextNodeID: "b"},
		),
		plainNode("b", schema.NodeKindEnd),
	}

	out := Synthesize(nodes)
	require.Len(t, out, 4)

	var synthetic []Node
	for _, n := range out {
		if n.Synthetic() {
			synthetic = append(synthetic, n)
		}
	}
	require.Len(t, synthetic, 2)
	assert.Equal(t, DecisionNodeID("a", "route"), synthetic[0].ID)
	assert.Equal(t, DecisionNodeID("a", "escalate"), synthetic[1].ID)
	assert.Equal(t, "a", synthetic[0].Projection.SourceNodeID)
	assert.Equal(t, "route", synthetic[0].Projection.FunctionName)
}

func TestSynthesize_SeedsPositionFromOwner(t *testing.T) {
	nodes := []Node{
		{ID: "a", Kind: schema.NodeKindInitial, Position: schema.Position{X: 100, Y: 50},
			Data: schema.NodeData{Functions: []schema.FlowFunction{decisionFn("route", "a")}}},
	}

	out := Synthesize(nodes)
	require.Len(t, out, 2)
	assert.Equal(t, schema.Position{X: 100 + decisionOffsetX, Y: 50 + decisionOffsetY}, out[1].Position)
}

func TestSynthesize_SeedsStoredPosition(t *testing.T) {
	fn := decisionFn("route", "a")
	fn.Decision.DecisionNodePosition = &schema.Position{X: 7, Y: 9}
	nodes := []Node{plainNode("a", schema.NodeKindInitial, fn)}

	out := Synthesize(nodes)
	require.Len(t, out, 2)
	assert.Equal(t, schema.Position{X: 7, Y: 9}, out[1].Position)
}

// --- Refresh ---

func TestSynthesize_RefreshesStaleProjection_PreservesPosition(t *testing.T) {
	nodes := []Node{plainNode("a", schema.NodeKindInitial, decisionFn("route", "a"))}
	out := Synthesize(nodes)
	require.Len(t, out, 2)

	// User drags the synthetic node, then edits the decision.
	out[1].Position = schema.Position{X: 500, Y: 500}
	fn := out[0].Data.Functions
	fn[0].Decision.Action = "args.changed"
	fn[0].Decision.Conditions = append(fn[0].Decision.Conditions,
		schema.DecisionCondition{Operator: schema.OpEqual, Value: "x", NextNodeID: "a"})

	out = Synthesize(out)
	require.Len(t, out, 2)
	assert.Equal(t, "args.changed", out[1].Projection.Action)
	assert.Equal(t, 1, out[1].Projection.ConditionCount)
	assert.Equal(t, schema.Position{X: 500, Y: 500}, out[1].Position, "drag history owns the position")
}

func TestSynthesize_Idempotent(t *testing.T) {
	nodes := []Node{
		plainNode("a", schema.NodeKindInitial, decisionFn("route", "b")),
		plainNode("b", schema.NodeKindEnd),
	}
	once := Synthesize(nodes)
	twice := Synthesize(once)
	assert.Equal(t, once, twice)
}

// --- Orphan cleanup ---

func TestSynthesize_RemovesOrphan_DecisionRemoved(t *testing.T) {
	nodes := []Node{
		plainNode("a", schema.NodeKindInitial, decisionFn("route", "b"), decisionFn("other", "b")),
		plainNode("b", schema.NodeKindEnd),
	}
	out := Synthesize(nodes)
	require.Len(t, out, 4)

	out[0].Data.Functions[0].Decision = nil
	out = Synthesize(out)

	require.Len(t, out, 3)
	for _, n := range out {
		assert.NotEqual(t, DecisionNodeID("a", "route"), n.ID)
	}
	// The sibling decision survives untouched.
	assert.Equal(t, DecisionNodeID("a", "other"), out[2].ID)
}

func TestSynthesize_RemovesOrphan_OwnerDeleted(t *testing.T) {
	nodes := []Node{
		plainNode("a", schema.NodeKindInitial, decisionFn("route", "b")),
		plainNode("b", schema.NodeKindEnd),
	}
	out := Synthesize(nodes)
	require.Len(t, out, 3)

	// Drop the owning node; its synthetic child must go with it.
	out = append(out[:0:0], out[1:]...)
	out = Synthesize(out)

	require.Len(t, out, 1)
	assert.Equal(t, "b", out[0].ID)
}

// --- Drag write-back ---

func TestCommitDecisionPosition_WritesThrough(t *testing.T) {
	g := &Graph{Nodes: []Node{plainNode("a", schema.NodeKindInitial, decisionFn("route", "a"))}}
	g.Nodes = Synthesize(g.Nodes)
	id := DecisionNodeID("a", "route")

	ok := CommitDecisionPosition(g, id, schema.Position{X: 42, Y: 24})
	require.True(t, ok)

	assert.Equal(t, schema.Position{X: 42, Y: 24}, g.Node(id).Position)
	fn := g.Function("a", "route")
	require.NotNil(t, fn.Decision.DecisionNodePosition)
	assert.Equal(t, schema.Position{X: 42, Y: 24}, *fn.Decision.DecisionNodePosition)
}

func TestCommitDecisionPosition_RejectsSemanticNode(t *testing.T) {
	g := &Graph{Nodes: []Node{plainNode("a", schema.NodeKindInitial)}}
	assert.False(t, CommitDecisionPosition(g, "a", schema.Position{X: 1, Y: 1}))
}
