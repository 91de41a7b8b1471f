package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renvik/convograph/pkg/schema"
)

// --- Identity ---

func TestGraph_ValidDocument(t *testing.T) {
	result := ValidateGraph(minimalDocument())
	assert.True(t, result.Valid())
}

func TestGraph_DuplicateNodeID(t *testing.T) {
	doc := minimalDocument()
	doc.Nodes = append(doc.Nodes, doc.Nodes[0])

	result := ValidateGraph(doc)
	require.False(t, result.Valid())

	found := false
	for _, e := range result.Errors {
		if strings.Contains(e.Message, "Duplicate node id") {
			found = true
		}
	}
	assert.True(t, found, "expected a 'Duplicate node id' error, got %v", result.Errors)
}

func TestGraph_NoInitialNode(t *testing.T) {
	doc := minimalDocument()
	doc.Nodes[0].Kind = schema.NodeKindStep

	result := ValidateGraph(doc)
	require.False(t, result.Valid())
	assert.Contains(t, result.Errors[0].Message, "no initial node")
}

func TestGraph_TwoInitialNodes(t *testing.T) {
	doc := minimalDocument()
	doc.Nodes[1].Kind = schema.NodeKindInitial

	result := ValidateGraph(doc)
	require.False(t, result.Valid())
	assert.Contains(t, result.Errors[0].Message, "expected exactly one")
}

// --- Reference resolution ---

func TestGraph_DanglingPlainTarget(t *testing.T) {
	doc := minimalDocument()
	doc.Nodes[0].Data.Functions[0].NextNodeID = "ghost"

	result := ValidateGraph(doc)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, schema.ErrCodeDangling, result.Errors[0].Code)
	assert.Equal(t, "Edge references unknown node: ghost", result.Errors[0].Message)
	assert.Equal(t, "nodes[0].data.functions[0].next_node_id", result.Errors[0].Path)
}

func TestGraph_DanglingConditionAndDefault(t *testing.T) {
	doc := minimalDocument()
	doc.Nodes[0].Data.Functions[0] = schema.FlowFunction{
		Name: "route",
		Decision: &schema.Decision{
			Action: "args.x",
			Conditions: []schema.DecisionCondition{
				{Operator: schema.OpEqual, Value: "1", NextNodeID: "missing_a"},
				{Operator: schema.OpEqual, Value: "2", NextNodeID: "done"},
			},
			DefaultNextNodeID: "missing_b",
		},
	}

	result := ValidateGraph(doc)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0].Path, "decision.conditions[0]")
	assert.Contains(t, result.Errors[1].Path, "decision.default_next_node_id")
}

func TestGraph_DanglingGlobalFunction(t *testing.T) {
	doc := minimalDocument()
	doc.GlobalFunctions = []schema.FlowFunction{{Name: "cancel", NextNodeID: "nowhere"}}

	result := ValidateGraph(doc)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Path, "global_functions[0]")
}

func TestGraph_DanglingCachedEdge(t *testing.T) {
	doc := minimalDocument()
	doc.Edges = []schema.DocumentEdge{{Source: "start", Target: "phantom"}}

	result := ValidateGraph(doc)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "Edge references unknown node: phantom", result.Errors[0].Message)
}

func TestGraph_VestigialNextNodeIgnoredWhenDecisionPresent(t *testing.T) {
	doc := minimalDocument()
	doc.Nodes[0].Data.Functions[0] = schema.FlowFunction{
		Name:       "route",
		NextNodeID: "ghost", // vestigial: decision is authoritative
		Decision: &schema.Decision{
			Action:            "args.x",
			DefaultNextNodeID: "done",
		},
	}

	result := ValidateGraph(doc)
	assert.True(t, result.Valid(), "errors: %v", result.Errors)
}

func TestGraph_SelfLoopIsValid(t *testing.T) {
	doc := minimalDocument()
	doc.Nodes[0].Data.Functions[0].NextNodeID = "start"

	result := ValidateGraph(doc)
	assert.True(t, result.Valid())
}

func TestGraph_NilDocument(t *testing.T) {
	result := ValidateGraph(nil)
	require.False(t, result.Valid())
}
