package codegen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renvik/convograph/internal/expressions"
	"github.com/renvik/convograph/internal/validation"
	"github.com/renvik/convograph/pkg/schema"
)

func newGenerator(t *testing.T) *Generator {
	t.Helper()
	fv, err := validation.NewFlowValidator(expressions.NewExprLinter())
	require.NoError(t, err)
	return NewGenerator(fv)
}

func triageDocument() *schema.FlowDocument {
	return &schema.FlowDocument{
		Meta: schema.Meta{Name: "triage", Version: "2"},
		Nodes: []schema.FlowNode{
			{
				ID:   "intake",
				Kind: schema.NodeKindInitial,
				Data: schema.NodeData{
					TaskMessages: []schema.Message{{Role: schema.RoleSystem, Content: "Ask for a severity score."}},
					Functions: []schema.FlowFunction{{
						Name:        "collect_score",
						Description: "Record the severity score",
						Properties:  map[string]schema.Property{"score": {Type: schema.PropInteger, Description: "1-10"}},
						Required:    []string{"score"},
						Decision: &schema.Decision{
							Action: "args.score",
							Conditions: []schema.DecisionCondition{
								{Operator: schema.OpGreaterEqual, Value: "8", NextNodeID: "urgent"},
								{Operator: schema.OpGreaterEqual, Value: "4", NextNodeID: "routine"},
							},
							DefaultNextNodeID: "dismiss",
						},
					}},
				},
			},
			{
				ID:   "urgent",
				Kind: schema.NodeKindStep,
				Data: schema.NodeData{
					Functions: []schema.FlowFunction{{Name: "close", NextNodeID: "dismiss"}},
				},
			},
			{
				ID:   "routine",
				Kind: schema.NodeKindStep,
				Data: schema.NodeData{
					Functions: []schema.FlowFunction{{Name: "close", NextNodeID: "dismiss"}},
				},
			},
			{ID: "dismiss", Kind: schema.NodeKindEnd},
		},
	}
}

// --- Determinism ---

func TestCompile_Deterministic(t *testing.T) {
	g := newGenerator(t)
	first, err := g.Compile(triageDocument())
	require.NoError(t, err)
	second, err := g.Compile(triageDocument())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCompile_PropertyOrderStable(t *testing.T) {
	doc := triageDocument()
	doc.Nodes[0].Data.Functions[0].Properties = map[string]schema.Property{
		"zeta":  {Type: schema.PropString},
		"alpha": {Type: schema.PropString},
		"mid":   {Type: schema.PropString},
	}
	g := newGenerator(t)

	out, err := g.Compile(doc)
	require.NoError(t, err)
	assert.Less(t, strings.Index(out, `"alpha"`), strings.Index(out, `"mid"`))
	assert.Less(t, strings.Index(out, `"mid"`), strings.Index(out, `"zeta"`))
}

// --- Structure of the emitted scaffold ---

func TestCompile_OneCreatePerNode(t *testing.T) {
	out, err := newGenerator(t).Compile(triageDocument())
	require.NoError(t, err)

	for _, name := range []string{"create_intake", "create_urgent", "create_routine", "create_dismiss"} {
		assert.Contains(t, out, "def "+name+"() -> NodeConfig:")
	}
	assert.Contains(t, out, "return create_intake()")
}

func TestCompile_DecisionChainInArrayOrder(t *testing.T) {
	out, err := newGenerator(t).Compile(triageDocument())
	require.NoError(t, err)

	assert.Contains(t, out, "result = args.score", "action inserted verbatim")
	ifIdx := strings.Index(out, "if result >= 8:")
	elifIdx := strings.Index(out, "elif result >= 4:")
	elseIdx := strings.Index(out, "else:")
	require.Positive(t, ifIdx)
	assert.Less(t, ifIdx, elifIdx)
	assert.Less(t, elifIdx, elseIdx)
	assert.Contains(t, out, "create_urgent()")
	assert.Contains(t, out, "create_dismiss()")
}

func TestCompile_SchemaCarriesPropertiesVerbatim(t *testing.T) {
	out, err := newGenerator(t).Compile(triageDocument())
	require.NoError(t, err)

	assert.Contains(t, out, `properties={"score": {"type": "integer", "description": "1-10"}}`)
	assert.Contains(t, out, `required=["score"]`)
}

func TestCompile_NoContextImportWhenUnused(t *testing.T) {
	out, err := newGenerator(t).Compile(triageDocument())
	require.NoError(t, err)
	assert.NotContains(t, out, "ContextStrategy", "no dead imports for unused features")
}

func TestCompile_ContextWiringWhenPresent(t *testing.T) {
	doc := triageDocument()
	doc.Nodes[1].Data.ContextStrategy = &schema.ContextStrategy{
		Strategy:      schema.ContextResetWithSummary,
		SummaryPrompt: "Summarize the call.",
	}

	out, err := newGenerator(t).Compile(doc)
	require.NoError(t, err)
	assert.Contains(t, out, "from pipecat_flows import ContextStrategy, ContextStrategyConfig")
	assert.Contains(t, out, `ContextStrategyConfig(strategy=ContextStrategy.RESET_WITH_SUMMARY, summary_prompt="Summarize the call.")`)
}

func TestCompile_EndNodeTerminates(t *testing.T) {
	out, err := newGenerator(t).Compile(triageDocument())
	require.NoError(t, err)
	assert.Contains(t, out, `"post_actions": [{"type": "end_conversation"}]`)
}

func TestCompile_InOperatorsAndNot(t *testing.T) {
	doc := triageDocument()
	doc.Nodes[0].Data.Functions[0].Decision.Conditions = []schema.DecisionCondition{
		{Operator: schema.OpIn, Value: `["a", "b"]`, NextNodeID: "urgent"},
		{Operator: schema.OpNotIn, Value: `["c"]`, NextNodeID: "routine"},
		{Operator: schema.OpNot, Value: "", NextNodeID: "dismiss"},
	}

	out, err := newGenerator(t).Compile(doc)
	require.NoError(t, err)
	assert.Contains(t, out, `if result in ["a", "b"]:`)
	assert.Contains(t, out, `elif result not in ["c"]:`)
	assert.Contains(t, out, "elif not result:")
}

func TestCompile_GlobalFunctionsOnEveryNode(t *testing.T) {
	doc := triageDocument()
	doc.GlobalFunctions = []schema.FlowFunction{{Name: "cancel", NextNodeID: "dismiss"}}

	out, err := newGenerator(t).Compile(doc)
	require.NoError(t, err)
	assert.Contains(t, out, "global_cancel_schema = FlowsFunctionSchema(")
	assert.Contains(t, out, "[intake_collect_score_schema, global_cancel_schema]")
}

func TestCompile_EmptyDecisionDefaultStaysPut(t *testing.T) {
	doc := triageDocument()
	doc.Nodes[0].Data.Functions[0].Decision.DefaultNextNodeID = ""

	out, err := newGenerator(t).Compile(doc)
	require.NoError(t, err)
	assert.Contains(t, out, "    else:\n        pass\n")
	assert.NotContains(t, out, "create_()", "unset target must not reference a builder")
}

func TestCompile_ConditionWithoutTargetStaysPut(t *testing.T) {
	doc := triageDocument()
	doc.Nodes[0].Data.Functions[0].Decision.Conditions[0].NextNodeID = ""

	out, err := newGenerator(t).Compile(doc)
	require.NoError(t, err)
	assert.Contains(t, out, "if result >= 8:\n        pass\n")
	assert.Contains(t, out, "elif result >= 4:", "later branches still render")
	assert.NotContains(t, out, "create_()")
}

// --- Refusal ---

func TestCompile_RefusesDanglingReference(t *testing.T) {
	doc := triageDocument()
	doc.Nodes[0].Data.Functions[0].Decision.DefaultNextNodeID = "nowhere"

	out, err := newGenerator(t).Compile(doc)
	assert.Empty(t, out, "refusal must not emit partial source")
	require.Error(t, err)

	ferr := err.(*schema.FlowError)
	assert.Equal(t, schema.ErrCodeCompile, ferr.Code)
	assert.Contains(t, ferr.Message, "Edge references unknown node: nowhere")
}

func TestCompile_RefusesStructuralError(t *testing.T) {
	doc := triageDocument()
	doc.Nodes[0].Kind = "router"

	out, err := newGenerator(t).Compile(doc)
	assert.Empty(t, out)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeCompile, err.(*schema.FlowError).Code)
}

func TestCompile_RefusesDuplicateID(t *testing.T) {
	doc := triageDocument()
	doc.Nodes = append(doc.Nodes, doc.Nodes[1])

	_, err := newGenerator(t).Compile(doc)
	require.Error(t, err)
}
