// Package codegen compiles a canonical flow document into a Python
// conversation scaffold. Rendering is a deterministic template expansion:
// identical documents yield byte-identical source. The exported Generator
// gates rendering behind both validator passes and refuses invalid input
// outright rather than emitting partial source.
package codegen

import (
	"fmt"
	"sort"
	"strings"

	"github.com/renvik/convograph/internal/validation"
	"github.com/renvik/convograph/pkg/schema"
)

// Generator is the gated compile entry point.
type Generator struct {
	validator *validation.FlowValidator
}

// NewGenerator creates a Generator around the given validator.
func NewGenerator(v *validation.FlowValidator) *Generator {
	return &Generator{validator: v}
}

// Compile validates the document with both passes and renders the scaffold.
// On any structural or graph error it refuses with the first issue and
// produces no output at all.
func (g *Generator) Compile(doc *schema.FlowDocument) (string, error) {
	result := g.validator.Validate(doc)
	if first := result.First(); first != nil {
		return "", schema.NewErrorf(schema.ErrCodeCompile,
			"refusing to compile invalid flow: %s", first.Message).
			WithDetails(map[string]any{"path": first.Path, "errors": result.Errors})
	}
	return Render(doc), nil
}

// Render expands a validated document into source text. Pure: callers gate
// validity; Render assumes every routing reference resolves.
func Render(doc *schema.FlowDocument) string {
	var b strings.Builder

	renderHeader(&b, doc)
	renderImports(&b, doc)

	if doc.Context != nil {
		b.WriteString("\n\nDEFAULT_CONTEXT_STRATEGY = ")
		b.WriteString(contextStrategyExpr(doc.Context))
	}

	for i := range doc.GlobalFunctions {
		renderFunctionUnit(&b, "global", &doc.GlobalFunctions[i])
	}

	for i := range doc.Nodes {
		renderNodeUnit(&b, doc, &doc.Nodes[i])
	}

	renderEntrypoint(&b, doc)
	return b.String()
}

func renderHeader(b *strings.Builder, doc *schema.FlowDocument) {
	b.WriteString(`"""`)
	b.WriteString(doc.Meta.Name)
	b.WriteString(" conversation flow scaffold.\n\nGenerated by convograph")
	if doc.Meta.Version != "" {
		fmt.Fprintf(b, " from flow version %s", doc.Meta.Version)
	}
	b.WriteString(". Routing mirrors the flow document;\nedit transitions in the editor, handler bodies here.\n")
	b.WriteString(`"""` + "\n")
}

func renderImports(b *strings.Builder, doc *schema.FlowDocument) {
	b.WriteString("\nfrom pipecat_flows import FlowArgs, FlowManager, FlowsFunctionSchema, NodeConfig\n")
	// Context wiring is imported only when some strategy is configured:
	// unused features produce no dead imports.
	if usesContextStrategy(doc) {
		b.WriteString("from pipecat_flows import ContextStrategy, ContextStrategyConfig\n")
	}
}

func usesContextStrategy(doc *schema.FlowDocument) bool {
	if doc.Context != nil {
		return true
	}
	for i := range doc.Nodes {
		if doc.Nodes[i].Data.ContextStrategy != nil {
			return true
		}
	}
	return false
}

// renderNodeUnit emits every function unit owned by the node, then the
// node's deterministic config builder.
func renderNodeUnit(b *strings.Builder, doc *schema.FlowDocument, node *schema.FlowNode) {
	for fi := range node.Data.Functions {
		renderFunctionUnit(b, node.ID, &node.Data.Functions[fi])
	}
	renderNodeConfig(b, doc, node)
}

// renderFunctionUnit emits the argument handler, the transition callback
// and the function schema block for one function.
func renderFunctionUnit(b *strings.Builder, owner string, fn *schema.FlowFunction) {
	unit := pyName(owner) + "_" + pyName(fn.Name)

	fmt.Fprintf(b, "\n\nasync def %s_handler(args: FlowArgs) -> dict:\n", unit)
	fmt.Fprintf(b, "    # TODO: implement %s\n", fn.Name)
	b.WriteString("    return {\"status\": \"ok\"}\n")

	renderTransition(b, unit, fn)

	fmt.Fprintf(b, "\n\n%s_schema = FlowsFunctionSchema(\n", unit)
	fmt.Fprintf(b, "    name=%s,\n", pyStr(fn.Name))
	fmt.Fprintf(b, "    description=%s,\n", pyStr(fn.Description))
	fmt.Fprintf(b, "    properties=%s,\n", propertiesExpr(fn.Properties))
	fmt.Fprintf(b, "    required=%s,\n", stringListExpr(fn.Required))
	fmt.Fprintf(b, "    handler=%s_handler,\n", unit)
	fmt.Fprintf(b, "    transition_callback=%s_transition,\n", unit)
	b.WriteString(")\n")
}

// renderTransition emits the control-flow mirror of the function's routing:
// a plain jump, or the decision's ordered if/elif chain with the default as
// the trailing else. The action expression is inserted verbatim; it is
// opaque to the generator.
func renderTransition(b *strings.Builder, unit string, fn *schema.FlowFunction) {
	fmt.Fprintf(b, "\n\nasync def %s_transition(args: FlowArgs, flow_manager: FlowManager) -> None:\n", unit)

	if fn.Decision == nil {
		jumpStmt(b, "    ", fn.NextNodeID)
		return
	}

	fmt.Fprintf(b, "    result = %s\n", fn.Decision.Action)
	keyword := "if"
	for _, cond := range fn.Decision.Conditions {
		fmt.Fprintf(b, "    %s %s:\n", keyword, conditionExpr(cond))
		jumpStmt(b, "        ", cond.NextNodeID)
		keyword = "elif"
	}
	if keyword == "if" {
		// No conditions: the default is the unconditional jump.
		jumpStmt(b, "    ", fn.Decision.DefaultNextNodeID)
		return
	}
	b.WriteString("    else:\n")
	jumpStmt(b, "        ", fn.Decision.DefaultNextNodeID)
}

// jumpStmt emits the jump for one routing target. An empty target means the
// conversation stays in the current node: the edge deriver draws no edge for
// it, and the emitted code agrees rather than calling a builder that was
// never rendered.
func jumpStmt(b *strings.Builder, indent, target string) {
	if target == "" {
		b.WriteString(indent + "pass\n")
		return
	}
	fmt.Fprintf(b, "%sawait flow_manager.set_node_from_config(create_%s())\n", indent, pyName(target))
}

// conditionExpr renders one decision branch guard. Values are carried
// verbatim: the editor owns their literal syntax.
func conditionExpr(cond schema.DecisionCondition) string {
	switch cond.Operator {
	case schema.OpNot:
		return "not result"
	case schema.OpIn:
		return fmt.Sprintf("result in %s", cond.Value)
	case schema.OpNotIn:
		return fmt.Sprintf("result not in %s", cond.Value)
	default:
		return fmt.Sprintf("result %s %s", cond.Operator, cond.Value)
	}
}

func renderNodeConfig(b *strings.Builder, doc *schema.FlowDocument, node *schema.FlowNode) {
	fmt.Fprintf(b, "\n\ndef create_%s() -> NodeConfig:\n", pyName(node.ID))
	b.WriteString("    return {\n")
	fmt.Fprintf(b, "        \"name\": %s,\n", pyStr(node.ID))

	if len(node.Data.RoleMessages) > 0 {
		fmt.Fprintf(b, "        \"role_messages\": %s,\n", messagesExpr(node.Data.RoleMessages))
	}
	if len(node.Data.TaskMessages) > 0 {
		fmt.Fprintf(b, "        \"task_messages\": %s,\n", messagesExpr(node.Data.TaskMessages))
	}

	var refs []string
	for fi := range node.Data.Functions {
		refs = append(refs, pyName(node.ID)+"_"+pyName(node.Data.Functions[fi].Name)+"_schema")
	}
	for gi := range doc.GlobalFunctions {
		refs = append(refs, "global_"+pyName(doc.GlobalFunctions[gi].Name)+"_schema")
	}
	fmt.Fprintf(b, "        \"functions\": [%s],\n", strings.Join(refs, ", "))

	if len(node.Data.PreActions) > 0 {
		fmt.Fprintf(b, "        \"pre_actions\": %s,\n", actionsExpr(node.Data.PreActions))
	}
	post := node.Data.PostActions
	if node.Kind == schema.NodeKindEnd {
		post = append(append([]schema.Action(nil), post...), schema.Action{Type: "end_conversation"})
	}
	if len(post) > 0 {
		fmt.Fprintf(b, "        \"post_actions\": %s,\n", actionsExpr(post))
	}
	if node.Data.ContextStrategy != nil {
		fmt.Fprintf(b, "        \"context_strategy\": %s,\n", contextStrategyExpr(node.Data.ContextStrategy))
	}
	b.WriteString("    }\n")
}

func renderEntrypoint(b *strings.Builder, doc *schema.FlowDocument) {
	initial := doc.InitialNode()
	if initial == nil {
		return
	}
	b.WriteString("\n\ndef initial_node() -> NodeConfig:\n")
	fmt.Fprintf(b, "    return create_%s()\n", pyName(initial.ID))
}

// --- Expression helpers ---

func contextStrategyExpr(cs *schema.ContextStrategy) string {
	name := map[schema.ContextStrategyKind]string{
		schema.ContextAppend:           "APPEND",
		schema.ContextReset:            "RESET",
		schema.ContextResetWithSummary: "RESET_WITH_SUMMARY",
	}[cs.Strategy]

	if cs.SummaryPrompt != "" {
		return fmt.Sprintf("ContextStrategyConfig(strategy=ContextStrategy.%s, summary_prompt=%s)",
			name, pyStr(cs.SummaryPrompt))
	}
	return fmt.Sprintf("ContextStrategyConfig(strategy=ContextStrategy.%s)", name)
}

// propertiesExpr renders the parameter schema verbatim, keys sorted so the
// output is deterministic regardless of map iteration order.
func propertiesExpr(props map[string]schema.Property) string {
	if len(props) == 0 {
		return "{}"
	}
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		p := props[name]
		fields := []string{fmt.Sprintf("\"type\": %s", pyStr(string(p.Type)))}
		if p.Description != "" {
			fields = append(fields, fmt.Sprintf("\"description\": %s", pyStr(p.Description)))
		}
		if len(p.Enum) > 0 {
			fields = append(fields, fmt.Sprintf("\"enum\": %s", stringListExpr(p.Enum)))
		}
		parts = append(parts, fmt.Sprintf("%s: {%s}", pyStr(name), strings.Join(fields, ", ")))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func messagesExpr(msgs []schema.Message) string {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		parts = append(parts, fmt.Sprintf("{\"role\": %s, \"content\": %s}",
			pyStr(string(m.Role)), pyStr(m.Content)))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func actionsExpr(acts []schema.Action) string {
	parts := make([]string, 0, len(acts))
	for _, a := range acts {
		fields := []string{fmt.Sprintf("\"type\": %s", pyStr(a.Type))}
		if a.Text != "" {
			fields = append(fields, fmt.Sprintf("\"text\": %s", pyStr(a.Text)))
		}
		keys := make([]string, 0, len(a.Args))
		for k := range a.Args {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fields = append(fields, fmt.Sprintf("%s: %s", pyStr(k), pyValue(a.Args[k])))
		}
		parts = append(parts, "{"+strings.Join(fields, ", ")+"}")
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func stringListExpr(items []string) string {
	parts := make([]string, 0, len(items))
	for _, s := range items {
		parts = append(parts, pyStr(s))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// pyValue renders a decoded JSON value as a Python literal.
func pyValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "None"
	case bool:
		if t {
			return "True"
		}
		return "False"
	case string:
		return pyStr(t)
	case float64:
		return strings.TrimSuffix(fmt.Sprintf("%g", t), ".0")
	default:
		return pyStr(fmt.Sprintf("%v", t))
	}
}

// pyStr renders a double-quoted Python string literal.
func pyStr(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// pyName converts a node or function id into a Python identifier.
func pyName(id string) string {
	var b strings.Builder
	for i, r := range id {
		valid := r == '_' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9' && i > 0)
		if valid {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}
