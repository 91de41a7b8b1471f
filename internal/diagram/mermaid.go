// Package diagram renders a presentation graph as a Mermaid flowchart,
// used for read-only previews in tools that cannot host the canvas.
package diagram

import (
	"fmt"
	"strings"

	"github.com/renvik/convograph/internal/canvas"
	"github.com/renvik/convograph/pkg/schema"
)

// RenderMermaid renders the graph as a Mermaid flowchart string. Output is
// deterministic: nodes and edges appear in graph order.
func RenderMermaid(g *canvas.Graph) string {
	var b strings.Builder

	b.WriteString("graph TD\n")

	// Title as comment.
	if g.Meta.Name != "" {
		b.WriteString(fmt.Sprintf("    %%%% %s\n", g.Meta.Name))
	}

	// Render nodes with shapes based on kind.
	for i := range g.Nodes {
		b.WriteString(fmt.Sprintf("    %s\n", mermaidNodeDef(&g.Nodes[i])))
	}

	// Render edges.
	for _, edge := range g.Edges {
		label := ""
		if edge.Label != "" {
			label = fmt.Sprintf("|%s|", mermaidEscapeLabel(edge.Label))
		}
		b.WriteString(fmt.Sprintf("    %s -->%s %s\n",
			mermaidSafeID(edge.Source), label, mermaidSafeID(edge.Target)))
	}

	// Kind class definitions.
	b.WriteString("\n")
	b.WriteString("    classDef initial fill:#1a5276,stroke:#0e3a52,color:#fff\n")
	b.WriteString("    classDef end_node fill:#2d6a2d,stroke:#1a4a1a,color:#fff\n")
	b.WriteString("    classDef decision fill:#b7791a,stroke:#8a5c14,color:#fff\n")

	// Apply kind classes.
	for i := range g.Nodes {
		cls := mermaidKindClass(g.Nodes[i].Kind)
		if cls != "" {
			b.WriteString(fmt.Sprintf("    class %s %s\n", mermaidSafeID(g.Nodes[i].ID), cls))
		}
	}

	return b.String()
}

// mermaidNodeDef returns a Mermaid node definition with the appropriate shape.
func mermaidNodeDef(node *canvas.Node) string {
	id := mermaidSafeID(node.ID)
	label := mermaidEscapeLabel(nodeLabel(node))

	switch node.Kind {
	case canvas.KindDecision:
		return fmt.Sprintf("%s{%q}", id, label)
	case schema.NodeKindInitial:
		return fmt.Sprintf("%s((%q))", id, label)
	case schema.NodeKindEnd:
		return fmt.Sprintf("%s((%q))", id, label)
	default: // step
		return fmt.Sprintf("%s[%q]", id, label)
	}
}

// nodeLabel picks the display label: the projection label for synthetic
// decision nodes, the node id otherwise.
func nodeLabel(node *canvas.Node) string {
	if node.Projection != nil && node.Projection.Label != "" {
		return node.Projection.Label
	}
	return node.ID
}

// mermaidSafeID converts a node ID to a Mermaid-safe identifier.
// Replaces dots and dashes with underscores.
func mermaidSafeID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_")
	return r.Replace(id)
}

// mermaidEscapeLabel escapes characters Mermaid treats as markup.
func mermaidEscapeLabel(s string) string {
	r := strings.NewReplacer("\"", "#quot;", "|", "/", "\n", " ")
	return r.Replace(s)
}

// mermaidKindClass maps a node kind to a Mermaid class name.
func mermaidKindClass(kind schema.NodeKind) string {
	switch kind {
	case schema.NodeKindInitial:
		return "initial"
	case schema.NodeKindEnd:
		return "end_node"
	case canvas.KindDecision:
		return "decision"
	default:
		return ""
	}
}
