package canvas

import (
	"fmt"

	"github.com/renvik/convograph/pkg/schema"
)

// ToPresentation maps a canonical document to the presentation graph:
// every document node appears exactly once, synthetic decision nodes are
// fully determined by the decisions present in the input, and edges are
// derived from routing metadata. Total for well-formed input; malformed
// documents are the validator's concern and are checked by callers before
// externally sourced data reaches this point.
func ToPresentation(doc *schema.FlowDocument) *Graph {
	g := &Graph{
		Schema: doc.Schema,
		DocID:  doc.ID,
		Meta:   doc.Meta,
	}
	if doc.Context != nil {
		ctx := *doc.Context
		g.Context = &ctx
	}
	if doc.GlobalFunctions != nil {
		g.GlobalFunctions = make([]schema.FlowFunction, len(doc.GlobalFunctions))
		for i := range doc.GlobalFunctions {
			g.GlobalFunctions[i] = *doc.GlobalFunctions[i].Clone()
		}
	}

	g.Nodes = make([]Node, 0, len(doc.Nodes))
	for i := range doc.Nodes {
		n := doc.Nodes[i].Clone()
		g.Nodes = append(g.Nodes, Node{
			ID:       n.ID,
			Kind:     n.Kind,
			Position: n.Position,
			Data:     n.Data,
		})
	}

	g.Nodes = Synthesize(g.Nodes)
	g.Edges = DeriveEdges(g.Nodes)
	return g
}

// ToDocument reconstructs the canonical document from presentation state:
// synthetic nodes and derived edges are stripped, semantic nodes keep
// their function data verbatim (including any decision_node_position
// reconciled in by the synthesizer), and the document edge cache is
// repopulated. Round-tripping through ToPresentation reproduces the input
// document except for default-populated cosmetic fields.
func ToDocument(g *Graph) *schema.FlowDocument {
	doc := &schema.FlowDocument{
		Schema: g.Schema,
		ID:     g.DocID,
		Meta:   g.Meta,
	}
	if g.Context != nil {
		ctx := *g.Context
		doc.Context = &ctx
	}
	if g.GlobalFunctions != nil {
		doc.GlobalFunctions = make([]schema.FlowFunction, len(g.GlobalFunctions))
		for i := range g.GlobalFunctions {
			doc.GlobalFunctions[i] = *g.GlobalFunctions[i].Clone()
		}
	}

	doc.Nodes = make([]schema.FlowNode, 0, len(g.Nodes))
	for i := range g.Nodes {
		n := &g.Nodes[i]
		if n.Synthetic() {
			continue
		}
		sn := schema.FlowNode{
			ID:       n.ID,
			Kind:     n.Kind,
			Position: n.Position,
			Data:     n.Data,
		}
		cp := sn.Clone()
		stripVestigialTargets(cp)
		doc.Nodes = append(doc.Nodes, *cp)
	}

	doc.Edges = DeriveDocumentEdges(doc.Nodes)
	return doc
}

// stripVestigialTargets clears a plain next_node_id that coexists with a
// decision block. The decision is authoritative for routing; the stale
// field carries no meaning and is normalized away on export.
func stripVestigialTargets(n *schema.FlowNode) {
	for i := range n.Data.Functions {
		if n.Data.Functions[i].Decision != nil {
			n.Data.Functions[i].NextNodeID = ""
		}
	}
}

// DeriveDocumentEdges computes the exported edge cache: semantic
// source→target transitions with decision branches collapsed onto the
// owning node (the synthetic hop is a presentation artifact).
func DeriveDocumentEdges(nodes []schema.FlowNode) []schema.DocumentEdge {
	var edges []schema.DocumentEdge

	for i := range nodes {
		node := &nodes[i]
		for fi := range node.Data.Functions {
			fn := &node.Data.Functions[fi]

			if fn.Decision == nil {
				if fn.NextNodeID == "" {
					continue
				}
				edges = append(edges, schema.DocumentEdge{
					Source: node.ID,
					Target: fn.NextNodeID,
					Label:  fn.Name,
				})
				continue
			}

			for _, cond := range fn.Decision.Conditions {
				if cond.NextNodeID == "" {
					continue
				}
				edges = append(edges, schema.DocumentEdge{
					Source: node.ID,
					Target: cond.NextNodeID,
					Label:  fmt.Sprintf("%s: %s %s", fn.Name, cond.Operator, cond.Value),
				})
			}
			if fn.Decision.DefaultNextNodeID != "" {
				edges = append(edges, schema.DocumentEdge{
					Source: node.ID,
					Target: fn.Decision.DefaultNextNodeID,
					Label:  fmt.Sprintf("%s: default", fn.Name),
				})
			}
		}
	}

	return edges
}
