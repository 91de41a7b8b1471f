package validation

import (
	"fmt"

	"github.com/renvik/convograph/pkg/schema"
)

// ValidateGraph runs the graph-semantic pass: node id uniqueness, the
// single-initial invariant, and resolution of every routing reference
// (plain targets, condition targets, decision defaults, cached edges).
// Pure; runs independently of the structural pass for defense in depth.
// Callers decide policy: compile and export block on errors, live editing
// surfaces dangling references as warnings via Lint.
func ValidateGraph(doc *schema.FlowDocument) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	if doc == nil {
		result.AddError("/", schema.ErrCodeGraph, "flow document is nil")
		return result
	}

	ids := make(map[string]bool, len(doc.Nodes))
	initials := 0
	for i := range doc.Nodes {
		node := &doc.Nodes[i]
		if ids[node.ID] {
			result.AddError(fmt.Sprintf("nodes[%d]", i), schema.ErrCodeGraph,
				fmt.Sprintf("Duplicate node id: %s", node.ID))
		}
		ids[node.ID] = true
		if node.Kind == schema.NodeKindInitial {
			initials++
		}
	}

	switch {
	case initials == 0:
		result.AddError("nodes", schema.ErrCodeGraph, "flow has no initial node")
	case initials > 1:
		result.AddError("nodes", schema.ErrCodeGraph,
			fmt.Sprintf("flow has %d initial nodes, expected exactly one", initials))
	}

	for i := range doc.Nodes {
		path := fmt.Sprintf("nodes[%d]", i)
		checkFunctionRefs(doc.Nodes[i].Data.Functions, path+".data.functions", ids, result)
	}
	checkFunctionRefs(doc.GlobalFunctions, "global_functions", ids, result)

	for i, edge := range doc.Edges {
		if !ids[edge.Source] {
			result.AddError(fmt.Sprintf("edges[%d].source", i), schema.ErrCodeDangling,
				fmt.Sprintf("Edge references unknown node: %s", edge.Source))
		}
		if !ids[edge.Target] {
			result.AddError(fmt.Sprintf("edges[%d].target", i), schema.ErrCodeDangling,
				fmt.Sprintf("Edge references unknown node: %s", edge.Target))
		}
	}

	return result
}

// checkFunctionRefs verifies every routing target on a function list.
func checkFunctionRefs(fns []schema.FlowFunction, path string, ids map[string]bool, result *schema.ValidationResult) {
	for fi := range fns {
		fn := &fns[fi]
		fnPath := fmt.Sprintf("%s[%d]", path, fi)

		if fn.Decision == nil {
			if fn.NextNodeID != "" && !ids[fn.NextNodeID] {
				result.AddError(fnPath+".next_node_id", schema.ErrCodeDangling,
					fmt.Sprintf("Edge references unknown node: %s", fn.NextNodeID))
			}
			continue
		}

		for ci, cond := range fn.Decision.Conditions {
			if cond.NextNodeID != "" && !ids[cond.NextNodeID] {
				result.AddError(fmt.Sprintf("%s.decision.conditions[%d].next_node_id", fnPath, ci),
					schema.ErrCodeDangling,
					fmt.Sprintf("Edge references unknown node: %s", cond.NextNodeID))
			}
		}
		if fn.Decision.DefaultNextNodeID != "" && !ids[fn.Decision.DefaultNextNodeID] {
			result.AddError(fnPath+".decision.default_next_node_id", schema.ErrCodeDangling,
				fmt.Sprintf("Edge references unknown node: %s", fn.Decision.DefaultNextNodeID))
		}
	}
}
