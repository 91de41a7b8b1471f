package schema

// Structural copies for every entity type. Duplicate, import and undo
// paths all go through these instead of serialize/deserialize round-trips.

// Clone returns a deep structural copy of the document.
func (d *FlowDocument) Clone() *FlowDocument {
	if d == nil {
		return nil
	}
	out := *d
	out.GlobalFunctions = cloneFunctions(d.GlobalFunctions)
	if d.Context != nil {
		ctx := *d.Context
		out.Context = &ctx
	}
	out.Nodes = make([]FlowNode, len(d.Nodes))
	for i := range d.Nodes {
		out.Nodes[i] = *d.Nodes[i].Clone()
	}
	if d.Edges != nil {
		out.Edges = append([]DocumentEdge(nil), d.Edges...)
	}
	return &out
}

// Clone returns a deep structural copy of the node.
func (n *FlowNode) Clone() *FlowNode {
	if n == nil {
		return nil
	}
	out := *n
	out.Data = *n.Data.clone()
	return &out
}

func (d *NodeData) clone() *NodeData {
	out := *d
	if d.RoleMessages != nil {
		out.RoleMessages = append([]Message(nil), d.RoleMessages...)
	}
	if d.TaskMessages != nil {
		out.TaskMessages = append([]Message(nil), d.TaskMessages...)
	}
	out.Functions = cloneFunctions(d.Functions)
	out.PreActions = cloneActions(d.PreActions)
	out.PostActions = cloneActions(d.PostActions)
	if d.ContextStrategy != nil {
		cs := *d.ContextStrategy
		out.ContextStrategy = &cs
	}
	return &out
}

// Clone returns a deep structural copy of the function.
func (f *FlowFunction) Clone() *FlowFunction {
	if f == nil {
		return nil
	}
	out := *f
	if f.Properties != nil {
		out.Properties = make(map[string]Property, len(f.Properties))
		for k, p := range f.Properties {
			if p.Enum != nil {
				p.Enum = append([]string(nil), p.Enum...)
			}
			out.Properties[k] = p
		}
	}
	if f.Required != nil {
		out.Required = append([]string(nil), f.Required...)
	}
	out.Decision = f.Decision.Clone()
	return &out
}

// Clone returns a deep structural copy of the decision block.
func (dc *Decision) Clone() *Decision {
	if dc == nil {
		return nil
	}
	out := *dc
	if dc.Conditions != nil {
		out.Conditions = append([]DecisionCondition(nil), dc.Conditions...)
	}
	if dc.DecisionNodePosition != nil {
		pos := *dc.DecisionNodePosition
		out.DecisionNodePosition = &pos
	}
	return &out
}

func cloneFunctions(fns []FlowFunction) []FlowFunction {
	if fns == nil {
		return nil
	}
	out := make([]FlowFunction, len(fns))
	for i := range fns {
		out[i] = *fns[i].Clone()
	}
	return out
}

func cloneActions(acts []Action) []Action {
	if acts == nil {
		return nil
	}
	out := make([]Action, len(acts))
	for i, a := range acts {
		if a.Args != nil {
			a.Args = cloneValue(a.Args).(map[string]any)
		}
		out[i] = a
	}
	return out
}

// cloneValue deep-copies a decoded JSON value. Action args may nest maps
// and arrays arbitrarily; a shallow copy would leave those shared across
// snapshots.
func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = cloneValue(vv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = cloneValue(vv)
		}
		return out
	default:
		return v
	}
}
