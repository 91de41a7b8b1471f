package schema

// FlowDocument is the canonical JSON-serializable flow format.
// It is the single source of truth for a flow: the Edges field is a
// derived cache repopulated on export, never authored by hand.
type FlowDocument struct {
	Schema          string           `json:"$schema,omitempty"`
	ID              string           `json:"$id,omitempty"`
	Meta            Meta             `json:"meta"`
	Context         *ContextStrategy `json:"context,omitempty"`
	GlobalFunctions []FlowFunction   `json:"global_functions,omitempty"`
	Nodes           []FlowNode       `json:"nodes"`
	Edges           []DocumentEdge   `json:"edges,omitempty"`
}

// Meta carries document-level identification.
type Meta struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version,omitempty"`
}

// DocumentEdge is one entry of the exported edge cache: a semantic
// transition source→target with the label the editor would display.
type DocumentEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Label  string `json:"label,omitempty"`
}

// NodeKind classifies a flow node.
type NodeKind string

const (
	NodeKindInitial NodeKind = "initial"
	NodeKindStep    NodeKind = "step"
	NodeKindEnd     NodeKind = "end"
)

// FlowNode is a single conversation step.
type FlowNode struct {
	ID       string   `json:"id"`
	Kind     NodeKind `json:"kind"`
	Position Position `json:"position"`
	Data     NodeData `json:"data"`
}

// Position is a canvas coordinate.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NodeData holds the conversational payload of a node.
type NodeData struct {
	RoleMessages    []Message        `json:"role_messages,omitempty"`
	TaskMessages    []Message        `json:"task_messages,omitempty"`
	Functions       []FlowFunction   `json:"functions,omitempty"`
	PreActions      []Action         `json:"pre_actions,omitempty"`
	PostActions     []Action         `json:"post_actions,omitempty"`
	ContextStrategy *ContextStrategy `json:"context_strategy,omitempty"`
}

// MessageRole enumerates who speaks a message.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message is one prompt entry on a node.
type Message struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

// Action is an opaque pre/post action descriptor (e.g. tts_say).
type Action struct {
	Type string         `json:"type"`
	Text string         `json:"text,omitempty"`
	Args map[string]any `json:"args,omitempty"`
}

// ContextStrategyKind enumerates context accumulation strategies.
type ContextStrategyKind string

const (
	ContextAppend           ContextStrategyKind = "append"
	ContextReset            ContextStrategyKind = "reset"
	ContextResetWithSummary ContextStrategyKind = "reset_with_summary"
)

// ContextStrategy configures context accumulation at document or node level.
type ContextStrategy struct {
	Strategy      ContextStrategyKind `json:"strategy"`
	SummaryPrompt string              `json:"summary_prompt,omitempty"`
}

// FlowFunction is a callable function on a node. Routing is carried by
// either NextNodeID (plain transition) or Decision (branching); when both
// are present Decision is authoritative and NextNodeID is vestigial.
type FlowFunction struct {
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Properties  map[string]Property `json:"properties,omitempty"`
	Required    []string            `json:"required,omitempty"`
	NextNodeID  string              `json:"next_node_id,omitempty"`
	Decision    *Decision           `json:"decision,omitempty"`
}

// PropertyType enumerates JSON-Schema-like parameter types.
type PropertyType string

const (
	PropString  PropertyType = "string"
	PropInteger PropertyType = "integer"
	PropNumber  PropertyType = "number"
	PropBoolean PropertyType = "boolean"
	PropArray   PropertyType = "array"
	PropObject  PropertyType = "object"
)

// Property describes one function parameter.
type Property struct {
	Type        PropertyType `json:"type"`
	Description string       `json:"description,omitempty"`
	Enum        []string     `json:"enum,omitempty"`
}

// Decision is the branching routing block of a function. Conditions form
// an if/elif chain in array order; DefaultNextNodeID is the trailing else.
type Decision struct {
	Action               string              `json:"action"`
	Conditions           []DecisionCondition `json:"conditions"`
	DefaultNextNodeID    string              `json:"default_next_node_id"`
	DecisionNodePosition *Position           `json:"decision_node_position,omitempty"`
}

// ConditionOperator enumerates comparison operators of a decision branch.
type ConditionOperator string

const (
	OpLess         ConditionOperator = "<"
	OpLessEqual    ConditionOperator = "<="
	OpEqual        ConditionOperator = "=="
	OpGreaterEqual ConditionOperator = ">="
	OpGreater      ConditionOperator = ">"
	OpNotEqual     ConditionOperator = "!="
	OpNot          ConditionOperator = "not"
	OpIn           ConditionOperator = "in"
	OpNotIn        ConditionOperator = "not in"
)

// DecisionCondition is one branch of a decision.
type DecisionCondition struct {
	Operator   ConditionOperator `json:"operator"`
	Value      string            `json:"value"`
	NextNodeID string            `json:"next_node_id"`
}

// HasDecision reports whether the function routes through a decision block.
func (f *FlowFunction) HasDecision() bool {
	return f.Decision != nil
}

// Target returns the effective routing target of a plain function, or ""
// when the function routes through a decision (or not at all).
func (f *FlowFunction) Target() string {
	if f.Decision != nil {
		return ""
	}
	return f.NextNodeID
}

// InitialNode returns the initial node of the document, or nil if the
// document is malformed and has none.
func (d *FlowDocument) InitialNode() *FlowNode {
	for i := range d.Nodes {
		if d.Nodes[i].Kind == NodeKindInitial {
			return &d.Nodes[i]
		}
	}
	return nil
}

// Node returns the node with the given id, or nil.
func (d *FlowDocument) Node(id string) *FlowNode {
	for i := range d.Nodes {
		if d.Nodes[i].ID == id {
			return &d.Nodes[i]
		}
	}
	return nil
}
