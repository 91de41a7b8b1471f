package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/renvik/convograph/pkg/schema"
)

// flowSchemaJSON is the JSON Schema for FlowDocument validation.
// Embedded as a constant to avoid filesystem dependencies.
const flowSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://convograph.dev/schemas/flow.json",
  "type": "object",
  "required": ["meta", "nodes"],
  "properties": {
    "$schema": { "type": "string" },
    "$id": { "type": "string" },
    "meta": {
      "type": "object",
      "required": ["name"],
      "properties": {
        "name": { "type": "string", "minLength": 1 },
        "description": { "type": "string" },
        "version": { "type": "string" }
      },
      "additionalProperties": false
    },
    "context": { "$ref": "#/$defs/context_strategy" },
    "global_functions": {
      "type": "array",
      "items": { "$ref": "#/$defs/function" }
    },
    "nodes": {
      "type": "array",
      "minItems": 1,
      "items": { "$ref": "#/$defs/node" }
    },
    "edges": {
      "type": "array",
      "items": { "$ref": "#/$defs/edge" }
    }
  },
  "additionalProperties": false,
  "$defs": {
    "node": {
      "type": "object",
      "required": ["id", "kind"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "kind": { "type": "string", "enum": ["initial", "step", "end"] },
        "position": { "$ref": "#/$defs/position" },
        "data": { "$ref": "#/$defs/node_data" }
      },
      "additionalProperties": false
    },
    "node_data": {
      "type": "object",
      "properties": {
        "role_messages": { "type": "array", "items": { "$ref": "#/$defs/message" } },
        "task_messages": { "type": "array", "items": { "$ref": "#/$defs/message" } },
        "functions": { "type": "array", "items": { "$ref": "#/$defs/function" } },
        "pre_actions": { "type": "array", "items": { "$ref": "#/$defs/action" } },
        "post_actions": { "type": "array", "items": { "$ref": "#/$defs/action" } },
        "context_strategy": { "$ref": "#/$defs/context_strategy" }
      },
      "additionalProperties": false
    },
    "message": {
      "type": "object",
      "required": ["role", "content"],
      "properties": {
        "role": { "type": "string", "enum": ["system", "user", "assistant"] },
        "content": { "type": "string" }
      },
      "additionalProperties": false
    },
    "function": {
      "type": "object",
      "required": ["name"],
      "properties": {
        "name": { "type": "string", "pattern": "^[A-Za-z_][A-Za-z0-9_]*$" },
        "description": { "type": "string" },
        "properties": {
          "type": "object",
          "additionalProperties": { "$ref": "#/$defs/property" }
        },
        "required": { "type": "array", "items": { "type": "string" } },
        "next_node_id": { "type": "string" },
        "decision": { "$ref": "#/$defs/decision" }
      },
      "additionalProperties": false
    },
    "property": {
      "type": "object",
      "required": ["type"],
      "properties": {
        "type": { "type": "string", "enum": ["string", "integer", "number", "boolean", "array", "object"] },
        "description": { "type": "string" },
        "enum": { "type": "array", "items": { "type": "string" } }
      },
      "additionalProperties": false
    },
    "decision": {
      "type": "object",
      "required": ["action", "conditions", "default_next_node_id"],
      "properties": {
        "action": { "type": "string", "minLength": 1 },
        "conditions": { "type": "array", "items": { "$ref": "#/$defs/condition" } },
        "default_next_node_id": { "type": "string" },
        "decision_node_position": { "$ref": "#/$defs/position" }
      },
      "additionalProperties": false
    },
    "condition": {
      "type": "object",
      "required": ["operator", "value"],
      "properties": {
        "operator": { "type": "string", "enum": ["<", "<=", "==", ">=", ">", "!=", "not", "in", "not in"] },
        "value": { "type": "string" },
        "next_node_id": { "type": "string" }
      },
      "additionalProperties": false
    },
    "action": {
      "type": "object",
      "required": ["type"],
      "properties": {
        "type": { "type": "string", "minLength": 1 },
        "text": { "type": "string" },
        "args": { "type": "object" }
      },
      "additionalProperties": false
    },
    "context_strategy": {
      "type": "object",
      "required": ["strategy"],
      "properties": {
        "strategy": { "type": "string", "enum": ["append", "reset", "reset_with_summary"] },
        "summary_prompt": { "type": "string" }
      },
      "additionalProperties": false
    },
    "position": {
      "type": "object",
      "required": ["x", "y"],
      "properties": {
        "x": { "type": "number" },
        "y": { "type": "number" }
      },
      "additionalProperties": false
    },
    "edge": {
      "type": "object",
      "required": ["source", "target"],
      "properties": {
        "source": { "type": "string" },
        "target": { "type": "string" },
        "label": { "type": "string" }
      },
      "additionalProperties": false
    }
  }
}`

// StructuralValidator runs the structural pass: document shape against the
// embedded JSON Schema Draft 2020-12, plus the handful of shape rules the
// schema language cannot express. Pure and side-effect-free; safe for
// concurrent use once constructed.
type StructuralValidator struct {
	flowSchema *jsonschema.Schema
}

// NewStructuralValidator compiles the embedded flow schema.
func NewStructuralValidator() (*StructuralValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(flowSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal flow schema: %w", err)
	}
	if err := c.AddResource("https://convograph.dev/schemas/flow.json", doc); err != nil {
		return nil, fmt.Errorf("add flow schema resource: %w", err)
	}

	compiled, err := c.Compile("https://convograph.dev/schemas/flow.json")
	if err != nil {
		return nil, fmt.Errorf("compile flow schema: %w", err)
	}

	return &StructuralValidator{flowSchema: compiled}, nil
}

// ValidateStructure validates raw JSON against the flow document shape.
func (v *StructuralValidator) ValidateStructure(raw []byte) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		result.AddError("/", schema.ErrCodeValidation, fmt.Sprintf("invalid JSON: %s", err))
		return result
	}

	if err := v.flowSchema.Validate(doc); err != nil {
		appendViolations(result, err)
		return result
	}

	var flow schema.FlowDocument
	if err := json.Unmarshal(raw, &flow); err != nil {
		result.AddError("/", schema.ErrCodeValidation, fmt.Sprintf("decode flow document: %s", err))
		return result
	}
	checkFunctionNames(&flow, result)
	return result
}

// ValidateDocument validates an in-memory document by serializing it through
// the same path import uses, so both entry points agree on acceptance.
func (v *StructuralValidator) ValidateDocument(flow *schema.FlowDocument) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	if flow == nil {
		result.AddError("/", schema.ErrCodeValidation, "flow document is nil")
		return result
	}

	raw, err := json.Marshal(flow)
	if err != nil {
		result.AddError("/", schema.ErrCodeValidation, "failed to serialize flow document")
		return result
	}
	return v.ValidateStructure(raw)
}

// checkFunctionNames enforces per-node function name uniqueness, which the
// JSON Schema cannot express.
func checkFunctionNames(flow *schema.FlowDocument, result *schema.ValidationResult) {
	for ni := range flow.Nodes {
		node := &flow.Nodes[ni]
		seen := make(map[string]struct{}, len(node.Data.Functions))
		for fi := range node.Data.Functions {
			name := node.Data.Functions[fi].Name
			if _, dup := seen[name]; dup {
				result.AddError(
					fmt.Sprintf("nodes[%d].data.functions[%d]", ni, fi),
					schema.ErrCodeValidation,
					fmt.Sprintf("duplicate function name %q on node %q", name, node.ID))
			}
			seen[name] = struct{}{}
		}
	}
}

// appendViolations flattens a jsonschema.ValidationError tree into
// path-tagged issues.
func appendViolations(result *schema.ValidationResult, err error) {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		result.AddError("/", schema.ErrCodeValidation, err.Error())
		return
	}
	for _, issue := range collectViolations(verr) {
		result.Errors = append(result.Errors, issue)
	}
}

// collectViolations walks a ValidationError tree and collects leaf messages
// with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []schema.ValidationIssue {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []schema.ValidationIssue{{
			Path:     loc,
			Code:     schema.ErrCodeValidation,
			Message:  verr.Error(),
			Severity: schema.SeverityError,
		}}
	}

	var issues []schema.ValidationIssue
	for _, cause := range verr.Causes {
		issues = append(issues, collectViolations(cause)...)
	}
	return issues
}
