package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/renvik/convograph/internal/canvas"
	"github.com/renvik/convograph/internal/diagram"
	"github.com/renvik/convograph/internal/store"
	"github.com/renvik/convograph/internal/validation"
	"github.com/renvik/convograph/pkg/schema"
)

// resolveDocument loads the raw document either from the inline "document"
// argument or, when absent, from the store by "flow_id".
func (s *FlowServer) resolveDocument(ctx context.Context, req mcp.CallToolRequest) ([]byte, *mcp.CallToolResult) {
	if doc := req.GetString("document", ""); doc != "" {
		return []byte(doc), nil
	}

	flowID := req.GetString("flow_id", "")
	if flowID == "" {
		return nil, mcp.NewToolResultError("either document or flow_id is required")
	}
	if s.store == nil {
		return nil, mcp.NewToolResultError("no local store configured; pass the document inline")
	}

	flow, err := s.store.GetFlow(ctx, flowID)
	if err != nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("flow lookup failed: %v", err))
	}
	return flow.Document, nil
}

// handleValidate runs the full two-pass validation over a document.
func (s *FlowServer) handleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, errResult := s.resolveDocument(ctx, req)
	if errResult != nil {
		return errResult, nil
	}

	_, result := s.validator.ValidateRaw(raw)
	return marshalResult(validationPayload(result))
}

// handleLint runs the advisory pass used during live editing.
func (s *FlowServer) handleLint(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, errResult := s.resolveDocument(ctx, req)
	if errResult != nil {
		return errResult, nil
	}

	doc, err := validation.Decode(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid document: %v", err)), nil
	}

	result := s.validator.Lint(doc)
	return marshalResult(validationPayload(result))
}

// handleCompile generates scaffold code, refusing on any validation error.
func (s *FlowServer) handleCompile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, errResult := s.resolveDocument(ctx, req)
	if errResult != nil {
		return errResult, nil
	}

	doc, err := validation.Decode(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid document: %v", err)), nil
	}

	code, err := s.generator.Compile(doc)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("compile refused: %v", err)), nil
	}
	return mcp.NewToolResultText(code), nil
}

// handlePreview renders the presentation graph as a Mermaid flowchart.
func (s *FlowServer) handlePreview(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, errResult := s.resolveDocument(ctx, req)
	if errResult != nil {
		return errResult, nil
	}

	doc, err := validation.Decode(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid document: %v", err)), nil
	}

	return mcp.NewToolResultText(diagram.RenderMermaid(canvas.ToPresentation(doc))), nil
}

// handleQuery runs a jq program over the document.
func (s *FlowServer) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	program, err := req.RequireString("program")
	if err != nil {
		return mcp.NewToolResultError("program is required"), nil
	}

	raw, errResult := s.resolveDocument(ctx, req)
	if errResult != nil {
		return errResult, nil
	}

	doc, decErr := validation.Decode(raw)
	if decErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid document: %v", decErr)), nil
	}

	out, qErr := s.query.Query(ctx, program, doc)
	if qErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", qErr)), nil
	}
	return marshalResult(map[string]any{"result": out})
}

// handleSave persists a document to the local store plus a revision.
func (s *FlowServer) handleSave(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	flowID, err := req.RequireString("flow_id")
	if err != nil {
		return mcp.NewToolResultError("flow_id is required"), nil
	}
	document, err := req.RequireString("document")
	if err != nil {
		return mcp.NewToolResultError("document is required"), nil
	}
	if s.store == nil {
		return mcp.NewToolResultError("no local store configured"), nil
	}

	doc, decErr := validation.Decode([]byte(document))
	if decErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid document: %v", decErr)), nil
	}

	flow := &store.Flow{
		ID:       flowID,
		Name:     doc.Meta.Name,
		Version:  doc.Meta.Version,
		Document: []byte(document),
	}
	if saveErr := s.store.SaveFlow(ctx, flow); saveErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("save failed: %v", saveErr)), nil
	}

	rev := &store.Revision{
		FlowID:   flowID,
		Label:    req.GetString("label", ""),
		Document: []byte(document),
	}
	if revErr := s.store.AppendRevision(ctx, rev); revErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("save succeeded but revision failed: %v", revErr)), nil
	}

	return marshalResult(map[string]any{
		"flow_id":  flowID,
		"revision": rev.Seq,
	})
}

// handleGet fetches a flow document from the local store.
func (s *FlowServer) handleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	flowID, err := req.RequireString("flow_id")
	if err != nil {
		return mcp.NewToolResultError("flow_id is required"), nil
	}
	if s.store == nil {
		return mcp.NewToolResultError("no local store configured"), nil
	}

	flow, getErr := s.store.GetFlow(ctx, flowID)
	if getErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("flow lookup failed: %v", getErr)), nil
	}

	return marshalResult(map[string]any{
		"flow_id":  flow.ID,
		"name":     flow.Name,
		"version":  flow.Version,
		"document": json.RawMessage(flow.Document),
	})
}

// --- Helpers ---

// validationPayload shapes a ValidationResult for tool output.
func validationPayload(result *schema.ValidationResult) map[string]any {
	return map[string]any{
		"valid":    result.Valid(),
		"errors":   issuesOrEmpty(result.Errors),
		"warnings": issuesOrEmpty(result.Warnings),
	}
}

func issuesOrEmpty(issues []schema.ValidationIssue) []schema.ValidationIssue {
	if issues == nil {
		return []schema.ValidationIssue{}
	}
	return issues
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
