// Package mcp exposes the flow editor core over the Model Context
// Protocol so agents can validate, compile, preview, and query flow
// documents without the canvas UI.
package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/renvik/convograph/internal/codegen"
	"github.com/renvik/convograph/internal/expressions"
	"github.com/renvik/convograph/internal/store"
	"github.com/renvik/convograph/internal/validation"
)

// FlowServerDeps holds the dependencies for creating a FlowServer.
type FlowServerDeps struct {
	Validator *validation.FlowValidator
	Generator *codegen.Generator
	Query     *expressions.QueryEngine
	Store     store.Store
	Logger    *slog.Logger
}

// FlowServer wraps an MCP server with flow-editor tool handlers.
type FlowServer struct {
	validator *validation.FlowValidator
	generator *codegen.Generator
	query     *expressions.QueryEngine
	store     store.Store
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewFlowServer creates a FlowServer with all 6 tools registered.
func NewFlowServer(deps FlowServerDeps) *FlowServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &FlowServer{
		validator: deps.Validator,
		generator: deps.Generator,
		query:     deps.Query,
		store:     deps.Store,
		logger:    logger,
	}

	mcpSrv := server.NewMCPServer(
		"convograph",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Convograph edits and compiles conversational flow documents. Use flow.validate to check a document, flow.lint for advisory findings while editing, flow.compile to generate runnable scaffold code, flow.preview for a Mermaid diagram, flow.query to run a jq program over a document, and flow.save / flow.get to work with the local flow store."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *FlowServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *FlowServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// tools returns the registered MCP tools as ServerTool entries.
func (s *FlowServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: validateTool(), Handler: s.handleValidate},
		{Tool: lintTool(), Handler: s.handleLint},
		{Tool: compileTool(), Handler: s.handleCompile},
		{Tool: previewTool(), Handler: s.handlePreview},
		{Tool: queryTool(), Handler: s.handleQuery},
		{Tool: saveTool(), Handler: s.handleSave},
		{Tool: getTool(), Handler: s.handleGet},
	}
}

// --- Tool definitions ---

func validateTool() mcp.Tool {
	return mcp.NewTool("flow.validate",
		mcp.WithDescription("Validate a flow document: structural pass against the embedded JSON Schema, then graph pass (duplicate ids, initial node, dangling references)"),
		mcp.WithString("document", mcp.Description("Flow document JSON (omit to load by flow_id)")),
		mcp.WithString("flow_id", mcp.Description("Load the document from the local store")),
	)
}

func lintTool() mcp.Tool {
	return mcp.NewTool("flow.lint",
		mcp.WithDescription("Advisory validation for live editing: dangling references downgrade to warnings and decision actions are parse-checked"),
		mcp.WithString("document", mcp.Description("Flow document JSON (omit to load by flow_id)")),
		mcp.WithString("flow_id", mcp.Description("Load the document from the local store")),
	)
}

func compileTool() mcp.Tool {
	return mcp.NewTool("flow.compile",
		mcp.WithDescription("Generate runnable pipecat_flows scaffold code from a flow document. Refuses with the first validation error if the document is invalid"),
		mcp.WithString("document", mcp.Description("Flow document JSON (omit to load by flow_id)")),
		mcp.WithString("flow_id", mcp.Description("Load the document from the local store")),
	)
}

func previewTool() mcp.Tool {
	return mcp.NewTool("flow.preview",
		mcp.WithDescription("Render a flow document as a Mermaid flowchart, including the synthetic decision nodes the canvas would show"),
		mcp.WithString("document", mcp.Description("Flow document JSON (omit to load by flow_id)")),
		mcp.WithString("flow_id", mcp.Description("Load the document from the local store")),
	)
}

func queryTool() mcp.Tool {
	return mcp.NewTool("flow.query",
		mcp.WithDescription("Run a jq program over a flow document, e.g. '.nodes[].id' or '[.nodes[] | select(.kind == \"end\")]'"),
		mcp.WithString("program", mcp.Required(), mcp.Description("jq program")),
		mcp.WithString("document", mcp.Description("Flow document JSON (omit to load by flow_id)")),
		mcp.WithString("flow_id", mcp.Description("Load the document from the local store")),
	)
}

func saveTool() mcp.Tool {
	return mcp.NewTool("flow.save",
		mcp.WithDescription("Persist a flow document to the local store and append a revision"),
		mcp.WithString("flow_id", mcp.Required(), mcp.Description("Flow ID to save under")),
		mcp.WithString("document", mcp.Required(), mcp.Description("Flow document JSON")),
		mcp.WithString("label", mcp.Description("Optional revision label")),
	)
}

func getTool() mcp.Tool {
	return mcp.NewTool("flow.get",
		mcp.WithDescription("Fetch a flow document from the local store"),
		mcp.WithString("flow_id", mcp.Required(), mcp.Description("Flow ID to fetch")),
	)
}
