// Package mcp exposes the assistant core as MCP tools over stdio, so agent
// clients can send messages, inspect plans, and manage bridge credentials.
package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/valetiq/valet/internal/assistant"
	"github.com/valetiq/valet/internal/secrets"
	"github.com/valetiq/valet/internal/store"
)

// MessageHandler processes one inbound message end to end.
// Satisfied by assistant.Assistant.
type MessageHandler interface {
	Handle(ctx context.Context, in assistant.Inbound) (*assistant.Reply, error)
}

// ValetServerDeps holds the dependencies for creating a ValetServer.
type ValetServerDeps struct {
	Assistant MessageHandler
	Store     store.Store
	Vault     secrets.Vault // optional, credential tool reports unavailable when nil
	Logger    *slog.Logger
}

// ValetServer wraps an MCP server with valet-specific tool handlers.
type ValetServer struct {
	assistant MessageHandler
	store     store.Store
	vault     secrets.Vault
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewValetServer creates a ValetServer with all tools registered.
func NewValetServer(deps ValetServerDeps) *ValetServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &ValetServer{
		assistant: deps.Assistant,
		store:     deps.Store,
		vault:     deps.Vault,
		logger:    logger,
	}

	mcpSrv := server.NewMCPServer(
		"valet",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Valet turns natural-language requests into executed operation plans. Use valet.message to send a request (or answer a pending clarification), valet.status to inspect a session's plan and events, valet.sessions to list an identity's recent sessions, valet.diagram to render a plan graph, and valet.credential to manage bridge credentials."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *ValetServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *ValetServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *ValetServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: messageTool(), Handler: s.handleMessage},
		{Tool: statusTool(), Handler: s.handleStatus},
		{Tool: sessionsTool(), Handler: s.handleSessions},
		{Tool: diagramTool(), Handler: s.handleDiagram},
		{Tool: credentialTool(), Handler: s.handleCredential},
	}
}

// --- Tool definitions ---

func messageTool() mcp.Tool {
	return mcp.NewTool("valet.message",
		mcp.WithDescription("Send a natural-language request. If the identity has a pending clarification, the message resolves it and resumes the suspended plan"),
		mcp.WithString("identity", mcp.Required(), mcp.Description("Stable identity of the requester, e.g. a phone number")),
		mcp.WithString("message", mcp.Required(), mcp.Description("The request text")),
		mcp.WithString("channel", mcp.Description("Originating channel (default: mcp)")),
		mcp.WithString("timezone", mcp.Description("IANA timezone of the requester")),
	)
}

func statusTool() mcp.Tool {
	return mcp.NewTool("valet.status",
		mcp.WithDescription("Get a session's plan state, per-step results, and execution events"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("ID of the session to query")),
		mcp.WithString("include_events", mcp.Description("Include the execution event log (default: false)")),
	)
}

func sessionsTool() mcp.Tool {
	return mcp.NewTool("valet.sessions",
		mcp.WithDescription("List an identity's recent sessions, most recently updated first"),
		mcp.WithString("identity", mcp.Required(), mcp.Description("Identity to list sessions for")),
		mcp.WithString("limit", mcp.Description("Maximum number of sessions (default: 10)")),
	)
}

func diagramTool() mcp.Tool {
	return mcp.NewTool("valet.diagram",
		mcp.WithDescription("Render a session's plan graph as Mermaid flowchart syntax, with per-step state styling"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("ID of the session to diagram")),
	)
}

func credentialTool() mcp.Tool {
	return mcp.NewTool("valet.credential",
		mcp.WithDescription("Manage encrypted bridge credentials. Values are stored AES-256-GCM encrypted and never returned"),
		mcp.WithString("op", mcp.Required(),
			mcp.Enum("store", "delete", "list"),
			mcp.Description("Operation to perform"),
		),
		mcp.WithString("key", mcp.Description("Credential key (required for store and delete)")),
		mcp.WithString("value", mcp.Description("Credential value (required for store)")),
	)
}
