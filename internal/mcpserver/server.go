// Package mcpserver exposes microfactory sessions as MCP tools so an
// agent host can drive the orchestrator directly over the same
// mark3labs/mcp-go server and stdio-transport Serve loop, narrowed to
// four operations: run, status, resume, subprocess.
package mcpserver

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/microfactory-run/microfactory/internal/ports"
)

// SessionRunner is the slice of the flow runner the MCP server needs.
type SessionRunner interface {
	Start(ctx context.Context, prompt, domain, provider, model string) (Result, error)
	Resume(ctx context.Context, sessionID string) (Result, error)
	Status(ctx context.Context, sessionID string) (Result, error)
	RunSubprocess(ctx context.Context, prompt, domain, provider, model string) (Result, error)
}

// Result is the JSON-shaped payload returned by every tool call.
type Result struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	Detail    any    `json:"detail,omitempty"`
}

// Deps holds the dependencies for creating a Server.
type Deps struct {
	Runner SessionRunner
	Store  ports.SessionRepository
	Logger *slog.Logger
}

// Server wraps an MCP server with microfactory's tool handlers.
type Server struct {
	runner    SessionRunner
	store     ports.SessionRepository
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// New creates a Server with all tools registered.
func New(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &Server{
		runner: deps.Runner,
		store:  deps.Store,
		logger: logger,
	}

	mcpSrv := server.NewMCPServer(
		"microfactory",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("microfactory decomposes a task into a tree of small, redundantly-sampled LLM steps and applies the results to a workspace. Use microfactory.run to start a session, microfactory.status to check progress, microfactory.resume to continue a paused session past a human-in-the-loop checkpoint, and microfactory.subprocess to run one session to completion synchronously."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *Server) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: runTool(), Handler: s.handleRun},
		{Tool: statusTool(), Handler: s.handleStatus},
		{Tool: resumeTool(), Handler: s.handleResume},
		{Tool: subprocessTool(), Handler: s.handleSubprocess},
	}
}

func runTool() mcp.Tool {
	return mcp.NewTool("microfactory.run",
		mcp.WithDescription("Start a microfactory session that decomposes a prompt into a tree of solved, verified steps"),
		mcp.WithString("prompt", mcp.Required(), mcp.Description("The task to accomplish")),
		mcp.WithString("domain", mcp.Required(), mcp.Description("Domain config name (selects agents, verifier, applier)")),
		mcp.WithString("provider", mcp.Description("LLM provider override (openai, anthropic, gemini, grok)")),
		mcp.WithString("model", mcp.Description("Model override")),
	)
}

func statusTool() mcp.Tool {
	return mcp.NewTool("microfactory.status",
		mcp.WithDescription("Get a session's current tree, metrics, and wait state"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("ID of the session to query")),
	)
}

func resumeTool() mcp.Tool {
	return mcp.NewTool("microfactory.resume",
		mcp.WithDescription("Resume a paused session past its human-in-the-loop checkpoint"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("ID of the session to resume")),
	)
}

func subprocessTool() mcp.Tool {
	return mcp.NewTool("microfactory.subprocess",
		mcp.WithDescription("Run one session to completion synchronously and return its final result"),
		mcp.WithString("prompt", mcp.Required(), mcp.Description("The task to accomplish")),
		mcp.WithString("domain", mcp.Required(), mcp.Description("Domain config name")),
		mcp.WithString("provider", mcp.Description("LLM provider override")),
		mcp.WithString("model", mcp.Description("Model override")),
	)
}
