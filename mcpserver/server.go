package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/isdmx/dexbox/config"
	"github.com/isdmx/dexbox/sandbox"
	"github.com/isdmx/dexbox/store"
)

// MCPServer represents the MCP server
type MCPServer struct {
	config    *config.Config
	logger    *zap.Logger
	executor  sandbox.Executor
	mcpServer *server.MCPServer
}

// New creates a new MCPServer
func New(cfg *config.Config, logger *zap.Logger, executor sandbox.Executor) (*MCPServer, error) {
	s := &MCPServer{
		config:   cfg,
		logger:   logger,
		executor: executor,
	}

	// Log configuration parameters on startup
	logger.Info("configuration loaded",
		zap.String("server.transport", s.config.Server.Transport),
		zap.Int("server.http_port", s.config.Server.HTTPPort),
		zap.String("store.path", s.config.Store.Path),
		zap.String("sandbox.backend", s.config.Sandbox.Backend),
		zap.Int("sandbox.timeout_sec", s.config.Sandbox.TimeoutSec),
		zap.Int("sandbox.grace_sec", s.config.Sandbox.GraceSec),
		zap.Int("sandbox.max_stdout_len", s.config.Sandbox.MaxStdoutLen),
		zap.Bool("sandbox.enable_goja_backend", s.config.Sandbox.EnableGojaBackend),
	)

	// Create the MCP server
	s.mcpServer = server.NewMCPServer("dexbox", "0.1.0")

	// Register the tools
	s.registerRunCodeTool()
	s.registerGetPokemonTool()
	s.registerGetMoveTool()

	return s, nil
}

// registerRunCodeTool registers the run_code tool
func (s *MCPServer) registerRunCodeTool() {
	tool := mcp.Tool{
		Name: "run_code",
		Description: "Run a JavaScript snippet in a sandbox against the read-only Z-A database. " +
			"The snippet assigns its answer to `result` and may use query(stmt, params), " +
			"scalarQuery(stmt, params), print(...), args, stats and the standard JS built-ins.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"code": map[string]any{
					"type":        "string",
					"description": "Snippet source; assign the final value to `result`",
				},
				"db_path": map[string]any{
					"type":        "string",
					"description": "SQLite path (defaults to the configured za.sqlite3)",
				},
				"args": map[string]any{
					"type":        "object",
					"description": "Arbitrary parameters visible to the snippet as `args` (optional)",
				},
			},
			Required: []string{"code"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleRunCode)
}

// handleRunCode handles the run_code tool
func (s *MCPServer) handleRunCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, err := request.RequireString("code")
	if err != nil {
		return nil, fmt.Errorf("code parameter is required: %w", err)
	}

	dbPath := request.GetString("db_path", "")

	var args map[string]any
	if raw, ok := request.GetArguments()["args"].(map[string]any); ok {
		args = raw
	}

	s.logger.Info("snippet execution requested",
		zap.Int("code_len", len(code)),
		zap.Bool("has_db_path", dbPath != ""),
		zap.Int("args_len", len(args)))

	result, err := s.executor.Execute(ctx, sandbox.ExecuteRequest{
		Code:   code,
		DBPath: dbPath,
		Args:   args,
	})
	if err != nil {
		s.logger.Error("sandbox execution failed", zap.Error(err))
		return errorResult(fmt.Sprintf("Execution failed: %v", err)), nil
	}

	s.logger.Info("snippet execution completed",
		zap.Int("stdout_len", len(result.Stdout)),
		zap.String("error", result.Error))

	return jsonResult(result)
}

// registerGetPokemonTool registers the get_pokemon tool
func (s *MCPServer) registerGetPokemonTool() {
	tool := mcp.Tool{
		Name:        "get_pokemon",
		Description: "Get one pokemon by id or exact name, including its learnset (learn method, level, TM number, move row).",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"id":   map[string]any{"type": "integer", "description": "Pokemon id"},
				"name": map[string]any{"type": "string", "description": "Exact pokemon name"},
			},
		},
	}

	s.mcpServer.AddTool(tool, s.handleGetPokemon)
}

// handleGetPokemon handles the get_pokemon tool
func (s *MCPServer) handleGetPokemon(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, name := idNameParams(request)

	st, err := store.OpenReadOnly(s.config.Store.Path)
	if err != nil {
		s.logger.Error("failed to open store", zap.Error(err))
		return errorResult(err.Error()), nil
	}
	defer st.Close()

	detail, err := st.GetPokemon(ctx, id, name)
	if errors.Is(err, store.ErrNotFound) {
		return errorResult("Pokemon not found"), nil
	}
	if err != nil {
		return errorResult(err.Error()), nil
	}

	return jsonResult(detail)
}

// registerGetMoveTool registers the get_move tool
func (s *MCPServer) registerGetMoveTool() {
	tool := mcp.Tool{
		Name:        "get_move",
		Description: "Get one move by id or exact name, including every pokemon that learns it.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"id":   map[string]any{"type": "integer", "description": "Move id"},
				"name": map[string]any{"type": "string", "description": "Exact move name"},
			},
		},
	}

	s.mcpServer.AddTool(tool, s.handleGetMove)
}

// handleGetMove handles the get_move tool
func (s *MCPServer) handleGetMove(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, name := idNameParams(request)

	st, err := store.OpenReadOnly(s.config.Store.Path)
	if err != nil {
		s.logger.Error("failed to open store", zap.Error(err))
		return errorResult(err.Error()), nil
	}
	defer st.Close()

	detail, err := st.GetMove(ctx, id, name)
	if errors.Is(err, store.ErrNotFound) {
		return errorResult("Move not found"), nil
	}
	if err != nil {
		return errorResult(err.Error()), nil
	}

	return jsonResult(detail)
}

// idNameParams extracts the shared id/name lookup parameters.
func idNameParams(request mcp.CallToolRequest) (int64, string) {
	var id int64
	if v, ok := request.GetArguments()["id"].(float64); ok {
		id = int64(v)
	}
	return id, request.GetString("name", "")
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: string(data),
			},
		},
	}, nil
}

func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: text,
			},
		},
		IsError: true,
	}
}

// ServeStdio starts the server on stdio
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server on stdio")
	return server.ServeStdio(s.mcpServer)
}

// ServeHTTP starts the server on HTTP
func (s *MCPServer) ServeHTTP() error {
	port := s.config.Server.HTTPPort
	s.logger.Info("starting MCP server on HTTP", zap.Int("port", port))

	httpServer := server.NewStreamableHTTPServer(s.mcpServer)
	return httpServer.Start(fmt.Sprintf(":%d", port))
}

// GetMCPServer returns the underlying MCP server for fx
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}
