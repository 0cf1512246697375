package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hazyhaar/sqlitemcp/pkg/kit"
)

// NewServer creates an MCPServer with every dispatcher tool registered.
func NewServer(d *Dispatcher, name, version string) *server.MCPServer {
	srv := server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	for _, tool := range d.ListTools() {
		srv.AddTool(tool, d.Handler(tool.Name))
	}
	return srv
}

// Handler adapts the dispatcher to an mcp-go tool handler. The returned error
// is always nil; failures travel inside the result.
func (d *Dispatcher) Handler(toolName string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if kit.GetTransport(ctx) == "" {
			ctx = kit.WithTransport(ctx, "stdio")
		}
		return d.Call(ctx, toolName, req.Params.Arguments), nil
	}
}
