// Package mcpbridge serves a principal-bound tool registry over the Model
// Context Protocol, so MCP clients can use the board tools directly.
package mcpbridge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/tailored-agentic-units/board-assistant/tools"
)

// Version is reported to MCP clients during initialization.
const Version = "0.1.0"

// Tools converts every tool in reg into an MCP server tool. Calls are
// dispatched through reg, so argument validation and structured failures
// are the same as in the agent loop.
func Tools(reg *tools.Registry) ([]server.ServerTool, error) {
	list := reg.List()
	out := make([]server.ServerTool, 0, len(list))

	for _, t := range list {
		schema, err := json.Marshal(t.Parameters)
		if err != nil {
			return nil, fmt.Errorf("failed to encode schema of %s: %w", t.Name, err)
		}

		out = append(out, server.ServerTool{
			Tool:    mcp.NewToolWithRawSchema(t.Name, t.Description, schema),
			Handler: handler(reg, t.Name),
		})
	}
	return out, nil
}

func handler(reg *tools.Registry, name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := json.Marshal(req.GetArguments())
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}

		res := reg.Dispatch(ctx, name, args)
		if res.IsError {
			return mcp.NewToolResultError(res.Content), nil
		}
		return mcp.NewToolResultText(res.Content), nil
	}
}

// NewServer creates an MCP server exposing reg.
func NewServer(reg *tools.Registry) (*server.MCPServer, error) {
	list, err := Tools(reg)
	if err != nil {
		return nil, err
	}

	p := reg.Principal()
	s := server.NewMCPServer(
		"board-assistant",
		Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions(fmt.Sprintf("Tools act on board %s for user %s.", p.BoardID, p.UserID)),
	)
	s.AddTools(list...)
	return s, nil
}

// ServeStdio serves reg over stdin and stdout until the client disconnects.
func ServeStdio(reg *tools.Registry) error {
	s, err := NewServer(reg)
	if err != nil {
		return err
	}
	return server.ServeStdio(s)
}
