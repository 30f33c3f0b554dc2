package tools

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/pmbstyle/universal-email-mcp-server/internal/logging"
)

// Dispatcher holds the registered tools and routes calls by name.
// It exists separately from the MCP server so routing behavior,
// including the unknown-tool case, stays directly testable.
type Dispatcher struct {
	logger *slog.Logger
	names  []string
	tools  map[string]registeredTool
}

type registeredTool struct {
	def     mcp.Tool
	handler server.ToolHandlerFunc
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		logger: logger,
		tools:  make(map[string]registeredTool),
	}
}

func (d *Dispatcher) register(def mcp.Tool, handler server.ToolHandlerFunc) {
	if _, exists := d.tools[def.Name]; !exists {
		d.names = append(d.names, def.Name)
	}
	d.tools[def.Name] = registeredTool{def: def, handler: handler}
}

// Dispatch routes a call to the named tool. An unknown name yields an
// error result, never a transport-level error, so clients always get a
// well-formed tool response.
func (d *Dispatcher) Dispatch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rt, ok := d.tools[req.Params.Name]
	if !ok {
		d.logger.Warn("unknown tool requested", logging.Tool(req.Params.Name))
		return mcp.NewToolResultError(fmt.Sprintf("unknown tool: %s", req.Params.Name)), nil
	}
	return rt.handler(ctx, req)
}

// Attach registers every tool on the MCP server in registration order.
func (d *Dispatcher) Attach(s *server.MCPServer) {
	for _, name := range d.names {
		rt := d.tools[name]
		s.AddTool(rt.def, rt.handler)
	}
}

// ToolNames returns the registered tool names in registration order.
func (d *Dispatcher) ToolNames() []string {
	names := make([]string, len(d.names))
	copy(names, d.names)
	return names
}
