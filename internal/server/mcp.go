package server

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/pmbstyle/universal-email-mcp-server/internal/instrumentation"
	"github.com/pmbstyle/universal-email-mcp-server/internal/tools"
)

// defaultToolTimeout bounds every tool call. IMAP and SMTP dials carry
// their own shorter timeouts; this is the backstop for the whole call.
const defaultToolTimeout = 2 * time.Minute

// BuildMCPServer creates the MCP server with all email tools registered
// and the middleware stack applied.
func BuildMCPServer(sc *ServerContext, version string) *mcpserver.MCPServer {
	s := mcpserver.NewMCPServer(serviceName, version,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithRecovery(),
		mcpserver.WithToolHandlerMiddleware(tools.LoggingMiddleware(sc.Logger())),
		mcpserver.WithToolHandlerMiddleware(tools.TimeoutMiddleware(defaultToolTimeout)),
		mcpserver.WithToolHandlerMiddleware(instrumentMiddleware(sc)),
	)

	d := tools.NewDispatcher(sc.Logger())
	tools.RegisterAccountTools(d, sc.Store())
	tools.RegisterMailTools(d, sc.Store(), sc.Sessions())
	d.Attach(s)

	return s
}

// instrumentMiddleware records tool metrics and audit events for every
// call. It reads the metrics recorder and audit logger from the server
// context at call time so they can be attached after server construction.
func instrumentMiddleware(sc *ServerContext) mcpserver.ToolHandlerMiddleware {
	return func(next mcpserver.ToolHandlerFunc) mcpserver.ToolHandlerFunc {
		return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			invocation := instrumentation.NewToolInvocation(req.Params.Name)
			if account, ok := req.GetArguments()["account_name"].(string); ok {
				invocation.WithAccount(account)
			}

			result, err := next(ctx, req)

			success := err == nil && (result == nil || !result.IsError)
			invocation.Complete(success, err)

			if m := sc.Metrics(); m != nil {
				m.RecordToolInvocationWithAccount(ctx, invocation.Tool, invocation.Status(), invocation.Account, invocation.Duration)
			}
			if al := sc.AuditLogger(); al != nil {
				al.LogToolInvocation(invocation)
			}

			return result, err
		}
	}
}
