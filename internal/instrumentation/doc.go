// Package instrumentation provides OpenTelemetry instrumentation for the
// universal email MCP server.
//
// This package enables production-grade observability through:
//   - OpenTelemetry metrics for HTTP requests, auth, and mail protocol operations
//   - Prometheus metrics export via /metrics endpoint on a dedicated port
//   - Audit logging for MCP tool invocations
//
// # Metrics
//
// The package exposes the following metric categories:
//
// Server/HTTP Metrics:
//   - http_requests_total: Counter of HTTP requests by method, path, and status
//   - http_request_duration_seconds: Histogram of HTTP request durations
//   - active_sessions: Gauge of active client sessions
//
// Mail Protocol Metrics:
//   - mail_operations_total: Counter of IMAP/SMTP operations by service, operation, status
//   - mail_operation_duration_seconds: Histogram of mail operation durations
//
// Auth Metrics:
//   - auth_requests_total: Counter of bearer token authentication attempts by result
//   - token_rotations_total: Counter of auth token rotations
//
// MCP Tool Metrics:
//   - mcp_tool_invocations_total: Counter of MCP tool invocations by tool name and status
//   - mcp_tool_duration_seconds: Histogram of MCP tool execution durations
//
// # Configuration
//
// Instrumentation can be configured via environment variables:
//   - INSTRUMENTATION_ENABLED: Enable/disable instrumentation (default: true)
//   - METRICS_EXPORTER: Metrics exporter type (prometheus, stdout, default: prometheus)
//   - OTEL_SERVICE_NAME: Service name (default: universal-email-mcp)
//   - METRICS_DETAILED_LABELS: Include high-cardinality labels (default: false)
//
// # Example Usage
//
//	// Initialize instrumentation
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.Config{
//		ServiceName:    "universal-email-mcp",
//		ServiceVersion: "0.1.0",
//		Enabled:        true,
//	})
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	// Get metrics recorder
//	recorder := provider.Metrics()
//
//	// Record an HTTP request
//	recorder.RecordHTTPRequest(ctx, "POST", "/messages", 200, time.Since(start))
//
//	// Record a mail protocol operation
//	recorder.RecordMailOperation(ctx, "imap", "list", "success", time.Since(start))
//
//	// Record an MCP tool invocation
//	recorder.RecordToolInvocation(ctx, "list_messages", "success", time.Since(start))
package instrumentation
