package tools

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/pmbstyle/universal-email-mcp-server/internal/logging"
)

// TimeoutMiddleware wraps each tool handler with a context deadline so
// a stalled IMAP or SMTP connection cannot hold a request forever.
func TimeoutMiddleware(timeout time.Duration) server.ToolHandlerMiddleware {
	return func(next server.ToolHandlerFunc) server.ToolHandlerFunc {
		return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return next(ctx, req)
		}
	}
}

// LoggingMiddleware logs each tool call with a unique request ID,
// duration, and outcome.
func LoggingMiddleware(logger *slog.Logger) server.ToolHandlerMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next server.ToolHandlerFunc) server.ToolHandlerFunc {
		return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			callLogger := logger.With(
				slog.String("request_id", uuid.New().String()),
				logging.Tool(req.Params.Name))

			callLogger.Debug("tool call started")
			start := time.Now()

			result, err := next(ctx, req)
			duration := time.Since(start)

			switch {
			case err != nil:
				callLogger.Error("tool call failed",
					slog.Int64("duration_ms", duration.Milliseconds()),
					logging.Err(err))
			case result != nil && result.IsError:
				callLogger.Warn("tool call returned error",
					slog.Int64("duration_ms", duration.Milliseconds()))
			default:
				callLogger.Info("tool call completed",
					slog.Int64("duration_ms", duration.Milliseconds()),
					logging.Status(logging.StatusSuccess))
			}

			return result, err
		}
	}
}
