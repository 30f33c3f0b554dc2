package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/pmbstyle/universal-email-mcp-server/internal/auth"
	"github.com/pmbstyle/universal-email-mcp-server/internal/instrumentation"
	"github.com/pmbstyle/universal-email-mcp-server/internal/logging"
)

const (
	// adminHeader gates the token retrieval endpoint. Only deployment
	// tooling that can inject this header may read the auth token.
	adminHeader      = "X-Internal-Auth"
	adminHeaderValue = "mcp-admin"

	ssePath     = "/sse"
	messagePath = "/messages"

	httpReadHeaderTimeout = 10 * time.Second
	httpIdleTimeout       = 120 * time.Second
)

// AuthHTTPServer serves the MCP SSE transport behind bearer-token
// authentication, together with the health and token endpoints.
type AuthHTTPServer struct {
	mcpServer     *mcpserver.MCPServer
	tokens        *auth.TokenManager
	middleware    *auth.Middleware
	healthChecker *HealthChecker
	tracker       *SessionTracker
	metrics       *instrumentation.Metrics
	httpServer    *http.Server
	logger        *slog.Logger
}

// NewAuthHTTPServer creates the HTTP front for an MCP server.
func NewAuthHTTPServer(mcpSrv *mcpserver.MCPServer, sc *ServerContext, version string) *AuthHTTPServer {
	logger := sc.Logger()
	return &AuthHTTPServer{
		mcpServer:     mcpSrv,
		tokens:        sc.Tokens(),
		middleware:    auth.NewMiddleware(sc.Tokens(), logger),
		healthChecker: NewHealthChecker(sc, version),
		tracker:       NewSessionTracker(logger),
		metrics:       sc.Metrics(),
		logger:        logger,
	}
}

// HealthChecker returns the health checker so callers can flip readiness.
func (s *AuthHTTPServer) HealthChecker() *HealthChecker {
	return s.healthChecker
}

// SetMetrics attaches a metrics recorder for HTTP instrumentation.
func (s *AuthHTTPServer) SetMetrics(m *instrumentation.Metrics) {
	s.metrics = m
	s.tracker.SetMetrics(m)
}

// Handler builds the full HTTP handler: health endpoints outside the auth
// middleware so probes never need credentials, the token endpoint behind
// its own admin gate, and the bearer-authenticated SSE transport.
func (s *AuthHTTPServer) Handler() http.Handler {
	protected := http.NewServeMux()
	protected.Handle("/get-token", s.tokenHandler())

	sseServer := mcpserver.NewSSEServer(s.mcpServer,
		mcpserver.WithSSEEndpoint(ssePath),
		mcpserver.WithMessageEndpoint(messagePath),
	)

	sseHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.tracker.TouchRequest(r)
		sseServer.ServeHTTP(w, r)
	})
	protected.Handle(ssePath, sseHandler)
	protected.Handle(messagePath, sseHandler)

	mux := http.NewServeMux()
	s.healthChecker.RegisterHealthEndpoints(mux)
	mux.Handle("/", s.middleware.Wrap(protected))

	return s.instrument(mux)
}

// Start starts the HTTP server in a blocking manner.
func (s *AuthHTTPServer) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: httpReadHeaderTimeout,
		IdleTimeout:       httpIdleTimeout,
	}

	s.logger.Info("starting HTTP server",
		slog.String("addr", addr),
		slog.String("sse_endpoint", ssePath),
		slog.String("message_endpoint", messagePath))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *AuthHTTPServer) Shutdown(ctx context.Context) error {
	s.tracker.Stop()
	if s.httpServer != nil {
		s.logger.Info("shutting down HTTP server")
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// tokenHandler returns the current auth token to deployment tooling.
// The endpoint sits on the auth allowlist, so it carries its own gate:
// the internal admin header must match exactly.
func (s *AuthHTTPServer) tokenHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(adminHeader) != adminHeaderValue {
			s.logger.Warn("token endpoint rejected",
				slog.String(logging.KeyPath, r.URL.Path))
			writeJSONError(w, http.StatusForbidden, "Forbidden")
			return
		}

		token, err := s.tokens.LoadToken()
		if err != nil || token == "" {
			s.logger.Error("token endpoint failed to load token", logging.Err(err))
			writeJSONError(w, http.StatusInternalServerError, "Token not available")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"token": token})
	})
}

// instrument wraps a handler with HTTP request metrics.
func (s *AuthHTTPServer) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		s.metrics.RecordHTTPRequest(r.Context(), r.Method, r.URL.Path, recorder.status, time.Since(start))
	})
}

// statusRecorder captures the response status for instrumentation.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush passes through so SSE streaming keeps working behind the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
	})
}
