package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pmbstyle/universal-email-mcp-server/internal/logging"
)

// errorBody is the JSON envelope returned for rejected requests.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Middleware enforces bearer-token authentication on HTTP requests.
// A small allowlist of paths stays reachable without credentials so
// health probes and first-time token retrieval keep working.
type Middleware struct {
	tokens *TokenManager
	logger *slog.Logger
}

// NewMiddleware creates an auth middleware backed by the given token manager.
func NewMiddleware(tokens *TokenManager, logger *slog.Logger) *Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &Middleware{tokens: tokens, logger: logger}
}

// publicRoutes are exact paths that never require authentication.
func publicRoutes() map[string]bool {
	return map[string]bool{
		"/health":    true,
		"/get-token": true,
		"/":          true,
	}
}

// Wrap returns a handler that authenticates every request before passing
// it to next. Rejections carry a JSON error body: 401 when credentials
// are missing or malformed, 403 when the token does not validate.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	public := publicRoutes()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if public[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		if header == "" {
			m.reject(w, r, http.StatusUnauthorized, "Missing Authorization header. Use 'Bearer <token>'")
			return
		}

		scheme, token, found := strings.Cut(header, " ")
		if !found {
			m.reject(w, r, http.StatusUnauthorized, "Invalid Authorization header format")
			return
		}

		if !strings.EqualFold(scheme, "Bearer") {
			m.reject(w, r, http.StatusUnauthorized, "Unsupported authentication scheme")
			return
		}

		if !m.tokens.ValidateToken(token) {
			m.reject(w, r, http.StatusForbidden, "Invalid or expired token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) reject(w http.ResponseWriter, r *http.Request, code int, message string) {
	m.logger.Warn("request rejected",
		slog.String(logging.KeyPath, r.URL.Path),
		slog.Int("code", code),
		slog.String("reason", message))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(errorBody{Error: errorDetail{Code: code, Message: message}}); err != nil {
		m.logger.Error("failed to encode error response", logging.Err(err))
	}
}
