package server

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pmbstyle/universal-email-mcp-server/internal/auth"
	"github.com/pmbstyle/universal-email-mcp-server/internal/config"
	"github.com/pmbstyle/universal-email-mcp-server/internal/instrumentation"
	"github.com/pmbstyle/universal-email-mcp-server/internal/mail"
	"github.com/pmbstyle/universal-email-mcp-server/internal/tools"
)

// ServerContext holds the shared dependencies for the MCP server
type ServerContext struct {
	ctx      context.Context
	cancel   context.CancelFunc
	tokens   *auth.TokenManager
	store    tools.AccountStore
	sessions tools.SessionFactory
	logger   *slog.Logger
	metrics  *instrumentation.Metrics
	audit    *instrumentation.AuditLogger
	mu       sync.RWMutex
	shutdown bool
}

// NewServerContext creates a new server context with the default account
// store and a live IMAP/SMTP session factory.
func NewServerContext(ctx context.Context, logger *slog.Logger) (*ServerContext, error) {
	if logger == nil {
		logger = slog.Default()
	}

	store, err := config.NewStore("", logger)
	if err != nil {
		return nil, err
	}

	tokens, err := auth.Initialize("startup", logger)
	if err != nil {
		return nil, err
	}

	factory := func(account config.Account) tools.MailSession {
		return mail.NewSession(account, logger)
	}

	return newServerContext(ctx, tokens, store, factory, logger), nil
}

// NewServerContextWith creates a server context from explicit dependencies.
// Used by tests and by callers that already hold a store or token manager.
func NewServerContextWith(ctx context.Context, tokens *auth.TokenManager, store tools.AccountStore, sessions tools.SessionFactory, logger *slog.Logger) *ServerContext {
	if logger == nil {
		logger = slog.Default()
	}
	return newServerContext(ctx, tokens, store, sessions, logger)
}

func newServerContext(ctx context.Context, tokens *auth.TokenManager, store tools.AccountStore, sessions tools.SessionFactory, logger *slog.Logger) *ServerContext {
	shutdownCtx, cancel := context.WithCancel(ctx)
	return &ServerContext{
		ctx:      shutdownCtx,
		cancel:   cancel,
		tokens:   tokens,
		store:    store,
		sessions: sessions,
		logger:   logger,
	}
}

// Context returns the server context
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Logger returns the server logger
func (sc *ServerContext) Logger() *slog.Logger {
	return sc.logger
}

// Tokens returns the auth token manager
func (sc *ServerContext) Tokens() *auth.TokenManager {
	return sc.tokens
}

// Store returns the account store
func (sc *ServerContext) Store() tools.AccountStore {
	return sc.store
}

// Sessions returns the mail session factory
func (sc *ServerContext) Sessions() tools.SessionFactory {
	return sc.sessions
}

// SetMetrics sets the metrics recorder for tool instrumentation
func (sc *ServerContext) SetMetrics(m *instrumentation.Metrics) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.metrics = m
}

// Metrics returns the metrics recorder, or nil if instrumentation is disabled
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.metrics
}

// SetAuditLogger sets the audit logger for tool invocations
func (sc *ServerContext) SetAuditLogger(al *instrumentation.AuditLogger) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.audit = al
}

// AuditLogger returns the audit logger, or nil if audit logging is disabled
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.audit
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown shuts down the server context
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()
	return nil
}
