package server

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/pmbstyle/universal-email-mcp-server/internal/instrumentation"
)

// sessionInfo tracks session metadata for cleanup
type sessionInfo struct {
	firstSeen  time.Time
	lastAccess time.Time
}

// SessionTracker tracks authenticated client sessions by bearer token.
// Each distinct token counts as one session; the tracker expires sessions
// that have been idle past the timeout and keeps the active_sessions
// metric in step.
type SessionTracker struct {
	sessions       map[string]*sessionInfo // Maps session ID to session info
	mu             sync.Mutex
	cleanupTicker  *time.Ticker
	cleanupDone    chan struct{}
	stopOnce       sync.Once
	sessionTimeout time.Duration
	logger         *slog.Logger
	metrics        *instrumentation.Metrics
}

// NewSessionTracker creates a session tracker with a 24 hour idle timeout.
func NewSessionTracker(logger *slog.Logger) *SessionTracker {
	return NewSessionTrackerWithTimeout(24*time.Hour, logger)
}

// NewSessionTrackerWithTimeout creates a session tracker with a custom idle timeout.
func NewSessionTrackerWithTimeout(timeout time.Duration, logger *slog.Logger) *SessionTracker {
	if logger == nil {
		logger = slog.Default()
	}

	t := &SessionTracker{
		sessions:       make(map[string]*sessionInfo),
		cleanupTicker:  time.NewTicker(10 * time.Minute),
		cleanupDone:    make(chan struct{}),
		sessionTimeout: timeout,
		logger:         logger,
	}

	// Start cleanup goroutine
	go t.cleanupExpiredSessions()

	return t
}

// SetMetrics attaches a metrics recorder so session counts are exported.
func (t *SessionTracker) SetMetrics(m *instrumentation.Metrics) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.metrics = m
}

// TouchRequest records activity for the session behind an HTTP request.
// Returns the session ID and whether this is a newly seen session.
// Requests without an Authorization header are not tracked.
func (t *SessionTracker) TouchRequest(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	return t.Touch(sessionIDFromToken(header))
}

// Touch records activity for a session ID, creating it on first sight.
func (t *SessionTracker) Touch(sessionID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	if info, ok := t.sessions[sessionID]; ok {
		info.lastAccess = now
		return sessionID, false
	}

	t.sessions[sessionID] = &sessionInfo{
		firstSeen:  now,
		lastAccess: now,
	}
	if t.metrics != nil {
		t.metrics.IncrementActiveSessions(context.Background())
	}
	t.logger.Debug("new client session", "session_id", shortSessionID(sessionID))
	return sessionID, true
}

// ActiveCount returns the number of sessions currently tracked.
func (t *SessionTracker) ActiveCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// Remove drops a session from the tracker.
func (t *SessionTracker) Remove(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.sessions[sessionID]; ok {
		delete(t.sessions, sessionID)
		if t.metrics != nil {
			t.metrics.DecrementActiveSessions(context.Background())
		}
	}
}

// sessionIDFromToken creates a stable session ID from the auth header.
// The raw token never leaves this function.
func sessionIDFromToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// shortSessionID truncates a session ID for logging.
func shortSessionID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// cleanupExpiredSessions periodically removes idle sessions.
func (t *SessionTracker) cleanupExpiredSessions() {
	for {
		select {
		case <-t.cleanupTicker.C:
			t.mu.Lock()
			now := time.Now()
			expiredCount := 0
			for sessionID, info := range t.sessions {
				if now.Sub(info.lastAccess) > t.sessionTimeout {
					delete(t.sessions, sessionID)
					if t.metrics != nil {
						t.metrics.DecrementActiveSessions(context.Background())
					}
					expiredCount++
				}
			}
			t.mu.Unlock()
			if expiredCount > 0 {
				t.logger.Info("cleaned up expired sessions", "count", expiredCount)
			}
		case <-t.cleanupDone:
			return
		}
	}
}

// Stop stops the session cleanup goroutine.
func (t *SessionTracker) Stop() {
	t.stopOnce.Do(func() {
		t.cleanupTicker.Stop()
		close(t.cleanupDone)
	})
}
