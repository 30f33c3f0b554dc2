// Package auth implements bearer-token authentication for the HTTP/SSE
// transport. A single shared token protects all MCP endpoints; the token
// is persisted to disk so it survives restarts, and every generated token
// is appended to a history file for auditing.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pmbstyle/universal-email-mcp-server/internal/logging"
)

const (
	tokenFileName   = "token.txt"
	historyFileName = "token_history.txt"

	// EnvAuthToken overrides the stored token at startup.
	EnvAuthToken = "AUTH_TOKEN"

	// EnvTokenDir overrides the token storage directory.
	EnvTokenDir = "EMAIL_MCP_TOKEN_DIR"
)

// TokenManager generates, persists, and validates the server's auth token.
// All methods are safe to call from HTTP handlers; the token file is the
// single source of truth, so rotation takes effect without a restart.
type TokenManager struct {
	dir         string
	tokenPath   string
	historyPath string
	logger      *slog.Logger
}

// historyEntry is one line of the append-only token history file.
type historyEntry struct {
	Token   string `json:"token"`
	Created string `json:"created"`
	Context string `json:"context"`
	Method  string `json:"method"`
}

// TokenInfo describes the current token setup without exposing the full token.
type TokenInfo struct {
	TokenExists  bool   `json:"token_exists"`
	TokenFile    string `json:"token_file"`
	TokenDir     string `json:"token_dir"`
	TokenLength  int    `json:"token_length"`
	TokenPreview string `json:"token_preview,omitempty"`
}

// NewTokenManager creates a token manager storing tokens under dir.
// If dir is empty, the directory is resolved from the environment:
// EMAIL_MCP_TOKEN_DIR if set, /data for Docker deployments, the system
// temp dir for Heroku, and ~/.config/universal_email_mcp/tokens otherwise.
func NewTokenManager(dir string, logger *slog.Logger) (*TokenManager, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if dir == "" {
		dir = resolveTokenDir()
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create token directory %s: %w", dir, err)
	}

	return &TokenManager{
		dir:         dir,
		tokenPath:   filepath.Join(dir, tokenFileName),
		historyPath: filepath.Join(dir, historyFileName),
		logger:      logger,
	}, nil
}

func resolveTokenDir() string {
	if dir := os.Getenv(EnvTokenDir); dir != "" {
		return dir
	}
	if os.Getenv("DOCKER_DEPLOYMENT") == "true" {
		return "/data"
	}
	if os.Getenv("HEROKU_DEPLOYMENT") == "true" {
		// Ephemeral, but Heroku dynos have no persistent disk anyway.
		return os.TempDir()
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "universal_email_mcp", "tokens")
	}
	return filepath.Join(home, ".config", "universal_email_mcp", "tokens")
}

// GenerateToken returns a new random token. The token combines a UUID with
// additional random entropy and carries a recognizable prefix so it can be
// identified in configuration files.
func (m *TokenManager) GenerateToken() string {
	id := uuid.New()
	extra := make([]byte, 16)
	if _, err := rand.Read(extra); err != nil {
		// crypto/rand only fails when the OS entropy source is broken.
		panic(fmt.Sprintf("failed to read random bytes: %v", err))
	}
	return fmt.Sprintf("ue-%s-%s", hex.EncodeToString(id[:]), base64.RawURLEncoding.EncodeToString(extra))
}

// SaveToken writes token to the token file with owner-only permissions and
// appends an entry to the history file. The write is atomic so a concurrent
// validation never observes a partially written token.
func (m *TokenManager) SaveToken(token, appContext string) error {
	return m.saveToken(token, appContext, "generated")
}

func (m *TokenManager) saveToken(token, appContext, method string) error {
	tmp, err := os.CreateTemp(m.dir, tokenFileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp token file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(token); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write token: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set token file permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close token file: %w", err)
	}
	if err := os.Rename(tmpName, m.tokenPath); err != nil {
		return fmt.Errorf("failed to save token file: %w", err)
	}

	m.logger.Info("auth token saved",
		slog.String("token", logging.SanitizeToken(token)),
		slog.String(logging.KeyPath, m.tokenPath),
		slog.String(logging.KeyContext, appContext))

	if err := m.appendHistory(token, appContext, method); err != nil {
		// History is an audit aid, not a requirement; the token itself is saved.
		m.logger.Warn("failed to append token history", logging.Err(err))
	}
	return nil
}

func (m *TokenManager) appendHistory(token, appContext, method string) error {
	entry := historyEntry{
		Token:   token,
		Created: time.Now().Format(time.RFC3339),
		Context: appContext,
		Method:  method,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(m.historyPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(append(data, '\n'))
	return err
}

// LoadToken returns the stored token, or an empty string if no token file
// exists. A missing file is not an error.
func (m *TokenManager) LoadToken() (string, error) {
	data, err := os.ReadFile(m.tokenPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// GetOrCreateToken returns the stored token, generating and saving a new
// one if none exists yet.
func (m *TokenManager) GetOrCreateToken(appContext string) (string, error) {
	existing, err := m.LoadToken()
	if err != nil {
		return "", err
	}
	if existing != "" {
		m.logger.Info("using existing auth token", slog.String(logging.KeyPath, m.tokenPath))
		return existing, nil
	}

	token := m.GenerateToken()
	if err := m.SaveToken(token, appContext); err != nil {
		return "", err
	}
	return token, nil
}

// ValidateToken reports whether token matches the stored token. The
// comparison is constant-time so response timing does not leak how many
// leading bytes matched.
func (m *TokenManager) ValidateToken(token string) bool {
	expected, err := m.LoadToken()
	if err != nil || expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(token)) == 1
}

// RotateToken generates and saves a new token. The old token stops
// validating as soon as the new file is in place. The history entry
// records the rotation so it can be told apart from first generation.
func (m *TokenManager) RotateToken(appContext string) (string, error) {
	token := m.GenerateToken()
	if err := m.saveToken(token, appContext, "rotated"); err != nil {
		return "", err
	}
	m.logger.Info("auth token rotated", slog.String(logging.KeyContext, appContext))
	return token, nil
}

// Info returns metadata about the current token setup for diagnostics.
// Only a short preview of the token is included.
func (m *TokenManager) Info() TokenInfo {
	token, _ := m.LoadToken()
	info := TokenInfo{
		TokenExists: token != "",
		TokenFile:   m.tokenPath,
		TokenDir:    m.dir,
		TokenLength: len(token),
	}
	if token != "" {
		preview := token
		if len(preview) > 8 {
			preview = preview[:8]
		}
		info.TokenPreview = preview + "..."
	}
	return info
}

// TokenPath returns the path of the token file.
func (m *TokenManager) TokenPath() string {
	return m.tokenPath
}

// Initialize builds a TokenManager from the environment and ensures a
// token exists. If AUTH_TOKEN is set, it replaces any stored token so
// operators can pin the credential through deployment config.
func Initialize(appContext string, logger *slog.Logger) (*TokenManager, error) {
	m, err := NewTokenManager("", logger)
	if err != nil {
		return nil, err
	}

	if envToken := os.Getenv(EnvAuthToken); envToken != "" {
		m.logger.Info("using auth token from environment")
		if err := m.saveToken(envToken, "environment", "environment"); err != nil {
			return nil, err
		}
		return m, nil
	}

	if _, err := m.GetOrCreateToken(appContext); err != nil {
		return nil, err
	}
	return m, nil
}
