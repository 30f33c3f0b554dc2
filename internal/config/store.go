package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/pmbstyle/universal-email-mcp-server/internal/logging"
)

const configFileName = "config.toml"

// EnvConfigDir overrides the configuration directory.
const EnvConfigDir = "EMAIL_MCP_CONFIG_DIR"

// envelope is the on-disk wrapper around the encrypted payload.
type envelope struct {
	Encrypted bool   `json:"encrypted"`
	Data      string `json:"data"`
}

// Store persists account settings encrypted at rest. All mutations go
// through a single mutex so concurrent tool calls never interleave a
// read-modify-write cycle; the file itself is replaced atomically.
type Store struct {
	mu     sync.Mutex
	path   string
	key    []byte
	logger *slog.Logger
}

// NewStore opens (or initializes) the encrypted account store under dir.
// If dir is empty it resolves to EMAIL_MCP_CONFIG_DIR, falling back to
// ~/.config/universal_email_mcp.
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir == "" {
		dir = resolveConfigDir()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create config directory %s: %w", dir, err)
	}

	key, err := loadOrCreateKey(dir, logger)
	if err != nil {
		return nil, err
	}

	return &Store{
		path:   filepath.Join(dir, configFileName),
		key:    key,
		logger: logger,
	}, nil
}

// newStoreWithKey bypasses the keyring chain. Used by tests.
func newStoreWithKey(path string, key []byte, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{path: path, key: key, logger: logger}
}

func resolveConfigDir() string {
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "universal_email_mcp")
	}
	return filepath.Join(home, ".config", "universal_email_mcp")
}

// Load reads and decrypts the current settings. A missing file yields
// empty settings. A legacy plaintext TOML file is accepted and rewritten
// encrypted on the next save; an undecryptable file is treated as empty
// rather than wedging the server.
func (s *Store) Load() (*Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() (*Settings, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Settings{}, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Encrypted {
		plaintext, err := decrypt(s.key, env.Data)
		if err != nil {
			s.logger.Warn("failed to decrypt config, starting empty", logging.Err(err))
			return &Settings{}, nil
		}
		var settings Settings
		if err := toml.Unmarshal(plaintext, &settings); err != nil {
			return nil, fmt.Errorf("failed to parse decrypted config: %w", err)
		}
		return &settings, nil
	}

	// Legacy plaintext TOML written before encryption at rest.
	var settings Settings
	if err := toml.Unmarshal(raw, &settings); err == nil {
		s.logger.Info("migrating legacy plaintext config to encrypted storage")
		if err := s.saveLocked(&settings); err != nil {
			return nil, fmt.Errorf("failed to migrate legacy config: %w", err)
		}
		return &settings, nil
	}

	s.logger.Warn("unrecognized config file format, starting empty", slog.String(logging.KeyPath, s.path))
	return &Settings{}, nil
}

func (s *Store) saveLocked(settings *Settings) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(settings); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	sealed, err := encrypt(s.key, buf.Bytes())
	if err != nil {
		return err
	}
	raw, err := json.Marshal(envelope{Encrypted: true, Data: sealed})
	if err != nil {
		return fmt.Errorf("failed to encode config envelope: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, configFileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp config file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set config permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close config file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}
	return nil
}

// AddAccount stores a new account. Adding a name that already exists
// returns ErrDuplicateAccount and leaves the stored entry untouched.
func (s *Store) AddAccount(account Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, err := s.loadLocked()
	if err != nil {
		return err
	}
	if _, err := settings.Get(account.AccountName); err == nil {
		return fmt.Errorf("%w: %s", ErrDuplicateAccount, account.AccountName)
	}

	settings.Accounts = append(settings.Accounts, account)
	if err := s.saveLocked(settings); err != nil {
		return err
	}

	s.logger.Info("account added",
		logging.Account(account.AccountName),
		logging.UserHash(account.EmailAddress))
	return nil
}

// RemoveAccount deletes the named account, returning ErrAccountNotFound
// if it does not exist.
func (s *Store) RemoveAccount(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, err := s.loadLocked()
	if err != nil {
		return err
	}

	kept := settings.Accounts[:0]
	found := false
	for _, acc := range settings.Accounts {
		if acc.AccountName == name {
			found = true
			continue
		}
		kept = append(kept, acc)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, name)
	}

	settings.Accounts = kept
	if err := s.saveLocked(settings); err != nil {
		return err
	}

	s.logger.Info("account removed", logging.Account(name))
	return nil
}

// GetAccount returns the named account, or ErrAccountNotFound.
func (s *Store) GetAccount(name string) (Account, error) {
	settings, err := s.Load()
	if err != nil {
		return Account{}, err
	}
	acc, err := settings.Get(name)
	if err != nil {
		return Account{}, fmt.Errorf("%w: %s", ErrAccountNotFound, name)
	}
	return acc, nil
}

// ListAccounts returns the stored account names, never credentials.
func (s *Store) ListAccounts() ([]string, error) {
	settings, err := s.Load()
	if err != nil {
		return nil, err
	}
	return settings.Names(), nil
}

// Path returns the config file location.
func (s *Store) Path() string {
	return s.path
}
