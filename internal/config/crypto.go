package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/99designs/keyring"

	"github.com/pmbstyle/universal-email-mcp-server/internal/logging"
)

const (
	keyringService = "universal_email_mcp"
	keyringItem    = "encryption_key"
	keyFileName    = "encryption.key"
	keySize        = 32
)

// loadOrCreateKey resolves the AES key: system keyring first, then the
// key file next to the config, generating and persisting a fresh key if
// neither holds one. Keyring failures are expected on headless hosts and
// fall through to the file silently.
func loadOrCreateKey(dir string, logger *slog.Logger) ([]byte, error) {
	if key, err := keyFromKeyring(); err == nil {
		return key, nil
	}

	keyPath := filepath.Join(dir, keyFileName)
	if data, err := os.ReadFile(keyPath); err == nil {
		key, err := base64.StdEncoding.DecodeString(string(data))
		if err == nil && len(key) == keySize {
			return key, nil
		}
		logger.Warn("ignoring unreadable encryption key file", slog.String(logging.KeyPath, keyPath))
	}

	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate encryption key: %w", err)
	}

	if err := keyToKeyring(key); err == nil {
		return key, nil
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(key)
	if err := os.WriteFile(keyPath, []byte(encoded), 0o600); err != nil {
		return nil, fmt.Errorf("failed to save encryption key: %w", err)
	}
	return key, nil
}

func openKeyring() (keyring.Keyring, error) {
	// The file backend is excluded: we manage our own key file so the
	// fallback never needs an interactive password prompt.
	return keyring.Open(keyring.Config{
		ServiceName: keyringService,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
		},
		KeychainTrustApplication: true,
	})
}

func keyFromKeyring() ([]byte, error) {
	ring, err := openKeyring()
	if err != nil {
		return nil, err
	}
	item, err := ring.Get(keyringItem)
	if err != nil {
		return nil, err
	}
	key, err := base64.StdEncoding.DecodeString(string(item.Data))
	if err != nil {
		return nil, fmt.Errorf("invalid key in keyring: %w", err)
	}
	if len(key) != keySize {
		return nil, fmt.Errorf("key in keyring has wrong size %d", len(key))
	}
	return key, nil
}

func keyToKeyring(key []byte) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}
	return ring.Set(keyring.Item{
		Key:  keyringItem,
		Data: []byte(base64.StdEncoding.EncodeToString(key)),
	})
}

// encrypt seals plaintext with AES-256-GCM and returns a base64 string
// carrying nonce||ciphertext.
func encrypt(key, plaintext []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("failed to initialize cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to initialize GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// decrypt reverses encrypt. Any tampering or key mismatch fails the
// GCM authentication check.
func decrypt(key []byte, encoded string) ([]byte, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode configuration data: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GCM: %w", err)
	}

	if len(sealed) < gcm.NonceSize() {
		return nil, fmt.Errorf("configuration data too short")
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt configuration data: %w", err)
	}
	return plaintext, nil
}
