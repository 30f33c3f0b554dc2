// Package config stores email account configuration encrypted at rest.
// Account data is encoded as TOML, sealed with AES-256-GCM, and written
// inside a small JSON envelope so older plaintext files can be detected
// and migrated. The encryption key lives in the system keyring, with an
// owner-only key file as fallback for headless hosts.
package config

import "errors"

// Sentinel errors for expected account lookup outcomes. Callers branch on
// these with errors.Is; anything else is an unexpected storage fault.
var (
	ErrAccountNotFound  = errors.New("account not found")
	ErrDuplicateAccount = errors.New("account already exists")
)

// ServerSpec describes one mail server endpoint (IMAP or SMTP).
type ServerSpec struct {
	UserName  string `toml:"user_name" json:"user_name"`
	Password  string `toml:"password" json:"password"`
	Host      string `toml:"host" json:"host"`
	Port      int    `toml:"port" json:"port"`
	UseSSL    bool   `toml:"use_ssl" json:"use_ssl"`
	VerifySSL bool   `toml:"verify_ssl" json:"verify_ssl"`
}

// Account is a named pair of incoming (IMAP) and outgoing (SMTP) servers
// plus the identity used on outgoing mail.
type Account struct {
	AccountName  string     `toml:"account_name" json:"account_name"`
	FullName     string     `toml:"full_name" json:"full_name"`
	EmailAddress string     `toml:"email_address" json:"email_address"`
	Incoming     ServerSpec `toml:"incoming" json:"incoming"`
	Outgoing     ServerSpec `toml:"outgoing" json:"outgoing"`
}

// Settings is the full persisted configuration.
type Settings struct {
	Accounts []Account `toml:"accounts" json:"accounts"`
}

// Get returns the account with the given name, or ErrAccountNotFound.
func (s *Settings) Get(name string) (Account, error) {
	for _, acc := range s.Accounts {
		if acc.AccountName == name {
			return acc, nil
		}
	}
	return Account{}, ErrAccountNotFound
}

// Names returns the account names in storage order. Credentials are
// never included.
func (s *Settings) Names() []string {
	names := make([]string, 0, len(s.Accounts))
	for _, acc := range s.Accounts {
		names = append(names, acc.AccountName)
	}
	return names
}
