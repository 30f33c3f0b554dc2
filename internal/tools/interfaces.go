// Package tools defines the MCP tools exposed by the email server and
// the dispatcher that routes tool calls to them. Handlers depend on
// narrow interfaces so tests can substitute the config store and the
// mail session without touching real servers.
package tools

import (
	"context"

	"github.com/pmbstyle/universal-email-mcp-server/internal/config"
	"github.com/pmbstyle/universal-email-mcp-server/internal/mail"
)

// AccountStore is the account configuration surface tools need.
// The concrete *config.Store satisfies this.
type AccountStore interface {
	AddAccount(account config.Account) error
	RemoveAccount(name string) error
	ListAccounts() ([]string, error)
	GetAccount(name string) (config.Account, error)
}

// MailSession is the per-account protocol surface. The concrete
// *mail.Session satisfies this. Sessions are opened per tool call and
// closed when the call finishes.
type MailSession interface {
	ListMailboxes(ctx context.Context) ([]string, error)
	ListMessages(ctx context.Context, opts mail.ListOptions) ([]mail.Message, int, error)
	GetMessage(ctx context.Context, mailbox, uid string) (*mail.Message, error)
	SetReadState(ctx context.Context, mailbox, uid string, read bool) error
	Send(ctx context.Context, recipients, cc, bcc []string, subject, body string, isHTML bool) error
	Close() error
}

// SessionFactory opens a mail session for an account's settings.
type SessionFactory func(account config.Account) MailSession
