package tools

import (
	"context"
	"errors"

	"github.com/pmbstyle/universal-email-mcp-server/internal/config"
	"github.com/pmbstyle/universal-email-mcp-server/internal/mail"
)

// mockStore implements AccountStore for testing.
type mockStore struct {
	// Return values
	Accounts map[string]config.Account
	Names    []string

	// Error injection
	Err error

	// Call tracking
	LastMethod  string
	LastName    string
	LastAccount config.Account
	CallCount   int
}

func (m *mockStore) AddAccount(account config.Account) error {
	m.LastMethod = "AddAccount"
	m.LastAccount = account
	m.CallCount++
	return m.Err
}

func (m *mockStore) RemoveAccount(name string) error {
	m.LastMethod = "RemoveAccount"
	m.LastName = name
	m.CallCount++
	return m.Err
}

func (m *mockStore) ListAccounts() ([]string, error) {
	m.LastMethod = "ListAccounts"
	m.CallCount++
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Names, nil
}

func (m *mockStore) GetAccount(name string) (config.Account, error) {
	m.LastMethod = "GetAccount"
	m.LastName = name
	m.CallCount++
	if m.Err != nil {
		return config.Account{}, m.Err
	}
	if acc, ok := m.Accounts[name]; ok {
		return acc, nil
	}
	return config.Account{}, config.ErrAccountNotFound
}

// mockSession implements MailSession for testing.
type mockSession struct {
	// Return values
	Mailboxes []string
	Messages  []mail.Message
	Total     int
	Message   *mail.Message

	// Error injection
	Err error

	// Call tracking
	LastMethod     string
	LastMailbox    string
	LastUID        string
	LastRead       bool
	LastOpts       mail.ListOptions
	LastRecipients []string
	LastCC         []string
	LastBCC        []string
	LastSubject    string
	LastBody       string
	LastHTML       bool
	Closed         bool
	CallCount      int
}

func (m *mockSession) ListMailboxes(ctx context.Context) ([]string, error) {
	m.LastMethod = "ListMailboxes"
	m.CallCount++
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Mailboxes, nil
}

func (m *mockSession) ListMessages(ctx context.Context, opts mail.ListOptions) ([]mail.Message, int, error) {
	m.LastMethod = "ListMessages"
	m.LastOpts = opts
	m.CallCount++
	if m.Err != nil {
		return nil, 0, m.Err
	}
	return m.Messages, m.Total, nil
}

func (m *mockSession) GetMessage(ctx context.Context, mailbox, uid string) (*mail.Message, error) {
	m.LastMethod = "GetMessage"
	m.LastMailbox = mailbox
	m.LastUID = uid
	m.CallCount++
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Message == nil {
		return nil, mail.ErrMessageNotFound
	}
	return m.Message, nil
}

func (m *mockSession) SetReadState(ctx context.Context, mailbox, uid string, read bool) error {
	m.LastMethod = "SetReadState"
	m.LastMailbox = mailbox
	m.LastUID = uid
	m.LastRead = read
	m.CallCount++
	return m.Err
}

func (m *mockSession) Send(ctx context.Context, recipients, cc, bcc []string, subject, body string, isHTML bool) error {
	m.LastMethod = "Send"
	m.LastRecipients = recipients
	m.LastCC = cc
	m.LastBCC = bcc
	m.LastSubject = subject
	m.LastBody = body
	m.LastHTML = isHTML
	m.CallCount++
	return m.Err
}

func (m *mockSession) Close() error {
	m.Closed = true
	return nil
}

// factoryFor returns a SessionFactory handing out the given session and
// a store that resolves "work" to a minimal account.
func factoryFor(session *mockSession) (AccountStore, SessionFactory) {
	store := &mockStore{
		Accounts: map[string]config.Account{
			"work": {
				AccountName:  "work",
				FullName:     "Jane Doe",
				EmailAddress: "jane@example.com",
			},
		},
	}
	return store, func(account config.Account) MailSession { return session }
}

func newErrSession(msg string) *mockSession {
	return &mockSession{Err: errors.New(msg)}
}
