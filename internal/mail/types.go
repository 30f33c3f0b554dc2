// Package mail implements the IMAP/SMTP session layer. A Session holds
// lazily opened connections for one configured account; the incoming and
// outgoing sides connect independently on first use so read-only tools
// never touch the SMTP server and vice versa.
package mail

import (
	"errors"
	"time"
)

// ErrMessageNotFound is returned when a UID does not resolve to a message
// in the selected mailbox. Callers branch on this with errors.Is; other
// errors indicate protocol or network faults.
var ErrMessageNotFound = errors.New("message not found")

// Message is the parsed representation of one email returned to tools.
type Message struct {
	UID            string    `json:"uid"`
	Subject        string    `json:"subject"`
	Sender         string    `json:"sender"`
	Body           string    `json:"body"`
	Date           time.Time `json:"date"`
	IsRead         bool      `json:"is_read"`
	HasAttachments bool      `json:"has_attachments"`
}

// ListOptions selects and paginates messages in a mailbox. Page is
// 1-based; results are ordered most recent first.
type ListOptions struct {
	Mailbox       string
	Page          int
	PageSize      int
	SubjectFilter string
	SenderFilter  string
	Since         *time.Time
	Before        *time.Time
	UnreadOnly    bool
}
