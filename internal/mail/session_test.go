package mail

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap"

	"github.com/pmbstyle/universal-email-mcp-server/internal/config"
)

func sequentialUIDs(n int) []uint32 {
	uids := make([]uint32, n)
	for i := range uids {
		uids[i] = uint32(i + 1)
	}
	return uids
}

func TestPaginateUIDs(t *testing.T) {
	// 25 matches, UIDs 1..25 ascending; newest first is 25..1.
	uids := sequentialUIDs(25)

	tests := []struct {
		name     string
		page     int
		pageSize int
		want     []uint32
	}{
		{"first page", 1, 10, []uint32{25, 24, 23, 22, 21, 20, 19, 18, 17, 16}},
		{"second page", 2, 10, []uint32{15, 14, 13, 12, 11, 10, 9, 8, 7, 6}},
		{"partial last page", 3, 10, []uint32{5, 4, 3, 2, 1}},
		{"page past the end", 4, 10, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, total := paginateUIDs(uids, tt.page, tt.pageSize)
			if total != 25 {
				t.Errorf("total = %d, want 25", total)
			}
			if len(page) != len(tt.want) {
				t.Fatalf("page length = %d, want %d (%v)", len(page), len(tt.want), page)
			}
			for i, uid := range tt.want {
				if page[i] != uid {
					t.Errorf("page[%d] = %d, want %d", i, page[i], uid)
				}
			}
		})
	}
}

func TestPaginateUIDsEmpty(t *testing.T) {
	page, total := paginateUIDs(nil, 1, 10)
	if total != 0 || page != nil {
		t.Errorf("paginateUIDs(nil) = (%v, %d), want (nil, 0)", page, total)
	}
}

func TestBuildSearchCriteria(t *testing.T) {
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	before := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	criteria := buildSearchCriteria(ListOptions{
		SubjectFilter: "invoice",
		SenderFilter:  "billing@example.com",
		Since:         &since,
		Before:        &before,
		UnreadOnly:    true,
	})

	if len(criteria.WithoutFlags) != 1 || criteria.WithoutFlags[0] != imap.SeenFlag {
		t.Errorf("WithoutFlags = %v, want [\\Seen]", criteria.WithoutFlags)
	}
	if got := criteria.Header.Get("Subject"); got != "invoice" {
		t.Errorf("Subject header = %q, want invoice", got)
	}
	if got := criteria.Header.Get("From"); got != "billing@example.com" {
		t.Errorf("From header = %q, want billing@example.com", got)
	}
	if !criteria.Since.Equal(since) {
		t.Errorf("Since = %v, want %v", criteria.Since, since)
	}
	if !criteria.Before.Equal(before) {
		t.Errorf("Before = %v, want %v", criteria.Before, before)
	}
}

func TestBuildSearchCriteriaDefaults(t *testing.T) {
	criteria := buildSearchCriteria(ListOptions{Mailbox: "INBOX"})

	if len(criteria.WithoutFlags) != 0 {
		t.Errorf("WithoutFlags = %v, want empty", criteria.WithoutFlags)
	}
	if len(criteria.Header) != 0 {
		t.Errorf("Header = %v, want empty", criteria.Header)
	}
	if !criteria.Since.IsZero() || !criteria.Before.IsZero() {
		t.Error("date filters should be unset by default")
	}
}

func TestEnvelopeRecipients(t *testing.T) {
	got := envelopeRecipients(
		[]string{"a@x.com"},
		[]string{"b@x.com", "a@x.com"},
		[]string{"c@x.com", "", "b@x.com"},
	)

	want := []string{"a@x.com", "b@x.com", "c@x.com"}
	if len(got) != len(want) {
		t.Fatalf("envelope = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("envelope[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestBuildMessageHeaders(t *testing.T) {
	session := NewSession(config.Account{
		AccountName:  "work",
		FullName:     "Jane Doe",
		EmailAddress: "jane@example.com",
	}, nil)

	raw, err := session.buildMessage(
		[]string{"a@x.com"},
		[]string{"b@x.com"},
		nil,
		"Hello",
		"message body",
		false,
	)
	if err != nil {
		t.Fatalf("buildMessage failed: %v", err)
	}

	text := string(raw)
	headers, _, found := strings.Cut(text, "\r\n\r\n")
	if !found {
		t.Fatal("message has no header/body separator")
	}

	if !strings.Contains(headers, "To: <a@x.com>") {
		t.Errorf("headers missing To recipient:\n%s", headers)
	}
	if !strings.Contains(headers, "Cc: <b@x.com>") {
		t.Errorf("headers missing Cc recipient:\n%s", headers)
	}
	if strings.Contains(headers, "Bcc") {
		t.Errorf("headers must never contain Bcc:\n%s", headers)
	}
	if !strings.Contains(headers, "Subject: Hello") {
		t.Errorf("headers missing Subject:\n%s", headers)
	}
	if !strings.Contains(headers, "Jane Doe") || !strings.Contains(headers, "jane@example.com") {
		t.Errorf("From header should carry full name and address:\n%s", headers)
	}
	if !strings.Contains(text, "message body") {
		t.Error("message body missing from output")
	}
	if !strings.Contains(text, "text/plain") {
		t.Error("plain message should declare text/plain content")
	}
}

func TestBuildMessageHTML(t *testing.T) {
	session := NewSession(config.Account{
		AccountName:  "work",
		FullName:     "Jane Doe",
		EmailAddress: "jane@example.com",
	}, nil)

	raw, err := session.buildMessage([]string{"a@x.com"}, nil, nil, "Hi", "<p>hello</p>", true)
	if err != nil {
		t.Fatalf("buildMessage failed: %v", err)
	}

	if !strings.Contains(string(raw), "text/html") {
		t.Error("HTML message should declare text/html content")
	}
	if strings.Contains(string(raw), "Cc:") {
		t.Error("empty cc list should not produce a Cc header")
	}
}

func TestBuildMessageShape(t *testing.T) {
	session := NewSession(config.Account{
		AccountName:  "work",
		EmailAddress: "jane@example.com",
	}, nil)

	t.Run("no copies is single part", func(t *testing.T) {
		raw, err := session.buildMessage([]string{"a@x.com"}, nil, nil, "Hi", "plain body", false)
		if err != nil {
			t.Fatalf("buildMessage failed: %v", err)
		}

		headers, _, found := strings.Cut(string(raw), "\r\n\r\n")
		if !found {
			t.Fatal("message has no header/body separator")
		}
		if strings.Contains(headers, "multipart") {
			t.Errorf("message without cc/bcc must not be multipart:\n%s", headers)
		}
		if !strings.Contains(headers, "Content-Type: text/plain") {
			t.Errorf("top-level Content-Type should be text/plain:\n%s", headers)
		}
	})

	t.Run("cc makes it multipart", func(t *testing.T) {
		raw, err := session.buildMessage([]string{"a@x.com"}, []string{"b@x.com"}, nil, "Hi", "plain body", false)
		if err != nil {
			t.Fatalf("buildMessage failed: %v", err)
		}

		headers, _, found := strings.Cut(string(raw), "\r\n\r\n")
		if !found {
			t.Fatal("message has no header/body separator")
		}
		if !strings.Contains(headers, "Content-Type: multipart/") {
			t.Errorf("message with cc should be a multipart container:\n%s", headers)
		}
	})

	t.Run("bcc alone makes it multipart", func(t *testing.T) {
		raw, err := session.buildMessage([]string{"a@x.com"}, nil, []string{"c@x.com"}, "Hi", "plain body", false)
		if err != nil {
			t.Fatalf("buildMessage failed: %v", err)
		}

		headers, _, found := strings.Cut(string(raw), "\r\n\r\n")
		if !found {
			t.Fatal("message has no header/body separator")
		}
		if !strings.Contains(headers, "Content-Type: multipart/") {
			t.Errorf("message with bcc should be a multipart container:\n%s", headers)
		}
		if strings.Contains(headers, "c@x.com") {
			t.Errorf("bcc address leaked into headers:\n%s", headers)
		}
	})
}

func TestFlagsStoreItem(t *testing.T) {
	if got := string(flagsStoreItem(true)); got != "+FLAGS.SILENT" {
		t.Errorf("read item = %q, want +FLAGS.SILENT", got)
	}
	if got := string(flagsStoreItem(false)); got != "-FLAGS.SILENT" {
		t.Errorf("unread item = %q, want -FLAGS.SILENT", got)
	}
}

// deadlineRecorder is a net.Conn that only records deadline changes.
type deadlineRecorder struct {
	net.Conn
	deadline time.Time
	cleared  bool
}

func (d *deadlineRecorder) SetDeadline(t time.Time) error {
	d.deadline = t
	d.cleared = t.IsZero()
	return nil
}

func TestSMTPDeadline(t *testing.T) {
	s := NewSession(config.Account{AccountName: "work"}, nil)

	rec := &deadlineRecorder{}
	s.smtpConn = rec

	s.smtpDeadline(time.Minute)
	if rec.deadline.IsZero() {
		t.Error("deadline should be armed for the exchange")
	}

	s.smtpDeadline(0)
	if !rec.cleared {
		t.Error("zero duration should clear the deadline")
	}

	s.smtpConn = nil
	s.smtpDeadline(time.Minute) // no connection, must be a no-op
}

// fakeSMTPServer speaks just enough SMTP on a local listener to accept a
// plaintext session: greeting, EHLO without STARTTLS, AUTH, QUIT.
func fakeSMTPServer(t *testing.T) (host string, port int) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		r := bufio.NewReader(conn)
		fmt.Fprintf(conn, "220 fake ESMTP\r\n")
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			switch {
			case strings.HasPrefix(line, "EHLO"), strings.HasPrefix(line, "HELO"):
				fmt.Fprintf(conn, "250-fake\r\n250 AUTH PLAIN\r\n")
			case strings.HasPrefix(line, "AUTH"):
				fmt.Fprintf(conn, "235 ok\r\n")
			case strings.HasPrefix(line, "QUIT"):
				fmt.Fprintf(conn, "221 bye\r\n")
				return
			default:
				fmt.Fprintf(conn, "250 ok\r\n")
			}
		}
	}()

	addr, portStr, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatalf("split listener addr: %v", err)
	}
	p, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse listener port: %v", err)
	}
	return addr, p
}

func TestConnectOutgoingPlaintextWithoutStartTLS(t *testing.T) {
	host, port := fakeSMTPServer(t)

	s := NewSession(config.Account{
		AccountName:  "work",
		EmailAddress: "jane@example.com",
		Outgoing: config.ServerSpec{
			UserName: "jane",
			Password: "secret",
			Host:     host,
			Port:     port,
			UseSSL:   false,
		},
	}, nil)

	s.mu.Lock()
	c, err := s.connectOutgoing()
	s.mu.Unlock()
	if err != nil {
		t.Fatalf("connectOutgoing failed against plaintext-only server: %v", err)
	}
	if c == nil {
		t.Fatal("connectOutgoing returned nil client")
	}
	if s.smtpConn == nil {
		t.Error("session should keep the connection for deadline control")
	}

	if err := s.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestUIDSeqSet(t *testing.T) {
	seqSet, err := uidSeqSet("42")
	if err != nil {
		t.Fatalf("uidSeqSet failed: %v", err)
	}
	if !seqSet.Contains(42) {
		t.Error("seq set should contain uid 42")
	}

	if _, err := uidSeqSet("not-a-number"); err == nil {
		t.Error("uidSeqSet should reject non-numeric uids")
	}
}
