package mail

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap"
)

// fetchedMessage builds an imap.Message the way a fetch response would,
// keyed by the response form of the body section (no peek).
func fetchedMessage(uid uint32, flags []string, raw string) *imap.Message {
	return &imap.Message{
		Uid:   uid,
		Flags: flags,
		Body: map[*imap.BodySectionName]imap.Literal{
			{}: bytes.NewBufferString(raw),
		},
	}
}

const simpleMessage = "From: Jane Doe <jane@example.com>\r\n" +
	"To: bob@example.com\r\n" +
	"Subject: Quarterly report\r\n" +
	"Date: Mon, 02 Jan 2006 15:04:05 -0700\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Here is the report.\r\n"

func TestParseMessage(t *testing.T) {
	section := &imap.BodySectionName{Peek: true}
	msg := fetchedMessage(42, []string{imap.SeenFlag}, simpleMessage)

	parsed, err := parseMessage(msg, section)
	if err != nil {
		t.Fatalf("parseMessage failed: %v", err)
	}

	if parsed.UID != "42" {
		t.Errorf("UID = %q, want 42", parsed.UID)
	}
	if parsed.Subject != "Quarterly report" {
		t.Errorf("Subject = %q, want 'Quarterly report'", parsed.Subject)
	}
	if parsed.Sender != "Jane Doe <jane@example.com>" {
		t.Errorf("Sender = %q, want 'Jane Doe <jane@example.com>'", parsed.Sender)
	}
	if !strings.Contains(parsed.Body, "Here is the report.") {
		t.Errorf("Body = %q, should contain the text part", parsed.Body)
	}
	if !parsed.IsRead {
		t.Error("IsRead should be true for a message with the Seen flag")
	}
	if parsed.HasAttachments {
		t.Error("HasAttachments should be false for a single-part message")
	}

	want := time.Date(2006, 1, 2, 15, 4, 5, 0, time.FixedZone("", -7*3600))
	if !parsed.Date.Equal(want) {
		t.Errorf("Date = %v, want %v", parsed.Date, want)
	}
}

func TestParseMessageHeaderDefaults(t *testing.T) {
	// No Subject, no Date, no From.
	raw := "To: bob@example.com\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"body\r\n"

	section := &imap.BodySectionName{Peek: true}
	before := time.Now()
	parsed, err := parseMessage(fetchedMessage(7, nil, raw), section)
	if err != nil {
		t.Fatalf("parseMessage failed: %v", err)
	}

	if parsed.Subject != "" {
		t.Errorf("missing Subject should yield empty string, got %q", parsed.Subject)
	}
	if parsed.Sender != "" {
		t.Errorf("missing From should yield empty sender, got %q", parsed.Sender)
	}
	if parsed.Date.IsZero() {
		t.Error("missing Date should fall back to a non-zero timestamp")
	}
	if parsed.Date.Before(before.Add(-time.Minute)) {
		t.Errorf("fallback Date %v should be close to now", parsed.Date)
	}
	if parsed.IsRead {
		t.Error("IsRead should be false without the Seen flag")
	}
}

func TestParseMessageMultipart(t *testing.T) {
	raw := "From: jane@example.com\r\n" +
		"Subject: With attachment\r\n" +
		"Date: Mon, 02 Jan 2006 15:04:05 -0700\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: multipart/mixed; boundary=frontier\r\n" +
		"\r\n" +
		"--frontier\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"See attached.\r\n" +
		"--frontier\r\n" +
		"Content-Type: application/pdf\r\n" +
		"Content-Disposition: attachment; filename=report.pdf\r\n" +
		"\r\n" +
		"%PDF-1.4 fake\r\n" +
		"--frontier--\r\n"

	section := &imap.BodySectionName{Peek: true}
	parsed, err := parseMessage(fetchedMessage(9, nil, raw), section)
	if err != nil {
		t.Fatalf("parseMessage failed: %v", err)
	}

	if !parsed.HasAttachments {
		t.Error("HasAttachments should be true for multipart content")
	}
	if !strings.Contains(parsed.Body, "See attached.") {
		t.Errorf("Body = %q, should contain the text/plain part", parsed.Body)
	}
}

func TestParseMessageMissingBody(t *testing.T) {
	section := &imap.BodySectionName{Peek: true}
	msg := &imap.Message{Uid: 3}

	if _, err := parseMessage(msg, section); err == nil {
		t.Error("parseMessage should fail when the body section is absent")
	}
}
