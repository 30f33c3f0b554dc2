package mail

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	gomail "github.com/emersion/go-message/mail"
)

// parseMessage converts a fetched IMAP message into a Message. Header
// defects degrade gracefully: a missing Subject yields an empty string
// and an unparseable Date falls back to the current time. Only a body
// that cannot be read at all fails the parse.
func parseMessage(msg *imap.Message, section *imap.BodySectionName) (*Message, error) {
	literal := msg.GetBody(section)
	if literal == nil {
		return nil, fmt.Errorf("message %d has no body section", msg.Uid)
	}

	mr, err := gomail.CreateReader(literal)
	if err != nil {
		return nil, fmt.Errorf("failed to read message %d: %w", msg.Uid, err)
	}

	result := &Message{
		UID:    strconv.FormatUint(uint64(msg.Uid), 10),
		IsRead: hasSeenFlag(msg.Flags),
	}

	header := mr.Header
	if subject, err := header.Subject(); err == nil {
		result.Subject = subject
	}
	if addrs, err := header.AddressList("From"); err == nil && len(addrs) > 0 {
		result.Sender = formatAddress(addrs[0])
	}
	if date, err := header.Date(); err == nil && !date.IsZero() {
		result.Date = date
	} else {
		result.Date = time.Now()
	}
	if contentType, _, err := header.ContentType(); err == nil {
		result.HasAttachments = strings.HasPrefix(contentType, "multipart/")
	}

	result.Body = extractPlainBody(mr)
	return result, nil
}

// extractPlainBody returns the first text/plain inline part. A message
// with no such part (or unreadable parts) yields an empty body rather
// than an error.
func extractPlainBody(mr *gomail.Reader) string {
	for {
		part, err := mr.NextPart()
		if err == io.EOF || err != nil {
			return ""
		}

		inline, ok := part.Header.(*gomail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, err := inline.ContentType()
		if err != nil || !strings.HasPrefix(contentType, "text/plain") {
			continue
		}

		body, err := io.ReadAll(part.Body)
		if err != nil {
			return ""
		}
		return string(body)
	}
}

func hasSeenFlag(flags []string) bool {
	for _, flag := range flags {
		if flag == imap.SeenFlag {
			return true
		}
	}
	return false
}

func formatAddress(addr *gomail.Address) string {
	if addr.Name != "" {
		return fmt.Sprintf("%s <%s>", addr.Name, addr.Address)
	}
	return addr.Address
}
