package tools

import (
	"fmt"
	"strings"
)

const (
	maxBodySize    = 10 * 1024 * 1024 // 10 MB
	maxSubjectSize = 998              // RFC 5322 line length limit

	minPageSize = 1
	maxPageSize = 100
)

// validateMailboxName rejects mailbox names with characters that could
// corrupt the IMAP command stream.
func validateMailboxName(name string) error {
	if name == "" {
		return fmt.Errorf("mailbox must not be empty")
	}
	if strings.ContainsRune(name, 0) {
		return fmt.Errorf("mailbox must not contain null bytes")
	}
	for _, r := range name {
		if r < 0x20 {
			return fmt.Errorf("mailbox must not contain control characters")
		}
	}
	return nil
}

// validateUID checks that a message UID is plausible before it reaches
// the protocol layer.
func validateUID(uid string) error {
	if uid == "" {
		return fmt.Errorf("message_uid is required")
	}
	for _, r := range uid {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("message_uid contains invalid characters")
		}
	}
	return nil
}

// validatePagination enforces the page and page_size ranges.
func validatePagination(page, pageSize int) error {
	if page < 1 {
		return fmt.Errorf("page must be >= 1")
	}
	if pageSize < minPageSize || pageSize > maxPageSize {
		return fmt.Errorf("page_size must be between %d and %d", minPageSize, maxPageSize)
	}
	return nil
}

func validateBodySize(body string) error {
	if len(body) > maxBodySize {
		return fmt.Errorf("body exceeds maximum size of %d bytes", maxBodySize)
	}
	return nil
}

func validateSubjectSize(subject string) error {
	if len(subject) > maxSubjectSize {
		return fmt.Errorf("subject exceeds maximum length of %d characters", maxSubjectSize)
	}
	return nil
}
