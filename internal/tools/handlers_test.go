package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/pmbstyle/universal-email-mcp-server/internal/config"
	"github.com/pmbstyle/universal-email-mcp-server/internal/mail"
)

// req builds a mcp.CallToolRequest with the given arguments.
func req(args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

// resultJSON unmarshals the text content of a successful result.
func resultJSON(t *testing.T, result *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	if result.IsError {
		t.Fatalf("expected success but got error: %+v", result.Content)
	}
	if len(result.Content) == 0 {
		t.Fatal("expected content but got none")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(text.Text), &m); err != nil {
		t.Fatalf("failed to unmarshal result JSON: %v", err)
	}
	return m
}

// resultErrText extracts the error message from an error result.
func resultErrText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if !result.IsError {
		t.Fatalf("expected error result but got success: %+v", result.Content)
	}
	if len(result.Content) == 0 {
		return ""
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return text.Text
}

// --- add_account ---

func TestAddAccountHandler(t *testing.T) {
	validArgs := func() map[string]interface{} {
		return map[string]interface{}{
			"account_name":  "work",
			"full_name":     "Jane Doe",
			"email_address": "jane@example.com",
			"user_name":     "jane@example.com",
			"password":      "secret",
			"imap_host":     "imap.example.com",
			"smtp_host":     "smtp.example.com",
		}
	}

	t.Run("happy path with defaults", func(t *testing.T) {
		store := &mockStore{}
		handler := AddAccountHandler(store)

		result, err := handler(context.Background(), req(validArgs()))
		if err != nil {
			t.Fatalf("unexpected Go error: %v", err)
		}
		data := resultJSON(t, result)
		if data["status"] != "success" {
			t.Errorf("status = %v, want success", data["status"])
		}

		acc := store.LastAccount
		if acc.Incoming.Port != 993 || acc.Outgoing.Port != 465 {
			t.Errorf("default ports = %d/%d, want 993/465", acc.Incoming.Port, acc.Outgoing.Port)
		}
		if !acc.Incoming.UseSSL || !acc.Outgoing.UseSSL {
			t.Error("SSL should default to enabled")
		}
		if !acc.Incoming.VerifySSL || !acc.Outgoing.VerifySSL {
			t.Error("certificate verification should default to enabled")
		}
		if acc.Incoming.UserName != "jane@example.com" || acc.Outgoing.UserName != "jane@example.com" {
			t.Error("user_name should apply to both servers")
		}
	})

	t.Run("custom ports", func(t *testing.T) {
		store := &mockStore{}
		args := validArgs()
		args["imap_port"] = float64(143)
		args["imap_use_ssl"] = false
		args["smtp_port"] = float64(587)
		args["smtp_use_ssl"] = false

		result, err := AddAccountHandler(store)(context.Background(), req(args))
		if err != nil {
			t.Fatalf("unexpected Go error: %v", err)
		}
		resultJSON(t, result)

		acc := store.LastAccount
		if acc.Incoming.Port != 143 || acc.Outgoing.Port != 587 {
			t.Errorf("ports = %d/%d, want 143/587", acc.Incoming.Port, acc.Outgoing.Port)
		}
		if acc.Incoming.UseSSL || acc.Outgoing.UseSSL {
			t.Error("use_ssl false should carry through")
		}
	})

	t.Run("missing required fields", func(t *testing.T) {
		for _, field := range []string{"account_name", "full_name", "email_address", "user_name", "password", "imap_host", "smtp_host"} {
			args := validArgs()
			delete(args, field)

			result, err := AddAccountHandler(&mockStore{})(context.Background(), req(args))
			if err != nil {
				t.Fatalf("unexpected Go error: %v", err)
			}
			if msg := resultErrText(t, result); !strings.Contains(msg, field) {
				t.Errorf("error for missing %s = %q, should name the field", field, msg)
			}
		}
	})

	t.Run("invalid email address", func(t *testing.T) {
		args := validArgs()
		args["email_address"] = "not-an-address"

		result, err := AddAccountHandler(&mockStore{})(context.Background(), req(args))
		if err != nil {
			t.Fatalf("unexpected Go error: %v", err)
		}
		if msg := resultErrText(t, result); !strings.Contains(msg, "email_address") {
			t.Errorf("error = %q, should mention email_address", msg)
		}
	})

	t.Run("duplicate account", func(t *testing.T) {
		store := &mockStore{Err: config.ErrDuplicateAccount}

		result, err := AddAccountHandler(store)(context.Background(), req(validArgs()))
		if err != nil {
			t.Fatalf("unexpected Go error: %v", err)
		}
		if msg := resultErrText(t, result); !strings.Contains(msg, "already exists") {
			t.Errorf("error = %q, should report the duplicate", msg)
		}
	})
}

// --- list_accounts ---

func TestListAccountsHandler(t *testing.T) {
	t.Run("happy path", func(t *testing.T) {
		store := &mockStore{Names: []string{"work", "personal"}}

		result, err := ListAccountsHandler(store)(context.Background(), req(nil))
		if err != nil {
			t.Fatalf("unexpected Go error: %v", err)
		}
		data := resultJSON(t, result)
		accounts := data["accounts"].([]interface{})
		if len(accounts) != 2 || accounts[0] != "work" || accounts[1] != "personal" {
			t.Errorf("accounts = %v, want [work personal]", accounts)
		}
	})

	t.Run("no accounts yields empty list", func(t *testing.T) {
		result, err := ListAccountsHandler(&mockStore{})(context.Background(), req(nil))
		if err != nil {
			t.Fatalf("unexpected Go error: %v", err)
		}
		data := resultJSON(t, result)
		if accounts, ok := data["accounts"].([]interface{}); !ok || len(accounts) != 0 {
			t.Errorf("accounts = %v, want empty array", data["accounts"])
		}
	})
}

// --- remove_account ---

func TestRemoveAccountHandler(t *testing.T) {
	t.Run("happy path", func(t *testing.T) {
		store := &mockStore{}

		result, err := RemoveAccountHandler(store)(context.Background(), req(map[string]interface{}{
			"account_name": "work",
		}))
		if err != nil {
			t.Fatalf("unexpected Go error: %v", err)
		}
		data := resultJSON(t, result)
		if data["status"] != "success" {
			t.Errorf("status = %v, want success", data["status"])
		}
		if store.LastName != "work" {
			t.Errorf("removed account = %q, want work", store.LastName)
		}
	})

	t.Run("missing account_name", func(t *testing.T) {
		result, err := RemoveAccountHandler(&mockStore{})(context.Background(), req(nil))
		if err != nil {
			t.Fatalf("unexpected Go error: %v", err)
		}
		resultErrText(t, result)
	})

	t.Run("not found", func(t *testing.T) {
		store := &mockStore{Err: config.ErrAccountNotFound}

		result, err := RemoveAccountHandler(store)(context.Background(), req(map[string]interface{}{
			"account_name": "gone",
		}))
		if err != nil {
			t.Fatalf("unexpected Go error: %v", err)
		}
		if msg := resultErrText(t, result); !strings.Contains(msg, "not found") {
			t.Errorf("error = %q, should report not found", msg)
		}
	})
}

// --- list_messages ---

func TestListMessagesHandler(t *testing.T) {
	sample := []mail.Message{
		{UID: "25", Subject: "newest", Date: time.Now()},
		{UID: "24", Subject: "older", Date: time.Now()},
	}

	t.Run("happy path", func(t *testing.T) {
		session := &mockSession{Messages: sample, Total: 25}
		store, factory := factoryFor(session)

		result, err := ListMessagesHandler(store, factory)(context.Background(), req(map[string]interface{}{
			"account_name": "work",
			"page":         float64(2),
			"page_size":    float64(10),
			"unread_only":  true,
		}))
		if err != nil {
			t.Fatalf("unexpected Go error: %v", err)
		}
		data := resultJSON(t, result)

		if data["total_messages"].(float64) != 25 {
			t.Errorf("total_messages = %v, want 25", data["total_messages"])
		}
		if data["mailbox"] != "INBOX" {
			t.Errorf("mailbox = %v, want INBOX default", data["mailbox"])
		}
		if session.LastOpts.Page != 2 || session.LastOpts.PageSize != 10 {
			t.Errorf("opts = page %d size %d, want 2/10", session.LastOpts.Page, session.LastOpts.PageSize)
		}
		if !session.LastOpts.UnreadOnly {
			t.Error("unread_only should carry through")
		}
		if !session.Closed {
			t.Error("session should be closed after the call")
		}
	})

	t.Run("date filters", func(t *testing.T) {
		session := &mockSession{}
		store, factory := factoryFor(session)

		result, err := ListMessagesHandler(store, factory)(context.Background(), req(map[string]interface{}{
			"account_name": "work",
			"since":        "2026-01-01T00:00:00Z",
			"before":       "2026-06-01T00:00:00Z",
		}))
		if err != nil {
			t.Fatalf("unexpected Go error: %v", err)
		}
		resultJSON(t, result)

		if session.LastOpts.Since == nil || session.LastOpts.Since.Year() != 2026 {
			t.Errorf("since filter not passed through: %v", session.LastOpts.Since)
		}
		if session.LastOpts.Before == nil || session.LastOpts.Before.Month() != time.June {
			t.Errorf("before filter not passed through: %v", session.LastOpts.Before)
		}
	})

	t.Run("invalid arguments", func(t *testing.T) {
		tests := []struct {
			name string
			args map[string]interface{}
			want string
		}{
			{"missing account", map[string]interface{}{}, "account_name is required"},
			{"page zero", map[string]interface{}{"account_name": "work", "page": float64(0)}, "page must be >= 1"},
			{"page size too large", map[string]interface{}{"account_name": "work", "page_size": float64(500)}, "page_size must be between"},
			{"bad since", map[string]interface{}{"account_name": "work", "since": "yesterday"}, "invalid since format"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				store, factory := factoryFor(&mockSession{})
				result, err := ListMessagesHandler(store, factory)(context.Background(), req(tt.args))
				if err != nil {
					t.Fatalf("unexpected Go error: %v", err)
				}
				if msg := resultErrText(t, result); !strings.Contains(msg, tt.want) {
					t.Errorf("error = %q, want substring %q", msg, tt.want)
				}
			})
		}
	})

	t.Run("unknown account", func(t *testing.T) {
		store, factory := factoryFor(&mockSession{})

		result, err := ListMessagesHandler(store, factory)(context.Background(), req(map[string]interface{}{
			"account_name": "missing",
		}))
		if err != nil {
			t.Fatalf("unexpected Go error: %v", err)
		}
		if msg := resultErrText(t, result); !strings.Contains(msg, "account not found") {
			t.Errorf("error = %q, should report the unknown account", msg)
		}
	})

	t.Run("backend error", func(t *testing.T) {
		session := newErrSession("connection refused")
		store, factory := factoryFor(session)

		result, err := ListMessagesHandler(store, factory)(context.Background(), req(map[string]interface{}{
			"account_name": "work",
		}))
		if err != nil {
			t.Fatalf("unexpected Go error: %v", err)
		}
		resultErrText(t, result)
		if !session.Closed {
			t.Error("session should be closed even on failure")
		}
	})
}

// --- send_message ---

func TestSendMessageHandler(t *testing.T) {
	validArgs := func() map[string]interface{} {
		return map[string]interface{}{
			"account_name": "work",
			"recipients":   "a@x.com",
			"subject":      "Hello",
			"body":         "hi there",
		}
	}

	t.Run("happy path", func(t *testing.T) {
		session := &mockSession{}
		store, factory := factoryFor(session)

		result, err := SendMessageHandler(store, factory)(context.Background(), req(validArgs()))
		if err != nil {
			t.Fatalf("unexpected Go error: %v", err)
		}
		data := resultJSON(t, result)
		if data["status"] != "success" {
			t.Errorf("status = %v, want success", data["status"])
		}
		if len(session.LastRecipients) != 1 || session.LastRecipients[0] != "a@x.com" {
			t.Errorf("recipients = %v, want [a@x.com]", session.LastRecipients)
		}
		if !session.Closed {
			t.Error("session should be closed after sending")
		}
	})

	t.Run("recipient arrays with cc and bcc", func(t *testing.T) {
		session := &mockSession{}
		store, factory := factoryFor(session)

		args := validArgs()
		args["recipients"] = []interface{}{"a@x.com", "d@x.com"}
		args["cc"] = []interface{}{"b@x.com"}
		args["bcc"] = "c@x.com"
		args["is_html"] = true

		result, err := SendMessageHandler(store, factory)(context.Background(), req(args))
		if err != nil {
			t.Fatalf("unexpected Go error: %v", err)
		}
		resultJSON(t, result)

		if len(session.LastRecipients) != 2 {
			t.Errorf("recipients = %v, want two entries", session.LastRecipients)
		}
		if len(session.LastCC) != 1 || session.LastCC[0] != "b@x.com" {
			t.Errorf("cc = %v, want [b@x.com]", session.LastCC)
		}
		if len(session.LastBCC) != 1 || session.LastBCC[0] != "c@x.com" {
			t.Errorf("bcc = %v, want [c@x.com]", session.LastBCC)
		}
		if !session.LastHTML {
			t.Error("is_html should carry through")
		}
	})

	t.Run("validation failures", func(t *testing.T) {
		tests := []struct {
			name string
			mod  func(map[string]interface{})
			want string
		}{
			{"missing recipients", func(a map[string]interface{}) { delete(a, "recipients") }, "recipients is required"},
			{"invalid recipient", func(a map[string]interface{}) { a["recipients"] = "nope" }, "invalid recipients email address"},
			{"missing body", func(a map[string]interface{}) { delete(a, "body") }, "body is required"},
			{"invalid cc", func(a map[string]interface{}) { a["cc"] = "bad-address" }, "invalid cc email address"},
			{"oversized subject", func(a map[string]interface{}) { a["subject"] = strings.Repeat("x", 1200) }, "subject exceeds"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				store, factory := factoryFor(&mockSession{})
				args := validArgs()
				tt.mod(args)

				result, err := SendMessageHandler(store, factory)(context.Background(), req(args))
				if err != nil {
					t.Fatalf("unexpected Go error: %v", err)
				}
				if msg := resultErrText(t, result); !strings.Contains(msg, tt.want) {
					t.Errorf("error = %q, want substring %q", msg, tt.want)
				}
			})
		}
	})

	t.Run("smtp failure", func(t *testing.T) {
		session := newErrSession("550 relay denied")
		store, factory := factoryFor(session)

		result, err := SendMessageHandler(store, factory)(context.Background(), req(validArgs()))
		if err != nil {
			t.Fatalf("unexpected Go error: %v", err)
		}
		if msg := resultErrText(t, result); !strings.Contains(msg, "failed to send email") {
			t.Errorf("error = %q, should report the send failure", msg)
		}
	})
}

// --- get_message ---

func TestGetMessageHandler(t *testing.T) {
	sample := &mail.Message{UID: "42", Subject: "Hello", Sender: "a@x.com", Date: time.Now()}

	t.Run("happy path", func(t *testing.T) {
		session := &mockSession{Message: sample}
		store, factory := factoryFor(session)

		result, err := GetMessageHandler(store, factory)(context.Background(), req(map[string]interface{}{
			"account_name": "work",
			"message_uid":  "42",
		}))
		if err != nil {
			t.Fatalf("unexpected Go error: %v", err)
		}
		data := resultJSON(t, result)
		message := data["message"].(map[string]interface{})
		if message["uid"] != "42" {
			t.Errorf("uid = %v, want 42", message["uid"])
		}
		if session.LastMailbox != "INBOX" {
			t.Errorf("mailbox = %q, want INBOX default", session.LastMailbox)
		}
		// No mark_as_read: the read state must not change.
		if session.LastMethod == "SetReadState" {
			t.Error("read state should not change unless requested")
		}
	})

	t.Run("mark as read", func(t *testing.T) {
		session := &mockSession{Message: &mail.Message{UID: "42"}}
		store, factory := factoryFor(session)

		result, err := GetMessageHandler(store, factory)(context.Background(), req(map[string]interface{}{
			"account_name": "work",
			"message_uid":  "42",
			"mark_as_read": true,
		}))
		if err != nil {
			t.Fatalf("unexpected Go error: %v", err)
		}
		data := resultJSON(t, result)
		message := data["message"].(map[string]interface{})
		if message["is_read"] != true {
			t.Error("returned message should reflect the new read state")
		}
		if session.LastMethod != "SetReadState" || !session.LastRead {
			t.Error("SetReadState(true) should have been called")
		}
	})

	t.Run("not found", func(t *testing.T) {
		store, factory := factoryFor(&mockSession{})

		result, err := GetMessageHandler(store, factory)(context.Background(), req(map[string]interface{}{
			"account_name": "work",
			"message_uid":  "999",
		}))
		if err != nil {
			t.Fatalf("unexpected Go error: %v", err)
		}
		if msg := resultErrText(t, result); !strings.Contains(msg, "message not found") {
			t.Errorf("error = %q, should report message not found", msg)
		}
	})

	t.Run("missing uid", func(t *testing.T) {
		store, factory := factoryFor(&mockSession{})

		result, err := GetMessageHandler(store, factory)(context.Background(), req(map[string]interface{}{
			"account_name": "work",
		}))
		if err != nil {
			t.Fatalf("unexpected Go error: %v", err)
		}
		if msg := resultErrText(t, result); !strings.Contains(msg, "message_uid is required") {
			t.Errorf("error = %q, want message_uid is required", msg)
		}
	})
}

// --- mark_message ---

func TestMarkMessageHandler(t *testing.T) {
	t.Run("mark read and unread", func(t *testing.T) {
		for _, read := range []bool{true, false} {
			session := &mockSession{}
			store, factory := factoryFor(session)

			result, err := MarkMessageHandler(store, factory)(context.Background(), req(map[string]interface{}{
				"account_name": "work",
				"message_uid":  "42",
				"mark_as_read": read,
			}))
			if err != nil {
				t.Fatalf("unexpected Go error: %v", err)
			}
			data := resultJSON(t, result)
			if data["status"] != "success" {
				t.Errorf("status = %v, want success", data["status"])
			}
			if session.LastRead != read {
				t.Errorf("SetReadState read = %v, want %v", session.LastRead, read)
			}

			wantDetail := "read"
			if !read {
				wantDetail = "unread"
			}
			if !strings.Contains(data["details"].(string), wantDetail) {
				t.Errorf("details = %v, should mention %s", data["details"], wantDetail)
			}
		}
	})

	t.Run("mark_as_read is mandatory", func(t *testing.T) {
		store, factory := factoryFor(&mockSession{})

		result, err := MarkMessageHandler(store, factory)(context.Background(), req(map[string]interface{}{
			"account_name": "work",
			"message_uid":  "42",
		}))
		if err != nil {
			t.Fatalf("unexpected Go error: %v", err)
		}
		if msg := resultErrText(t, result); !strings.Contains(msg, "mark_as_read is required") {
			t.Errorf("error = %q, want mark_as_read is required", msg)
		}
	})
}

// --- list_mailboxes ---

func TestListMailboxesHandler(t *testing.T) {
	t.Run("happy path", func(t *testing.T) {
		session := &mockSession{Mailboxes: []string{"Archive", "INBOX", "Sent"}}
		store, factory := factoryFor(session)

		result, err := ListMailboxesHandler(store, factory)(context.Background(), req(map[string]interface{}{
			"account_name": "work",
		}))
		if err != nil {
			t.Fatalf("unexpected Go error: %v", err)
		}
		data := resultJSON(t, result)
		if data["account_name"] != "work" {
			t.Errorf("account_name = %v, want work", data["account_name"])
		}
		mailboxes := data["mailboxes"].([]interface{})
		if len(mailboxes) != 3 {
			t.Errorf("mailboxes = %v, want 3 entries", mailboxes)
		}
		if !session.Closed {
			t.Error("session should be closed after the call")
		}
	})

	t.Run("backend error", func(t *testing.T) {
		store, factory := factoryFor(newErrSession("login failed"))

		result, err := ListMailboxesHandler(store, factory)(context.Background(), req(map[string]interface{}{
			"account_name": "work",
		}))
		if err != nil {
			t.Fatalf("unexpected Go error: %v", err)
		}
		resultErrText(t, result)
	})
}
