package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/pmbstyle/universal-email-mcp-server/internal/mail"
)

// RegisterMailTools wires the mailbox and message tools into the
// dispatcher. Every handler resolves the account, opens a session for
// the duration of the call, and closes it on every exit path.
func RegisterMailTools(d *Dispatcher, store AccountStore, sessions SessionFactory) {
	listMessagesTool := mcp.NewTool("list_messages",
		mcp.WithDescription("List email messages from an account's mailbox with pagination and optional filters. Messages are returned most recent first with uid, subject, sender, date, read status, and a body preview. Use get_message for full content."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithString("account_name",
			mcp.Required(),
			mcp.MinLength(1),
			mcp.Description("Name of the account to list messages from (from list_accounts)."),
		),
		mcp.WithString("mailbox",
			mcp.Description("Mailbox to list messages from. Use list_mailboxes to discover valid names."),
			mcp.DefaultString("INBOX"),
		),
		mcp.WithNumber("page",
			mcp.Description("Page number for pagination, starting at 1."),
			mcp.DefaultNumber(1),
			mcp.Min(1),
		),
		mcp.WithNumber("page_size",
			mcp.Description("Number of messages per page."),
			mcp.DefaultNumber(10),
			mcp.Min(1),
			mcp.Max(100),
		),
		mcp.WithString("subject_filter",
			mcp.Description("Filter messages by subject (partial match)."),
		),
		mcp.WithString("sender_filter",
			mcp.Description("Filter messages by sender email."),
		),
		mcp.WithString("since",
			mcp.Description("Only show messages since this date, RFC 3339 format (e.g., '2026-01-15T00:00:00Z')."),
		),
		mcp.WithString("before",
			mcp.Description("Only show messages before this date, RFC 3339 format."),
		),
		mcp.WithBoolean("unread_only",
			mcp.Description("Only show unread (unseen) messages."),
			mcp.DefaultBool(false),
		),
	)
	d.register(listMessagesTool, ListMessagesHandler(store, sessions))

	sendMessageTool := mcp.NewTool("send_message",
		mcp.WithDescription("Send an email from a configured account via SMTP. Bcc recipients receive the message but never appear in its headers. Calling twice sends duplicate emails."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithString("account_name",
			mcp.Required(),
			mcp.MinLength(1),
			mcp.Description("Name of the account to send from (from list_accounts)."),
		),
		mcp.WithString("recipients",
			mcp.Required(),
			mcp.MinLength(1),
			mcp.Description("Recipient email address (string) or JSON array of addresses."),
		),
		mcp.WithString("subject",
			mcp.Required(),
			mcp.Description("Email subject line."),
		),
		mcp.WithString("body",
			mcp.Required(),
			mcp.MinLength(1),
			mcp.Description("Email body content. Plain text by default; set is_html=true for HTML."),
		),
		mcp.WithString("cc",
			mcp.Description("CC email address (string) or JSON array of addresses."),
		),
		mcp.WithString("bcc",
			mcp.Description("BCC email address (string) or JSON array of addresses."),
		),
		mcp.WithBoolean("is_html",
			mcp.Description("Set true if body contains HTML."),
			mcp.DefaultBool(false),
		),
	)
	d.register(sendMessageTool, SendMessageHandler(store, sessions))

	getMessageTool := mcp.NewTool("get_message",
		mcp.WithDescription("Fetch a single email message by UID, including its full body. Use list_messages first to find UIDs. Optionally marks the message as read."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithString("account_name",
			mcp.Required(),
			mcp.MinLength(1),
			mcp.Description("Name of the account (from list_accounts)."),
		),
		mcp.WithString("message_uid",
			mcp.Required(),
			mcp.MinLength(1),
			mcp.Description("Message UID from list_messages results."),
		),
		mcp.WithString("mailbox",
			mcp.Description("Mailbox containing the message."),
			mcp.DefaultString("INBOX"),
		),
		mcp.WithBoolean("mark_as_read",
			mcp.Description("Mark the message as read after fetching it."),
			mcp.DefaultBool(false),
		),
	)
	d.register(getMessageTool, GetMessageHandler(store, sessions))

	markMessageTool := mcp.NewTool("mark_message",
		mcp.WithDescription("Mark a message as read (seen) or unread (unseen). Use list_messages to find UIDs."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithString("account_name",
			mcp.Required(),
			mcp.MinLength(1),
			mcp.Description("Name of the account (from list_accounts)."),
		),
		mcp.WithString("message_uid",
			mcp.Required(),
			mcp.MinLength(1),
			mcp.Description("Message UID to mark (from list_messages)."),
		),
		mcp.WithString("mailbox",
			mcp.Description("Mailbox containing the message."),
			mcp.DefaultString("INBOX"),
		),
		mcp.WithBoolean("mark_as_read",
			mcp.Required(),
			mcp.Description("true to mark as read, false to mark as unread."),
		),
	)
	d.register(markMessageTool, MarkMessageHandler(store, sessions))

	listMailboxesTool := mcp.NewTool("list_mailboxes",
		mcp.WithDescription("List the available mailboxes for an account. Returns names usable as the 'mailbox' parameter in other tools."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithString("account_name",
			mcp.Required(),
			mcp.MinLength(1),
			mcp.Description("Name of the account (from list_accounts)."),
		),
	)
	d.register(listMailboxesTool, ListMailboxesHandler(store, sessions))
}

// openSession resolves the account and opens a mail session for it.
func openSession(store AccountStore, sessions SessionFactory, args map[string]interface{}) (MailSession, string, *mcp.CallToolResult) {
	name, err := requireString(args, "account_name")
	if err != nil {
		return nil, "", mcp.NewToolResultError(err.Error())
	}
	account, err := store.GetAccount(name)
	if err != nil {
		return nil, "", mcp.NewToolResultError(fmt.Sprintf("failed to resolve account: %v", err))
	}
	return sessions(account), name, nil
}

// ListMessagesHandler creates the handler for paginated message listing.
func ListMessagesHandler(store AccountStore, sessions SessionFactory) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()

		opts := mail.ListOptions{
			Mailbox:       optString(args, "mailbox", "INBOX"),
			Page:          optInt(args, "page", 1),
			PageSize:      optInt(args, "page_size", 10),
			SubjectFilter: optString(args, "subject_filter", ""),
			SenderFilter:  optString(args, "sender_filter", ""),
			UnreadOnly:    optBool(args, "unread_only", false),
		}
		if err := validateMailboxName(opts.Mailbox); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if err := validatePagination(opts.Page, opts.PageSize); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var err error
		if opts.Since, err = optTime(args, "since"); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if opts.Before, err = optTime(args, "before"); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		session, accountName, errResult := openSession(store, sessions, args)
		if errResult != nil {
			return errResult, nil
		}
		defer session.Close()

		messages, total, err := session.ListMessages(ctx, opts)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to list messages: %v", err)), nil
		}

		response := map[string]interface{}{
			"account_name":   accountName,
			"mailbox":        opts.Mailbox,
			"page":           opts.Page,
			"page_size":      opts.PageSize,
			"total_messages": total,
			"messages":       messages,
		}
		jsonData, err := json.MarshalIndent(response, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to format response: %v", err)), nil
		}
		return mcp.NewToolResultText(string(jsonData)), nil
	}
}

// SendMessageHandler creates the handler for sending a message.
func SendMessageHandler(store AccountStore, sessions SessionFactory) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()

		subject, ok := args["subject"].(string)
		if !ok {
			return mcp.NewToolResultError("subject is required"), nil
		}
		if err := validateSubjectSize(subject); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		body, err := requireString(args, "body")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if err := validateBodySize(body); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		recipients, err := requireAddressList(args, "recipients")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		cc, err := parseAddressList(args, "cc")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		bcc, err := parseAddressList(args, "bcc")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		isHTML := optBool(args, "is_html", false)

		session, _, errResult := openSession(store, sessions, args)
		if errResult != nil {
			return errResult, nil
		}
		defer session.Close()

		if err := session.Send(ctx, recipients, cc, bcc, subject, body, isHTML); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to send email: %v", err)), nil
		}

		return statusResult("success", fmt.Sprintf("Email sent successfully to %d recipients", len(recipients)))
	}
}

// GetMessageHandler creates the handler for fetching a single message.
func GetMessageHandler(store AccountStore, sessions SessionFactory) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()

		uid, err := requireString(args, "message_uid")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if err := validateUID(uid); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		mailbox := optString(args, "mailbox", "INBOX")
		if err := validateMailboxName(mailbox); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		markAsRead := optBool(args, "mark_as_read", false)

		session, _, errResult := openSession(store, sessions, args)
		if errResult != nil {
			return errResult, nil
		}
		defer session.Close()

		message, err := session.GetMessage(ctx, mailbox, uid)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to get message: %v", err)), nil
		}

		if markAsRead {
			if err := session.SetReadState(ctx, mailbox, uid, true); err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("failed to mark message as read: %v", err)), nil
			}
			message.IsRead = true
		}

		response := map[string]interface{}{
			"message": message,
		}
		jsonData, err := json.MarshalIndent(response, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to format response: %v", err)), nil
		}
		return mcp.NewToolResultText(string(jsonData)), nil
	}
}

// MarkMessageHandler creates the handler for read-state changes.
func MarkMessageHandler(store AccountStore, sessions SessionFactory) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()

		uid, err := requireString(args, "message_uid")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if err := validateUID(uid); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		mailbox := optString(args, "mailbox", "INBOX")
		if err := validateMailboxName(mailbox); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		markAsRead, ok := args["mark_as_read"].(bool)
		if !ok {
			return mcp.NewToolResultError("mark_as_read is required"), nil
		}

		session, _, errResult := openSession(store, sessions, args)
		if errResult != nil {
			return errResult, nil
		}
		defer session.Close()

		if err := session.SetReadState(ctx, mailbox, uid, markAsRead); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to mark message: %v", err)), nil
		}

		state := "read"
		if !markAsRead {
			state = "unread"
		}
		return statusResult("success", fmt.Sprintf("Message marked as %s", state))
	}
}

// ListMailboxesHandler creates the handler for mailbox discovery.
func ListMailboxesHandler(store AccountStore, sessions SessionFactory) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()

		session, accountName, errResult := openSession(store, sessions, args)
		if errResult != nil {
			return errResult, nil
		}
		defer session.Close()

		mailboxes, err := session.ListMailboxes(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to list mailboxes: %v", err)), nil
		}
		if mailboxes == nil {
			mailboxes = []string{}
		}

		response := map[string]interface{}{
			"account_name": accountName,
			"mailboxes":    mailboxes,
		}
		jsonData, err := json.MarshalIndent(response, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to format response: %v", err)), nil
		}
		return mcp.NewToolResultText(string(jsonData)), nil
	}
}
