package tools

import (
	"context"
	"encoding/json"
	"fmt"
	netmail "net/mail"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/pmbstyle/universal-email-mcp-server/internal/config"
)

// RegisterAccountTools wires the account CRUD tools into the dispatcher.
func RegisterAccountTools(d *Dispatcher, store AccountStore) {
	addAccountTool := mcp.NewTool("add_account",
		mcp.WithDescription("Add a new email account with IMAP and SMTP settings. The account name must be unique; use list_accounts to see existing names. Credentials are stored encrypted."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithString("account_name",
			mcp.Required(),
			mcp.MinLength(1),
			mcp.Description("A unique name for this account, e.g., 'work_email' or 'personal'."),
		),
		mcp.WithString("full_name",
			mcp.Required(),
			mcp.MinLength(1),
			mcp.Description("Full name used on outgoing emails."),
		),
		mcp.WithString("email_address",
			mcp.Required(),
			mcp.MinLength(1),
			mcp.Description("Email address for this account."),
		),
		mcp.WithString("user_name",
			mcp.Required(),
			mcp.MinLength(1),
			mcp.Description("Username for both IMAP and SMTP authentication."),
		),
		mcp.WithString("password",
			mcp.Required(),
			mcp.MinLength(1),
			mcp.Description("Password for both IMAP and SMTP authentication."),
		),
		mcp.WithString("imap_host",
			mcp.Required(),
			mcp.MinLength(1),
			mcp.Description("IMAP server hostname."),
		),
		mcp.WithNumber("imap_port",
			mcp.Description("IMAP server port."),
			mcp.DefaultNumber(993),
			mcp.Min(1),
			mcp.Max(65535),
		),
		mcp.WithBoolean("imap_use_ssl",
			mcp.Description("Use implicit TLS for the IMAP connection."),
			mcp.DefaultBool(true),
		),
		mcp.WithBoolean("imap_verify_ssl",
			mcp.Description("Verify TLS certificates for IMAP."),
			mcp.DefaultBool(true),
		),
		mcp.WithString("smtp_host",
			mcp.Required(),
			mcp.MinLength(1),
			mcp.Description("SMTP server hostname."),
		),
		mcp.WithNumber("smtp_port",
			mcp.Description("SMTP server port."),
			mcp.DefaultNumber(465),
			mcp.Min(1),
			mcp.Max(65535),
		),
		mcp.WithBoolean("smtp_use_ssl",
			mcp.Description("Use implicit TLS for the SMTP connection. When false, the connection upgrades with STARTTLS."),
			mcp.DefaultBool(true),
		),
		mcp.WithBoolean("smtp_verify_ssl",
			mcp.Description("Verify TLS certificates for SMTP."),
			mcp.DefaultBool(true),
		),
	)
	d.register(addAccountTool, AddAccountHandler(store))

	listAccountsTool := mcp.NewTool("list_accounts",
		mcp.WithDescription("List the names of all configured email accounts. Never returns credentials."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
	)
	d.register(listAccountsTool, ListAccountsHandler(store))

	removeAccountTool := mcp.NewTool("remove_account",
		mcp.WithDescription("Remove a configured email account and its stored credentials. Use list_accounts to see valid names."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithString("account_name",
			mcp.Required(),
			mcp.MinLength(1),
			mcp.Description("Name of the account to remove (from list_accounts)."),
		),
	)
	d.register(removeAccountTool, RemoveAccountHandler(store))
}

// AddAccountHandler creates the handler for adding an account.
func AddAccountHandler(store AccountStore) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()

		account := config.Account{
			Incoming: config.ServerSpec{
				Port:      993,
				UseSSL:    true,
				VerifySSL: true,
			},
			Outgoing: config.ServerSpec{
				Port:      465,
				UseSSL:    true,
				VerifySSL: true,
			},
		}

		var err error
		if account.AccountName, err = requireString(args, "account_name"); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if account.FullName, err = requireString(args, "full_name"); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if account.EmailAddress, err = requireString(args, "email_address"); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if _, err := netmail.ParseAddress(account.EmailAddress); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid email_address '%s': %v", account.EmailAddress, err)), nil
		}

		userName, err := requireString(args, "user_name")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		password, err := requireString(args, "password")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		account.Incoming.UserName = userName
		account.Incoming.Password = password
		account.Outgoing.UserName = userName
		account.Outgoing.Password = password

		if account.Incoming.Host, err = requireString(args, "imap_host"); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if account.Outgoing.Host, err = requireString(args, "smtp_host"); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		account.Incoming.Port = optInt(args, "imap_port", 993)
		account.Incoming.UseSSL = optBool(args, "imap_use_ssl", true)
		account.Incoming.VerifySSL = optBool(args, "imap_verify_ssl", true)
		account.Outgoing.Port = optInt(args, "smtp_port", 465)
		account.Outgoing.UseSSL = optBool(args, "smtp_use_ssl", true)
		account.Outgoing.VerifySSL = optBool(args, "smtp_verify_ssl", true)

		if err := store.AddAccount(account); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to add account: %v", err)), nil
		}

		return statusResult("success", fmt.Sprintf("Account '%s' added successfully", account.AccountName))
	}
}

// ListAccountsHandler creates the handler for listing account names.
func ListAccountsHandler(store AccountStore) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		names, err := store.ListAccounts()
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to list accounts: %v", err)), nil
		}
		if names == nil {
			names = []string{}
		}

		response := map[string]interface{}{
			"accounts": names,
		}
		jsonData, err := json.MarshalIndent(response, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to format response: %v", err)), nil
		}
		return mcp.NewToolResultText(string(jsonData)), nil
	}
}

// RemoveAccountHandler creates the handler for removing an account.
func RemoveAccountHandler(store AccountStore) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()

		name, err := requireString(args, "account_name")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		if err := store.RemoveAccount(name); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to remove account: %v", err)), nil
		}

		return statusResult("success", fmt.Sprintf("Account '%s' removed successfully", name))
	}
}

// statusResult renders the generic status/details response shape.
func statusResult(status, details string) (*mcp.CallToolResult, error) {
	response := map[string]interface{}{
		"status":  status,
		"details": details,
	}
	jsonData, err := json.MarshalIndent(response, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to format response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonData)), nil
}
