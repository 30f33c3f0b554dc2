package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pmbstyle/universal-email-mcp-server/internal/config"
	"github.com/pmbstyle/universal-email-mcp-server/internal/logging"
)

func newAccountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage configured email accounts",
		Long: `Manage the email accounts the MCP server exposes. Account data,
including credentials, is stored encrypted at rest; the encryption key
lives in the system keyring with a key-file fallback.`,
	}

	cmd.AddCommand(newAccountAddCmd())
	cmd.AddCommand(newAccountListCmd())
	cmd.AddCommand(newAccountRemoveCmd())

	return cmd
}

func openStore() (*config.Store, error) {
	store, err := config.NewStore("", logging.Setup(false))
	if err != nil {
		return nil, fmt.Errorf("failed to open account store: %w", err)
	}
	return store, nil
}

func newAccountAddCmd() *cobra.Command {
	var (
		fullName   string
		email      string
		password   string
		userName   string
		imapHost   string
		imapPort   int
		smtpHost   string
		smtpPort   int
		plaintext  bool
		skipVerify bool
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add an email account",
		Long: `Add an email account to the encrypted store. The password may be
provided with --password or through the EMAIL_MCP_ACCOUNT_PASSWORD
environment variable to keep it out of shell history.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			if password == "" {
				password = os.Getenv("EMAIL_MCP_ACCOUNT_PASSWORD")
			}
			if email == "" || password == "" || imapHost == "" || smtpHost == "" {
				return fmt.Errorf("--email, --password, --imap-host and --smtp-host are required")
			}
			if userName == "" {
				userName = email
			}

			spec := func(host string, port int) config.ServerSpec {
				return config.ServerSpec{
					UserName:  userName,
					Password:  password,
					Host:      host,
					Port:      port,
					UseSSL:    !plaintext,
					VerifySSL: !skipVerify,
				}
			}

			store, err := openStore()
			if err != nil {
				return err
			}

			account := config.Account{
				AccountName:  name,
				FullName:     fullName,
				EmailAddress: email,
				Incoming:     spec(imapHost, imapPort),
				Outgoing:     spec(smtpHost, smtpPort),
			}
			if err := store.AddAccount(account); err != nil {
				if errors.Is(err, config.ErrDuplicateAccount) {
					return fmt.Errorf("account %q already exists", name)
				}
				return fmt.Errorf("failed to add account: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Added account %q (%s)\n", name, email)
			return nil
		},
	}

	cmd.Flags().StringVar(&fullName, "full-name", "", "Display name used on outgoing mail")
	cmd.Flags().StringVar(&email, "email", "", "Email address of the account")
	cmd.Flags().StringVar(&password, "password", "", "Account password. Can also use EMAIL_MCP_ACCOUNT_PASSWORD env var.")
	cmd.Flags().StringVar(&userName, "user-name", "", "Login user name. Defaults to the email address.")
	cmd.Flags().StringVar(&imapHost, "imap-host", "", "IMAP server hostname")
	cmd.Flags().IntVar(&imapPort, "imap-port", 993, "IMAP server port")
	cmd.Flags().StringVar(&smtpHost, "smtp-host", "", "SMTP server hostname")
	cmd.Flags().IntVar(&smtpPort, "smtp-port", 465, "SMTP server port")
	cmd.Flags().BoolVar(&plaintext, "no-ssl", false, "Connect without implicit TLS (STARTTLS or plaintext)")
	cmd.Flags().BoolVar(&skipVerify, "no-verify-ssl", false, "Skip TLS certificate verification")

	return cmd
}

func newAccountListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured account names",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}

			names, err := store.ListAccounts()
			if err != nil {
				return fmt.Errorf("failed to list accounts: %w", err)
			}

			if len(names) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No accounts configured")
				return nil
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func newAccountRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove an email account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			store, err := openStore()
			if err != nil {
				return err
			}

			if err := store.RemoveAccount(name); err != nil {
				if errors.Is(err, config.ErrAccountNotFound) {
					return fmt.Errorf("account %q not found", name)
				}
				return fmt.Errorf("failed to remove account: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Removed account %q\n", name)
			return nil
		},
	}
}
