package cmd

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the universal-email-mcp application
var rootCmd = &cobra.Command{
	Use:   "universal-email-mcp",
	Short: "MCP server for IMAP and SMTP email accounts",
	Long: `universal-email-mcp exposes any standards-compliant email account to AI
assistants through the Model Context Protocol.

It can run as:
  - An MCP server over stdio (default, for local assistant integrations)
  - An MCP server over SSE with bearer-token authentication (for deployments)

Accounts and the server bearer token can also be managed from the CLI with
the account and token subcommands.`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "universal-email-mcp version %s\n" .Version}}`)

	// Pick up local overrides from a .env file when one exists.
	_ = godotenv.Load()

	// If no subcommand is provided, run the serve command by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newAccountCmd())
	rootCmd.AddCommand(newTokenCmd())
	rootCmd.AddCommand(newVersionCmd())
}
