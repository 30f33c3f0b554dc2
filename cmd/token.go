package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pmbstyle/universal-email-mcp-server/internal/auth"
	"github.com/pmbstyle/universal-email-mcp-server/internal/logging"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the server bearer token",
		Long: `Manage the bearer token that authenticates MCP clients against the
SSE transport. The token is generated on first use and stored with
owner-only permissions under the token directory (EMAIL_MCP_TOKEN_DIR).`,
	}

	cmd.AddCommand(newTokenShowCmd())
	cmd.AddCommand(newTokenRotateCmd())
	cmd.AddCommand(newTokenInfoCmd())

	return cmd
}

func newTokenShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the current bearer token, generating one if needed",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := auth.Initialize("cli", logging.Setup(false))
			if err != nil {
				return fmt.Errorf("failed to initialize token manager: %w", err)
			}

			token, err := manager.GetOrCreateToken("cli")
			if err != nil {
				return fmt.Errorf("failed to load token: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}

func newTokenRotateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rotate",
		Short: "Generate a new bearer token and invalidate the old one",
		Long: `Generate a new bearer token and invalidate the old one. A running
server picks up the new token on its next request, so connected clients
must re-authenticate with the rotated value.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := auth.Initialize("cli", logging.Setup(false))
			if err != nil {
				return fmt.Errorf("failed to initialize token manager: %w", err)
			}

			token, err := manager.RotateToken("cli")
			if err != nil {
				return fmt.Errorf("failed to rotate token: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}

func newTokenInfoCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show token storage details without revealing the full token",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := auth.NewTokenManager(os.Getenv(auth.EnvTokenDir), logging.Setup(false))
			if err != nil {
				return fmt.Errorf("failed to initialize token manager: %w", err)
			}

			info := manager.Info()
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Token exists:  %t\n", info.TokenExists)
			fmt.Fprintf(out, "Token file:    %s\n", info.TokenFile)
			fmt.Fprintf(out, "Token dir:     %s\n", info.TokenDir)
			if info.TokenExists {
				fmt.Fprintf(out, "Token length:  %d\n", info.TokenLength)
				fmt.Fprintf(out, "Token preview: %s\n", info.TokenPreview)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")

	return cmd
}
