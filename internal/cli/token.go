package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/shopmind-ai/shopmind/internal/service"
)

// TokenCmd returns the token command for minting owner API tokens.
func TokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token <owner-id>",
		Short: "Mint a bearer token for an owner",
		Long:  "Mint a signed bearer token for the given owner id using the shared token secret",
		Args:  cobra.ExactArgs(1),
		RunE:  runToken,
	}

	cmd.Flags().String("secret", "", "Token secret (defaults to SHOPMIND_OWNER_TOKEN_SECRET)")

	return cmd
}

func runToken(cmd *cobra.Command, args []string) error {
	secret, _ := cmd.Flags().GetString("secret")
	if secret == "" {
		_ = godotenv.Load()
		secret = os.Getenv("SHOPMIND_OWNER_TOKEN_SECRET")
	}
	if secret == "" {
		return fmt.Errorf("no token secret: set SHOPMIND_OWNER_TOKEN_SECRET or pass --secret")
	}

	token, err := service.NewTokenValidator(secret).IssueOwnerToken(args[0])
	if err != nil {
		return fmt.Errorf("failed to issue token: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
