package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sakif/opsdash/internal/server"
)

// tokenCmd mints an access token for scripts and curl sessions
var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Print an access token for a user",
	Long: `Print an access token for an existing user. Pass it as
"Authorization: Bearer <token>". The token lives as long as TOKEN_TTL.`,
	Args: cobra.ExactArgs(1),
	RunE: runToken,
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	authSvc, err := server.NewAuthService(cfg, store, newLogger(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	sess, err := authSvc.IssueSession(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), sess.AccessToken)
	fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", sess.ExpiresAt.Format(time.RFC3339))
	return nil
}
