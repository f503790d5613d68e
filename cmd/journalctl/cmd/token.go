package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tradejournal/internal/auth"
	"tradejournal/internal/config"
)

func newTokenCmd() *cobra.Command {
	var (
		userID int64
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a session token for a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID <= 0 {
				return fmt.Errorf("missing --user")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cfg.Security.SessionTTL()
			}

			token, expiresAt, err := auth.NewTokenManager(cfg.Security.JWTSecret, ttl).Issue(userID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", expiresAt.UTC().Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().Int64Var(&userID, "user", 0, "user id")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default SESSION_TIMEOUT)")

	return cmd
}
