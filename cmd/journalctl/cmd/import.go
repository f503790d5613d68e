package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"tradejournal/internal/app"
	"tradejournal/internal/auth"
	"tradejournal/internal/service"
)

func newImportCmd() *cobra.Command {
	var userID int64

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import today's Upstox trades for a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID <= 0 {
				return fmt.Errorf("missing --user")
			}

			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				result, err := a.Import.Import(auth.WithUserID(ctx, userID), service.TriggerCLI)
				if err != nil {
					return err
				}

				_, err = fmt.Fprintf(cmd.OutOrStdout(), "imported %d of %d Upstox trades (broker %d)\n",
					result.ImportedCount, result.TotalUpstoxTrades, result.BrokerID)
				return err
			})
		},
	}

	cmd.Flags().Int64Var(&userID, "user", 0, "user id")

	return cmd
}
