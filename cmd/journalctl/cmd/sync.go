package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"tradejournal/internal/app"
	"tradejournal/internal/scheduler"
)

func newSyncCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run the broker sync job once for every connected user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(_ context.Context, a *app.App) error {
				s := scheduler.New(a.Logger)
				return s.RunNow(scheduler.NewSyncJob(a.Sync, timeout, a.Logger))
			})
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "maximum duration of the run")

	return cmd
}
