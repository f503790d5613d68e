package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"tradejournal/pkg/crypto"
)

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a random ENCRYPTION_KEY",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := crypto.GenerateKeyString()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "ENCRYPTION_KEY=%s\n", key)
			return err
		},
	}
}
