package app

import (
	"github.com/spf13/cobra"

	entrypoint "github.com/Blackdeer1524/PageDB/src/app"
)

func initCheck() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Verifies page layouts and free lists",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return entrypoint.Run(cmd.Context(), &entrypoint.CheckEntrypoint{
				Options: options(),
				Out:     cmd.OutOrStdout(),
			})
		},
	})
}
