package app

import (
	"github.com/spf13/cobra"

	entrypoint "github.com/Blackdeer1524/PageDB/src/app"
	"github.com/Blackdeer1524/PageDB/src/pkg/common"
)

func initInspect() {
	var fileID, pgno uint32

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Prints a page as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return entrypoint.Run(cmd.Context(), &entrypoint.InspectEntrypoint{
				Options: options(),
				FileID:  common.FileID(fileID),
				PageID:  common.PageID(pgno),
				Out:     cmd.OutOrStdout(),
			})
		},
	}
	cmd.Flags().Uint32Var(&fileID, "file-id", 1, "File the page belongs to")
	cmd.Flags().Uint32VarP(&pgno, "page", "p", 0, "Page number")

	rootCmd.AddCommand(cmd)
}
