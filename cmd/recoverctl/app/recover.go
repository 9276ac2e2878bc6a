package app

import (
	"github.com/spf13/cobra"

	entrypoint "github.com/Blackdeer1524/PageDB/src/app"
	"github.com/Blackdeer1524/PageDB/src/pkg/common"
)

func initRecover() {
	var (
		logPath string
		lastLSN uint64
	)

	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Replays the log and rolls back unfinished transactions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return entrypoint.Run(cmd.Context(), &entrypoint.RecoverEntrypoint{
				Options: options(),
				LogPath: logPath,
				LastLSN: common.LSN(lastLSN),
				Out:     cmd.OutOrStdout(),
			})
		},
	}
	cmd.Flags().StringVarP(&logPath, "log", "l", "wal.log", "Path to the log file")
	cmd.Flags().Uint64Var(&lastLSN, "rollback", 0, "Roll back the transaction whose newest record has this LSN")

	rootCmd.AddCommand(cmd)
}
