package app

import (
	"context"

	entrypoint "github.com/Blackdeer1524/PageDB/src/app"
	"github.com/Blackdeer1524/PageDB/src/cli"
)

var rootCmd = cli.Init("recoverctl")

func MustExecute(ctx context.Context) {
	initRecover()
	initCheck()
	initInspect()
	rootCmd.MustExecute(ctx)
}

func options() entrypoint.Options {
	return entrypoint.Options{
		ConfigPath: rootCmd.Options.ConfigPath,
		Files:      rootCmd.Options.Files,
	}
}
