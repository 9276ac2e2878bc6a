package cli

func (c *RootCommand) initFlags() {
	c.PersistentFlags().StringVarP(
		&c.Options.ConfigPath,
		"config",
		"c",
		"",
		"Path to the .env configuration file",
	)
	c.PersistentFlags().StringArrayVarP(
		&c.Options.Files,
		"file",
		"f",
		nil,
		"Database file as ID=PATH, repeatable",
	)
}
