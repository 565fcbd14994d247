package cmd

import "github.com/spf13/cobra"

func Execute() error {
	return newRootCmd().Execute()
}

// globalFlags are parsed before wiring, so every command wires its own app.
type globalFlags struct {
	configFile string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:           "coplay",
		Short:         "coplay: keep friend nicknames in step with recent co-play counts",
		Long:          "coplay counts how often each player shared a team with the tracked account over the last 30 days of match history, then rewrites the two-digit prefix of matching friend nicknames on the social network.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVar(&flags.configFile, "config", "", "Config file (default ~/.config/coplay/config.toml)")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error (default info, warn on a terminal)")
	rootCmd.PersistentFlags().StringVar(&flags.logFormat, "log-format", "auto", "Log format: auto, text or json")

	rootCmd.AddCommand(
		newVersionCmd(),
		newCountsCmd(flags),
		newSyncCmd(flags),
		newSecretCmd(flags),
	)

	return rootCmd
}
