package main

import (
	"github.com/spf13/cobra"

	"aninotify/internal/logger"
)

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "aninotify",
		Short:         "Episode release notifications for AniList titles",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.config()
			if err != nil {
				return err
			}
			if cmd.Annotations["fileLog"] == "true" {
				logger.InitLogger(cfg.LogLevel)
			} else {
				logger.SetOutput(cmd.ErrOrStderr(), cfg.LogLevel)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&ctx.databaseFlag, "database", "", "SQLite database path (overrides DATABASE_PATH)")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newSettingsCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newEpisodesCommand(ctx))
	rootCmd.AddCommand(newUsersCommand(ctx))
	rootCmd.AddCommand(newTitlesCommand(ctx))

	return rootCmd
}
