package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"aninotify/internal/settings"
)

func newSettingsCommand(ctx *commandContext) *cobra.Command {
	settingsCmd := &cobra.Command{
		Use:   "settings",
		Short: "Inspect and change runtime settings",
	}

	settingsCmd.AddCommand(newSettingsListCommand(ctx))
	settingsCmd.AddCommand(newSettingsGetCommand(ctx))
	settingsCmd.AddCommand(newSettingsSetCommand(ctx))
	settingsCmd.AddCommand(newSettingsResetCommand(ctx))

	return settingsCmd
}

func newSettingsListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every setting with its current value",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()

			_, store, err := ctx.store(cmd.Context())
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(settings.Keys()))
			for _, key := range settings.Keys() {
				rows = append(rows, []string{string(key), store.Get(cmd.Context(), key), settings.Describe(key)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"KEY", "VALUE", "DESCRIPTION"}, rows, nil))
			return nil
		},
	}
}

func newSettingsGetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print the value of a setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()

			key, err := settings.ParseKey(args[0])
			if err != nil {
				return err
			}
			_, store, err := ctx.store(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), store.Get(cmd.Context(), key))
			return nil
		},
	}
}

func newSettingsSetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change a setting",
		Long:  "Change a setting. A running server picks the change up within a minute.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()

			key, err := settings.ParseKey(args[0])
			if err != nil {
				return err
			}
			_, store, err := ctx.store(cmd.Context())
			if err != nil {
				return err
			}
			if err := store.Set(cmd.Context(), key, args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", key, store.Get(cmd.Context(), key))
			return nil
		},
	}
}

func newSettingsResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <key>",
		Short: "Restore the default value of a setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()

			key, err := settings.ParseKey(args[0])
			if err != nil {
				return err
			}
			_, store, err := ctx.store(cmd.Context())
			if err != nil {
				return err
			}
			if err := store.Reset(cmd.Context(), key); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", key, store.Get(cmd.Context(), key))
			return nil
		},
	}
}
