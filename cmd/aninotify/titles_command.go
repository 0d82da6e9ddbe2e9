package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"aninotify/internal/updater"
)

func newTitlesCommand(ctx *commandContext) *cobra.Command {
	titlesCmd := &cobra.Command{
		Use:   "titles",
		Short: "Manage tracked titles",
	}
	titlesCmd.AddCommand(newTitlesAddCommand(ctx))
	return titlesCmd
}

func newTitlesAddCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "add <anilist-id>...",
		Short: "Start tracking titles without announcing their existing episodes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()

			registrar, _, store, err := ctx.registrar(cmd.Context())
			if err != nil {
				return err
			}
			snap := store.Snapshot(cmd.Context())

			var failed []updater.Failure
			for _, id := range args {
				if err := registrar.AddTitle(cmd.Context(), id, snap, nil); err != nil {
					failed = append(failed, updater.Failure{ID: id, Reason: updater.Reason(err)})
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added %s\n", id)
			}
			return reportFailures(cmd, len(args), failed)
		},
	}
}

// reportFailures prints the per-reason tally and fails the command when
// nothing succeeded.
func reportFailures(cmd *cobra.Command, total int, failed []updater.Failure) error {
	if len(failed) == 0 {
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Failed %d of %d:\n", len(failed), total)
	for _, line := range updater.TallyReasons(failed) {
		fmt.Fprintln(cmd.OutOrStdout(), line)
	}
	if len(failed) == total {
		return errors.New("no title could be added")
	}
	return nil
}
