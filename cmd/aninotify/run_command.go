package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"aninotify/internal/cron"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:       "run <task>",
		Short:     "Run one scheduled task now",
		Long:      "Run one scheduled task now.\n\nTasks: " + strings.Join(cron.TaskNames(), ", "),
		Args:      cobra.ExactArgs(1),
		ValidArgs: cron.TaskNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()

			name := resolveTaskName(args[0])
			scheduler, err := ctx.scheduler(cmd.Context())
			if err != nil {
				return err
			}
			if err := scheduler.Run(cmd.Context(), name); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s finished\n", name)
			return nil
		},
	}
}

// resolveTaskName accepts task names in any case.
func resolveTaskName(arg string) string {
	for _, name := range cron.TaskNames() {
		if strings.EqualFold(name, strings.TrimSpace(arg)) {
			return name
		}
	}
	return arg
}
