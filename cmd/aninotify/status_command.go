package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"aninotify/internal/cron"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show tracked counts and when each task last ran",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()

			database, _, err := ctx.store(cmd.Context())
			if err != nil {
				return err
			}
			status, err := database.GetStatus(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Titles:        %s (%s releasing)\n", humanize.Comma(int64(status.TitleCount)), humanize.Comma(int64(status.ReleasingCount)))
			fmt.Fprintf(out, "Episodes:      %s\n", humanize.Comma(int64(status.EpisodeCount)))
			fmt.Fprintf(out, "Users:         %s\n", humanize.Comma(int64(status.UserCount)))
			fmt.Fprintf(out, "Subscriptions: %s\n", humanize.Comma(int64(status.SubscriptionCount)))
			fmt.Fprintln(out)

			lastRun := make(map[string]time.Time, len(status.Tasks))
			for _, task := range status.Tasks {
				lastRun[task.Name] = task.LastRun
			}
			rows := make([][]string, 0, len(cron.TaskNames()))
			for _, name := range cron.TaskNames() {
				when := "never"
				if at, ok := lastRun[name]; ok && !at.IsZero() {
					when = humanize.Time(at)
				}
				rows = append(rows, []string{name, when})
			}
			fmt.Fprintln(out, renderTable([]string{"TASK", "LAST RUN"}, rows, nil))
			return nil
		},
	}
}
