package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newEpisodesCommand(ctx *commandContext) *cobra.Command {
	var days int
	var limit int

	cmd := &cobra.Command{
		Use:   "episodes <username>",
		Short: "List recent episodes of the titles a user follows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()

			if days <= 0 {
				return errors.New("--days must be positive")
			}
			database, _, err := ctx.store(cmd.Context())
			if err != nil {
				return err
			}
			user, err := lookupUser(cmd, database, args[0])
			if err != nil {
				return err
			}

			now := time.Now()
			eps, err := database.ListSubscribedEpisodes(cmd.Context(), user.ID, now.AddDate(0, 0, -days), now.Add(time.Minute), limit)
			if err != nil {
				return err
			}
			if len(eps) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No episodes in the last %d day(s)\n", days)
				return nil
			}

			rows := make([][]string, 0, len(eps))
			for _, ep := range eps {
				lang := "Sub"
				if ep.Dub {
					lang = "Dub"
				}
				rows = append(rows, []string{ep.TitleID, strconv.Itoa(ep.Number), lang, ep.Title, ep.Providers, humanize.Time(ep.ReleaseAt)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"TITLE", "EPISODE", "LANG", "NAME", "PROVIDERS", "RELEASED"},
				rows,
				[]columnAlignment{alignLeft, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 7, "How many days back to look")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of episodes")
	return cmd
}
