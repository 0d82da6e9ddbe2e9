package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"aninotify/internal/appcopy"
	"aninotify/internal/bot"
	"aninotify/internal/db"
	"aninotify/internal/updater"
)

func newUsersCommand(ctx *commandContext) *cobra.Command {
	usersCmd := &cobra.Command{
		Use:   "users",
		Short: "Manage notification recipients",
	}
	usersCmd.AddCommand(newUsersAddCommand(ctx))
	usersCmd.AddCommand(newUsersPairCommand(ctx))
	usersCmd.AddCommand(newUsersSubscribeCommand(ctx))
	return usersCmd
}

func newUsersAddCommand(ctx *commandContext) *cobra.Command {
	var u db.User

	cmd := &cobra.Command{
		Use:   "add <username>",
		Short: "Create a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()

			database, _, err := ctx.store(cmd.Context())
			if err != nil {
				return err
			}
			u.Username = args[0]
			created, err := database.CreateUser(cmd.Context(), u)
			if err != nil {
				if errors.Is(err, db.ErrConflict) {
					return fmt.Errorf("user %q already exists", u.Username)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created user %s (id %d)\n", created.Username, created.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&u.AniListID, "anilist", "", "AniList user id or name")
	cmd.Flags().StringVar(&u.DiscordWebhook, "discord", "", "Discord webhook URL")
	cmd.Flags().StringVar(&u.NtfyURL, "ntfy", "", "ntfy topic URL")
	return cmd
}

func newUsersPairCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "pair <username>",
		Short: "Generate a code the user sends to the Telegram bot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()

			database, _, err := ctx.store(cmd.Context())
			if err != nil {
				return err
			}
			user, err := lookupUser(cmd, database, args[0])
			if err != nil {
				return err
			}

			code, err := bot.GeneratePairingCode()
			if err != nil {
				return fmt.Errorf("generate pairing code: %w", err)
			}
			expiresAt := time.Now().Add(bot.PairingTTL)
			if err := database.CreatePairingCode(cmd.Context(), code, user.ID, expiresAt); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), appcopy.Copy.Info.PairingCode+"\n",
				user.Username, code, expiresAt.Format("2006-01-02 15:04"))
			return nil
		},
	}
}

func newUsersSubscribeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "subscribe <username> <anilist-id>...",
		Short: "Subscribe a user to titles, registering unknown ones",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()

			registrar, database, store, err := ctx.registrar(cmd.Context())
			if err != nil {
				return err
			}
			user, err := lookupUser(cmd, database, args[0])
			if err != nil {
				return err
			}
			snap := store.Snapshot(cmd.Context())

			ids := args[1:]
			var failed []updater.Failure
			for _, id := range ids {
				if err := registrar.AddTitleToUser(cmd.Context(), id, user, snap); err != nil {
					failed = append(failed, updater.Failure{ID: id, Reason: updater.Reason(err)})
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Subscribed %s to %s\n", user.Username, id)
			}
			return reportFailures(cmd, len(ids), failed)
		},
	}
}

func lookupUser(cmd *cobra.Command, database *db.DB, username string) (db.User, error) {
	user, err := database.GetUserByUsername(cmd.Context(), username)
	if errors.Is(err, db.ErrNotFound) {
		return db.User{}, fmt.Errorf("no user named %q", username)
	}
	return user, err
}
