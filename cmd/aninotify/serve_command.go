package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"aninotify/internal/bot"
	"aninotify/internal/logger"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "serve",
		Short:       "Run the scheduler until interrupted",
		Annotations: map[string]string{"fileLog": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			scheduler, err := ctx.scheduler(runCtx)
			if err != nil {
				return err
			}

			lock := flock.New(ctx.cfg.DatabasePath + ".lock")
			ok, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire lock: %w", err)
			}
			if !ok {
				return fmt.Errorf("another instance is already serving %s", ctx.cfg.DatabasePath)
			}
			defer func() {
				if err := lock.Unlock(); err != nil {
					logger.LogMsg(logger.LogWarning, "Failed to release lock: %v", err)
				}
			}()
			scheduler.Start(runCtx)
			logger.LogMsg(logger.LogInfo, "Scheduler started with %d task(s)", len(scheduler.Entries()))

			if api := ctx.telegram; api != nil {
				go bot.New(api, ctx.database, ctx.settings).Run(runCtx)
				logger.LogMsg(logger.LogInfo, "Telegram bot listening for pairing codes")
			}

			<-runCtx.Done()
			logger.LogMsg(logger.LogInfo, "Shutting down, waiting for running tasks")

			select {
			case <-scheduler.Stop().Done():
			case <-time.After(30 * time.Second):
				logger.LogMsg(logger.LogWarning, "Timed out waiting for running tasks")
			}
			return nil
		},
	}
}
