package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"

	"aninotify/internal/anilist"
	"aninotify/internal/config"
	"aninotify/internal/consumet"
	"aninotify/internal/cron"
	"aninotify/internal/db"
	"aninotify/internal/logger"
	"aninotify/internal/notify"
	"aninotify/internal/report"
	"aninotify/internal/settings"
	"aninotify/internal/updater"
)

// commandContext lazily opens what a command needs and closes it afterwards.
type commandContext struct {
	databaseFlag string

	cfg      *config.Config
	database *db.DB
	settings *settings.Store

	redis    *redis.Client
	sentry   *report.SentrySink
	telegram *tgbotapi.BotAPI
}

func (c *commandContext) config() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if c.databaseFlag != "" {
		cfg.DatabasePath = c.databaseFlag
	}
	c.cfg = cfg
	return cfg, nil
}

// store opens the database, applies schema and migrations, and seeds the
// settings defaults.
func (c *commandContext) store(ctx context.Context) (*db.DB, *settings.Store, error) {
	if c.database != nil {
		return c.database, c.settings, nil
	}
	cfg, err := c.config()
	if err != nil {
		return nil, nil, err
	}

	if dir := filepath.Dir(cfg.DatabasePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create database directory %q: %w", dir, err)
		}
	}
	database, err := db.New(cfg.DatabasePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := database.CreateTables(); err != nil {
		_ = database.Close()
		return nil, nil, fmt.Errorf("create tables: %w", err)
	}
	if err := database.Migrate(); err != nil {
		_ = database.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}

	store := settings.NewStore(database)
	if err := store.SeedDefaults(ctx); err != nil {
		_ = database.Close()
		return nil, nil, err
	}

	c.database = database
	c.settings = store
	return database, store, nil
}

// sink reports to the log and, when SENTRY_DSN is set, to Sentry.
func (c *commandContext) sink(cfg *config.Config) report.Sink {
	sinks := []report.Sink{report.NewLogSink(logger.With("report"))}
	if cfg.SentryDSN != "" && c.sentry == nil {
		s, err := report.NewSentrySink(cfg.SentryDSN, "production")
		if err != nil {
			logger.LogMsg(logger.LogWarning, "Sentry disabled: %v", err)
		} else {
			c.sentry = s
		}
	}
	if c.sentry != nil {
		sinks = append(sinks, c.sentry)
	}
	return report.Multi(sinks...)
}

func (c *commandContext) redisClient(ctx context.Context, cfg *config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	if c.redis != nil {
		return c.redis
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.LogMsg(logger.LogWarning, "Redis unavailable, AniList lookups will not be cached: %v", err)
		_ = rdb.Close()
		return nil
	}
	logger.LogMsg(logger.LogInfo, "Connection to Redis successful")
	c.redis = rdb
	return rdb
}

// telegramAPI returns nil when no bot token is configured or the token is
// rejected.
func (c *commandContext) telegramAPI(cfg *config.Config) *tgbotapi.BotAPI {
	if cfg.TelegramBotToken == "" {
		return nil
	}
	if c.telegram != nil {
		return c.telegram
	}
	api, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		logger.LogMsg(logger.LogError, "Failed to initialize Telegram bot: %v", err)
		return nil
	}
	logger.LogMsg(logger.LogInfo, "Authorized on Telegram account %s", api.Self.UserName)
	c.telegram = api
	return api
}

func (c *commandContext) channels(cfg *config.Config) []notify.Channel {
	channels := []notify.Channel{
		notify.NewDiscord(cfg.NotifyRatePerSec),
		notify.NewNtfy(),
	}
	if api := c.telegramAPI(cfg); api != nil {
		channels = append(channels, notify.NewTelegram(notify.NewTelegramSender(api)))
	}
	return channels
}

func (c *commandContext) source(cfg *config.Config) (*consumet.Client, error) {
	if cfg.ConsumetURL == "" {
		return nil, errors.New("CONSUMET_URL is not set")
	}
	return consumet.NewClient(cfg.ConsumetURL), nil
}

// registrar builds the title registration path used by the admin commands.
func (c *commandContext) registrar(ctx context.Context) (*updater.Registrar, *db.DB, *settings.Store, error) {
	cfg, err := c.config()
	if err != nil {
		return nil, nil, nil, err
	}
	source, err := c.source(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	database, store, err := c.store(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	sink := c.sink(cfg)
	status := updater.NewStatusUpdater(database, source)
	reconciler := updater.NewReconciler(database, source, status, sink)
	return updater.NewRegistrar(database, source, reconciler, cfg.Providers, sink), database, store, nil
}

// scheduler wires every engine component together.
func (c *commandContext) scheduler(ctx context.Context) (*cron.Scheduler, error) {
	cfg, err := c.config()
	if err != nil {
		return nil, err
	}
	source, err := c.source(cfg)
	if err != nil {
		return nil, err
	}
	database, store, err := c.store(ctx)
	if err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.LogMsg(logger.LogWarning, "Unknown timezone %q, using UTC: %v", cfg.Timezone, err)
		loc = time.UTC
	}

	sink := c.sink(cfg)
	lists := anilist.NewClient(cfg.AniListURL, c.redisClient(ctx, cfg))

	status := updater.NewStatusUpdater(database, source)
	reconciler := updater.NewReconciler(database, source, status, sink)
	registrar := updater.NewRegistrar(database, source, reconciler, cfg.Providers, sink)
	notifier := notify.New(database, sink, cfg.NotifyConcurrency, c.channels(cfg)...)

	return cron.NewScheduler(cron.Deps{
		Store:      database,
		Settings:   store,
		Reconciler: reconciler,
		Notifier:   notifier,
		Registrar:  registrar,
		Lists:      lists,
		Sink:       sink,
		Providers:  cfg.Providers,
		Location:   loc,
		Debug:      cfg.Debug,
	}), nil
}

// close releases everything opened by the command.
func (c *commandContext) close() {
	if c.sentry != nil {
		c.sentry.Flush(5 * time.Second)
	}
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			logger.LogMsg(logger.LogError, "Failed to close Redis client: %v", err)
		}
		c.redis = nil
	}
	if c.database != nil {
		if err := c.database.Close(); err != nil {
			logger.LogMsg(logger.LogError, "Failed to close database: %v", err)
		}
		c.database = nil
	}
}
