package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	defaultDatabasePath = "database/AniNotify.db"
	defaultAniListURL   = "https://graphql.anilist.co"
	defaultTimezone     = "Europe/Copenhagen"
)

// Config holds the process configuration. Runtime tunables such as cron
// cadences live in the settings store instead.

type Config struct {
	DatabasePath string
	ConsumetURL  string
	Providers    []string
	AniListURL   string
	Timezone     string

	TelegramBotToken string

	RedisAddr     string
	RedisPassword string

	SentryDSN string

	NotifyConcurrency int
	NotifyRatePerSec  float64

	LogLevel string
	Debug    bool
}

// Load loads the configuration from .env (when present) and the environment.

func Load() (*Config, error) {
	err := godotenv.Load()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return FromEnv(), nil
}

// FromEnv builds a Config from the current environment only.
func FromEnv() *Config {
	return &Config{
		DatabasePath:      envOr("DATABASE_PATH", defaultDatabasePath),
		ConsumetURL:       strings.TrimRight(os.Getenv("CONSUMET_URL"), "/"),
		Providers:         splitList(envOr("ANIME_PROVIDERS", "gogoanime")),
		AniListURL:        envOr("ANILIST_URL", defaultAniListURL),
		Timezone:          envOr("TIMEZONE", defaultTimezone),
		TelegramBotToken:  os.Getenv("TELEGRAM_BOT_TOKEN"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		SentryDSN:         os.Getenv("SENTRY_DSN"),
		NotifyConcurrency: envInt("NOTIFY_CONCURRENCY", 4),
		NotifyRatePerSec:  envFloat("NOTIFY_RATE_PER_SEC", 5),
		LogLevel:          envOr("LOG_LEVEL", "info"),
		Debug:             os.Getenv("DEBUG") == "true",
	}
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(key)), 64)
	if err != nil || f <= 0 {
		return def
	}
	return f
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]bool, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
