package config

import (
	"reflect"
	"testing"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, key := range []string{"DATABASE_PATH", "ANIME_PROVIDERS", "ANILIST_URL", "TIMEZONE", "NOTIFY_CONCURRENCY", "NOTIFY_RATE_PER_SEC", "DEBUG"} {
		t.Setenv(key, "")
	}

	cfg := FromEnv()
	if cfg.DatabasePath != defaultDatabasePath {
		t.Fatalf("DatabasePath=%q, want %q", cfg.DatabasePath, defaultDatabasePath)
	}
	if !reflect.DeepEqual(cfg.Providers, []string{"gogoanime"}) {
		t.Fatalf("Providers=%v, want [gogoanime]", cfg.Providers)
	}
	if cfg.Timezone != defaultTimezone {
		t.Fatalf("Timezone=%q, want %q", cfg.Timezone, defaultTimezone)
	}
	if cfg.NotifyConcurrency != 4 {
		t.Fatalf("NotifyConcurrency=%d, want 4", cfg.NotifyConcurrency)
	}
	if cfg.Debug {
		t.Fatalf("Debug=true, want false")
	}
}

func TestFromEnv_ParsesProvidersAndTrimsURL(t *testing.T) {
	t.Setenv("ANIME_PROVIDERS", " Gogoanime, zoro,,gogoanime ")
	t.Setenv("CONSUMET_URL", "http://consumet.local/")
	t.Setenv("NOTIFY_CONCURRENCY", "not-a-number")

	cfg := FromEnv()
	if !reflect.DeepEqual(cfg.Providers, []string{"gogoanime", "zoro"}) {
		t.Fatalf("Providers=%v, want [gogoanime zoro]", cfg.Providers)
	}
	if cfg.ConsumetURL != "http://consumet.local" {
		t.Fatalf("ConsumetURL=%q, want trailing slash trimmed", cfg.ConsumetURL)
	}
	if cfg.NotifyConcurrency != 4 {
		t.Fatalf("NotifyConcurrency=%d, want default 4 for invalid value", cfg.NotifyConcurrency)
	}
}
