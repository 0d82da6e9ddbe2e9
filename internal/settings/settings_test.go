package settings

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"aninotify/internal/db"
)

func newTestStore(t *testing.T) (*Store, *db.DB) {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("db.New(): %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	if err := database.CreateTables(); err != nil {
		t.Fatalf("CreateTables(): %v", err)
	}
	return NewStore(database), database
}

func countRows(t *testing.T, database *db.DB) int {
	t.Helper()
	var n int
	if err := database.QueryRow("SELECT COUNT(*) FROM settings").Scan(&n); err != nil {
		t.Fatalf("count settings: %v", err)
	}
	return n
}

func TestGet_MissingKeyReturnsDefaultWithoutWriting(t *testing.T) {
	store, database := newTestStore(t)

	if got := store.Get(context.Background(), Cron); got != "*/60 * * * *" {
		t.Fatalf("Get(CRON)=%q, want default */60 * * * *", got)
	}
	if n := countRows(t, database); n != 0 {
		t.Fatalf("settings rows=%d after Get, want 0", n)
	}
}

func TestGet_EmptyStoredValueFallsBackToDefault(t *testing.T) {
	store, database := newTestStore(t)
	if err := database.PutSetting(context.Background(), string(TitleType), ""); err != nil {
		t.Fatalf("PutSetting(): %v", err)
	}
	if got := store.Get(context.Background(), TitleType); got != "english" {
		t.Fatalf("Get(TITLE_TYPE)=%q, want english", got)
	}
}

func TestSetAndReset(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	if err := store.Set(ctx, IntelligentMinDays, "3"); err != nil {
		t.Fatalf("Set(): %v", err)
	}
	if got := store.Get(ctx, IntelligentMinDays); got != "3" {
		t.Fatalf("Get()=%q, want 3", got)
	}

	if err := store.Reset(ctx, IntelligentMinDays); err != nil {
		t.Fatalf("Reset(): %v", err)
	}
	if got := store.Get(ctx, IntelligentMinDays); got != "5" {
		t.Fatalf("Get() after Reset=%q, want 5", got)
	}
}

func TestSet_Validation(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	tests := []struct {
		name    string
		key     Key
		value   string
		wantErr bool
	}{
		{name: "valid cron", key: Cron, value: "*/15 * * * *"},
		{name: "invalid cron", key: Cron, value: "every now and then", wantErr: true},
		{name: "valid bool", key: AutoRegister, value: "true"},
		{name: "invalid bool", key: AutoRegister, value: "yes", wantErr: true},
		{name: "negative int", key: IntelligentMaxDays, value: "-1", wantErr: true},
		{name: "title type", key: TitleType, value: "romaji"},
		{name: "bad title type", key: TitleType, value: "klingon", wantErr: true},
		{name: "unknown key", key: Key("NOPE"), value: "x", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.Set(ctx, tt.key, tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Set(%s, %q) err=%v, wantErr=%v", tt.key, tt.value, err, tt.wantErr)
			}
		})
	}

	if err := store.Set(ctx, Key("NOPE"), "x"); !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("Set(unknown) err=%v, want ErrUnknownKey", err)
	}
}

func TestSeedDefaults_IsIdempotentAndKeepsValues(t *testing.T) {
	ctx := context.Background()
	store, database := newTestStore(t)

	if err := store.Set(ctx, Cron, "0 * * * *"); err != nil {
		t.Fatalf("Set(): %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := store.SeedDefaults(ctx); err != nil {
			t.Fatalf("SeedDefaults(): %v", err)
		}
	}

	if n := countRows(t, database); n != len(Keys()) {
		t.Fatalf("settings rows=%d, want %d", n, len(Keys()))
	}
	if got := store.Get(ctx, Cron); got != "0 * * * *" {
		t.Fatalf("Get(CRON)=%q, want the value set before seeding", got)
	}
}

func TestSnapshot(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	if err := store.Set(ctx, IntelligentChecks, "false"); err != nil {
		t.Fatalf("Set(): %v", err)
	}
	snap := store.Snapshot(ctx)
	if snap.IntelligentChecks {
		t.Fatalf("IntelligentChecks=true, want false")
	}
	if snap.IntelligentMinDays != 5 || snap.IntelligentMaxDays != 10 {
		t.Fatalf("window=[%d,%d], want [5,10]", snap.IntelligentMinDays, snap.IntelligentMaxDays)
	}

	def := Defaults()
	if !def.IntelligentChecks || def.AutoRegister || def.AutoRegisterCheckDays != 2 || def.TitleType != "english" {
		t.Fatalf("Defaults()=%+v, unexpected values", def)
	}
}

func TestParseKey(t *testing.T) {
	if k, err := ParseKey(" cron "); err != nil || k != Cron {
		t.Fatalf("ParseKey(cron)=(%q,%v), want CRON", k, err)
	}
	if _, err := ParseKey("NOT_A_KEY"); !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("ParseKey(unknown) err=%v, want ErrUnknownKey", err)
	}
}
