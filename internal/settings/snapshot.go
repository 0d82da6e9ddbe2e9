package settings

import (
	"context"
	"strconv"
)

// Snapshot is the typed view of every setting, resolved once per task run
// and passed down explicitly.
type Snapshot struct {
	AllowEdit             bool
	TitleType             string
	AutoRegister          bool
	AutoRegisterCron      string
	AutoRegisterCheckDays int
	IntelligentChecks     bool
	IntelligentMinDays    int
	IntelligentMaxDays    int
	IntelligentCron       string
	Cron                  string
	AniListUpdateCron     string
}

func (s *Store) Snapshot(ctx context.Context) Snapshot {
	return Snapshot{
		AllowEdit:             s.boolean(ctx, AllowEdit),
		TitleType:             s.Get(ctx, TitleType),
		AutoRegister:          s.boolean(ctx, AutoRegister),
		AutoRegisterCron:      s.Get(ctx, AutoRegisterCron),
		AutoRegisterCheckDays: s.integer(ctx, AutoRegisterCheckDays),
		IntelligentChecks:     s.boolean(ctx, IntelligentChecks),
		IntelligentMinDays:    s.integer(ctx, IntelligentMinDays),
		IntelligentMaxDays:    s.integer(ctx, IntelligentMaxDays),
		IntelligentCron:       s.Get(ctx, IntelligentCron),
		Cron:                  s.Get(ctx, Cron),
		AniListUpdateCron:     s.Get(ctx, AniListUpdateCron),
	}
}

// Defaults is the snapshot of an empty store.
func Defaults() Snapshot {
	return NewStore(emptyRepo{}).Snapshot(context.Background())
}

func (s *Store) boolean(ctx context.Context, key Key) bool {
	v, err := strconv.ParseBool(s.Get(ctx, key))
	if err != nil {
		v, _ = strconv.ParseBool(Default(key))
	}
	return v
}

func (s *Store) integer(ctx context.Context, key Key) int {
	n, err := strconv.Atoi(s.Get(ctx, key))
	if err != nil {
		n, _ = strconv.Atoi(Default(key))
	}
	return n
}

type emptyRepo struct{}

func (emptyRepo) GetSetting(context.Context, string) (string, bool, error) { return "", false, nil }
func (emptyRepo) PutSetting(context.Context, string, string) error         { return nil }
func (emptyRepo) InsertSettingIfMissing(context.Context, string, string) (bool, error) {
	return false, nil
}
