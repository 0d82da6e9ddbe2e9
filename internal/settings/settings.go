// Package settings is the key/value store behind every runtime tunable of the
// engine. Keys form a closed set; each has a hardcoded default that is used
// whenever the stored value is missing or empty.
package settings

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"

	"aninotify/internal/logger"
)

var ErrUnknownKey = errors.New("unknown setting")

type Key string

const (
	AllowEdit             Key = "ALLOW_EDIT"
	AllowDelete           Key = "ALLOW_DELETE"
	TitleType             Key = "TITLE_TYPE"
	AutoRegister          Key = "AUTO_REGISTER"
	AutoRegisterCron      Key = "AUTO_REGISTER_CRON"
	AutoRegisterCheckDays Key = "AUTO_REGISTER_CHECK_DAYS"
	IntelligentChecks     Key = "INTELLIGENT_CHECKS"
	IntelligentMinDays    Key = "INTELLIGENT_MIN_DAYS"
	IntelligentMaxDays    Key = "INTELLIGENT_MAX_DAYS"
	IntelligentCron       Key = "INTELLIGENT_CRON"
	Cron                  Key = "CRON"
	AniListUpdateCron     Key = "ANILIST_UPDATE_CRON"
)

type kind int

const (
	kindString kind = iota
	kindBool
	kindInt
	kindCron
	kindTitleType
)

type definition struct {
	def         string
	description string
	kind        kind
}

var definitions = map[Key]definition{
	AllowEdit:             {"true", "Allow users to edit their information.", kindBool},
	AllowDelete:           {"true", "Allow users to delete their account.", kindBool},
	TitleType:             {"english", `The title type, can be "english", "romaji" and "native".`, kindTitleType},
	AutoRegister:          {"false", "Automatically track titles that are about to air.", kindBool},
	AutoRegisterCron:      {"0 0 * * *", "Cron job for auto registration.", kindCron},
	AutoRegisterCheckDays: {"2", "The amount of days auto registration looks into the future.", kindInt},
	IntelligentChecks:     {"true", "Only check a title when its last episode is between INTELLIGENT_MIN_DAYS and INTELLIGENT_MAX_DAYS days old, plus one daily check of everything.", kindBool},
	IntelligentMinDays:    {"5", "Minimum amount of days since the last episode before a title is checked.", kindInt},
	IntelligentMaxDays:    {"10", "Maximum amount of days since the last episode for a title to be checked.", kindInt},
	IntelligentCron:       {"*/60 * * * *", "Cron job for intelligent checks.", kindCron},
	Cron:                  {"*/60 * * * *", "Cron job for new episode checks when INTELLIGENT_CHECKS is disabled.", kindCron},
	AniListUpdateCron:     {"0 0 * * *", "Cron job for syncing AniList lists.", kindCron},
}

// Repository is the persistence the store needs.
type Repository interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
	PutSetting(ctx context.Context, key, value string) error
	InsertSettingIfMissing(ctx context.Context, key, value string) (bool, error)
}

type Store struct {
	repo Repository
}

func NewStore(repo Repository) *Store {
	return &Store{repo: repo}
}

// Keys returns every known key in a stable order.
func Keys() []Key {
	keys := make([]Key, 0, len(definitions))
	for k := range definitions {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func Default(key Key) string {
	return definitions[key].def
}

func Describe(key Key) string {
	return definitions[key].description
}

// ParseKey maps user input onto a known key.
func ParseKey(s string) (Key, error) {
	k := Key(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := definitions[k]; !ok {
		return "", fmt.Errorf("%q: %w", s, ErrUnknownKey)
	}
	return k, nil
}

// Get never fails: a read error, a missing row or an empty value all yield
// the default. Reading never writes.
func (s *Store) Get(ctx context.Context, key Key) string {
	def, known := definitions[key]
	if !known {
		logger.LogMsg(logger.LogWarning, "Requested unknown setting %s", key)
		return ""
	}
	value, ok, err := s.repo.GetSetting(ctx, string(key))
	if err != nil {
		logger.LogMsg(logger.LogError, "Failed to read setting %s, using default: %v", key, err)
		return def.def
	}
	if !ok || strings.TrimSpace(value) == "" {
		return def.def
	}
	return value
}

func (s *Store) Set(ctx context.Context, key Key, value string) error {
	def, ok := definitions[key]
	if !ok {
		return fmt.Errorf("%s: %w", key, ErrUnknownKey)
	}
	value = strings.TrimSpace(value)
	if err := validate(def.kind, value); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return s.repo.PutSetting(ctx, string(key), value)
}

// Reset overwrites the stored value with the default.
func (s *Store) Reset(ctx context.Context, key Key) error {
	def, ok := definitions[key]
	if !ok {
		return fmt.Errorf("%s: %w", key, ErrUnknownKey)
	}
	return s.repo.PutSetting(ctx, string(key), def.def)
}

// SeedDefaults inserts every missing key with its default. Existing values
// are left alone, so calling it on every start is safe.
func (s *Store) SeedDefaults(ctx context.Context) error {
	created := 0
	for _, key := range Keys() {
		ok, err := s.repo.InsertSettingIfMissing(ctx, string(key), definitions[key].def)
		if err != nil {
			return fmt.Errorf("seed %s: %w", key, err)
		}
		if ok {
			created++
		}
	}
	if created > 0 {
		logger.LogMsg(logger.LogInfo, "Seeded %d default settings", created)
	}
	return nil
}

func validate(k kind, value string) error {
	switch k {
	case kindBool:
		if value != "true" && value != "false" {
			return errors.New(`must be "true" or "false"`)
		}
	case kindInt:
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		if n < 0 {
			return errors.New("must not be negative")
		}
	case kindCron:
		if _, err := cron.ParseStandard(value); err != nil {
			return err
		}
	case kindTitleType:
		switch value {
		case "english", "romaji", "native":
		default:
			return errors.New(`must be "english", "romaji" or "native"`)
		}
	}
	return nil
}
