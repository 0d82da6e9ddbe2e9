package db

import (
	"strings"
	"time"
)

type TitleStatus string

const (
	StatusReleasing      TitleStatus = "RELEASING"
	StatusFinished       TitleStatus = "FINISHED"
	StatusNotYetReleased TitleStatus = "NOT_YET_RELEASED"
)

type Title struct {
	ID            string
	Title         string
	Status        TitleStatus
	TotalEpisodes int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TitleUpdate is a partial update; nil fields are left untouched.
type TitleUpdate struct {
	Title         *string
	Status        *TitleStatus
	TotalEpisodes *int
}

func (u TitleUpdate) Empty() bool {
	return u.Title == nil && u.Status == nil && u.TotalEpisodes == nil
}

type Episode struct {
	ID          int64
	TitleID     string
	Number      int
	Dub         bool
	Providers   string
	Title       string
	Description string
	Image       string
	ReleaseAt   time.Time
	CreatedAt   time.Time
}

// ProviderList splits the comma-joined provider set.
func (e Episode) ProviderList() []string {
	var out []string
	for _, p := range strings.Split(e.Providers, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (e Episode) HasProvider(provider string) bool {
	for _, p := range e.ProviderList() {
		if p == provider {
			return true
		}
	}
	return false
}

type User struct {
	ID             int64
	Username       string
	AniListID      string
	DiscordWebhook string
	NtfyURL        string
	TelegramChatID int64
	CreatedAt      time.Time
}

type TaskStatus struct {
	Name    string
	LastRun time.Time
}

type Status struct {
	TitleCount        int
	ReleasingCount    int
	EpisodeCount      int
	UserCount         int
	SubscriptionCount int
	Tasks             []TaskStatus
}
