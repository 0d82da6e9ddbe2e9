package updater

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"aninotify/internal/db"
	"aninotify/internal/logger"
	"aninotify/internal/settings"
)

var (
	ErrTitleNotFound = errors.New("title not found")
	ErrTitleFinished = errors.New("title is finished")
)

// StatusUpdater keeps a title's status, episode count and display title in
// sync with upstream metadata. It never creates or deletes titles.
type StatusUpdater struct {
	store  Store
	source Source
	log    zerolog.Logger
}

func NewStatusUpdater(store Store, source Source) *StatusUpdater {
	return &StatusUpdater{
		store:  store,
		source: source,
		log:    logger.With("status"),
	}
}

// Refresh re-fetches the title info and writes the fields that changed.
// It reports whether anything was written.
func (u *StatusUpdater) Refresh(ctx context.Context, title db.Title, snap settings.Snapshot) (bool, error) {
	info, ok := u.source.FetchTitleInfo(ctx, title.ID, snap.TitleType)
	if !ok {
		return false, fmt.Errorf("refresh %s: %w", title.ID, ErrTitleNotFound)
	}

	var (
		update  db.TitleUpdate
		changes []string
	)
	if status := db.TitleStatus(info.Status); status != title.Status {
		update.Status = &status
		changes = append(changes, fmt.Sprintf("status: %s -> %s", title.Status, status))
	}
	if info.TotalEpisodes != title.TotalEpisodes {
		total := info.TotalEpisodes
		update.TotalEpisodes = &total
		changes = append(changes, fmt.Sprintf("episodes: %d -> %d", title.TotalEpisodes, total))
	}
	if info.Title != "" && info.Title != title.Title {
		name := info.Title
		update.Title = &name
		changes = append(changes, fmt.Sprintf("title: %s -> %s", title.Title, name))
	}

	if update.Empty() {
		return false, nil
	}
	if err := u.store.UpdateTitle(ctx, title.ID, update); err != nil {
		return false, fmt.Errorf("refresh %s: %w", title.ID, err)
	}

	u.log.Info().Str("title_id", title.ID).Msgf("Updated info for %s | %s", title.ID, strings.Join(changes, " | "))
	return true, nil
}
