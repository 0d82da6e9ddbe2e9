package updater

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"aninotify/internal/consumet"
	"aninotify/internal/db"
	"aninotify/internal/logger"
	"aninotify/internal/report"
	"aninotify/internal/settings"
)

type Store interface {
	GetTitle(ctx context.Context, id string) (db.Title, error)
	CreateTitle(ctx context.Context, t db.Title) error
	UpdateTitle(ctx context.Context, id string, u db.TitleUpdate) error

	CreateEpisode(ctx context.Context, ep db.Episode) (db.Episode, error)
	FindEpisode(ctx context.Context, titleID string, number int, dub bool) (db.Episode, error)
	UpdateEpisodeProviders(ctx context.Context, id int64, providers string) error
	CountEpisodes(ctx context.Context, titleID string, dub bool) (int, error)

	Subscribe(ctx context.Context, userID int64, titleID string) error
}

type Source interface {
	FetchEpisodes(ctx context.Context, titleID string, dub bool, provider string) []consumet.Episode
	FetchTitleInfo(ctx context.Context, titleID, titleType string) (consumet.TitleInfo, bool)
}

type episodeKey struct {
	number int
	dub    bool
}

func keyOf(ep db.Episode) episodeKey {
	return episodeKey{number: ep.Number, dub: ep.Dub}
}

// Reconciler brings the stored episode set of a title in line with what the
// providers currently list.
type Reconciler struct {
	store  Store
	source Source
	status *StatusUpdater
	sink   report.Sink

	now func() time.Time
	log zerolog.Logger
}

func NewReconciler(store Store, source Source, status *StatusUpdater, sink report.Sink) *Reconciler {
	if sink == nil {
		sink = report.Discard
	}
	return &Reconciler{
		store:  store,
		source: source,
		status: status,
		sink:   sink,
		now:    time.Now,
		log:    logger.With("reconciler"),
	}
}

// Reconcile fetches the sub and dub lists of every provider, stores what is
// missing and returns the episodes discovered by this call. Each (number,
// variant) appears at most once in the result with the combined provider set.
func (r *Reconciler) Reconcile(ctx context.Context, title db.Title, known []db.Episode, providers []string, snap settings.Snapshot) []db.Episode {
	discovered := r.sync(ctx, title.ID, known, providers)

	if r.status != nil && r.shouldRefresh(ctx, title, discovered) {
		if _, err := r.status.Refresh(ctx, title, snap); err != nil {
			r.log.Warn().Err(err).Str("title_id", title.ID).Msg("Status refresh failed")
			r.sink.Capture(err, report.Fields{"title_id": title.ID, "op": "refresh"})
		}
	}

	if len(discovered) > 0 {
		r.log.Info().Str("title_id", title.ID).Int("new", len(discovered)).
			Msgf("Found %d new episode(s) for %s", len(discovered), title.Title)
	}
	return discovered
}

// SeedEpisodes stores the current episode lists of a freshly registered
// title. Nothing is returned because seeded episodes are never announced.
func (r *Reconciler) SeedEpisodes(ctx context.Context, titleID string, providers []string) {
	seeded := r.sync(ctx, titleID, nil, providers)
	r.log.Debug().Str("title_id", titleID).Int("episodes", len(seeded)).Msg("Seeded episodes")
}

func (r *Reconciler) sync(ctx context.Context, titleID string, known []db.Episode, providers []string) []db.Episode {
	knownByKey := make(map[episodeKey]*db.Episode, len(known))
	for i := range known {
		ep := known[i]
		knownByKey[keyOf(ep)] = &ep
	}

	discovered := make(map[episodeKey]*db.Episode)
	for _, provider := range providers {
		for _, dub := range []bool{false, true} {
			if ctx.Err() != nil {
				return collect(discovered)
			}

			for _, fetched := range r.source.FetchEpisodes(ctx, titleID, dub, provider) {
				k := episodeKey{number: fetched.Number, dub: dub}

				if ep, ok := knownByKey[k]; ok {
					r.mergeProvider(ctx, ep, provider)
					continue
				}
				if ep, ok := discovered[k]; ok {
					r.mergeProvider(ctx, ep, provider)
					continue
				}

				stored, created, err := r.upsert(ctx, titleID, fetched, dub, provider)
				if err != nil {
					r.log.Error().Err(err).Str("title_id", titleID).Int("episode", fetched.Number).
						Bool("dub", dub).Str("provider", provider).Msg("Failed to store episode")
					r.sink.Capture(err, report.Fields{
						"title_id": titleID,
						"episode":  fetched.Number,
						"dub":      dub,
						"provider": provider,
					})
					continue
				}
				if created {
					discovered[k] = &stored
				} else {
					knownByKey[k] = &stored
				}
			}
		}
	}
	return collect(discovered)
}

// upsert creates the episode, or merges the provider into an existing record
// that was not part of the known set. created reports which path was taken.
func (r *Reconciler) upsert(ctx context.Context, titleID string, fetched consumet.Episode, dub bool, provider string) (db.Episode, bool, error) {
	existing, err := r.store.FindEpisode(ctx, titleID, fetched.Number, dub)
	switch {
	case err == nil:
		r.mergeProvider(ctx, &existing, provider)
		return existing, false, nil
	case !errors.Is(err, db.ErrNotFound):
		return db.Episode{}, false, err
	}

	releaseAt := fetched.ReleasedAt
	if releaseAt.IsZero() {
		releaseAt = r.now()
	}
	created, err := r.store.CreateEpisode(ctx, db.Episode{
		TitleID:     titleID,
		Number:      fetched.Number,
		Dub:         dub,
		Providers:   provider,
		Title:       fetched.Title,
		Description: fetched.Description,
		Image:       fetched.Image,
		ReleaseAt:   releaseAt,
	})
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, db.ErrConflict) {
		return db.Episode{}, false, err
	}

	// Lost a race with another writer; fall back to merging.
	existing, err = r.store.FindEpisode(ctx, titleID, fetched.Number, dub)
	if err != nil {
		return db.Episode{}, false, fmt.Errorf("re-read after conflict: %w", err)
	}
	r.mergeProvider(ctx, &existing, provider)
	return existing, false, nil
}

func (r *Reconciler) mergeProvider(ctx context.Context, ep *db.Episode, provider string) {
	if ep.HasProvider(provider) {
		return
	}
	providers := strings.Join(append(ep.ProviderList(), provider), ",")
	if err := r.store.UpdateEpisodeProviders(ctx, ep.ID, providers); err != nil {
		r.log.Error().Err(err).Int64("episode_id", ep.ID).Str("provider", provider).Msg("Failed to merge provider")
		r.sink.Capture(err, report.Fields{"episode_id": ep.ID, "provider": provider})
		return
	}
	ep.Providers = providers
}

// shouldRefresh reports whether the title looks complete, or started airing
// since it was registered.
func (r *Reconciler) shouldRefresh(ctx context.Context, title db.Title, discovered []db.Episode) bool {
	if title.Status == db.StatusNotYetReleased && len(discovered) > 1 {
		return true
	}

	for _, dub := range []bool{false, true} {
		n, err := r.store.CountEpisodes(ctx, title.ID, dub)
		if err != nil {
			r.log.Error().Err(err).Str("title_id", title.ID).Msg("Failed to count episodes")
			r.sink.Capture(err, report.Fields{"title_id": title.ID, "op": "count_episodes"})
			return false
		}
		if n < title.TotalEpisodes {
			return false
		}
	}
	return true
}

func collect(m map[episodeKey]*db.Episode) []db.Episode {
	out := make([]db.Episode, 0, len(m))
	for _, ep := range m {
		out = append(out, *ep)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Number != out[j].Number {
			return out[i].Number < out[j].Number
		}
		return !out[i].Dub && out[j].Dub
	})
	return out
}
