package updater

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"aninotify/internal/consumet"
	"aninotify/internal/db"
	"aninotify/internal/logger"
	"aninotify/internal/report"
	"aninotify/internal/settings"
)

// Registrar starts tracking titles, either on behalf of a user or because
// they showed up in the airing schedule.
type Registrar struct {
	store      Store
	source     Source
	reconciler *Reconciler
	providers  []string
	sink       report.Sink
	log        zerolog.Logger
}

func NewRegistrar(store Store, source Source, reconciler *Reconciler, providers []string, sink report.Sink) *Registrar {
	if sink == nil {
		sink = report.Discard
	}
	return &Registrar{
		store:      store,
		source:     source,
		reconciler: reconciler,
		providers:  providers,
		sink:       sink,
		log:        logger.With("registrar"),
	}
}

// AddTitle registers a title, optionally subscribing user to it, and seeds
// its current episodes without announcing them.
func (r *Registrar) AddTitle(ctx context.Context, id string, snap settings.Snapshot, user *db.User) error {
	info, ok := r.source.FetchTitleInfo(ctx, id, snap.TitleType)
	if !ok {
		return ErrTitleNotFound
	}
	if info.Status == consumet.StatusFinished {
		return ErrTitleFinished
	}

	err := r.store.CreateTitle(ctx, db.Title{
		ID:            id,
		Title:         info.Title,
		Status:        db.TitleStatus(info.Status),
		TotalEpisodes: info.TotalEpisodes,
	})
	if err != nil {
		r.sink.Capture(err, report.Fields{"title_id": id, "op": "create_title"})
		return err
	}

	// Episodes are seeded before subscribing so a failed subscribe never
	// leaves a title without its existing episodes.
	r.reconciler.SeedEpisodes(ctx, id, r.providers)
	r.log.Info().Str("title_id", id).Msgf("Registered %s", info.Title)

	if user != nil {
		if err := r.store.Subscribe(ctx, user.ID, id); err != nil {
			r.sink.Capture(err, report.Fields{"title_id": id, "user": user.Username, "op": "subscribe"})
			return err
		}
	}
	return nil
}

// AddTitleToUser subscribes user to id, registering the title first when it
// is not tracked yet.
func (r *Registrar) AddTitleToUser(ctx context.Context, id string, user db.User, snap settings.Snapshot) error {
	_, err := r.store.GetTitle(ctx, id)
	switch {
	case errors.Is(err, db.ErrNotFound):
		return r.AddTitle(ctx, id, snap, &user)
	case err != nil:
		return err
	}

	if err := r.store.Subscribe(ctx, user.ID, id); err != nil {
		r.sink.Capture(err, report.Fields{"title_id": id, "user": user.Username, "op": "subscribe"})
		return err
	}
	return nil
}

type Failure struct {
	ID     string
	Reason string
}

// Untracked splits ids into those not stored yet and those whose lookup
// failed.
func (r *Registrar) Untracked(ctx context.Context, ids []string) (queued []string, failed []Failure) {
	for _, id := range ids {
		_, err := r.store.GetTitle(ctx, id)
		switch {
		case errors.Is(err, db.ErrNotFound):
			queued = append(queued, id)
		case err != nil:
			r.sink.Capture(err, report.Fields{"title_id": id, "op": "lookup"})
			failed = append(failed, Failure{ID: id, Reason: "Fetch error"})
		}
	}
	return queued, failed
}

// Reason maps a registration error to the label used in failure tallies.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrTitleNotFound):
		return "Title not found"
	case errors.Is(err, ErrTitleFinished):
		return "Title is finished"
	case errors.Is(err, db.ErrConflict):
		return "Already registered"
	default:
		return err.Error()
	}
}

// TallyReasons counts failures per reason, sorted by reason.
func TallyReasons(failed []Failure) []string {
	counts := make(map[string]int)
	for _, f := range failed {
		counts[f.Reason]++
	}
	reasons := make([]string, 0, len(counts))
	for reason := range counts {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)

	lines := make([]string, 0, len(reasons))
	for _, reason := range reasons {
		lines = append(lines, fmt.Sprintf("- Reason: %s Count: %d", reason, counts[reason]))
	}
	return lines
}
