package cron

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"aninotify/internal/anilist"
	"aninotify/internal/db"
	"aninotify/internal/report"
	"aninotify/internal/settings"
	"aninotify/internal/updater"
)

// checkTitles reconciles every releasing title and notifies subscribers of
// what was found. With window set, titles whose latest episode is outside
// the intelligent day window are skipped; titles without episodes never are.
func (s *Scheduler) checkTitles(ctx context.Context, snap settings.Snapshot, window bool, log zerolog.Logger) error {
	titles, err := s.deps.Store.ListTitlesByStatus(ctx, db.StatusReleasing)
	if err != nil {
		return err
	}

	// A zero bound turns the window off.
	window = window && snap.IntelligentMinDays > 0 && snap.IntelligentMaxDays > 0

	th := s.throttle(s.CheckBatch, s.CheckDelay)
	var checked, skipped, found int
	for _, t := range titles {
		if window {
			last, ok, err := s.deps.Store.LastReleaseAt(ctx, t.ID)
			if err != nil {
				log.Error().Err(err).Str("title_id", t.ID).Msg("Failed to read last release")
				s.deps.Sink.Capture(err, report.Fields{"title_id": t.ID})
				continue
			}
			if ok && !IsWithin(snap.IntelligentMinDays, snap.IntelligentMaxDays, last, s.now()) {
				log.Debug().Str("title_id", t.ID).Msgf("Skipping %s, last episode %s", t.Title, humanize.RelTime(last, s.now(), "ago", "from now"))
				skipped++
				continue
			}
		}

		if err := th.Wait(ctx); err != nil {
			return err
		}

		known, err := s.deps.Store.ListEpisodes(ctx, t.ID)
		if err != nil {
			log.Error().Err(err).Str("title_id", t.ID).Msg("Failed to list episodes")
			s.deps.Sink.Capture(err, report.Fields{"title_id": t.ID})
			continue
		}

		checked++
		newEps := s.deps.Reconciler.Reconcile(ctx, t, known, s.deps.Providers, snap)
		if len(newEps) == 0 {
			continue
		}
		found += len(newEps)
		s.deps.Notifier.NotifyAll(ctx, t, newEps)
	}

	log.Info().Int("titles", len(titles)).Int("checked", checked).Int("skipped", skipped).Int("new_episodes", found).
		Msg("Episode check done")
	return nil
}

func (s *Scheduler) cleanup(ctx context.Context, log zerolog.Logger) error {
	n, err := s.deps.Store.DeleteTitlesByStatus(ctx, db.StatusFinished)
	if err != nil {
		return err
	}
	log.Info().Msgf("Deleted %d finished titles", n)
	return nil
}

// syncLists subscribes every linked user to the titles on their planned and
// current AniList lists.
func (s *Scheduler) syncLists(ctx context.Context, snap settings.Snapshot, log zerolog.Logger) error {
	users, err := s.deps.Store.ListUsersWithAniList(ctx)
	if err != nil {
		return err
	}

	th := s.throttle(s.SyncBatch, s.SyncDelay)
	var added, failed int
	for _, u := range users {
		if err := th.Wait(ctx); err != nil {
			return err
		}
		a, f := s.syncUser(ctx, u, snap, log)
		added += a
		failed += f
	}

	log.Info().Int("users", len(users)).Int("added", added).Int("failed", failed).Msg("List sync done")
	return nil
}

func (s *Scheduler) syncUser(ctx context.Context, u db.User, snap settings.Snapshot, log zerolog.Logger) (added, failed int) {
	aniListID := strings.TrimSpace(u.AniListID)
	if _, err := strconv.Atoi(aniListID); err != nil {
		resolved, err := s.deps.Lists.ResolveUserID(ctx, aniListID)
		if err != nil {
			log.Warn().Err(err).Str("user", u.Username).Msg("Failed to resolve AniList user")
			if !errors.Is(err, anilist.ErrUserNotFound) {
				s.deps.Sink.Capture(err, report.Fields{"user": u.Username, "op": "resolve_anilist"})
			}
			return 0, 0
		}
		if err := s.deps.Store.SetUserAniListID(ctx, u.ID, resolved); err != nil {
			log.Warn().Err(err).Str("user", u.Username).Msg("Failed to store resolved AniList id")
		}
		aniListID = resolved
	}

	subscribed, err := s.deps.Store.SubscribedTitleIDs(ctx, u.ID)
	if err != nil {
		s.deps.Sink.Capture(err, report.Fields{"user": u.Username, "op": "subscriptions"})
		return 0, 0
	}
	have := make(map[string]struct{}, len(subscribed))
	for _, id := range subscribed {
		have[id] = struct{}{}
	}

	var ids []string
	for _, status := range []anilist.ListStatus{anilist.ListPlanned, anilist.ListCurrent} {
		list, err := s.deps.Lists.List(ctx, aniListID, status)
		if err != nil {
			log.Warn().Err(err).Str("user", u.Username).Str("list", string(status)).Msg("Failed to fetch list")
			continue
		}
		ids = append(ids, list...)
	}

	for _, id := range ids {
		if _, ok := have[id]; ok {
			continue
		}
		have[id] = struct{}{}

		if err := s.deps.Registrar.AddTitleToUser(ctx, id, u, snap); err != nil {
			failed++
			log.Debug().Str("user", u.Username).Str("title_id", id).Msg(updater.Reason(err))
			if !errors.Is(err, updater.ErrTitleNotFound) && !errors.Is(err, updater.ErrTitleFinished) {
				s.deps.Sink.Capture(err, report.Fields{"user": u.Username, "title_id": id, "op": "add_title_to_user"})
			}
			continue
		}
		added++
	}
	return added, failed
}

// autoRegister starts tracking titles that air within the configured number
// of days.
func (s *Scheduler) autoRegister(ctx context.Context, snap settings.Snapshot, log zerolog.Logger) error {
	ids, err := s.deps.Lists.AiringTitles(ctx, snap.AutoRegisterCheckDays)
	if err != nil {
		if len(ids) == 0 {
			return err
		}
		log.Warn().Err(err).Msg("Airing schedule incomplete, continuing with what was fetched")
	}

	queued, failed := s.deps.Registrar.Untracked(ctx, ids)
	log.Info().Msgf("Adding %d new titles.", len(queued))

	th := s.throttle(s.CheckBatch, s.CheckDelay)
	for _, id := range queued {
		if err := th.Wait(ctx); err != nil {
			return err
		}
		if err := s.deps.Registrar.AddTitle(ctx, id, snap, nil); err != nil {
			failed = append(failed, updater.Failure{ID: id, Reason: updater.Reason(err)})
		}
	}

	log.Info().Msgf("Failed to add %d titles.", len(failed))
	for _, line := range updater.TallyReasons(failed) {
		log.Info().Msg(line)
	}
	if s.deps.Debug && len(failed) > 0 {
		dump := make([]string, 0, len(failed))
		for _, f := range failed {
			dump = append(dump, f.ID+": "+f.Reason)
		}
		log.Info().Strs("failed", dump).Msg("Failed dump")
	}
	log.Info().Msg("Done adding new titles.")
	return nil
}

func (s *Scheduler) throttle(batch int, delay time.Duration) *Throttle {
	th := NewThrottle(batch, delay)
	th.Sleep = s.Sleep
	return th
}
