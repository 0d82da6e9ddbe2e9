package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const episodeColumns = "id, title_id, number, dub, providers, COALESCE(title, ''), COALESCE(description, ''), COALESCE(image, ''), release_at, created_at"

// CreateEpisode inserts a new episode. A second episode with the same
// (title, number, dub) is rejected with ErrConflict.
func (db *DB) CreateEpisode(ctx context.Context, ep Episode) (Episode, error) {
	if ep.ReleaseAt.IsZero() {
		ep.ReleaseAt = time.Now()
	}
	ep.ReleaseAt = ep.ReleaseAt.UTC()
	ep.CreatedAt = time.Now().UTC()

	res, err := db.ExecContext(ctx, `
		INSERT INTO episodes (title_id, number, dub, providers, title, description, image, release_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ep.TitleID, ep.Number, ep.Dub, ep.Providers, nullString(ep.Title), nullString(ep.Description), nullString(ep.Image), ep.ReleaseAt, ep.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Episode{}, fmt.Errorf("episode %s/%d (dub=%t): %w", ep.TitleID, ep.Number, ep.Dub, ErrConflict)
		}
		return Episode{}, err
	}
	ep.ID, err = res.LastInsertId()
	if err != nil {
		return Episode{}, err
	}
	return ep, nil
}

func (db *DB) FindEpisode(ctx context.Context, titleID string, number int, dub bool) (Episode, error) {
	row := db.QueryRowContext(ctx, "SELECT "+episodeColumns+" FROM episodes WHERE title_id = ? AND number = ? AND dub = ?", titleID, number, dub)
	ep, err := scanEpisode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Episode{}, fmt.Errorf("episode %s/%d (dub=%t): %w", titleID, number, dub, ErrNotFound)
	}
	return ep, err
}

func (db *DB) UpdateEpisodeProviders(ctx context.Context, id int64, providers string) error {
	res, err := db.ExecContext(ctx, "UPDATE episodes SET providers = ? WHERE id = ?", providers, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("episode %d: %w", id, ErrNotFound)
	}
	return nil
}

func (db *DB) ListEpisodes(ctx context.Context, titleID string) ([]Episode, error) {
	rows, err := db.QueryContext(ctx, "SELECT "+episodeColumns+" FROM episodes WHERE title_id = ? ORDER BY dub, number", titleID)
	if err != nil {
		return nil, err
	}
	return collectEpisodes(rows)
}

func (db *DB) CountEpisodes(ctx context.Context, titleID string, dub bool) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM episodes WHERE title_id = ? AND dub = ?", titleID, dub).Scan(&n)
	return n, err
}

// LastReleaseAt returns the newest release time stored for the title.
func (db *DB) LastReleaseAt(ctx context.Context, titleID string) (time.Time, bool, error) {
	var s sql.NullString
	if err := db.QueryRowContext(ctx, "SELECT CAST(MAX(release_at) AS TEXT) FROM episodes WHERE title_id = ?", titleID).Scan(&s); err != nil {
		return time.Time{}, false, err
	}
	return nullTime(s)
}

// ListSubscribedEpisodes lists episodes of the user's subscribed titles
// released in [from, to), newest first.
func (db *DB) ListSubscribedEpisodes(ctx context.Context, userID int64, from, to time.Time, limit int) ([]Episode, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `
		SELECT `+episodeColumns+`
		FROM episodes
		WHERE title_id IN (SELECT title_id FROM user_titles WHERE user_id = ?)
		  AND release_at >= ? AND release_at < ?
		ORDER BY release_at DESC
		LIMIT ?
	`, userID, from.UTC(), to.UTC(), limit)
	if err != nil {
		return nil, err
	}
	return collectEpisodes(rows)
}

func collectEpisodes(rows *sql.Rows) ([]Episode, error) {
	defer func() { _ = rows.Close() }()

	var eps []Episode
	for rows.Next() {
		ep, err := scanEpisode(rows)
		if err != nil {
			return nil, err
		}
		eps = append(eps, ep)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return eps, nil
}

func scanEpisode(r rowScanner) (Episode, error) {
	var ep Episode
	err := r.Scan(&ep.ID, &ep.TitleID, &ep.Number, &ep.Dub, &ep.Providers, &ep.Title, &ep.Description, &ep.Image, &ep.ReleaseAt, &ep.CreatedAt)
	return ep, err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
