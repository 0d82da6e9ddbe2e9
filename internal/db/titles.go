package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const titleColumns = "id, title, status, total_episodes, created_at, updated_at"

func (db *DB) CreateTitle(ctx context.Context, t Title) error {
	now := time.Now().UTC()
	_, err := db.ExecContext(ctx, `
		INSERT INTO titles (id, title, status, total_episodes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, t.ID, t.Title, string(t.Status), t.TotalEpisodes, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("title %s: %w", t.ID, ErrConflict)
		}
		return err
	}
	return nil
}

func (db *DB) GetTitle(ctx context.Context, id string) (Title, error) {
	row := db.QueryRowContext(ctx, "SELECT "+titleColumns+" FROM titles WHERE id = ?", id)
	t, err := scanTitle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Title{}, fmt.Errorf("title %s: %w", id, ErrNotFound)
	}
	return t, err
}

func (db *DB) ListTitlesByStatus(ctx context.Context, status TitleStatus) ([]Title, error) {
	rows, err := db.QueryContext(ctx, "SELECT "+titleColumns+" FROM titles WHERE status = ? ORDER BY id", string(status))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var titles []Title
	for rows.Next() {
		t, err := scanTitle(rows)
		if err != nil {
			return nil, err
		}
		titles = append(titles, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return titles, nil
}

// UpdateTitle writes only the fields set in u.
func (db *DB) UpdateTitle(ctx context.Context, id string, u TitleUpdate) error {
	if u.Empty() {
		return nil
	}

	var sets []string
	var args []any
	if u.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *u.Title)
	}
	if u.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*u.Status))
	}
	if u.TotalEpisodes != nil {
		sets = append(sets, "total_episodes = ?")
		args = append(args, *u.TotalEpisodes)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC(), id)

	res, err := db.ExecContext(ctx, "UPDATE titles SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("title %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteTitlesByStatus removes every title with the given status. Episodes and
// subscriptions go with them through ON DELETE CASCADE.
func (db *DB) DeleteTitlesByStatus(ctx context.Context, status TitleStatus) (int64, error) {
	res, err := db.ExecContext(ctx, "DELETE FROM titles WHERE status = ?", string(status))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTitle(r rowScanner) (Title, error) {
	var t Title
	var status string
	if err := r.Scan(&t.ID, &t.Title, &status, &t.TotalEpisodes, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return Title{}, err
	}
	t.Status = TitleStatus(status)
	return t, nil
}
