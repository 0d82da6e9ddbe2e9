package db

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

const taskKeyPrefix = "task:"

// UpdateTaskLastRun records when a scheduled task last finished.
func (db *DB) UpdateTaskLastRun(ctx context.Context, task string, at time.Time) error {
	_, err := db.ExecContext(ctx, "INSERT OR REPLACE INTO system_status (key, last_update) VALUES (?, ?)",
		taskKeyPrefix+task, at.UTC())
	return err
}

func (db *DB) GetStatus(ctx context.Context) (Status, error) {
	var s Status

	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM titles").Scan(&s.TitleCount); err != nil {
		return Status{}, err
	}
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM titles WHERE status = ?", string(StatusReleasing)).Scan(&s.ReleasingCount); err != nil {
		return Status{}, err
	}
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM episodes").Scan(&s.EpisodeCount); err != nil {
		return Status{}, err
	}
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&s.UserCount); err != nil {
		return Status{}, err
	}
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM user_titles").Scan(&s.SubscriptionCount); err != nil {
		return Status{}, err
	}

	rows, err := db.QueryContext(ctx, "SELECT key, last_update FROM system_status WHERE key LIKE ? ORDER BY key", taskKeyPrefix+"%")
	if err != nil {
		return Status{}, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var key string
		var lastRun sql.NullTime
		if err := rows.Scan(&key, &lastRun); err != nil {
			return Status{}, err
		}
		ts := TaskStatus{Name: strings.TrimPrefix(key, taskKeyPrefix)}
		if lastRun.Valid {
			ts.LastRun = lastRun.Time
		}
		s.Tasks = append(s.Tasks, ts)
	}
	if err := rows.Err(); err != nil {
		return Status{}, err
	}
	return s, nil
}
