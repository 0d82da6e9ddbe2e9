package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const userColumns = "id, username, COALESCE(anilist_id, ''), COALESCE(discord_webhook, ''), COALESCE(ntfy_url, ''), COALESCE(telegram_chat_id, 0), created_at"

func (db *DB) CreateUser(ctx context.Context, u User) (User, error) {
	u.CreatedAt = time.Now().UTC()
	var chatID sql.NullInt64
	if u.TelegramChatID != 0 {
		chatID = sql.NullInt64{Int64: u.TelegramChatID, Valid: true}
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO users (username, anilist_id, discord_webhook, ntfy_url, telegram_chat_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, u.Username, nullString(u.AniListID), nullString(u.DiscordWebhook), nullString(u.NtfyURL), chatID, u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, fmt.Errorf("user %s: %w", u.Username, ErrConflict)
		}
		return User{}, err
	}
	u.ID, err = res.LastInsertId()
	if err != nil {
		return User{}, err
	}
	return u, nil
}

func (db *DB) GetUserByUsername(ctx context.Context, username string) (User, error) {
	row := db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE username = ?", username)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("user %s: %w", username, ErrNotFound)
	}
	return u, err
}

// ListUsersWithAniList returns every user that linked an AniList account.
func (db *DB) ListUsersWithAniList(ctx context.Context) ([]User, error) {
	rows, err := db.QueryContext(ctx, "SELECT "+userColumns+" FROM users WHERE anilist_id IS NOT NULL AND anilist_id != '' ORDER BY id")
	if err != nil {
		return nil, err
	}
	return collectUsers(rows)
}

func (db *DB) SetUserAniListID(ctx context.Context, userID int64, aniListID string) error {
	_, err := db.ExecContext(ctx, "UPDATE users SET anilist_id = ? WHERE id = ?", nullString(aniListID), userID)
	return err
}

// Subscribe links the user to the title. Subscribing twice is a no-op.
func (db *DB) Subscribe(ctx context.Context, userID int64, titleID string) error {
	_, err := db.ExecContext(ctx, "INSERT OR IGNORE INTO user_titles (user_id, title_id) VALUES (?, ?)", userID, titleID)
	return err
}

func (db *DB) SubscribedTitleIDs(ctx context.Context, userID int64) ([]string, error) {
	rows, err := db.QueryContext(ctx, "SELECT title_id FROM user_titles WHERE user_id = ? ORDER BY title_id", userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

// ListSubscribers returns the users subscribed to the title.
func (db *DB) ListSubscribers(ctx context.Context, titleID string) ([]User, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id IN (SELECT user_id FROM user_titles WHERE title_id = ?)
		ORDER BY id
	`, titleID)
	if err != nil {
		return nil, err
	}
	return collectUsers(rows)
}

func collectUsers(rows *sql.Rows) ([]User, error) {
	defer func() { _ = rows.Close() }()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func scanUser(r rowScanner) (User, error) {
	var u User
	err := r.Scan(&u.ID, &u.Username, &u.AniListID, &u.DiscordWebhook, &u.NtfyURL, &u.TelegramChatID, &u.CreatedAt)
	return u, err
}
