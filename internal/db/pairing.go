package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrPairingInvalid is returned for unknown, used or expired pairing codes.
var ErrPairingInvalid = errors.New("pairing code is invalid or expired")

func (db *DB) CreatePairingCode(ctx context.Context, code string, userID int64, expiresAt time.Time) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO pairing_codes (code, user_id, expires_at, created_at)
		VALUES (?, ?, ?, ?)
	`, code, userID, expiresAt.UTC(), time.Now().UTC())
	if err != nil && isUniqueViolation(err) {
		return fmt.Errorf("pairing code %s: %w", code, ErrConflict)
	}
	return err
}

// RedeemPairingCode marks the code as used and links chatID to the user the
// code was issued for.
func (db *DB) RedeemPairingCode(ctx context.Context, code string, chatID int64) (User, error) {
	var user User
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var userID int64
		var usedAt sql.NullTime
		var expiresAt time.Time
		err := tx.QueryRowContext(ctx, `
			SELECT user_id, used_at, expires_at
			FROM pairing_codes
			WHERE code = ?
		`, code).Scan(&userID, &usedAt, &expiresAt)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrPairingInvalid
		}
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		if usedAt.Valid || now.After(expiresAt) {
			return ErrPairingInvalid
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE pairing_codes
			SET used_by_chat_id = ?, used_at = ?
			WHERE code = ?
		`, chatID, now, code); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "UPDATE users SET telegram_chat_id = ? WHERE id = ?", chatID, userID); err != nil {
			return err
		}

		user, err = scanUser(tx.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", userID))
		return err
	})
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// UnlinkTelegramChat clears chatID from every user it is linked to and
// reports how many were affected.
func (db *DB) UnlinkTelegramChat(ctx context.Context, chatID int64) (int64, error) {
	res, err := db.ExecContext(ctx, "UPDATE users SET telegram_chat_id = NULL WHERE telegram_chat_id = ?", chatID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
