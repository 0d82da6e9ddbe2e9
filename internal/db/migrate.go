package db

func (db *DB) Migrate() error {
	hasTelegramChatID, err := db.hasColumn("users", "telegram_chat_id")
	if err != nil {
		return err
	}
	if !hasTelegramChatID {
		if _, err := db.Exec("ALTER TABLE users ADD COLUMN telegram_chat_id INTEGER"); err != nil {
			return err
		}
	}

	hasEpisodeImage, err := db.hasColumn("episodes", "image")
	if err != nil {
		return err
	}
	if !hasEpisodeImage {
		if _, err := db.Exec("ALTER TABLE episodes ADD COLUMN image TEXT"); err != nil {
			return err
		}
	}

	// Collapse legacy duplicates before adding the unique index. The first row
	// per (title_id, number, dub) wins and inherits every provider seen on the
	// rows that are removed.
	if _, err := db.Exec(`
		UPDATE episodes
		SET providers = (
			SELECT GROUP_CONCAT(DISTINCT e2.providers)
			FROM episodes e2
			WHERE e2.title_id = episodes.title_id AND e2.number = episodes.number AND e2.dub = episodes.dub
		)
		WHERE id IN (
			SELECT MIN(id)
			FROM episodes
			GROUP BY title_id, number, dub
			HAVING COUNT(*) > 1
		)
	`); err != nil {
		return err
	}
	if _, err := db.Exec(`
		DELETE FROM episodes
		WHERE id NOT IN (
			SELECT MIN(id)
			FROM episodes
			GROUP BY title_id, number, dub
		)
	`); err != nil {
		return err
	}

	if _, err := db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS idx_episodes_title_number_dub ON episodes(title_id, number, dub)"); err != nil {
		return err
	}

	return nil
}

func (db *DB) hasColumn(tableName, columnName string) (bool, error) {
	rows, err := db.Query("PRAGMA table_info(" + tableName + ")")
	if err != nil {
		return false, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var cid int
		var name string
		var ctype string
		var notNull int
		var dfltValue any
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if name == columnName {
			return true, nil
		}
	}
	if err := rows.Err(); err != nil {
		return false, err
	}
	return false, nil
}
