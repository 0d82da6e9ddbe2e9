package db

// CreateTables creates the necessary tables in the database.
func (db *DB) CreateTables() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS titles (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			status TEXT NOT NULL,
			total_episodes INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);

		CREATE TABLE IF NOT EXISTS episodes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title_id TEXT NOT NULL,
			number INTEGER NOT NULL,
			dub INTEGER NOT NULL DEFAULT 0,
			providers TEXT NOT NULL,
			title TEXT,
			description TEXT,
			image TEXT,
			release_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP NOT NULL,
			FOREIGN KEY (title_id) REFERENCES titles (id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_episodes_release_at ON episodes(release_at);

		CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL UNIQUE,
			anilist_id TEXT,
			discord_webhook TEXT,
			ntfy_url TEXT,
			created_at TIMESTAMP NOT NULL
		);

		CREATE TABLE IF NOT EXISTS user_titles (
			user_id INTEGER NOT NULL,
			title_id TEXT NOT NULL,
			PRIMARY KEY (user_id, title_id),
			FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE,
			FOREIGN KEY (title_id) REFERENCES titles (id) ON DELETE CASCADE
		);

		CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS pairing_codes (
			code TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL,
			expires_at TIMESTAMP NOT NULL,
			used_by_chat_id INTEGER,
			used_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
		);

		CREATE TABLE IF NOT EXISTS system_status (
			key TEXT PRIMARY KEY,
			last_update TIMESTAMP
		);
	`)
	return err
}
