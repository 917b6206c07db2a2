package sqlite

import (
	"database/sql"
	"fmt"
)

const schemaUsers = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	is_guest      BOOLEAN NOT NULL DEFAULT 0,
	session_id    TEXT,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);`

const schemaSharedWatches = `
CREATE TABLE IF NOT EXISTS shared_watches (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	user_a     INTEGER NOT NULL,
	user_b     INTEGER NOT NULL,
	room_code  TEXT NOT NULL,
	source_url TEXT NOT NULL DEFAULT '',
	show       TEXT,
	episode    TEXT,
	stream_url TEXT NOT NULL DEFAULT '',
	watched_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	CHECK (user_a < user_b),
	FOREIGN KEY (user_a) REFERENCES users(id),
	FOREIGN KEY (user_b) REFERENCES users(id)
);`

const schemaSharedLibrary = `
CREATE TABLE IF NOT EXISTS shared_library (
	user_a     INTEGER NOT NULL,
	user_b     INTEGER NOT NULL,
	source_url TEXT NOT NULL,
	show       TEXT,
	status     TEXT NOT NULL CHECK (status IN ('plan_to_watch', 'watching', 'completed')),
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (user_a, user_b, source_url),
	CHECK (user_a < user_b),
	FOREIGN KEY (user_a) REFERENCES users(id),
	FOREIGN KEY (user_b) REFERENCES users(id)
);`

const schemaIndexes = `
CREATE INDEX IF NOT EXISTS idx_shared_watches_a ON shared_watches(user_a, watched_at DESC);
CREATE INDEX IF NOT EXISTS idx_shared_watches_b ON shared_watches(user_b, watched_at DESC);
CREATE INDEX IF NOT EXISTS idx_shared_library_b ON shared_library(user_b);`

const schemaMigrations = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY
);`

type migration struct {
	version    int
	statements []string
}

var migrations = []migration{
	{
		version:    1,
		statements: []string{schemaUsers},
	},
	{
		version:    2,
		statements: []string{schemaSharedWatches, schemaSharedLibrary, schemaIndexes},
	},
}

// Migrate brings db up to the latest schema version. It is safe to run on
// every start.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(schemaMigrations); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := applyMigration(db, m); err != nil {
			return err
		}
	}
	return nil
}

func applyMigration(db *sql.DB, m migration) (err error) {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("start migration %d: %w", m.version, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, stmt := range m.statements {
		if _, err = tx.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d: %w", m.version, err)
		}
	}
	if _, err = tx.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, m.version); err != nil {
		return fmt.Errorf("record migration %d: %w", m.version, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", m.version, err)
	}
	return nil
}
