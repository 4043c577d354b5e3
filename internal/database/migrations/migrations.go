package migrations

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Migration represents one schema version. Migrations are embedded in the
// binary so a deployed crawler needs no assets directory.
type Migration struct {
	Version int
	Up      string
}

// All lists every schema migration in order.
var All = []Migration{
	{
		Version: 1,
		Up: `
CREATE TABLE IF NOT EXISTS seen_records (
	fingerprint   TEXT PRIMARY KEY,
	source_id     TEXT NOT NULL,
	first_seen_at DATETIME NOT NULL,
	last_seen_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_seen_records_last_seen ON seen_records(last_seen_at);

CREATE TABLE IF NOT EXISTS items (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	fingerprint  TEXT NOT NULL UNIQUE,
	source_id    TEXT NOT NULL,
	title        TEXT NOT NULL,
	url          TEXT NOT NULL,
	summary      TEXT NOT NULL DEFAULT '',
	published_at DATETIME,
	created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_items_created_at ON items(created_at);
`,
	},
	{
		Version: 2,
		Up: `
CREATE TABLE IF NOT EXISTS cycle_reports (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	cycle_id        INTEGER NOT NULL,
	started_at      DATETIME NOT NULL,
	finished_at     DATETIME NOT NULL,
	sources_ok      INTEGER NOT NULL,
	sources_failed  INTEGER NOT NULL,
	items_accepted  INTEGER NOT NULL,
	items_duplicate INTEGER NOT NULL,
	outcomes        TEXT NOT NULL
);
`,
	},
}

// Run executes all pending migrations.
func Run(db *sql.DB, migrations []Migration) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.Query("SELECT version FROM migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate applied migrations: %w", err)
	}

	for _, migration := range migrations {
		if applied[migration.Version] {
			log.Debug().
				Int("version", migration.Version).
				Msg("Migration already applied, skipping")
			continue
		}

		log.Info().
			Int("version", migration.Version).
			Msg("Running migration")

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}

		if _, err := tx.Exec(migration.Up); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.Exec("INSERT INTO migrations (version) VALUES (?)", migration.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
