// SPDX-License-Identifier: AGPL-3.0-only
package scenario

import (
	"database/sql"
	"fmt"
)

// migrations are applied in order; user_version tracks the last applied index.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS rows (
		table_name TEXT NOT NULL,
		row_id     TEXT NOT NULL,
		cells      TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (table_name, row_id)
	)`,
	`CREATE TABLE IF NOT EXISTS allocator (
		id           INTEGER PRIMARY KEY CHECK (id = 1),
		letter_index INTEGER NOT NULL,
		number       INTEGER NOT NULL
	)`,
	`INSERT OR IGNORE INTO allocator (id, letter_index, number) VALUES (1, 0, 1)`,
}

func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for i := version; i < len(migrations); i++ {
		if _, err := db.Exec(migrations[i]); err != nil {
			return fmt.Errorf("apply migration %d: %w", i+1, err)
		}
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			return fmt.Errorf("bump schema version: %w", err)
		}
	}
	return nil
}
