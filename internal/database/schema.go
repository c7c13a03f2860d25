// Pulseboard - Developer Time Tracking and Activity Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulseboard

package database

import (
	"context"
	"fmt"
)

// Audit tables are created by audit.DuckDBStore; this schema covers activity data.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS pulses (
		id UUID PRIMARY KEY,
		user_id BIGINT NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		duration_seconds DOUBLE NOT NULL DEFAULT 0,
		project TEXT NOT NULL DEFAULT '',
		language TEXT NOT NULL DEFAULT '',
		machine TEXT NOT NULL DEFAULT '',
		editor TEXT NOT NULL DEFAULT '',
		entity TEXT NOT NULL DEFAULT '',
		branch TEXT NOT NULL DEFAULT '',
		is_write BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pulses_user_time ON pulses(user_id, timestamp)`,
}

func (db *DB) createTables(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}
