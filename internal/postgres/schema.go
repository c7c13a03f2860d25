// Pulseboard - Developer Time Tracking and Activity Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulseboard

package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tomtom215/pulseboard/internal/logging"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
	id BIGSERIAL PRIMARY KEY,
	external_id TEXT,
	provider TEXT NOT NULL,
	email TEXT NOT NULL UNIQUE,
	full_name TEXT NOT NULL DEFAULT '',
	avatar_url TEXT NOT NULL DEFAULT '',
	password_hash TEXT,
	api_key TEXT UNIQUE,
	api_key_last_used_at TIMESTAMPTZ,
	subscription_status TEXT NOT NULL DEFAULT '',
	subscription_id TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (provider, external_id)
)`,
	`CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	user_id BIGINT NOT NULL REFERENCES users(id),
	refresh_id TEXT NOT NULL UNIQUE,
	device_name TEXT NOT NULL DEFAULT 'Unknown',
	device_type TEXT NOT NULL DEFAULT 'Unknown',
	browser TEXT NOT NULL DEFAULT 'Unknown',
	os TEXT NOT NULL DEFAULT 'Unknown',
	ip_address TEXT NOT NULL DEFAULT '',
	last_active TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	expires_at TIMESTAMPTZ NOT NULL,
	revoked BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_user_active ON sessions (user_id, last_active DESC) WHERE revoked = FALSE`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_expiry ON sessions (expires_at) WHERE revoked = FALSE`,
	`CREATE TABLE IF NOT EXISTS billing_webhooks (
	id TEXT PRIMARY KEY,
	event_type TEXT NOT NULL,
	payload JSONB NOT NULL,
	received_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
}

// Migrate creates the relational schema. It is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	logging.Info().Int("statements", len(schemaStatements)).Msg("Postgres schema created/verified")
	return nil
}
