// Pulseboard - Developer Time Tracking and Activity Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulseboard

package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/pulseboard/internal/logging"
	"github.com/tomtom215/pulseboard/internal/metrics"
)

var auditSchema = []string{
	`CREATE TABLE IF NOT EXISTS auth_logs (
		id UUID PRIMARY KEY,
		timestamp TIMESTAMP NOT NULL,
		user_id BIGINT NOT NULL,
		email TEXT,
		success BOOLEAN NOT NULL,
		ip_address TEXT,
		user_agent TEXT,
		device_type TEXT,
		browser TEXT,
		os TEXT,
		country TEXT,
		provider TEXT,
		session_id TEXT,
		event_type TEXT,
		error_message TEXT,
		metadata TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_auth_logs_user_time ON auth_logs(user_id, timestamp)`,
	`CREATE TABLE IF NOT EXISTS session_events (
		id UUID PRIMARY KEY,
		timestamp TIMESTAMP NOT NULL,
		user_id BIGINT NOT NULL,
		session_id TEXT,
		event_type TEXT NOT NULL,
		provider TEXT,
		ip_address TEXT,
		device_type TEXT,
		browser TEXT,
		os TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_session_events_session ON session_events(session_id)`,
	`CREATE TABLE IF NOT EXISTS api_key_events (
		id UUID PRIMARY KEY,
		timestamp TIMESTAMP NOT NULL,
		user_id BIGINT NOT NULL,
		ip_address TEXT,
		user_agent TEXT,
		path TEXT
	)`,
}

const (
	insertAuthLogSQL = `INSERT INTO auth_logs (
		id, timestamp, user_id, email, success, ip_address, user_agent,
		device_type, browser, os, country, provider, session_id, event_type,
		error_message, metadata
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	insertSessionEventSQL = `INSERT INTO session_events (
		id, timestamp, user_id, session_id, event_type, provider,
		ip_address, device_type, browser, os
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	insertAPIKeyEventSQL = `INSERT INTO api_key_events (
		id, timestamp, user_id, ip_address, user_agent, path
	) VALUES (?, ?, ?, ?, ?, ?)`
)

// DuckDBStore writes audit events to the analytical store.
type DuckDBStore struct {
	db *sql.DB
}

// NewDuckDBStore creates the audit tables on db and returns a store.
func NewDuckDBStore(ctx context.Context, db *sql.DB) (*DuckDBStore, error) {
	for _, stmt := range auditSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to create audit schema: %w", err)
		}
	}
	return &DuckDBStore{db: db}, nil
}

// nullable maps "" to NULL so optional columns stay empty rather than ''.
func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// InsertBatch writes all events in one transaction through prepared statements.
func (s *DuckDBStore) InsertBatch(ctx context.Context, events []*Event) (err error) {
	if len(events) == 0 {
		return nil
	}

	start := time.Now()
	defer func() { metrics.RecordDBQuery("duckdb", "insert_audit_batch", time.Since(start), err) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logging.Error().Err(rbErr).AnErr("original_error", err).Msg("Transaction rollback failed")
			}
		}
	}()

	stmts := make(map[string]*sql.Stmt, 3)
	defer func() {
		for _, st := range stmts {
			if cerr := st.Close(); cerr != nil {
				logging.Warn().Err(cerr).Msg("Failed to close prepared statement")
			}
		}
	}()
	prepare := func(query string) (*sql.Stmt, error) {
		if st, ok := stmts[query]; ok {
			return st, nil
		}
		st, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("failed to prepare statement: %w", err)
		}
		stmts[query] = st
		return st, nil
	}

	for i, e := range events {
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		ts := e.Timestamp.UTC()

		if e.Kind == KindAPIKey {
			st, perr := prepare(insertAPIKeyEventSQL)
			if perr != nil {
				return perr
			}
			if _, err = st.ExecContext(ctx, e.ID.String(), ts, e.UserID,
				nullable(e.IPAddress), nullable(e.UserAgent), nullable(e.Path)); err != nil {
				return fmt.Errorf("failed to insert api key event %d: %w", i, err)
			}
			continue
		}

		var metadata sql.NullString
		if len(e.Metadata) > 0 {
			b, merr := json.Marshal(e.Metadata)
			if merr != nil {
				return fmt.Errorf("failed to encode metadata for event %d: %w", i, merr)
			}
			metadata = sql.NullString{String: string(b), Valid: true}
		}

		st, perr := prepare(insertAuthLogSQL)
		if perr != nil {
			return perr
		}
		if _, err = st.ExecContext(ctx, e.ID.String(), ts, e.UserID, nullable(e.Email), e.Success,
			nullable(e.IPAddress), nullable(e.UserAgent), nullable(e.DeviceType), nullable(e.Browser),
			nullable(e.OS), nullable(e.Country), nullable(e.Provider), nullable(e.SessionID),
			nullable(string(e.EventType)), nullable(e.ErrorMessage), metadata); err != nil {
			return fmt.Errorf("failed to insert auth log %d: %w", i, err)
		}

		if e.EventType.IsSessionLifecycle() {
			st, perr := prepare(insertSessionEventSQL)
			if perr != nil {
				return perr
			}
			if _, err = st.ExecContext(ctx, uuid.NewString(), ts, e.UserID, nullable(e.SessionID),
				string(e.EventType), nullable(e.Provider), nullable(e.IPAddress),
				nullable(e.DeviceType), nullable(e.Browser), nullable(e.OS)); err != nil {
				return fmt.Errorf("failed to insert session event %d: %w", i, err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit audit batch: %w", err)
	}
	return nil
}

// GetStats returns per-day counts for userID between start and end inclusive.
func (s *DuckDBStore) GetStats(ctx context.Context, userID int64, start, end time.Time) (_ []DailyStats, err error) {
	t0 := time.Now()
	defer func() { metrics.RecordDBQuery("duckdb", "audit_stats", time.Since(t0), err) }()

	const q = `SELECT
		CAST(timestamp AS DATE) AS day,
		COUNT(*) AS total,
		COUNT(*) FILTER (WHERE success) AS successes,
		COUNT(*) FILTER (WHERE NOT success) AS failures,
		COUNT(DISTINCT NULLIF(ip_address, '')) AS unique_ips,
		COUNT(DISTINCT NULLIF(country, '')) AS unique_countries,
		COUNT(DISTINCT NULLIF(device_type, '')) AS unique_device_types
	FROM auth_logs
	WHERE user_id = ? AND timestamp >= ? AND timestamp <= ?
	GROUP BY day
	ORDER BY day`

	rows, err := s.db.QueryContext(ctx, q, userID, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query audit stats: %w", err)
	}
	defer rows.Close()

	out := make([]DailyStats, 0)
	for rows.Next() {
		var d DailyStats
		if err := rows.Scan(&d.Day, &d.Total, &d.Successes, &d.Failures,
			&d.UniqueIPs, &d.UniqueCountries, &d.UniqueDeviceTypes); err != nil {
			return nil, fmt.Errorf("failed to scan audit stats: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit stats: %w", err)
	}
	return out, nil
}

// GetRecentEvents returns the user's newest auth log entries.
func (s *DuckDBStore) GetRecentEvents(ctx context.Context, userID int64, limit int) (_ []*Event, err error) {
	t0 := time.Now()
	defer func() { metrics.RecordDBQuery("duckdb", "audit_recent", time.Since(t0), err) }()

	const q = `SELECT CAST(id AS VARCHAR), timestamp, user_id,
		COALESCE(email, ''), success, COALESCE(ip_address, ''), COALESCE(user_agent, ''),
		COALESCE(device_type, ''), COALESCE(browser, ''), COALESCE(os, ''), COALESCE(country, ''),
		COALESCE(provider, ''), COALESCE(session_id, ''), COALESCE(event_type, ''),
		COALESCE(error_message, ''), metadata
	FROM auth_logs
	WHERE user_id = ?
	ORDER BY timestamp DESC
	LIMIT ?`

	rows, err := s.db.QueryContext(ctx, q, userID, ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query recent audit events: %w", err)
	}
	defer rows.Close()

	out := make([]*Event, 0)
	for rows.Next() {
		var (
			e        Event
			id       string
			eventTyp string
			metadata sql.NullString
		)
		if err := rows.Scan(&id, &e.Timestamp, &e.UserID, &e.Email, &e.Success, &e.IPAddress,
			&e.UserAgent, &e.DeviceType, &e.Browser, &e.OS, &e.Country, &e.Provider,
			&e.SessionID, &eventTyp, &e.ErrorMessage, &metadata); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		e.ID, _ = uuid.Parse(id)
		e.EventType = EventType(eventTyp)
		if metadata.Valid && metadata.String != "" {
			if jerr := json.Unmarshal([]byte(metadata.String), &e.Metadata); jerr != nil {
				logging.Warn().Err(jerr).Str("event_id", id).Msg("Failed to decode audit metadata")
			}
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit events: %w", err)
	}
	return out, nil
}
