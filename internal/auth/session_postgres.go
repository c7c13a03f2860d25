// Pulseboard - Developer Time Tracking and Activity Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulseboard

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tomtom215/pulseboard/internal/metrics"
	"github.com/tomtom215/pulseboard/internal/models"
)

const sessionColumns = `id, user_id, refresh_id, device_name, device_type, browser, os,
	ip_address, last_active, expires_at, revoked, created_at`

// PostgresSessionStore is the production SessionStore over the sessions table.
type PostgresSessionStore struct {
	pool *pgxpool.Pool
	opts sessionOptions
}

// NewPostgresSessionStore creates a store over pool. The schema is created by
// postgres.Migrate.
func NewPostgresSessionStore(pool *pgxpool.Pool, opts ...SessionOption) *PostgresSessionStore {
	return &PostgresSessionStore{pool: pool, opts: defaultSessionOptions(opts)}
}

func scanSession(row pgx.Row) (*models.Session, error) {
	var s models.Session
	err := row.Scan(&s.ID, &s.UserID, &s.RefreshID, &s.DeviceName, &s.DeviceType, &s.Browser, &s.OS,
		&s.IPAddress, &s.LastActive, &s.ExpiresAt, &s.Revoked, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func observe(op string, start time.Time, errp *error) {
	err := *errp
	if errors.Is(err, ErrSessionNotFound) {
		err = nil
	}
	metrics.RecordDBQuery("postgres", op, time.Since(start), err)
}

// CreateSession inserts a new session row.
func (s *PostgresSessionStore) CreateSession(ctx context.Context, in NewSession) (id string, err error) {
	defer observe("create_session", time.Now(), &err)

	device := in.Device.Normalize()
	id = uuid.NewString()
	now := s.opts.now()

	const q = `INSERT INTO sessions (id, user_id, refresh_id, device_name, device_type, browser, os,
	ip_address, last_active, expires_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $9)`

	_, err = s.pool.Exec(ctx, q, id, in.UserID, in.RefreshID,
		device.DeviceName, device.DeviceType, device.Browser, device.OS,
		in.IPAddress, now, in.ExpiresAt)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return id, nil
}

// FindExistingSession tries an exact device match, then a family match.
func (s *PostgresSessionStore) FindExistingSession(ctx context.Context, userID int64, device models.DeviceInfo, ip string) (_ *models.Session, err error) {
	defer observe("find_session", time.Now(), &err)

	device = device.Normalize()
	now := s.opts.now()

	const exactQ = `SELECT ` + sessionColumns + ` FROM sessions
WHERE user_id = $1 AND browser = $2 AND os = $3 AND device_type = $4 AND ip_address = $5
  AND revoked = FALSE AND expires_at > $6
ORDER BY last_active DESC
LIMIT 1`

	sess, err := scanSession(s.pool.QueryRow(ctx, exactQ, userID, device.Browser, device.OS, device.DeviceType, ip, now))
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("find exact session: %w", err)
	}
	if !s.opts.looseMatch {
		return nil, nil
	}

	// Family comparison happens in Go so it shares one definition with the memory store.
	const looseQ = `SELECT ` + sessionColumns + ` FROM sessions
WHERE user_id = $1 AND device_type = $2 AND revoked = FALSE AND expires_at > $3
ORDER BY last_active DESC`

	rows, err := s.pool.Query(ctx, looseQ, userID, device.DeviceType, now)
	if err != nil {
		return nil, fmt.Errorf("find loose session: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		cand, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if familyDeviceMatch(cand, device) {
			return cand, nil
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return nil, nil
}

// UpdateSessionToken rotates the refresh id of an active session.
func (s *PostgresSessionStore) UpdateSessionToken(ctx context.Context, sessionID, newRefreshID string, newExpiresAt time.Time) (_ bool, err error) {
	defer observe("update_session_token", time.Now(), &err)

	const q = `UPDATE sessions SET refresh_id = $2, expires_at = $3, last_active = $4
WHERE id = $1 AND revoked = FALSE AND expires_at > $4`

	tag, err := s.pool.Exec(ctx, q, sessionID, newRefreshID, newExpiresAt, s.opts.now())
	if err != nil {
		return false, fmt.Errorf("update session token: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresSessionStore) getActive(ctx context.Context, column, value string) (*models.Session, error) {
	q := `SELECT ` + sessionColumns + ` FROM sessions WHERE ` + column + ` = $1 AND revoked = FALSE AND expires_at > $2`
	sess, err := scanSession(s.pool.QueryRow(ctx, q, value, s.opts.now()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// GetSessionByID returns an active session or ErrSessionNotFound.
func (s *PostgresSessionStore) GetSessionByID(ctx context.Context, id string) (_ *models.Session, err error) {
	defer observe("get_session", time.Now(), &err)
	return s.getActive(ctx, "id", id)
}

// GetSessionByRefreshID returns the active session holding refreshID.
func (s *PostgresSessionStore) GetSessionByRefreshID(ctx context.Context, refreshID string) (_ *models.Session, err error) {
	defer observe("get_session_by_refresh", time.Now(), &err)
	return s.getActive(ctx, "refresh_id", refreshID)
}

// ListActiveSessions returns the user's active sessions, newest activity first.
func (s *PostgresSessionStore) ListActiveSessions(ctx context.Context, userID int64) (_ []*models.Session, err error) {
	defer observe("list_sessions", time.Now(), &err)

	const q = `SELECT ` + sessionColumns + ` FROM sessions
WHERE user_id = $1 AND revoked = FALSE AND expires_at > $2
ORDER BY last_active DESC`

	rows, err := s.pool.Query(ctx, q, userID, s.opts.now())
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Session, 0)
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

// TouchActivity bumps last_active of an active session.
func (s *PostgresSessionStore) TouchActivity(ctx context.Context, sessionID string) (err error) {
	defer observe("touch_session", time.Now(), &err)

	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET last_active = $2 WHERE id = $1 AND revoked = FALSE AND expires_at > $2`,
		sessionID, s.opts.now())
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Revoke revokes sessionID if it is unrevoked and owned by userID.
func (s *PostgresSessionStore) Revoke(ctx context.Context, sessionID string, userID int64) (_ bool, err error) {
	defer observe("revoke_session", time.Now(), &err)

	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET revoked = TRUE WHERE id = $1 AND user_id = $2 AND revoked = FALSE`,
		sessionID, userID)
	if err != nil {
		return false, fmt.Errorf("revoke session: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// RevokeAllExcept revokes the user's other active sessions.
func (s *PostgresSessionStore) RevokeAllExcept(ctx context.Context, userID int64, keepSessionID string) (_ int64, err error) {
	defer observe("revoke_other_sessions", time.Now(), &err)

	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET revoked = TRUE WHERE user_id = $1 AND id <> $2 AND revoked = FALSE AND expires_at > $3`,
		userID, keepSessionID, s.opts.now())
	if err != nil {
		return 0, fmt.Errorf("revoke other sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// SweepExpired revokes sessions past their expiry.
func (s *PostgresSessionStore) SweepExpired(ctx context.Context) (_ int64, err error) {
	defer observe("sweep_sessions", time.Now(), &err)

	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET revoked = TRUE WHERE revoked = FALSE AND expires_at <= $1`, s.opts.now())
	if err != nil {
		return 0, fmt.Errorf("sweep expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
