// Pulseboard - Developer Time Tracking and Activity Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulseboard

package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tomtom215/pulseboard/internal/metrics"
	"github.com/tomtom215/pulseboard/internal/models"
)

const userColumns = `id, COALESCE(external_id, ''), provider, email, full_name, avatar_url,
	COALESCE(password_hash, ''), COALESCE(api_key, ''), api_key_last_used_at,
	subscription_status, subscription_id, created_at, updated_at`

// UserStore reads and writes the users table.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore creates a UserStore over pool.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID, &u.ExternalID, &u.Provider, &u.Email, &u.FullName, &u.AvatarURL,
		&u.PasswordHash, &u.APIKey, &u.APIKeyLastUsedAt,
		&u.SubscriptionStatus, &u.SubscriptionID, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// UpsertExternal creates the user on first sign-in with an identity provider,
// or refreshes its profile fields. created reports whether a row was inserted.
func (s *UserStore) UpsertExternal(ctx context.Context, p models.ExternalProfile) (user *models.User, created bool, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("postgres", "upsert_user", time.Since(start), err) }()

	const q = `INSERT INTO users (external_id, provider, email, full_name, avatar_url)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (provider, external_id) DO UPDATE SET
	email = EXCLUDED.email,
	full_name = EXCLUDED.full_name,
	avatar_url = EXCLUDED.avatar_url,
	updated_at = NOW()
RETURNING ` + userColumns + `, (xmax = 0) AS inserted`

	var u models.User
	err = s.pool.QueryRow(ctx, q,
		p.ExternalID, p.Provider, strings.ToLower(p.Email), p.FullName, p.AvatarURL,
	).Scan(
		&u.ID, &u.ExternalID, &u.Provider, &u.Email, &u.FullName, &u.AvatarURL,
		&u.PasswordHash, &u.APIKey, &u.APIKeyLastUsedAt,
		&u.SubscriptionStatus, &u.SubscriptionID, &u.CreatedAt, &u.UpdatedAt,
		&created,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, false, ErrEmailTaken
		}
		return nil, false, fmt.Errorf("upsert user: %w", err)
	}
	return &u, created, nil
}

// CreateLocal registers an email/password account. passwordHash must already
// be a bcrypt hash.
func (s *UserStore) CreateLocal(ctx context.Context, email, fullName, passwordHash string) (*models.User, error) {
	const q = `INSERT INTO users (provider, email, full_name, password_hash)
VALUES ($1, $2, $3, $4)
RETURNING ` + userColumns

	u, err := scanUser(s.pool.QueryRow(ctx, q, models.ProviderLocal, strings.ToLower(email), fullName, passwordHash))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create local user: %w", err)
	}
	return u, nil
}

// GetByID returns the user with id or ErrNotFound.
func (s *UserStore) GetByID(ctx context.Context, id int64) (*models.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// GetByEmail returns the user registered with email or ErrNotFound.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, strings.ToLower(email)))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

// AuthenticateAPIKey resolves the owner of key and stamps its last-used time.
// Keys are compared by exact match.
func (s *UserStore) AuthenticateAPIKey(ctx context.Context, key string) (user *models.User, err error) {
	if key == "" {
		return nil, ErrNotFound
	}

	start := time.Now()
	defer func() {
		if errors.Is(err, ErrNotFound) {
			metrics.RecordDBQuery("postgres", "authenticate_api_key", time.Since(start), nil)
			return
		}
		metrics.RecordDBQuery("postgres", "authenticate_api_key", time.Since(start), err)
	}()

	const q = `UPDATE users SET api_key_last_used_at = NOW()
WHERE api_key = $1
RETURNING ` + userColumns

	user, err = scanUser(s.pool.QueryRow(ctx, q, key))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("authenticate api key: %w", err)
	}
	return user, nil
}

// SetAPIKey replaces the user's API key.
func (s *UserStore) SetAPIKey(ctx context.Context, userID int64, key string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET api_key = $2, api_key_last_used_at = NULL, updated_at = NOW() WHERE id = $1`,
		userID, key)
	if err != nil {
		return fmt.Errorf("set api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
