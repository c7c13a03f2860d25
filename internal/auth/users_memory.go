// Pulseboard - Developer Time Tracking and Activity Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulseboard

package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/pulseboard/internal/models"
	"github.com/tomtom215/pulseboard/internal/postgres"
)

// MemoryUserStore is an in-memory user repository with the same error
// contract as postgres.UserStore. It is used by tests.
type MemoryUserStore struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]*models.User
}

// NewMemoryUserStore creates an empty store.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{users: make(map[int64]*models.User)}
}

// UpsertExternal implements UserStore.
func (m *MemoryUserStore) UpsertExternal(_ context.Context, p models.ExternalProfile) (*models.User, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	email := strings.ToLower(p.Email)
	now := time.Now().UTC()
	for _, u := range m.users {
		if u.Provider == p.Provider && u.ExternalID == p.ExternalID {
			u.Email, u.FullName, u.AvatarURL, u.UpdatedAt = email, p.FullName, p.AvatarURL, now
			c := *u
			return &c, false, nil
		}
		if email != "" && u.Email == email {
			return nil, false, postgres.ErrEmailTaken
		}
	}

	m.nextID++
	u := &models.User{
		ID:         m.nextID,
		ExternalID: p.ExternalID,
		Provider:   p.Provider,
		Email:      email,
		FullName:   p.FullName,
		AvatarURL:  p.AvatarURL,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	m.users[u.ID] = u
	c := *u
	return &c, true, nil
}

// CreateLocal implements UserStore.
func (m *MemoryUserStore) CreateLocal(_ context.Context, email, fullName, passwordHash string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	email = strings.ToLower(email)
	for _, u := range m.users {
		if u.Email == email {
			return nil, postgres.ErrEmailTaken
		}
	}
	m.nextID++
	now := time.Now().UTC()
	u := &models.User{
		ID:           m.nextID,
		Provider:     models.ProviderLocal,
		Email:        email,
		FullName:     fullName,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.users[u.ID] = u
	c := *u
	return &c, nil
}

// GetByID implements UserLookup.
func (m *MemoryUserStore) GetByID(_ context.Context, id int64) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, postgres.ErrNotFound
	}
	c := *u
	return &c, nil
}

// GetByEmail implements UserStore.
func (m *MemoryUserStore) GetByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	email = strings.ToLower(email)
	for _, u := range m.users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, postgres.ErrNotFound
}

// AuthenticateAPIKey implements APIKeyAuthenticator.
func (m *MemoryUserStore) AuthenticateAPIKey(_ context.Context, key string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if key == "" {
		return nil, postgres.ErrNotFound
	}
	for _, u := range m.users {
		if u.APIKey == key {
			now := time.Now().UTC()
			u.APIKeyLastUsedAt = &now
			c := *u
			return &c, nil
		}
	}
	return nil, postgres.ErrNotFound
}

// SetAPIKey replaces the user's API key.
func (m *MemoryUserStore) SetAPIKey(_ context.Context, userID int64, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return postgres.ErrNotFound
	}
	u.APIKey = key
	u.APIKeyLastUsedAt = nil
	return nil
}
