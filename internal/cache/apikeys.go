// Pulseboard - Developer Time Tracking and Activity Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulseboard

package cache

import (
	"context"
	"time"

	"github.com/tomtom215/pulseboard/internal/metrics"
	"github.com/tomtom215/pulseboard/internal/models"
)

// APIKeyStore is the user store surface needed to authenticate and rotate
// API keys.
type APIKeyStore interface {
	AuthenticateAPIKey(ctx context.Context, key string) (*models.User, error)
	SetAPIKey(ctx context.Context, userID int64, key string) error
}

// APIKeys caches successful API key lookups in front of an APIKeyStore.
// Failed lookups always reach the store. Rotating a user's key through
// SetAPIKey evicts the old key immediately.
//
// While an entry is cached the store's last-used timestamp is not
// refreshed, so its resolution becomes the cache TTL.
type APIKeys struct {
	store APIKeyStore
	lru   *LRU[models.User]
}

// NewAPIKeys wraps store with a cache of capacity entries living ttl.
func NewAPIKeys(store APIKeyStore, capacity int, ttl time.Duration) *APIKeys {
	return &APIKeys{store: store, lru: NewLRU[models.User](capacity, ttl)}
}

// AuthenticateAPIKey resolves key from cache or the store.
func (a *APIKeys) AuthenticateAPIKey(ctx context.Context, key string) (*models.User, error) {
	if user, ok := a.lru.Get(key); ok {
		metrics.RecordAPIKeyCacheLookup(true)
		return &user, nil
	}
	metrics.RecordAPIKeyCacheLookup(false)

	user, err := a.store.AuthenticateAPIKey(ctx, key)
	if err != nil {
		return nil, err
	}
	a.lru.Add(key, *user)
	return user, nil
}

// SetAPIKey stores the new key and evicts any cached key of the user.
func (a *APIKeys) SetAPIKey(ctx context.Context, userID int64, key string) error {
	a.Forget(userID)
	if err := a.store.SetAPIKey(ctx, userID, key); err != nil {
		return err
	}
	// A lookup racing with the update may have re-cached the old key.
	a.Forget(userID)
	return nil
}

// Forget evicts every cached key owned by userID.
func (a *APIKeys) Forget(userID int64) int {
	return a.lru.RemoveFunc(func(_ string, u models.User) bool {
		return u.ID == userID
	})
}
