// Pulseboard - Developer Time Tracking and Activity Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulseboard

package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/pulseboard/internal/models"
)

var errNoKey = errors.New("not found")

type countingStore struct {
	mu      sync.Mutex
	keys    map[string]int64
	lookups int
}

func (s *countingStore) AuthenticateAPIKey(_ context.Context, key string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups++
	id, ok := s.keys[key]
	if !ok {
		return nil, errNoKey
	}
	return &models.User{ID: id, APIKey: key}, nil
}

func (s *countingStore) SetAPIKey(_ context.Context, userID int64, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, id := range s.keys {
		if id == userID {
			delete(s.keys, k)
		}
	}
	s.keys[key] = userID
	return nil
}

func TestAPIKeys_CachesSuccessfulLookups(t *testing.T) {
	store := &countingStore{keys: map[string]int64{"pb_a": 7}}
	keys := NewAPIKeys(store, 10, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		user, err := keys.AuthenticateAPIKey(ctx, "pb_a")
		if err != nil || user.ID != 7 {
			t.Fatalf("AuthenticateAPIKey = %+v, %v", user, err)
		}
	}
	if store.lookups != 1 {
		t.Errorf("store lookups = %d, want 1", store.lookups)
	}

	for i := 0; i < 2; i++ {
		if _, err := keys.AuthenticateAPIKey(ctx, "pb_wrong"); !errors.Is(err, errNoKey) {
			t.Fatalf("wrong key error = %v", err)
		}
	}
	if store.lookups != 3 {
		t.Errorf("failed lookups must not be cached, store lookups = %d", store.lookups)
	}
}

func TestAPIKeys_RotationEvictsOldKey(t *testing.T) {
	store := &countingStore{keys: map[string]int64{"pb_old": 7, "pb_other": 8}}
	keys := NewAPIKeys(store, 10, time.Minute)
	ctx := context.Background()

	_, _ = keys.AuthenticateAPIKey(ctx, "pb_old")
	_, _ = keys.AuthenticateAPIKey(ctx, "pb_other")

	if err := keys.SetAPIKey(ctx, 7, "pb_new"); err != nil {
		t.Fatalf("SetAPIKey: %v", err)
	}

	if _, err := keys.AuthenticateAPIKey(ctx, "pb_old"); !errors.Is(err, errNoKey) {
		t.Errorf("rotated key still authenticates: %v", err)
	}
	if user, err := keys.AuthenticateAPIKey(ctx, "pb_new"); err != nil || user.ID != 7 {
		t.Errorf("new key = %+v, %v", user, err)
	}
	if _, ok := keys.lru.Get("pb_other"); !ok {
		t.Error("other user's cached key was evicted")
	}
}
