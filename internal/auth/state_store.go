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

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/pulseboard/internal/logging"
)

// ErrStateNotFound is returned for an unknown, consumed or expired OAuth state.
var ErrStateNotFound = errors.New("oauth state not found")

const stateKeyPrefix = "oauth_state:"

// StateData is what a login redirect needs to remember until the callback.
type StateData struct {
	Provider     string    `json:"provider"`
	CodeVerifier string    `json:"code_verifier"`
	Redirect     string    `json:"redirect,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// StateStore holds OAuth state between the login redirect and the callback.
type StateStore interface {
	Put(ctx context.Context, key string, state *StateData) error
	// Consume returns and deletes the state in one step, so a state can be
	// used at most once.
	Consume(ctx context.Context, key string) (*StateData, error)
}

// BadgerStateStore persists OAuth state in BadgerDB with a per-entry TTL, so
// logins in flight survive a restart.
type BadgerStateStore struct {
	db  *badger.DB
	now func() time.Time
}

// OpenBadgerStateStore opens (or creates) a store at path. An empty path
// opens an in-memory store.
func OpenBadgerStateStore(path string) (*BadgerStateStore, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	} else {
		opts.SyncWrites = true
		opts.ValueLogFileSize = 16 << 20
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db for oauth state: %w", err)
	}
	return &BadgerStateStore{db: db, now: time.Now}, nil
}

// Put stores state under key until state.ExpiresAt.
func (s *BadgerStateStore) Put(_ context.Context, key string, state *StateData) error {
	if key == "" || state == nil {
		return errors.New("state key and data are required")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(stateKeyPrefix+key), data)
		if ttl := state.ExpiresAt.Sub(s.now()); ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
}

// Consume implements StateStore.
func (s *BadgerStateStore) Consume(_ context.Context, key string) (*StateData, error) {
	if key == "" {
		return nil, ErrStateNotFound
	}

	var state StateData
	err := s.db.Update(func(txn *badger.Txn) error {
		k := []byte(stateKeyPrefix + key)
		item, err := txn.Get(k)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrStateNotFound
		}
		if err != nil {
			return fmt.Errorf("get state: %w", err)
		}
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &state)
		}); err != nil {
			return fmt.Errorf("decode state: %w", err)
		}
		return txn.Delete(k)
	})
	if err != nil {
		return nil, err
	}

	// TTL expiry is lazy in badger; check explicitly.
	if !state.ExpiresAt.IsZero() && s.now().After(state.ExpiresAt) {
		return nil, ErrStateNotFound
	}
	return &state, nil
}

// Serve runs value log garbage collection until ctx is done. It implements
// suture.Service.
func (s *BadgerStateStore) Serve(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.db.RunValueLogGC(0.5); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				logging.Debug().Err(err).Msg("OAuth state store GC skipped")
			}
		}
	}
}

func (s *BadgerStateStore) String() string { return "oauth-state-gc" }

// Close closes the underlying database.
func (s *BadgerStateStore) Close() error {
	return s.db.Close()
}

var _ StateStore = (*BadgerStateStore)(nil)
