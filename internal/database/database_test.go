// Pulseboard - Developer Time Tracking and Activity Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulseboard

package database

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/pulseboard/internal/config"
	"github.com/tomtom215/pulseboard/internal/models"
)

// testDBSemaphore serializes DuckDB usage across tests.
var testDBSemaphore = make(chan struct{}, 1)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() { <-testDBSemaphore })

	db, err := New(&config.DatabaseConfig{Path: ":memory:", MaxMemory: "512MB", Threads: 2})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})
	return db
}

func TestNew_CreatesSchema(t *testing.T) {
	db := setupTestDB(t)

	if err := db.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	var n int
	err := db.Conn().QueryRow("SELECT COUNT(*) FROM information_schema.tables WHERE table_name = 'pulses'").Scan(&n)
	if err != nil {
		t.Fatalf("schema query failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected pulses table, found %d", n)
	}
}

func TestInsertPulses(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	pulses := []models.Pulse{
		{UserID: 1, Timestamp: now.Add(-time.Hour), DurationSeconds: 120, Project: "api", Language: "Go"},
		{UserID: 1, Timestamp: now.Add(-30 * time.Minute), DurationSeconds: 60, Project: "web", Language: "TypeScript"},
		{UserID: 2, Timestamp: now, DurationSeconds: 30, Project: "api", Language: "Go"},
	}

	inserted, err := db.InsertPulses(ctx, pulses)
	if err != nil {
		t.Fatalf("InsertPulses failed: %v", err)
	}
	if inserted != 3 {
		t.Errorf("inserted = %d, want 3", inserted)
	}
	for _, p := range pulses {
		if p.ID == uuid.Nil {
			t.Error("expected InsertPulses to assign IDs")
		}
	}

	count, err := db.CountPulses(ctx, 1)
	if err != nil {
		t.Fatalf("CountPulses failed: %v", err)
	}
	if count != 2 {
		t.Errorf("CountPulses(1) = %d, want 2", count)
	}
}

func TestInsertPulses_DuplicateIDsIgnored(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	p := models.Pulse{ID: uuid.New(), UserID: 7, Timestamp: time.Now().UTC(), DurationSeconds: 10}
	if _, err := db.InsertPulses(ctx, []models.Pulse{p}); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	inserted, err := db.InsertPulses(ctx, []models.Pulse{p})
	if err != nil {
		t.Fatalf("second insert failed: %v", err)
	}
	if inserted != 0 {
		t.Errorf("expected duplicate to be skipped, inserted = %d", inserted)
	}
}

func TestInsertPulses_Empty(t *testing.T) {
	db := setupTestDB(t)
	inserted, err := db.InsertPulses(context.Background(), nil)
	if err != nil || inserted != 0 {
		t.Fatalf("InsertPulses(nil) = %d, %v", inserted, err)
	}
}
