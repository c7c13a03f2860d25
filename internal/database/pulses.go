// Pulseboard - Developer Time Tracking and Activity Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulseboard

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/pulseboard/internal/metrics"
	"github.com/tomtom215/pulseboard/internal/models"
)

const insertPulseSQL = `INSERT INTO pulses (
	id, user_id, timestamp, duration_seconds, project, language,
	machine, editor, entity, branch, is_write, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT DO NOTHING`

// InsertPulses writes a batch in one transaction through a prepared statement.
// It returns the number of rows inserted.
func (db *DB) InsertPulses(ctx context.Context, pulses []models.Pulse) (inserted int, err error) {
	if len(pulses) == 0 {
		return 0, nil
	}

	start := time.Now()
	defer func() { metrics.RecordDBQuery("duckdb", "insert_pulses", time.Since(start), err) }()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackOnError(tx, &err)

	stmt, err := tx.PrepareContext(ctx, insertPulseSQL)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer closeWithLog(stmt, "prepared statement")

	for i := range pulses {
		p := &pulses[i]
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = time.Now().UTC()
		}

		result, execErr := stmt.ExecContext(ctx,
			p.ID.String(), p.UserID, p.Timestamp, p.DurationSeconds, p.Project, p.Language,
			p.Machine, p.Editor, p.Entity, p.Branch, p.IsWrite, p.CreatedAt,
		)
		if execErr != nil {
			err = fmt.Errorf("failed to insert pulse %d: %w", i, execErr)
			return 0, err
		}
		if n, raErr := result.RowsAffected(); raErr == nil {
			inserted += int(n)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit pulses: %w", err)
	}
	return inserted, nil
}

// CountPulses returns the number of pulses stored for userID.
func (db *DB) CountPulses(ctx context.Context, userID int64) (int64, error) {
	var n int64
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM pulses WHERE user_id = ?", userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count pulses: %w", err)
	}
	return n, nil
}
