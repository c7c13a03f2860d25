// Pulseboard - Developer Time Tracking and Activity Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulseboard

package auth

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/pulseboard/internal/audit"
	"github.com/tomtom215/pulseboard/internal/logging"
	"github.com/tomtom215/pulseboard/internal/metrics"
)

const defaultSweepInterval = time.Hour

// SessionSweeper periodically revokes sessions past their expiry. Each sweep
// that revokes anything records one summary "expired" event attributed to
// the system actor (user id 0).
type SessionSweeper struct {
	store    SessionStore
	recorder audit.Recorder
	interval time.Duration
	log      zerolog.Logger
}

// NewSessionSweeper creates a sweeper. A zero interval means one hour.
func NewSessionSweeper(store SessionStore, recorder audit.Recorder, interval time.Duration) *SessionSweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &SessionSweeper{
		store:    store,
		recorder: recorder,
		interval: interval,
		log:      logging.WithComponent("session-sweeper"),
	}
}

// Serve sweeps on every tick until ctx is done. It implements suture.Service.
func (s *SessionSweeper) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.log.Error().Err(err).Msg("Session sweep failed")
			}
		}
	}
}

func (s *SessionSweeper) String() string { return "session-sweeper" }

// Sweep runs one pass and returns how many sessions it revoked.
func (s *SessionSweeper) Sweep(ctx context.Context) (int64, error) {
	n, err := s.store.SweepExpired(ctx)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}

	metrics.RecordSessionsRevoked("expired", n)
	if s.recorder != nil {
		s.recorder.Record(&audit.Event{
			UserID:    0,
			Success:   true,
			Provider:  audit.ProviderSystem,
			EventType: audit.EventExpired,
			Metadata:  map[string]any{"count": n},
		})
	}
	s.log.Info().Int64("count", n).Msg("Expired sessions swept")
	return n, nil
}
