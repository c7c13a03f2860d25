// Pulseboard - Developer Time Tracking and Activity Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulseboard

package auth

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/pulseboard/internal/models"
)

// MemorySessionStore is an in-memory SessionStore for tests and local development.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
	opts     sessionOptions
}

// NewMemorySessionStore creates an empty in-memory store.
func NewMemorySessionStore(opts ...SessionOption) *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]*models.Session),
		opts:     defaultSessionOptions(opts),
	}
}

// CreateSession stores a new session.
func (s *MemorySessionStore) CreateSession(_ context.Context, in NewSession) (string, error) {
	device := in.Device.Normalize()
	now := s.opts.now()

	sess := &models.Session{
		ID:         uuid.NewString(),
		UserID:     in.UserID,
		RefreshID:  in.RefreshID,
		DeviceName: device.DeviceName,
		DeviceType: device.DeviceType,
		Browser:    device.Browser,
		OS:         device.OS,
		IPAddress:  in.IPAddress,
		LastActive: now,
		ExpiresAt:  in.ExpiresAt,
		CreatedAt:  now,
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	return sess.ID, nil
}

// FindExistingSession returns the best device match among active sessions.
func (s *MemorySessionStore) FindExistingSession(_ context.Context, userID int64, device models.DeviceInfo, ip string) (*models.Session, error) {
	device = device.Normalize()

	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.opts.now()
	var exact, loose *models.Session
	for _, sess := range s.sessions {
		if sess.UserID != userID || !sess.IsActive(now) {
			continue
		}
		if exactDeviceMatch(sess, device, ip) && (exact == nil || sess.LastActive.After(exact.LastActive)) {
			exact = sess
		}
		if s.opts.looseMatch && familyDeviceMatch(sess, device) && (loose == nil || sess.LastActive.After(loose.LastActive)) {
			loose = sess
		}
	}

	switch {
	case exact != nil:
		return copySession(exact), nil
	case loose != nil:
		return copySession(loose), nil
	}
	return nil, nil
}

// UpdateSessionToken rotates the refresh id of an active session.
func (s *MemorySessionStore) UpdateSessionToken(_ context.Context, sessionID, newRefreshID string, newExpiresAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.now()
	sess, ok := s.sessions[sessionID]
	if !ok || !sess.IsActive(now) {
		return false, nil
	}
	sess.RefreshID = newRefreshID
	sess.ExpiresAt = newExpiresAt
	sess.LastActive = now
	return true, nil
}

// GetSessionByID returns an active session or ErrSessionNotFound.
func (s *MemorySessionStore) GetSessionByID(_ context.Context, id string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok || !sess.IsActive(s.opts.now()) {
		return nil, ErrSessionNotFound
	}
	return copySession(sess), nil
}

// GetSessionByRefreshID returns the active session holding refreshID.
func (s *MemorySessionStore) GetSessionByRefreshID(_ context.Context, refreshID string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.opts.now()
	for _, sess := range s.sessions {
		if sess.RefreshID == refreshID && sess.IsActive(now) {
			return copySession(sess), nil
		}
	}
	return nil, ErrSessionNotFound
}

// ListActiveSessions returns the user's active sessions, newest activity first.
func (s *MemorySessionStore) ListActiveSessions(_ context.Context, userID int64) ([]*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.opts.now()
	out := make([]*models.Session, 0)
	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.IsActive(now) {
			out = append(out, copySession(sess))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActive.After(out[j].LastActive) })
	return out, nil
}

// TouchActivity bumps last_active of an active session.
func (s *MemorySessionStore) TouchActivity(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.now()
	sess, ok := s.sessions[sessionID]
	if !ok || !sess.IsActive(now) {
		return ErrSessionNotFound
	}
	sess.LastActive = now
	return nil
}

// Revoke revokes sessionID if it is active and owned by userID.
func (s *MemorySessionStore) Revoke(_ context.Context, sessionID string, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok || sess.UserID != userID || sess.Revoked {
		return false, nil
	}
	sess.Revoked = true
	return true, nil
}

// RevokeAllExcept revokes the user's other active sessions.
func (s *MemorySessionStore) RevokeAllExcept(_ context.Context, userID int64, keepSessionID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.now()
	var n int64
	for id, sess := range s.sessions {
		if sess.UserID == userID && id != keepSessionID && sess.IsActive(now) {
			sess.Revoked = true
			n++
		}
	}
	return n, nil
}

// SweepExpired revokes sessions past their expiry.
func (s *MemorySessionStore) SweepExpired(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.now()
	var n int64
	for _, sess := range s.sessions {
		if !sess.Revoked && !now.Before(sess.ExpiresAt) {
			sess.Revoked = true
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored sessions, including revoked ones.
func (s *MemorySessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func copySession(sess *models.Session) *models.Session {
	c := *sess
	return &c
}
