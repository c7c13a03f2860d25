// Pulseboard - Developer Time Tracking and Activity Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulseboard

package auth

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode"

	"github.com/tomtom215/pulseboard/internal/models"
)

// ErrSessionNotFound is returned when no active session matches.
var ErrSessionNotFound = errors.New("session not found")

// NewSession is the input to SessionStore.CreateSession.
type NewSession struct {
	UserID    int64
	RefreshID string
	Device    models.DeviceInfo
	IPAddress string
	ExpiresAt time.Time
}

// SessionStore persists device sessions. All lookups only see active
// sessions (not revoked, not expired); revoked rows are kept.
type SessionStore interface {
	// CreateSession stores a new session and returns its id.
	CreateSession(ctx context.Context, s NewSession) (string, error)

	// FindExistingSession returns the most recently active session of userID
	// on the same device, or nil when none matches. An exact match on browser,
	// OS, device type and IP wins over a family match that ignores the IP.
	FindExistingSession(ctx context.Context, userID int64, device models.DeviceInfo, ip string) (*models.Session, error)

	// UpdateSessionToken rotates the refresh id of an active session and
	// bumps last_active. It reports whether a row was updated.
	UpdateSessionToken(ctx context.Context, sessionID, newRefreshID string, newExpiresAt time.Time) (bool, error)

	GetSessionByID(ctx context.Context, id string) (*models.Session, error)
	GetSessionByRefreshID(ctx context.Context, refreshID string) (*models.Session, error)

	// ListActiveSessions returns the user's sessions, most recently active first.
	ListActiveSessions(ctx context.Context, userID int64) ([]*models.Session, error)

	TouchActivity(ctx context.Context, sessionID string) error

	// Revoke revokes sessionID only if it belongs to userID.
	Revoke(ctx context.Context, sessionID string, userID int64) (bool, error)

	// RevokeAllExcept revokes every active session of userID other than keepSessionID.
	RevokeAllExcept(ctx context.Context, userID int64, keepSessionID string) (int64, error)

	// SweepExpired marks expired, unrevoked sessions as revoked.
	SweepExpired(ctx context.Context) (int64, error)
}

// SessionOption configures a SessionStore implementation.
type SessionOption func(*sessionOptions)

type sessionOptions struct {
	looseMatch bool
	now        func() time.Time
}

func defaultSessionOptions(opts []SessionOption) sessionOptions {
	o := sessionOptions{looseMatch: true, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLooseMatch toggles the family match fallback of FindExistingSession.
func WithLooseMatch(enabled bool) SessionOption {
	return func(o *sessionOptions) { o.looseMatch = enabled }
}

// WithSessionClock sets the time source used for activity and expiry.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(o *sessionOptions) { o.now = now }
}

// family reduces a browser or OS name to the part before the first space or
// version number: "Chrome 120" and "Chrome 121.0" are both "chrome".
func family(name string) string {
	name = strings.TrimSpace(name)
	end := strings.IndexFunc(name, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsDigit(r) || r == '/'
	})
	if end >= 0 {
		name = name[:end]
	}
	return strings.ToLower(name)
}

func exactDeviceMatch(s *models.Session, d models.DeviceInfo, ip string) bool {
	return s.Browser == d.Browser && s.OS == d.OS && s.DeviceType == d.DeviceType && s.IPAddress == ip
}

func familyDeviceMatch(s *models.Session, d models.DeviceInfo) bool {
	return s.DeviceType == d.DeviceType &&
		family(s.Browser) == family(d.Browser) &&
		family(s.OS) == family(d.OS)
}
