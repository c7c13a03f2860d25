// Pulseboard - Developer Time Tracking and Activity Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulseboard

// Package audit records authentication, session lifecycle and API key usage
// events. Events are queued by Sink and written to DuckDB in batches off the
// request path.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType is the lifecycle step an auth log entry describes.
type EventType string

const (
	EventCreated   EventType = "created"
	EventRefreshed EventType = "refreshed"
	EventExpired   EventType = "expired"
	EventRevoked   EventType = "revoked"
	EventSignedIn  EventType = "signed_in"
	EventSignedOut EventType = "signed_out"
	EventFailed    EventType = "failed"
)

// IsSessionLifecycle reports whether events of this type are also written to
// session_events.
func (t EventType) IsSessionLifecycle() bool {
	switch t {
	case EventCreated, EventRefreshed, EventExpired, EventRevoked:
		return true
	}
	return false
}

// Providers recorded on auth log entries.
const (
	ProviderGoogle = "google"
	ProviderGitHub = "github"
	ProviderOIDC   = "oidc"
	ProviderLocal  = "local"
	ProviderAPIKey = "api_key"

	// ProviderSystem marks events raised by background jobs rather than a user.
	ProviderSystem = "system"
)

// Kind selects the table an Event is written to.
type Kind uint8

const (
	// KindAuth rows go to auth_logs (and session_events for lifecycle types).
	KindAuth Kind = iota
	// KindAPIKey rows go to api_key_events.
	KindAPIKey
)

// Event is one append-only audit record.
type Event struct {
	Kind Kind `json:"-"`

	ID           uuid.UUID      `json:"id"`
	Timestamp    time.Time      `json:"timestamp"`
	UserID       int64          `json:"user_id"`
	Email        string         `json:"email,omitempty"`
	Success      bool           `json:"success"`
	IPAddress    string         `json:"ip_address"`
	UserAgent    string         `json:"user_agent,omitempty"`
	DeviceType   string         `json:"device_type,omitempty"`
	Browser      string         `json:"browser,omitempty"`
	OS           string         `json:"os,omitempty"`
	Country      string         `json:"country,omitempty"`
	Provider     string         `json:"provider,omitempty"`
	SessionID    string         `json:"session_id,omitempty"`
	EventType    EventType      `json:"event_type,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`

	// Path is the request path, set on API key events.
	Path string `json:"path,omitempty"`
}

// DailyStats aggregates one UTC day of auth log entries.
type DailyStats struct {
	Day               time.Time `json:"day"`
	Total             int64     `json:"total"`
	Successes         int64     `json:"successes"`
	Failures          int64     `json:"failures"`
	UniqueIPs         int64     `json:"unique_ips"`
	UniqueCountries   int64     `json:"unique_countries"`
	UniqueDeviceTypes int64     `json:"unique_device_types"`
}

// Recent-event limits.
const (
	DefaultRecentLimit = 50
	MaxRecentLimit     = 500
)

// ClampLimit applies the recent-event default and maximum.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultRecentLimit
	case limit > MaxRecentLimit:
		return MaxRecentLimit
	}
	return limit
}

// Store persists audit events.
type Store interface {
	// InsertBatch writes events atomically.
	InsertBatch(ctx context.Context, events []*Event) error

	// GetStats returns per-day auth log counts for userID with both bounds inclusive.
	GetStats(ctx context.Context, userID int64, start, end time.Time) ([]DailyStats, error)

	// GetRecentEvents returns the user's auth log entries, newest first.
	GetRecentEvents(ctx context.Context, userID int64, limit int) ([]*Event, error)
}

// Recorder is the write side of the audit trail used by request handlers.
type Recorder interface {
	Record(event *Event)
}
