// Pulseboard - Developer Time Tracking and Activity Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulseboard

package api

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/pulseboard/internal/audit"
	"github.com/tomtom215/pulseboard/internal/auth"
	"github.com/tomtom215/pulseboard/internal/models"
	"github.com/tomtom215/pulseboard/internal/stats"
)

// SessionLister lists a user's active device sessions.
type SessionLister interface {
	ListActiveSessions(ctx context.Context, userID int64) ([]*models.Session, error)
}

// APIKeyStore replaces a user's API key.
type APIKeyStore interface {
	SetAPIKey(ctx context.Context, userID int64, key string) error
}

// AuditReader is the query side of the audit store.
type AuditReader interface {
	GetStats(ctx context.Context, userID int64, start, end time.Time) ([]audit.DailyStats, error)
	GetRecentEvents(ctx context.Context, userID int64, limit int) ([]*audit.Event, error)
}

// PulseWriter stores ingested pulses.
type PulseWriter interface {
	InsertPulses(ctx context.Context, pulses []models.Pulse) (int, error)
}

// StatsQuerier answers coding-time queries.
type StatsQuerier interface {
	Summary(ctx context.Context, q stats.Query) ([]stats.Bucket, error)
	Top(ctx context.Context, q stats.Query) ([]stats.Ranked, error)
}

// BillingRecorder stores billing webhook deliveries idempotently.
type BillingRecorder interface {
	SaveWebhook(ctx context.Context, event *models.BillingEvent, payload []byte) (duplicate bool, err error)
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

// HandlerConfig wires the dependencies of Handler. Auth, Sessions and
// Cookies are required; a nil optional dependency disables its routes with
// a 404.
type HandlerConfig struct {
	Auth      *auth.Service
	Providers auth.Providers
	Sessions  SessionLister
	APIKeys   APIKeyStore
	Audit     AuditReader
	Pulses    PulseWriter
	Stats     StatsQuerier
	Billing   BillingRecorder
	Cookies   auth.CookieSettings

	BillingSecret   string
	SignatureHeader string

	// Checks are run by the health endpoint, keyed by dependency name.
	Checks map[string]HealthCheck
}

// Handler contains dependencies for API handlers
//
// Handler methods are split across files by area:
//   - handlers_auth.go: sign-in, refresh, logout and provider redirects
//   - handlers_sessions.go: session listing and revocation, API keys
//   - handlers_audit.go: auth log statistics and recent events
//   - handlers_pulses.go: activity ingest
//   - handlers_stats.go: coding-time summaries and rankings
//   - handlers_billing.go: billing webhook intake
//   - handlers_health.go: health probe
type Handler struct {
	auth      *auth.Service
	providers auth.Providers
	sessions  SessionLister
	apiKeys   APIKeyStore
	audit     AuditReader
	pulses    PulseWriter
	stats     StatsQuerier
	billing   BillingRecorder
	cookies   auth.CookieSettings

	billingSecret   []byte
	signatureHeader string

	checks    map[string]HealthCheck
	startTime time.Time
}

// DefaultSignatureHeader carries the billing webhook HMAC.
const DefaultSignatureHeader = "X-Billing-Signature"

// NewHandler creates the API handler.
func NewHandler(cfg HandlerConfig) (*Handler, error) {
	if cfg.Auth == nil || cfg.Sessions == nil {
		return nil, errors.New("api handler requires auth service and session store")
	}
	header := cfg.SignatureHeader
	if header == "" {
		header = DefaultSignatureHeader
	}
	providers := cfg.Providers
	if providers == nil {
		providers = auth.Providers{}
	}

	return &Handler{
		auth:            cfg.Auth,
		providers:       providers,
		sessions:        cfg.Sessions,
		apiKeys:         cfg.APIKeys,
		audit:           cfg.Audit,
		pulses:          cfg.Pulses,
		stats:           cfg.Stats,
		billing:         cfg.Billing,
		cookies:         cfg.Cookies,
		billingSecret:   []byte(cfg.BillingSecret),
		signatureHeader: header,
		checks:          cfg.Checks,
		startTime:       time.Now(),
	}, nil
}
