// Pulseboard - Developer Time Tracking and Activity Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulseboard

package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tomtom215/pulseboard/internal/api"
	"github.com/tomtom215/pulseboard/internal/audit"
	"github.com/tomtom215/pulseboard/internal/auth"
	"github.com/tomtom215/pulseboard/internal/cache"
	"github.com/tomtom215/pulseboard/internal/config"
	"github.com/tomtom215/pulseboard/internal/database"
	"github.com/tomtom215/pulseboard/internal/logging"
	"github.com/tomtom215/pulseboard/internal/postgres"
	"github.com/tomtom215/pulseboard/internal/stats"
	"github.com/tomtom215/pulseboard/internal/supervisor"
	"github.com/tomtom215/pulseboard/internal/supervisor/services"
)

// app holds every long-lived resource so they can be closed in reverse
// order of creation.
type app struct {
	cfg *config.Config

	pool   *pgxpool.Pool
	duck   *database.DB
	states *auth.BadgerStateStore

	sink    *audit.Sink
	sweeper *auth.SessionSweeper
	server  *http.Server
}

// newApp opens the stores and builds the HTTP handler. On error, resources
// opened so far are released.
func newApp(ctx context.Context, cfg *config.Config) (a *app, err error) {
	a = &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.close()
			a = nil
		}
	}()

	a.pool, err = postgres.NewPool(ctx, &cfg.Postgres)
	if err != nil {
		return a, err
	}
	if err = postgres.Migrate(ctx, a.pool); err != nil {
		return a, fmt.Errorf("migrate postgres: %w", err)
	}

	a.duck, err = database.New(&cfg.Database)
	if err != nil {
		return a, fmt.Errorf("open duckdb: %w", err)
	}

	events, err := audit.NewDuckDBStore(ctx, a.duck.Conn())
	if err != nil {
		return a, fmt.Errorf("init audit store: %w", err)
	}
	a.sink, err = audit.NewSink(events, cfg.Audit)
	if err != nil {
		return a, err
	}

	a.states, err = auth.OpenBadgerStateStore(cfg.OAuth.StatePath)
	if err != nil {
		return a, err
	}

	issuer, err := auth.NewIssuer(&cfg.Security)
	if err != nil {
		return a, fmt.Errorf("init token issuer: %w", err)
	}

	users := postgres.NewUserStore(a.pool)
	sessions := auth.NewPostgresSessionStore(a.pool, auth.WithLooseMatch(cfg.Sessions.LooseMatch))
	a.sweeper = auth.NewSessionSweeper(sessions, a.sink, cfg.Sessions.SweepInterval)

	svc, err := auth.NewService(auth.ServiceConfig{
		Issuer:   issuer,
		Sessions: sessions,
		Users:    users,
		Audit:    a.sink,
	})
	if err != nil {
		return a, err
	}

	providers := auth.NewProviders(ctx, cfg.OAuth, a.states)
	logging.Info().Int("providers", len(providers)).Msg("Identity providers configured")

	// Without a TTL every pulse request stamps api_key_last_used_at.
	var apiKeys interface {
		api.APIKeyStore
		auth.APIKeyAuthenticator
	} = users
	if cfg.Security.APIKeyCacheTTL > 0 {
		apiKeys = cache.NewAPIKeys(users, cfg.Security.APIKeyCacheSize, cfg.Security.APIKeyCacheTTL)
	}

	handler, err := api.NewHandler(api.HandlerConfig{
		Auth:            svc,
		Providers:       providers,
		Sessions:        sessions,
		APIKeys:         apiKeys,
		Audit:           events,
		Pulses:          a.duck,
		Stats:           stats.NewService(a.duck.Conn()),
		Billing:         postgres.NewBillingStore(a.pool),
		Cookies:         auth.CookieSettings{Secure: cfg.Security.CookieSecure, Domain: cfg.Security.CookieDomain},
		BillingSecret:   cfg.Billing.WebhookSecret,
		SignatureHeader: cfg.Billing.SignatureHeader,
		Checks: map[string]api.HealthCheck{
			"postgres": a.pool.Ping,
			"duckdb":   a.duck.Ping,
		},
	})
	if err != nil {
		return a, err
	}

	authMW := auth.NewMiddleware(auth.MiddlewareConfig{
		Issuer:      issuer,
		Users:       users,
		APIKeys:     apiKeys,
		Audit:       a.sink,
		RefreshPath: cfg.Security.RefreshPath,
	})
	chiMW := api.NewChiMiddleware(api.ChiMiddlewareConfigFromSecurity(&cfg.Security))
	router := api.NewRouter(handler, authMW, chiMW).SetupChi()

	a.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       2 * cfg.Server.Timeout,
	}
	return a, nil
}

// supervise registers the long-running services on tree.
func (a *app) supervise(tree *supervisor.SupervisorTree) {
	httpSvc := services.NewHTTPServerService(a.server, a.cfg.Server.Timeout)
	tree.AddAPIService(httpSvc)
	tree.AddDataService(services.NewAuditSinkService(a.sink, httpSvc.Drained(), a.cfg.Server.Timeout))
	tree.AddMaintenanceService(a.sweeper)
	tree.AddMaintenanceService(a.states)
}

func (a *app) close() {
	if a.states != nil {
		if err := a.states.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing OAuth state store")
		}
	}
	if a.duck != nil {
		if err := a.duck.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing DuckDB")
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
