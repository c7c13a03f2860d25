// Pulseboard - Developer Time Tracking and Activity Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulseboard

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/pulseboard/internal/auth"
	"github.com/tomtom215/pulseboard/internal/middleware"
)

// Router binds the handlers to their routes and middleware.
type Router struct {
	handler       *Handler
	auth          *auth.Middleware
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a router. A nil chiMW uses DefaultChiMiddlewareConfig.
func NewRouter(handler *Handler, authMW *auth.Middleware, chiMW *ChiMiddleware) *Router {
	if chiMW == nil {
		chiMW = NewChiMiddleware(nil)
	}
	return &Router{handler: handler, auth: authMW, chiMiddleware: chiMW}
}

// SetupChi configures all HTTP routes using Chi router.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	// ========================
	// Global Middleware Stack
	// ========================
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(router.chiMiddleware.Country())
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS()) // global so OPTIONS preflight is answered
	r.Use(middleware.PrometheusMetrics)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).NotFound("Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).Error(http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
	})

	r.Get("/health", router.handler.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(APISecurityHeaders())

		// ========================
		// Authentication Endpoints
		// ========================
		r.Route("/auth", func(r chi.Router) {
			r.Use(router.chiMiddleware.RateLimitAuth())

			r.Post("/register", router.handler.Register)
			r.Post("/login", router.handler.Login)
			r.Get("/refresh", router.handler.Refresh)
			r.Post("/refresh", router.handler.Refresh)
			r.Post("/logout", router.handler.Logout)
			r.Get("/{provider}/login", router.handler.ProviderLogin)
			r.Get("/{provider}/callback", router.handler.ProviderCallback)
		})

		r.With(router.chiMiddleware.RateLimit()).Post("/billing/webhook", router.handler.BillingWebhook)

		// ========================
		// Per-user Endpoints
		// ========================
		// The auth middleware rejects a {userId} other than the caller's with 403.
		r.Route("/users/{userId}", func(r chi.Router) {
			r.Use(router.chiMiddleware.RateLimit())

			// Account management: browser session or bearer token.
			r.Group(func(r chi.Router) {
				r.Use(bearerOr(router.auth.RequireBearer, router.auth.RequireCookie))

				r.Get("/sessions", router.handler.ListSessions)
				r.Post("/sessions/revoke-others", router.handler.RevokeOtherSessions)
				r.Delete("/sessions/{sessionId}", router.handler.RevokeSession)
				r.Post("/api-key", router.handler.GenerateAPIKey)
				r.Get("/auth-logs/stats", router.handler.AuthLogStats)
				r.Get("/auth-logs", router.handler.AuthLogs)
			})

			// Editor plugins authenticate with the API key.
			r.Group(func(r chi.Router) {
				r.Use(bearerOr(router.auth.RequireBearer, router.auth.RequireAPIKey))

				r.Post("/pulses", router.handler.IngestPulses)
				r.Get("/stats/summary", router.handler.StatsSummary)
				r.Get("/stats/top/{dimension}", router.handler.StatsTop)
			})
		})
	})

	return r
}

// bearerOr routes requests with an Authorization header through bearer and
// all others through fallback.
func bearerOr(bearer, fallback func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		b, f := bearer(next), fallback(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "" {
				b.ServeHTTP(w, r)
				return
			}
			f.ServeHTTP(w, r)
		})
	}
}
