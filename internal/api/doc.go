// Pulseboard - Developer Time Tracking and Activity Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulseboard

/*
Package api provides the HTTP REST API layer for Pulseboard.

Key Components:

  - Router: route table and middleware stack on go-chi/chi
  - Handler: request handlers, split by area across handlers_*.go
  - ResponseWriter: the {success, data, error, meta} envelope
  - ChiMiddleware: CORS (go-chi/cors), rate limiting (go-chi/httprate) and
    security headers

Route Groups:

1. Authentication (/api/v1/auth/), rate limited per client IP:
  - register, login, refresh (GET and POST), logout
  - {provider}/login and {provider}/callback for OpenID Connect providers

2. Per-user resources (/api/v1/users/{userId}/), owner only:
  - sessions, sessions/{sessionId}, sessions/revoke-others
  - api-key
  - auth-logs, auth-logs/stats
  - pulses, stats/summary, stats/top/{dimension}

3. Billing (/api/v1/billing/webhook), HMAC-SHA256 signed.

4. Operations: /health and /metrics.

Account routes accept a bearer token or the access_token cookie. Pulse and
stats routes accept a bearer token, the X-API-Key header, or the cookie.

Every JSON response carries Cache-Control: no-store and the request id
assigned by middleware.RequestID.
*/
package api
