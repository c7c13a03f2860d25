// Pulseboard - Developer Time Tracking and Activity Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulseboard

/*
Package auth implements credentials, device sessions and request
authentication for Pulseboard.

Key Components:

  - Issuer: HS256 access and refresh tokens (golang-jwt/jwt/v5)
  - SessionStore: one record per device, backed by Postgres (pgx) or memory
  - Service: sign-in (identity provider or local bcrypt), refresh and logout
  - Middleware: bearer, cookie and API key authentication with route ownership
  - Provider: OpenID Connect authorization code flow with PKCE (zitadel/oidc),
    state kept in BadgerDB and the code exchange behind a circuit breaker
  - SessionSweeper: periodic revocation of expired sessions

Credential Pair:

An access token is stateless and lapses at its exp claim. A refresh token
carries only an opaque identifier; the session row stores that identifier
and rotating it on every refresh invalidates the previous refresh token.
Revoking a session therefore stops refreshes immediately while outstanding
access tokens remain valid until they expire.

Session Reuse:

Signing in again from the same device reuses its session instead of
creating a new row. FindExistingSession prefers an exact match on browser,
OS, device type and IP address; when loose matching is enabled it falls back
to the browser and OS family ("Chrome 120" matches "Chrome 121") and ignores
the IP address.

Auditing:

Every flow records events through audit.Recorder. Recording never blocks
and never fails the request.
*/
package auth
