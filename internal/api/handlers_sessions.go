// Pulseboard - Developer Time Tracking and Activity Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulseboard

package api

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"

	"github.com/tomtom215/pulseboard/internal/auth"
	"github.com/tomtom215/pulseboard/internal/logging"
)

// apiKeyPrefix marks Pulseboard keys in editor plugin configs and secret scanners.
const apiKeyPrefix = "pb_"

// ListSessions handles GET /api/v1/users/{userId}/sessions.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	rc, err := requestContext(r)
	if err != nil {
		rw.Unauthorized("Authentication required")
		return
	}

	sessions, err := h.sessions.ListActiveSessions(r.Context(), rc.UserID)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	for _, s := range sessions {
		s.Current = rc.SessionID != "" && s.ID == rc.SessionID
	}
	rw.Success(sessions)
}

// RevokeSession handles DELETE /api/v1/users/{userId}/sessions/{sessionId}.
func (h *Handler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	rc, err := requestContext(r)
	if err != nil {
		rw.Unauthorized("Authentication required")
		return
	}

	sessionID := urlParam(r, "sessionId")
	ok, err := h.auth.RevokeSession(r.Context(), rc.UserID, sessionID, auth.ClientInfoFromRequest(r))
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	if !ok {
		rw.NotFound("Session not found")
		return
	}

	if sessionID == rc.SessionID {
		h.cookies.ClearTokenCookies(w)
	}
	rw.Success(map[string]bool{"revoked": true})
}

// RevokeOtherSessions handles POST /api/v1/users/{userId}/sessions/revoke-others.
// The caller's own session is kept; an API key caller has none, so every
// session is revoked.
func (h *Handler) RevokeOtherSessions(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	rc, err := requestContext(r)
	if err != nil {
		rw.Unauthorized("Authentication required")
		return
	}

	n, err := h.auth.RevokeOthers(r.Context(), rc.UserID, rc.SessionID, auth.ClientInfoFromRequest(r))
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	rw.Success(map[string]int64{"revokedCount": n})
}

// GenerateAPIKey handles POST /api/v1/users/{userId}/api-key. The new key
// replaces the old one and is returned once in cleartext.
func (h *Handler) GenerateAPIKey(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.apiKeys == nil {
		rw.NotFound("API keys are not enabled")
		return
	}
	rc, err := requestContext(r)
	if err != nil {
		rw.Unauthorized("Authentication required")
		return
	}

	key, err := newAPIKey()
	if err != nil {
		rw.InternalError(err)
		return
	}
	if err := h.apiKeys.SetAPIKey(r.Context(), rc.UserID, key); err != nil {
		rw.DatabaseError(err)
		return
	}

	logging.Ctx(r.Context()).Info().Msg("API key regenerated")
	rw.Created(map[string]string{"api_key": key})
}

func newAPIKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return apiKeyPrefix + hex.EncodeToString(b), nil
}
