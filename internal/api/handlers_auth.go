// Pulseboard - Developer Time Tracking and Activity Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulseboard

package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/tomtom215/pulseboard/internal/auth"
	"github.com/tomtom215/pulseboard/internal/logging"
	"github.com/tomtom215/pulseboard/internal/postgres"
	"github.com/tomtom215/pulseboard/internal/validation"
)

// Register handles POST /api/v1/auth/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rw.BadRequest(err.Error())
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		rw.ValidationError(verr)
		return
	}

	res, err := h.auth.Register(r.Context(), req.Email, req.FullName, req.Password, auth.ClientInfoFromRequest(r))
	if err != nil {
		if errors.Is(err, postgres.ErrEmailTaken) {
			rw.Error(http.StatusBadRequest, ErrCodeEmailTaken, "An account with this email already exists")
			return
		}
		rw.InternalError(err)
		return
	}

	h.cookies.SetTokenCookies(w, res.Tokens)
	rw.Created(res)
}

// Login handles POST /api/v1/auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rw.BadRequest(err.Error())
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		rw.ValidationError(verr)
		return
	}

	res, err := h.auth.SignInLocal(r.Context(), req.Email, req.Password, auth.ClientInfoFromRequest(r))
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			rw.Unauthorized("Invalid email or password")
			return
		}
		rw.InternalError(err)
		return
	}

	h.cookies.SetTokenCookies(w, res.Tokens)
	rw.Success(res)
}

// Refresh handles GET and POST /api/v1/auth/refresh. The refresh token is
// read from the refresh_token cookie or the JSON body. A GET carrying a
// local redirect target, as sent by the cookie middleware, is answered with
// a 302 back to that target.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	token := h.refreshTokenFromRequest(r)
	if token == "" {
		rw.Unauthorized("Refresh token required")
		return
	}

	res, err := h.auth.Refresh(r.Context(), token, auth.ClientInfoFromRequest(r))
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrSessionNotFound) {
			h.cookies.ClearTokenCookies(w)
			rw.Unauthorized("Session expired or revoked")
			return
		}
		rw.InternalError(err)
		return
	}

	h.cookies.SetTokenCookies(w, res.Tokens)
	if target := safeRedirect(r.URL.Query().Get("redirect")); target != "" && r.Method == http.MethodGet {
		http.Redirect(w, r, target, http.StatusFound)
		return
	}
	rw.Success(res)
}

// Logout handles POST /api/v1/auth/logout. The session is found from the
// refresh token, falling back to the sid claim of a bearer access token.
// Cookies are cleared either way.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var sessionID string
	if header := r.Header.Get("Authorization"); header != "" {
		if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
			if claims, err := h.auth.Issuer().VerifyAccessToken(token); err == nil {
				sessionID = claims.SessionID
			}
		}
	}

	revoked, err := h.auth.Logout(r.Context(), h.refreshTokenFromRequest(r), sessionID, auth.ClientInfoFromRequest(r))
	if err != nil {
		rw.InternalError(err)
		return
	}

	h.cookies.ClearTokenCookies(w)
	rw.Success(map[string]bool{"revoked": revoked})
}

// ProviderLogin handles GET /api/v1/auth/{provider}/login by redirecting to
// the identity provider.
func (h *Handler) ProviderLogin(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	provider, err := h.providers.Get(urlParam(r, "provider"))
	if err != nil {
		rw.NotFound("Unknown identity provider")
		return
	}

	target, err := provider.AuthorizationURL(r.Context(), safeRedirect(r.URL.Query().Get("redirect")))
	if err != nil {
		rw.InternalError(err)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// ProviderCallback handles GET /api/v1/auth/{provider}/callback. It
// completes the code exchange, signs the user in and either redirects to the
// target stored at login or returns the sign-in result.
func (h *Handler) ProviderCallback(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	ctx := r.Context()

	provider, err := h.providers.Get(urlParam(r, "provider"))
	if err != nil {
		rw.NotFound("Unknown identity provider")
		return
	}

	q := r.URL.Query()
	if idpErr := q.Get("error"); idpErr != "" {
		logging.Ctx(ctx).Warn().Str("provider", provider.Name()).
			Str("error", sanitizeLogValue(idpErr)).Msg("Identity provider returned an error")
		rw.Unauthorized("Sign-in was not completed")
		return
	}
	code, state := q.Get("code"), q.Get("state")
	if code == "" || state == "" {
		rw.BadRequest("code and state are required")
		return
	}

	profile, redirect, err := provider.Exchange(ctx, code, state)
	switch {
	case errors.Is(err, auth.ErrStateNotFound):
		rw.BadRequest("Unknown or expired sign-in state")
		return
	case errors.Is(err, auth.ErrProviderUnavailable):
		logging.Ctx(ctx).Error().Err(err).Msg("Identity provider unavailable")
		rw.Error(http.StatusInternalServerError, ErrCodeProviderFailed, "Identity provider is unavailable")
		return
	case err != nil:
		logging.Ctx(ctx).Warn().Err(err).Str("provider", provider.Name()).Msg("Code exchange failed")
		rw.Unauthorized("Sign-in failed")
		return
	}

	res, err := h.auth.SignInExternal(ctx, *profile, auth.ClientInfoFromRequest(r))
	if err != nil {
		if errors.Is(err, postgres.ErrEmailTaken) {
			rw.Error(http.StatusBadRequest, ErrCodeEmailTaken, "This email is already linked to another sign-in method")
			return
		}
		rw.InternalError(err)
		return
	}

	h.cookies.SetTokenCookies(w, res.Tokens)
	if redirect != "" {
		http.Redirect(w, r, redirect, http.StatusFound)
		return
	}
	rw.Success(res)
}

func (h *Handler) refreshTokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(auth.RefreshTokenCookie); err == nil && c.Value != "" {
		return c.Value
	}
	if r.Method != http.MethodPost || r.Body == nil || r.ContentLength == 0 {
		return ""
	}
	var req RefreshRequest
	if err := decodeJSON(nil, r, &req); err != nil {
		return ""
	}
	return req.RefreshToken
}

// safeRedirect returns target if it is a local absolute path, and "" for
// anything that could leave the site.
func safeRedirect(target string) string {
	if target == "" || !strings.HasPrefix(target, "/") {
		return ""
	}
	if strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return ""
	}
	return target
}
