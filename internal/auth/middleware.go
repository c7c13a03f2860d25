// Pulseboard - Developer Time Tracking and Activity Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulseboard

package auth

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"

	"github.com/tomtom215/pulseboard/internal/audit"
	"github.com/tomtom215/pulseboard/internal/logging"
	"github.com/tomtom215/pulseboard/internal/metrics"
	"github.com/tomtom215/pulseboard/internal/models"
	"github.com/tomtom215/pulseboard/internal/postgres"
)

// ErrNoCredentials is returned when a request carries no usable credential.
var ErrNoCredentials = errors.New("no credentials")

// Cookie and header names used by the credential carriers.
const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
	APIKeyHeader       = "X-API-Key"
)

// ownerParams are the chi URL parameters that must equal the caller's user id.
var ownerParams = []string{"userId", "id"}

// UserLookup resolves the full profile of an authenticated user.
type UserLookup interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

// APIKeyAuthenticator resolves an API key to its owner and records its use.
type APIKeyAuthenticator interface {
	AuthenticateAPIKey(ctx context.Context, key string) (*models.User, error)
}

// MiddlewareConfig wires the dependencies of Middleware. Users and APIKeys
// are optional; without APIKeys, RequireAPIKey only accepts cookies.
type MiddlewareConfig struct {
	Issuer      *Issuer
	Users       UserLookup
	APIKeys     APIKeyAuthenticator
	Audit       audit.Recorder
	RefreshPath string
}

// Middleware authenticates requests and attaches a RequestContext.
type Middleware struct {
	issuer      *Issuer
	users       UserLookup
	apiKeys     APIKeyAuthenticator
	recorder    audit.Recorder
	refreshPath string
}

// NewMiddleware creates the auth middleware.
func NewMiddleware(cfg MiddlewareConfig) *Middleware {
	refreshPath := cfg.RefreshPath
	if refreshPath == "" {
		refreshPath = "/api/v1/auth/refresh"
	}
	return &Middleware{
		issuer:      cfg.Issuer,
		users:       cfg.Users,
		apiKeys:     cfg.APIKeys,
		recorder:    cfg.Audit,
		refreshPath: refreshPath,
	}
}

// RequireBearer authenticates with an "Authorization: Bearer" access token.
func (m *Middleware) RequireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := bearerToken(r)
		if err != nil {
			writeAuthError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "Missing bearer token")
			return
		}
		claims, err := m.issuer.VerifyAccessToken(token)
		if err != nil {
			logging.Ctx(r.Context()).Debug().Err(err).Msg("Bearer token rejected")
			metrics.RecordAuthAttempt(string(AuthMethodBearer), false)
			writeAuthError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or expired token")
			return
		}
		m.serve(w, r, next, claims.UserID, claims.SessionID, nil, AuthMethodBearer)
	})
}

// RequireCookie authenticates with the access_token cookie. When only the
// refresh_token cookie is usable, a GET is redirected to the refresh endpoint
// with the original path in ?redirect=. Other methods get 401 so the client
// can refresh and resend the body itself.
func (m *Middleware) RequireCookie(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie(AccessTokenCookie); err == nil && c.Value != "" {
			claims, verr := m.issuer.VerifyAccessToken(c.Value)
			if verr == nil {
				m.serve(w, r, next, claims.UserID, claims.SessionID, nil, AuthMethodCookie)
				return
			}
			logging.Ctx(r.Context()).Debug().Err(verr).Msg("Access token cookie rejected")
		}

		if c, err := r.Cookie(RefreshTokenCookie); err == nil && c.Value != "" && r.Method == http.MethodGet {
			target := m.refreshPath + "?redirect=" + url.QueryEscape(r.URL.RequestURI())
			http.Redirect(w, r, target, http.StatusTemporaryRedirect)
			return
		}

		metrics.RecordAuthAttempt(string(AuthMethodCookie), false)
		writeAuthError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
	})
}

// RequireAPIKey authenticates with the X-API-Key header and falls back to
// RequireCookie when the header is absent. Each accepted key is recorded as
// an api_key_events row.
func (m *Middleware) RequireAPIKey(next http.Handler) http.Handler {
	cookie := m.RequireCookie(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(APIKeyHeader))
		if key == "" || m.apiKeys == nil {
			cookie.ServeHTTP(w, r)
			return
		}

		user, err := m.apiKeys.AuthenticateAPIKey(r.Context(), key)
		if err != nil {
			if errors.Is(err, postgres.ErrNotFound) {
				metrics.RecordAuthAttempt(string(AuthMethodAPIKey), false)
				writeAuthError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid API key")
				return
			}
			logging.Ctx(r.Context()).Error().Err(err).Msg("API key lookup failed")
			writeAuthError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
			return
		}

		if m.recorder != nil {
			m.recorder.Record(&audit.Event{
				Kind:      audit.KindAPIKey,
				UserID:    user.ID,
				IPAddress: ClientIP(r),
				UserAgent: r.UserAgent(),
				Path:      r.URL.Path,
				Success:   true,
			})
		}
		m.serve(w, r, next, user.ID, "", user, AuthMethodAPIKey)
	})
}

// serve finishes authentication once the caller's user id is known: it
// resolves the profile, enforces route ownership and calls next.
func (m *Middleware) serve(w http.ResponseWriter, r *http.Request, next http.Handler,
	userID int64, sessionID string, user *models.User, method AuthMethod) {
	ctx := r.Context()

	if user == nil && m.users != nil {
		u, err := m.users.GetByID(ctx, userID)
		switch {
		case errors.Is(err, postgres.ErrNotFound):
			writeAuthError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "Unknown user")
			return
		case err != nil:
			logging.Ctx(ctx).Error().Err(err).Int64("user_id", userID).Msg("User lookup failed")
			writeAuthError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
			return
		}
		user = u
	}

	if !ownsRoute(r, userID) {
		writeAuthError(w, r, http.StatusForbidden, "FORBIDDEN", "Access to another user's resources is not allowed")
		return
	}

	metrics.RecordAuthAttempt(string(method), true)
	rc := &RequestContext{
		UserID:     userID,
		User:       user,
		SessionID:  sessionID,
		AuthMethod: method,
		Device:     ParseUserAgent(r.UserAgent()),
		IPAddress:  ClientIP(r),
		RequestID:  requestID(r),
	}
	ctx = WithRequestContext(ctx, rc)
	ctx = logging.ContextWithUserID(ctx, userID)
	next.ServeHTTP(w, r.WithContext(ctx))
}

// ownsRoute reports whether every owner parameter on the matched route names
// userID. Routes without such a parameter are owned by everyone.
func ownsRoute(r *http.Request, userID int64) bool {
	if chi.RouteContext(r.Context()) == nil {
		return true
	}
	for _, name := range ownerParams {
		v := chi.URLParam(r, name)
		if v == "" {
			continue
		}
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id != userID {
			return false
		}
	}
	return true
}

func bearerToken(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", ErrNoCredentials
	}
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", ErrNoCredentials
	}
	return strings.TrimSpace(token), nil
}

func requestID(r *http.Request) string {
	if id := logging.RequestIDFromContext(r.Context()); id != "" {
		return id
	}
	return chimw.GetReqID(r.Context())
}

type authErrorBody struct {
	Success bool `json:"success"`
	Error   struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"request_id,omitempty"`
	} `json:"error"`
}

// writeAuthError writes the standard error envelope. It mirrors
// api.ResponseWriter, which this package cannot import.
func writeAuthError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	var body authErrorBody
	body.Error.Code = code
	body.Error.Message = message
	body.Error.RequestID = requestID(r)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("Failed to write auth error response")
	}
}
