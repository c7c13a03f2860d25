// Pulseboard - Developer Time Tracking and Activity Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulseboard

package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/tomtom215/pulseboard/internal/audit"
	"github.com/tomtom215/pulseboard/internal/logging"
	"github.com/tomtom215/pulseboard/internal/metrics"
	"github.com/tomtom215/pulseboard/internal/models"
	"github.com/tomtom215/pulseboard/internal/postgres"
)

// ErrInvalidCredentials is returned by local sign-in for an unknown email or
// a wrong password. The two cases are not distinguished.
var ErrInvalidCredentials = errors.New("invalid email or password")

// DefaultPasswordCost is the bcrypt cost for new local accounts.
const DefaultPasswordCost = 12

// UserStore is the part of the user repository the sign-in flows need.
type UserStore interface {
	UserLookup
	UpsertExternal(ctx context.Context, p models.ExternalProfile) (*models.User, bool, error)
	CreateLocal(ctx context.Context, email, fullName, passwordHash string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// ClientInfo describes the device a sign-in or refresh comes from.
type ClientInfo struct {
	Device    models.DeviceInfo
	UserAgent string
	IPAddress string
	Country   string
}

// ClientInfoFromRequest reads device, address and country details from r.
func ClientInfoFromRequest(r *http.Request) ClientInfo {
	return ClientInfo{
		Device:    ParseUserAgent(r.UserAgent()),
		UserAgent: r.UserAgent(),
		IPAddress: ClientIP(r),
		Country:   ClientCountry(r),
	}
}

// TokenPair is an issued access and refresh token for one session.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	ExpiresIn        int64     `json:"expires_in"`
	AccessExpiresAt  time.Time `json:"-"`
	RefreshExpiresAt time.Time `json:"-"`
}

// SignInResult is returned by every flow that issues credentials.
type SignInResult struct {
	User      *models.User `json:"user"`
	SessionID string       `json:"session_id"`
	Tokens    *TokenPair   `json:"tokens"`

	// SessionCreated is false when an existing device session was reused.
	SessionCreated bool `json:"session_created"`
	// UserCreated is true on a user's first sign-in.
	UserCreated bool `json:"user_created"`
}

// ServiceConfig wires the dependencies of Service.
type ServiceConfig struct {
	Issuer       *Issuer
	Sessions     SessionStore
	Users        UserStore
	Audit        audit.Recorder
	PasswordCost int
}

// Service runs the sign-in, refresh and logout flows. Each flow finds or
// creates a device session, issues a token pair and records audit events.
type Service struct {
	issuer       *Issuer
	sessions     SessionStore
	users        UserStore
	recorder     audit.Recorder
	passwordCost int
	log          zerolog.Logger

	dummyHash func() []byte
}

// NewService creates the auth flow service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Issuer == nil || cfg.Sessions == nil || cfg.Users == nil || cfg.Audit == nil {
		return nil, fmt.Errorf("auth service requires issuer, sessions, users and audit")
	}
	cost := cfg.PasswordCost
	if cost == 0 {
		cost = DefaultPasswordCost
	}
	return &Service{
		issuer:       cfg.Issuer,
		sessions:     cfg.Sessions,
		users:        cfg.Users,
		recorder:     cfg.Audit,
		passwordCost: cost,
		log:          logging.WithComponent("auth"),
		// Compared against when the email is unknown so both failure paths
		// spend the same bcrypt time.
		dummyHash: sync.OnceValue(func() []byte {
			h, _ := bcrypt.GenerateFromPassword([]byte("pulseboard-dummy-password"), cost)
			return h
		}),
	}, nil
}

// Issuer returns the credential issuer.
func (s *Service) Issuer() *Issuer { return s.issuer }

// SignInExternal upserts the user from an identity provider profile and
// starts or reuses a device session.
func (s *Service) SignInExternal(ctx context.Context, profile models.ExternalProfile, client ClientInfo) (*SignInResult, error) {
	user, created, err := s.users.UpsertExternal(ctx, profile)
	if err != nil {
		s.recordFailure(0, profile.Email, profile.Provider, client, err.Error())
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	if created {
		logging.Ctx(ctx).Info().Int64("user_id", user.ID).Str("provider", profile.Provider).Msg("User created")
	}

	res, err := s.startSession(ctx, user, profile.Provider, client)
	if err != nil {
		return nil, err
	}
	res.UserCreated = created
	return res, nil
}

// SignInLocal verifies an email and password and starts or reuses a device
// session. Failures are audited and return ErrInvalidCredentials.
func (s *Service) SignInLocal(ctx context.Context, email, password string, client ClientInfo) (*SignInResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, postgres.ErrNotFound) {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if user == nil || user.PasswordHash == "" {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash(), []byte(password))
		var uid int64
		if user != nil {
			uid = user.ID
		}
		s.recordFailure(uid, email, audit.ProviderLocal, client, "unknown account")
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.recordFailure(user.ID, email, audit.ProviderLocal, client, "password mismatch")
		return nil, ErrInvalidCredentials
	}

	return s.startSession(ctx, user, audit.ProviderLocal, client)
}

// Register creates a local account and signs it in.
func (s *Service) Register(ctx context.Context, email, fullName, password string, client ClientInfo) (*SignInResult, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.passwordCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user, err := s.users.CreateLocal(ctx, strings.ToLower(strings.TrimSpace(email)), fullName, string(hash))
	if err != nil {
		return nil, err
	}
	logging.Ctx(ctx).Info().Int64("user_id", user.ID).Msg("Local user registered")

	res, err := s.startSession(ctx, user, audit.ProviderLocal, client)
	if err != nil {
		return nil, err
	}
	res.UserCreated = true
	return res, nil
}

// Refresh exchanges a refresh token for a new pair. The session must still
// be active; its refresh id is rotated so the old token stops working.
func (s *Service) Refresh(ctx context.Context, refreshToken string, client ClientInfo) (*SignInResult, error) {
	refreshID, err := s.issuer.VerifyRefreshToken(refreshToken)
	if err != nil {
		metrics.RecordAuthAttempt("refresh", false)
		return nil, err
	}

	sess, err := s.sessions.GetSessionByRefreshID(ctx, refreshID)
	if err != nil {
		metrics.RecordAuthAttempt("refresh", false)
		if errors.Is(err, ErrSessionNotFound) {
			logging.Ctx(ctx).Debug().Msg("Refresh for unknown or revoked session")
		}
		return nil, err
	}

	user, err := s.users.GetByID(ctx, sess.UserID)
	if err != nil {
		return nil, fmt.Errorf("lookup session user: %w", err)
	}

	newToken, newRefreshID, err := s.issuer.IssueRefreshToken()
	if err != nil {
		return nil, err
	}
	refreshExpiry := s.issuer.RefreshExpiry()
	ok, err := s.sessions.UpdateSessionToken(ctx, sess.ID, newRefreshID, refreshExpiry)
	if err != nil {
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}
	if !ok {
		metrics.RecordAuthAttempt("refresh", false)
		return nil, ErrSessionNotFound
	}
	if err := s.sessions.TouchActivity(ctx, sess.ID); err != nil && !errors.Is(err, ErrSessionNotFound) {
		logging.Ctx(ctx).Warn().Err(err).Str("session_id", sess.ID).Msg("Failed to touch session")
	}

	pair, err := s.pair(user, sess.ID, newToken, refreshExpiry)
	if err != nil {
		return nil, err
	}

	metrics.RecordAuthAttempt("refresh", true)
	s.recorder.Record(s.event(user, user.Provider, sess.ID, audit.EventRefreshed, client))
	return &SignInResult{User: user, SessionID: sess.ID, Tokens: pair}, nil
}

// Logout revokes the session identified by refreshToken, or sessionID when
// the token is unusable. It reports whether a session was revoked. Logging
// out twice is not an error.
func (s *Service) Logout(ctx context.Context, refreshToken, sessionID string, client ClientInfo) (bool, error) {
	var sess *models.Session
	if refreshToken != "" {
		if refreshID, err := s.issuer.VerifyRefreshToken(refreshToken); err == nil {
			sess, err = s.sessions.GetSessionByRefreshID(ctx, refreshID)
			if err != nil && !errors.Is(err, ErrSessionNotFound) {
				return false, fmt.Errorf("lookup session: %w", err)
			}
		}
	}
	if sess == nil && sessionID != "" {
		found, err := s.sessions.GetSessionByID(ctx, sessionID)
		if err != nil && !errors.Is(err, ErrSessionNotFound) {
			return false, fmt.Errorf("lookup session: %w", err)
		}
		sess = found
	}
	if sess == nil {
		return false, nil
	}

	revoked, err := s.sessions.Revoke(ctx, sess.ID, sess.UserID)
	if err != nil {
		return false, fmt.Errorf("revoke session: %w", err)
	}

	user := s.auditUser(ctx, sess.UserID)
	provider := user.Provider
	if revoked {
		metrics.RecordSessionsRevoked("logout", 1)
		s.recorder.Record(s.event(user, provider, sess.ID, audit.EventRevoked, client))
	}
	s.recorder.Record(s.event(user, provider, sess.ID, audit.EventSignedOut, client))
	return revoked, nil
}

// RevokeSession revokes one of userID's sessions. It reports false when the
// session does not exist, is inactive or belongs to someone else.
func (s *Service) RevokeSession(ctx context.Context, userID int64, sessionID string, client ClientInfo) (bool, error) {
	ok, err := s.sessions.Revoke(ctx, sessionID, userID)
	if err != nil {
		return false, fmt.Errorf("revoke session: %w", err)
	}
	if ok {
		metrics.RecordSessionsRevoked("user", 1)
		user := s.auditUser(ctx, userID)
		s.recorder.Record(s.event(user, user.Provider, sessionID, audit.EventRevoked, client))
	}
	return ok, nil
}

// RevokeOthers revokes every active session of userID except keepSessionID.
func (s *Service) RevokeOthers(ctx context.Context, userID int64, keepSessionID string, client ClientInfo) (int64, error) {
	n, err := s.sessions.RevokeAllExcept(ctx, userID, keepSessionID)
	if err != nil {
		return 0, fmt.Errorf("revoke sessions: %w", err)
	}
	if n > 0 {
		metrics.RecordSessionsRevoked("revoke_others", n)
		user := s.auditUser(ctx, userID)
		e := s.event(user, user.Provider, keepSessionID, audit.EventRevoked, client)
		e.Metadata = map[string]any{"revoked_count": n, "kept_session_id": keepSessionID}
		s.recorder.Record(e)
	}
	return n, nil
}

// auditUser loads userID for an audit event. A failed lookup still yields
// the id so the event is recorded.
func (s *Service) auditUser(ctx context.Context, userID int64) *models.User {
	if u, err := s.users.GetByID(ctx, userID); err == nil {
		return u
	}
	return &models.User{ID: userID}
}

// startSession reuses the caller's device session when one matches and
// creates one otherwise, then issues a token pair bound to it.
func (s *Service) startSession(ctx context.Context, user *models.User, provider string, client ClientInfo) (*SignInResult, error) {
	refreshToken, refreshID, err := s.issuer.IssueRefreshToken()
	if err != nil {
		return nil, err
	}
	expiresAt := s.issuer.RefreshExpiry()

	var sessionID string
	existing, err := s.sessions.FindExistingSession(ctx, user.ID, client.Device, client.IPAddress)
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	if existing != nil {
		ok, err := s.sessions.UpdateSessionToken(ctx, existing.ID, refreshID, expiresAt)
		if err != nil {
			return nil, fmt.Errorf("reuse session: %w", err)
		}
		if ok {
			sessionID = existing.ID
		}
	}

	created := sessionID == ""
	if created {
		sessionID, err = s.sessions.CreateSession(ctx, NewSession{
			UserID:    user.ID,
			RefreshID: refreshID,
			Device:    client.Device,
			IPAddress: client.IPAddress,
			ExpiresAt: expiresAt,
		})
		if err != nil {
			return nil, fmt.Errorf("create session: %w", err)
		}
		metrics.SessionsCreated.Inc()
	} else {
		metrics.SessionsReused.Inc()
	}

	pair, err := s.pair(user, sessionID, refreshToken, expiresAt)
	if err != nil {
		return nil, err
	}

	lifecycle := audit.EventRefreshed
	if created {
		lifecycle = audit.EventCreated
	}
	s.recorder.Record(s.event(user, provider, sessionID, lifecycle, client))
	s.recorder.Record(s.event(user, provider, sessionID, audit.EventSignedIn, client))
	metrics.RecordAuthAttempt(provider, true)

	s.log.Debug().
		Int64("user_id", user.ID).
		Str("session_id", sessionID).
		Bool("session_created", created).
		Str("provider", provider).
		Msg("Session started")

	return &SignInResult{User: user, SessionID: sessionID, Tokens: pair, SessionCreated: created}, nil
}

func (s *Service) pair(user *models.User, sessionID, refreshToken string, refreshExpiry time.Time) (*TokenPair, error) {
	access, err := s.issuer.IssueAccessToken(UserClaims{
		UserID:    user.ID,
		Email:     user.Email,
		FullName:  user.FullName,
		AvatarURL: user.AvatarURL,
		SessionID: sessionID,
	})
	if err != nil {
		return nil, err
	}
	ttl := s.issuer.AccessTTL()
	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refreshToken,
		TokenType:        "Bearer",
		ExpiresIn:        int64(ttl.Seconds()),
		AccessExpiresAt:  s.issuer.now().Add(ttl),
		RefreshExpiresAt: refreshExpiry,
	}, nil
}

func (s *Service) event(user *models.User, provider, sessionID string, typ audit.EventType, client ClientInfo) *audit.Event {
	return &audit.Event{
		UserID:     user.ID,
		Email:      user.Email,
		Success:    true,
		IPAddress:  client.IPAddress,
		UserAgent:  client.UserAgent,
		DeviceType: client.Device.DeviceType,
		Browser:    client.Device.Browser,
		OS:         client.Device.OS,
		Country:    client.Country,
		Provider:   provider,
		SessionID:  sessionID,
		EventType:  typ,
	}
}

func (s *Service) recordFailure(userID int64, email, provider string, client ClientInfo, reason string) {
	metrics.RecordAuthAttempt(provider, false)
	e := s.event(&models.User{ID: userID, Email: email}, provider, "", audit.EventFailed, client)
	e.Success = false
	e.ErrorMessage = reason
	s.recorder.Record(e)
}
