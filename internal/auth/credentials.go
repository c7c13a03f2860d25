// Pulseboard - Developer Time Tracking and Activity Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulseboard

package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tomtom215/pulseboard/internal/config"
)

// ErrInvalidToken is returned for any token that fails verification.
// The underlying cause is wrapped.
var ErrInvalidToken = errors.New("invalid token")

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"

	// refreshIDBytes is the entropy of the opaque refresh identifier.
	refreshIDBytes = 32
)

// UserClaims is the identity encoded into an access token.
type UserClaims struct {
	UserID    int64
	Email     string
	FullName  string
	AvatarURL string

	// SessionID ties the token to the device session it was issued for.
	SessionID string
}

// AccessClaims are the JWT claims of an access token.
type AccessClaims struct {
	UserID    int64  `json:"uid"`
	Email     string `json:"email"`
	FullName  string `json:"name"`
	AvatarURL string `json:"avatar,omitempty"`
	SessionID string `json:"sid,omitempty"`
	Type      string `json:"typ"`
	jwt.RegisteredClaims
}

type refreshClaims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

// Issuer mints and verifies access and refresh tokens. It holds no state
// beyond the signing secret, so one instance is shared by all requests.
type Issuer struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewIssuer creates an Issuer from the security configuration.
//
// The secret is validated for length by config.Validate; an empty secret is
// rejected here as well so that tests constructing an Issuer directly cannot
// sign with a zero key.
func NewIssuer(cfg *config.SecurityConfig) (*Issuer, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required but was empty")
	}

	accessTTL := cfg.AccessTokenTTL
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	refreshTTL := cfg.RefreshTokenTTL
	if refreshTTL <= 0 {
		refreshTTL = 30 * 24 * time.Hour
	}

	return &Issuer{
		secret:     []byte(cfg.JWTSecret),
		issuer:     cfg.JWTIssuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}, nil
}

// WithClock replaces the issuer's time source. It is intended for tests.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	i.now = now
	return i
}

// AccessTTL returns the access token lifetime.
func (i *Issuer) AccessTTL() time.Duration { return i.accessTTL }

// RefreshTTL returns the refresh token lifetime.
func (i *Issuer) RefreshTTL() time.Duration { return i.refreshTTL }

// RefreshExpiry returns when a refresh token issued now expires.
func (i *Issuer) RefreshExpiry() time.Time { return i.now().Add(i.refreshTTL) }

// IssueAccessToken signs a short-lived token carrying the user's identity.
//
// Claims:
//   - uid, email, name, avatar: profile fields from user
//   - sid: the session id, when the token belongs to a device session
//   - typ: "access", so the token is refused where a refresh token is expected
//   - sub: the decimal user id
//   - iat, exp: issue time and issue time + access TTL
//   - iss: the configured issuer, when set
//   - jti: a random UUID
//
// Access tokens are never stored. Revoking the session does not invalidate
// an outstanding access token; it lapses at exp.
func (i *Issuer) IssueAccessToken(user UserClaims) (string, error) {
	now := i.now()
	claims := &AccessClaims{
		UserID:    user.UserID,
		Email:     user.Email,
		FullName:  user.FullName,
		AvatarURL: user.AvatarURL,
		SessionID: user.SessionID,
		Type:      tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.UserID, 10),
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.accessTTL)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

// IssueRefreshToken generates a fresh opaque identifier and signs a token
// carrying only that identifier. Only opaqueID should be persisted.
func (i *Issuer) IssueRefreshToken() (token, opaqueID string, err error) {
	buf := make([]byte, refreshIDBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("failed to generate refresh id: %w", err)
	}
	opaqueID = hex.EncodeToString(buf)

	now := i.now()
	claims := &refreshClaims{
		Type: tokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   opaqueID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.refreshTTL)),
		},
	}

	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", "", fmt.Errorf("failed to sign refresh token: %w", err)
	}
	return token, opaqueID, nil
}

// VerifyAccessToken checks signature, expiry and token type.
func (i *Issuer) VerifyAccessToken(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := i.parse(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.Type != tokenTypeAccess {
		return nil, fmt.Errorf("%w: not an access token", ErrInvalidToken)
	}
	if claims.UserID <= 0 {
		return nil, fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}
	return claims, nil
}

// VerifyRefreshToken checks signature, expiry and token type and returns the
// opaque identifier. It does not check that a session still exists for it.
func (i *Issuer) VerifyRefreshToken(tokenString string) (string, error) {
	claims := &refreshClaims{}
	if err := i.parse(tokenString, claims); err != nil {
		return "", err
	}
	if claims.Type != tokenTypeRefresh {
		return "", fmt.Errorf("%w: not a refresh token", ErrInvalidToken)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}

func (i *Issuer) parse(tokenString string, claims jwt.Claims) error {
	if tokenString == "" {
		return fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	}
	if i.issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.secret, nil
	}, opts...)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return fmt.Errorf("%w: token not valid", ErrInvalidToken)
	}
	return nil
}
