// Pulseboard - Developer Time Tracking and Activity Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulseboard

package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/zitadel/oidc/v3/pkg/client/rp"
	"golang.org/x/oauth2"
	"github.com/zitadel/oidc/v3/pkg/oidc"

	"github.com/tomtom215/pulseboard/internal/config"
	"github.com/tomtom215/pulseboard/internal/logging"
	"github.com/tomtom215/pulseboard/internal/metrics"
	"github.com/tomtom215/pulseboard/internal/models"
)

var (
	// ErrUnknownProvider is returned for a provider name that is not configured.
	ErrUnknownProvider = errors.New("unknown identity provider")
	// ErrProviderUnavailable is returned while the provider's circuit is open.
	ErrProviderUnavailable = errors.New("identity provider unavailable")
	// ErrExchangeFailed wraps a failed authorization code exchange.
	ErrExchangeFailed = errors.New("authorization code exchange failed")
)

const defaultStateTTL = 10 * time.Minute

type (
	// AuthURLFunc builds the provider authorization URL for a state and
	// S256 code challenge.
	AuthURLFunc func(state, codeChallenge string) string
	// ExchangeFunc redeems an authorization code and returns the ID token claims.
	ExchangeFunc func(ctx context.Context, code, codeVerifier string) (*oidc.IDTokenClaims, error)
)

// Provider runs the authorization code flow with PKCE against one OpenID
// Connect identity provider.
type Provider struct {
	name     string
	states   StateStore
	stateTTL time.Duration
	now      func() time.Time

	authURL  AuthURLFunc
	exchange ExchangeFunc
	breaker  *gobreaker.CircuitBreaker[*oidc.IDTokenClaims]
}

// NewProvider performs OIDC discovery for cfg and returns a Provider.
func NewProvider(ctx context.Context, name string, cfg config.ProviderConfig, states StateStore, stateTTL time.Duration) (*Provider, error) {
	if cfg.IssuerURL == "" || cfg.ClientID == "" || cfg.RedirectURL == "" {
		return nil, fmt.Errorf("provider %s: issuer_url, client_id and redirect_url are required", name)
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, oidc.ScopeProfile, oidc.ScopeEmail}
	}

	relyingParty, err := rp.NewRelyingPartyOIDC(ctx, cfg.IssuerURL, cfg.ClientID, cfg.ClientSecret,
		cfg.RedirectURL, scopes, rp.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}))
	if err != nil {
		return nil, fmt.Errorf("provider %s: create relying party: %w", name, err)
	}

	authURL := func(state, challenge string) string {
		return rp.AuthURL(state, relyingParty, rp.WithCodeChallenge(challenge))
	}
	exchange := func(ctx context.Context, code, verifier string) (*oidc.IDTokenClaims, error) {
		tokens, err := rp.CodeExchange[*oidc.IDTokenClaims](ctx, code, relyingParty, rp.WithCodeVerifier(verifier))
		if err != nil {
			return nil, err
		}
		if tokens.IDTokenClaims == nil {
			return nil, errors.New("no id token in response")
		}
		return tokens.IDTokenClaims, nil
	}

	logging.Info().Str("provider", name).Str("issuer", relyingParty.Issuer()).Msg("Identity provider configured")
	return newProvider(name, states, stateTTL, authURL, exchange), nil
}

// NewCustomProvider builds a Provider for an identity provider without
// discovery, from explicit authorization URL and code exchange functions.
func NewCustomProvider(name string, states StateStore, stateTTL time.Duration, authURL AuthURLFunc, exchange ExchangeFunc) *Provider {
	return newProvider(name, states, stateTTL, authURL, exchange)
}

func newProvider(name string, states StateStore, stateTTL time.Duration, authURL AuthURLFunc, exchange ExchangeFunc) *Provider {
	if stateTTL <= 0 {
		stateTTL = defaultStateTTL
	}
	p := &Provider{
		name:     name,
		states:   states,
		stateTTL: stateTTL,
		now:      time.Now,
		authURL:  authURL,
		exchange: exchange,
	}
	p.breaker = gobreaker.NewCircuitBreaker[*oidc.IDTokenClaims](gobreaker.Settings{
		Name:        "oidc-" + name,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: providerHealthy,
		OnStateChange: func(breaker string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", breaker).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Identity provider circuit breaker state changed")
		},
	})
	return p
}

// providerHealthy reports whether an exchange error leaves the breaker
// counts untouched. A 4xx from the token endpoint, such as invalid_grant for
// a bad code, is a client error and never trips the circuit.
func providerHealthy(err error) bool {
	if err == nil {
		return true
	}
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		code := retrieveErr.Response.StatusCode
		return code >= 400 && code < 500
	}
	return false
}

// Name returns the configured provider name.
func (p *Provider) Name() string { return p.name }

// AuthorizationURL stores a fresh state and PKCE verifier and returns the
// provider URL to redirect the browser to.
func (p *Provider) AuthorizationURL(ctx context.Context, redirect string) (string, error) {
	state, err := randomString(32)
	if err != nil {
		return "", err
	}
	verifier, err := randomString(32)
	if err != nil {
		return "", err
	}

	now := p.now()
	if err := p.states.Put(ctx, state, &StateData{
		Provider:     p.name,
		CodeVerifier: verifier,
		Redirect:     redirect,
		CreatedAt:    now,
		ExpiresAt:    now.Add(p.stateTTL),
	}); err != nil {
		return "", fmt.Errorf("store state: %w", err)
	}
	return p.authURL(state, oidc.NewSHACodeChallenge(verifier)), nil
}

// Exchange consumes state, exchanges code for tokens and returns the
// caller's profile together with the redirect stored at login.
func (p *Provider) Exchange(ctx context.Context, code, state string) (*models.ExternalProfile, string, error) {
	data, err := p.states.Consume(ctx, state)
	if err != nil {
		return nil, "", err
	}
	if data.Provider != p.name {
		return nil, "", ErrStateNotFound
	}

	claims, err := p.breaker.Execute(func() (*oidc.IDTokenClaims, error) {
		return p.exchange(ctx, code, data.CodeVerifier)
	})
	if err != nil {
		metrics.ProviderRequests.WithLabelValues(p.name, "error").Inc()
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, "", fmt.Errorf("%w: %s", ErrProviderUnavailable, p.name)
		}
		return nil, "", fmt.Errorf("%w: %w", ErrExchangeFailed, err)
	}
	metrics.ProviderRequests.WithLabelValues(p.name, "success").Inc()

	if claims.Subject == "" {
		return nil, "", fmt.Errorf("%w: id token has no subject", ErrExchangeFailed)
	}
	profile := &models.ExternalProfile{
		Provider:   p.name,
		ExternalID: claims.Subject,
		Email:      strings.ToLower(claims.Email),
		FullName:   claims.Name,
		AvatarURL:  claims.Picture,
	}
	if profile.FullName == "" {
		profile.FullName = claims.PreferredUsername
	}
	return profile, data.Redirect, nil
}

// Providers indexes the configured identity providers by name.
type Providers map[string]*Provider

// Get returns the named provider or ErrUnknownProvider.
func (ps Providers) Get(name string) (*Provider, error) {
	p, ok := ps[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return p, nil
}

// NewProviders builds every provider in cfg. A provider whose discovery
// fails is logged and skipped so one unreachable issuer does not stop the
// server.
func NewProviders(ctx context.Context, cfg config.OAuthConfig, states StateStore) Providers {
	ps := make(Providers, len(cfg.Providers))
	for name, pc := range cfg.Providers {
		p, err := NewProvider(ctx, name, pc, states, cfg.StateTTL)
		if err != nil {
			logging.Error().Err(err).Str("provider", name).Msg("Identity provider disabled")
			continue
		}
		ps[name] = p
	}
	return ps
}

func randomString(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
