// Pulseboard - Developer Time Tracking and Activity Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulseboard

package config

import (
	"fmt"
	"strings"
	"time"
)

// minJWTSecretLength is the shortest accepted HMAC secret.
const minJWTSecretLength = 32

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateServer,
		c.validatePostgres,
		c.validateDatabase,
		c.validateSecurity,
		c.validateAudit,
		c.validateSessions,
		c.validateOAuth,
		c.validateLogging,
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive")
	}
	if c.Server.PublicURL != "" {
		if err := validateHTTPURL(c.Server.PublicURL, "PUBLIC_URL"); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validatePostgres() error {
	if c.Postgres.DSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required")
	}
	if err := validatePostgresDSN(c.Postgres.DSN); err != nil {
		return fmt.Errorf("POSTGRES_DSN is invalid: %w", err)
	}
	if c.Postgres.MaxConns < 1 {
		return fmt.Errorf("POSTGRES_MAX_CONNS must be at least 1")
	}
	if c.Postgres.MinConns < 0 || c.Postgres.MinConns > c.Postgres.MaxConns {
		return fmt.Errorf("POSTGRES_MIN_CONNS must be between 0 and POSTGRES_MAX_CONNS")
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Path == "" {
		return fmt.Errorf("DUCKDB_PATH is required")
	}
	if c.Database.Threads < 0 {
		return fmt.Errorf("DUCKDB_THREADS must not be negative")
	}
	return nil
}

func (c *Config) validateSecurity() error {
	if len(c.Security.JWTSecret) < minJWTSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters", minJWTSecretLength)
	}
	if c.Security.AccessTokenTTL < time.Minute {
		return fmt.Errorf("ACCESS_TOKEN_TTL must be at least 1m")
	}
	if c.Security.RefreshTokenTTL <= c.Security.AccessTokenTTL {
		return fmt.Errorf("REFRESH_TOKEN_TTL must be longer than ACCESS_TOKEN_TTL")
	}
	if !strings.HasPrefix(c.Security.RefreshPath, "/") {
		return fmt.Errorf("REFRESH_PATH must be an absolute path")
	}
	if !c.Security.RateLimitDisabled {
		if c.Security.RateLimitReqs < 1 || c.Security.AuthRateLimitReqs < 1 {
			return fmt.Errorf("RATE_LIMIT_REQUESTS and AUTH_RATE_LIMIT_REQS must be positive")
		}
		if c.Security.RateLimitWindow < time.Second {
			return fmt.Errorf("RATE_LIMIT_WINDOW must be at least 1s")
		}
	}
	if c.IsProduction() {
		if !c.Security.CookieSecure {
			return fmt.Errorf("COOKIE_SECURE must be true in production")
		}
		for _, origin := range c.Security.CORSOrigins {
			if origin == "*" {
				return fmt.Errorf("CORS_ORIGINS must not contain '*' in production")
			}
		}
	}
	return nil
}

func (c *Config) validateAudit() error {
	if c.Audit.QueueSize < 1 {
		return fmt.Errorf("AUDIT_QUEUE_SIZE must be at least 1")
	}
	if c.Audit.BatchSize < 1 || c.Audit.BatchSize > c.Audit.QueueSize {
		return fmt.Errorf("AUDIT_BATCH_SIZE must be between 1 and AUDIT_QUEUE_SIZE")
	}
	if c.Audit.FlushInterval < 10*time.Millisecond || c.Audit.FlushInterval > time.Hour {
		return fmt.Errorf("AUDIT_FLUSH_INTERVAL must be between 10ms and 1h")
	}
	return nil
}

func (c *Config) validateSessions() error {
	if c.Sessions.SweepInterval < time.Minute {
		return fmt.Errorf("SESSION_SWEEP_INTERVAL must be at least 1m")
	}
	return nil
}

func (c *Config) validateOAuth() error {
	if len(c.OAuth.Providers) > 0 && c.OAuth.StatePath == "" {
		return fmt.Errorf("OAUTH_STATE_PATH is required when identity providers are configured")
	}
	for name, p := range c.OAuth.Providers {
		if p.ClientID == "" {
			return fmt.Errorf("oauth provider %q: client_id is required", name)
		}
		if err := validateHTTPURL(p.IssuerURL, "oauth provider "+name+" issuer_url"); err != nil {
			return err
		}
		hasOpenID := false
		for _, s := range p.Scopes {
			if s == "openid" {
				hasOpenID = true
				break
			}
		}
		if !hasOpenID {
			return fmt.Errorf("oauth provider %q: scopes must include 'openid'", name)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic", "disabled":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of trace, debug, info, warn, error, fatal, panic, disabled")
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("LOG_FORMAT must be json or console")
	}
	return nil
}
