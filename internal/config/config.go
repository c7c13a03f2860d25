// Pulseboard - Developer Time Tracking and Activity Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulseboard

// Package config loads Pulseboard configuration from defaults, an optional
// YAML file and environment variables (in that order of precedence).
package config

import "time"

// Config is the root configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Postgres PostgresConfig `koanf:"postgres"`
	Database DatabaseConfig `koanf:"database"`
	Security SecurityConfig `koanf:"security"`
	Audit    AuditConfig    `koanf:"audit"`
	Sessions SessionsConfig `koanf:"sessions"`
	OAuth    OAuthConfig    `koanf:"oauth"`
	Billing  BillingConfig  `koanf:"billing"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host        string        `koanf:"host"`
	Port        int           `koanf:"port"`
	Timeout     time.Duration `koanf:"timeout"`
	Environment string        `koanf:"environment"`

	// PublicURL is the externally reachable base URL, used for OAuth redirects.
	PublicURL string `koanf:"public_url"`
}

// PostgresConfig holds the relational store connection settings.
type PostgresConfig struct {
	DSN            string        `koanf:"dsn"`
	MaxConns       int32         `koanf:"max_conns"`
	MinConns       int32         `koanf:"min_conns"`
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
}

// DatabaseConfig holds DuckDB (analytical store) settings.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"`
}

// SecurityConfig holds credential, cookie and request-limiting settings.
type SecurityConfig struct {
	JWTSecret       string        `koanf:"jwt_secret"`
	JWTIssuer       string        `koanf:"jwt_issuer"`
	AccessTokenTTL  time.Duration `koanf:"access_token_ttl"`
	RefreshTokenTTL time.Duration `koanf:"refresh_token_ttl"`

	CookieSecure bool   `koanf:"cookie_secure"`
	CookieDomain string `koanf:"cookie_domain"`

	// RefreshPath is where the cookie middleware redirects when only a
	// refresh_token cookie is usable.
	RefreshPath string `koanf:"refresh_path"`

	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`

	// AuthRateLimitReqs applies to sign-in and refresh endpoints per window.
	AuthRateLimitReqs int `koanf:"auth_rate_limit_reqs"`

	CORSOrigins []string `koanf:"cors_origins"`

	// CountryHeader names the request header carrying the client's country
	// code, set by a CDN in front of the server. Empty disables it.
	CountryHeader string `koanf:"country_header"`

	// APIKeyCacheTTL enables an in-process cache of API key lookups when
	// positive. Zero sends every lookup to Postgres.
	APIKeyCacheTTL  time.Duration `koanf:"api_key_cache_ttl"`
	APIKeyCacheSize int           `koanf:"api_key_cache_size"`
}

// AuditConfig controls the asynchronous audit sink.
type AuditConfig struct {
	QueueSize     int           `koanf:"queue_size"`
	BatchSize     int           `koanf:"batch_size"`
	FlushInterval time.Duration `koanf:"flush_interval"`
	StopTimeout   time.Duration `koanf:"stop_timeout"`
}

// SessionsConfig controls device session reuse and expiry sweeping.
type SessionsConfig struct {
	SweepInterval time.Duration `koanf:"sweep_interval"`

	// LooseMatch enables reuse of a session whose browser/OS family matches
	// even when the IP address differs.
	LooseMatch bool `koanf:"loose_match"`
}

// OAuthConfig configures external identity providers.
type OAuthConfig struct {
	StatePath string                    `koanf:"state_path"`
	StateTTL  time.Duration             `koanf:"state_ttl"`
	Providers map[string]ProviderConfig `koanf:"providers"`
}

// ProviderConfig describes one OpenID Connect identity provider.
type ProviderConfig struct {
	IssuerURL    string   `koanf:"issuer_url"`
	ClientID     string   `koanf:"client_id"`
	ClientSecret string   `koanf:"client_secret"`
	RedirectURL  string   `koanf:"redirect_url"`
	Scopes       []string `koanf:"scopes"`
}

// BillingConfig configures billing webhook intake.
type BillingConfig struct {
	WebhookSecret   string `koanf:"webhook_secret"`
	SignatureHeader string `koanf:"signature_header"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Load reads configuration from defaults, config file and environment.
func Load() (*Config, error) {
	return LoadWithKoanf()
}

// IsProduction reports whether the server runs with production checks.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}
