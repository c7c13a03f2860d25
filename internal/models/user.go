// Pulseboard - Developer Time Tracking and Activity Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulseboard

// Package models holds the data structures shared between the stores, the
// auth layer and the HTTP API.
package models

import "time"

// Provider names recorded on users and audit events.
const (
	ProviderLocal  = "local"
	ProviderAPIKey = "api_key"
)

// User is an account. Users are created on first sign-in and never hard-deleted.
type User struct {
	ID         int64  `json:"id"`
	ExternalID string `json:"external_id,omitempty"`
	Provider   string `json:"provider"`
	Email      string `json:"email"`
	FullName   string `json:"full_name"`
	AvatarURL  string `json:"avatar_url,omitempty"`

	// PasswordHash is a bcrypt hash, set only for local accounts.
	PasswordHash string `json:"-"`

	// APIKey is stored and returned in cleartext.
	APIKey           string     `json:"-"`
	APIKeyLastUsedAt *time.Time `json:"api_key_last_used_at,omitempty"`

	SubscriptionStatus string `json:"subscription_status,omitempty"`
	SubscriptionID     string `json:"subscription_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ExternalProfile is what an identity provider tells us about a user.
type ExternalProfile struct {
	Provider   string
	ExternalID string
	Email      string
	FullName   string
	AvatarURL  string
}
