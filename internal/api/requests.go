// Pulseboard - Developer Time Tracking and Activity Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulseboard

package api

// Request bodies validated with go-playground/validator tags before use.

// LoginRequest is the body of POST /api/v1/auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,max=72"`
}

// RegisterRequest is the body of POST /api/v1/auth/register. bcrypt ignores
// input past 72 bytes, so longer passwords are rejected.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	FullName string `json:"full_name" validate:"max=255"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// RefreshRequest is the optional body of refresh and logout calls made
// without cookies.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// PulseError lists the validation failures of one rejected pulse.
type PulseError struct {
	Index   int               `json:"index"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// PulseIngestResult is returned by the pulse ingest endpoint.
type PulseIngestResult struct {
	Accepted int          `json:"accepted"`
	Inserted int          `json:"inserted"`
	Rejected int          `json:"rejected"`
	Errors   []PulseError `json:"errors,omitempty"`
}
