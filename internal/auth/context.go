// Pulseboard - Developer Time Tracking and Activity Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulseboard

package auth

import (
	"context"

	"github.com/tomtom215/pulseboard/internal/models"
)

// AuthMethod names the credential carrier that authenticated a request.
type AuthMethod string

const (
	AuthMethodBearer AuthMethod = "bearer"
	AuthMethodCookie AuthMethod = "cookie"
	AuthMethodAPIKey AuthMethod = "api_key"
)

// RequestContext is what the auth middleware knows about the caller.
// User is nil when the middleware has no UserLookup configured.
type RequestContext struct {
	UserID     int64
	User       *models.User
	SessionID  string
	AuthMethod AuthMethod
	Device     models.DeviceInfo
	IPAddress  string
	RequestID  string
}

type requestContextKey struct{}

// WithRequestContext returns a copy of ctx carrying rc.
func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// FromContext returns the RequestContext attached by the middleware.
func FromContext(ctx context.Context) (*RequestContext, bool) {
	rc, ok := ctx.Value(requestContextKey{}).(*RequestContext)
	return rc, ok && rc != nil
}
