// Pulseboard - Developer Time Tracking and Activity Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulseboard

package auth

import (
	"net/http"
	"time"
)

// CookieSettings controls the attributes of the token cookies.
type CookieSettings struct {
	Secure bool
	Domain string
}

// SetTokenCookies writes the access and refresh cookies for pair.
// Both are HttpOnly and SameSite=Lax.
func (c CookieSettings) SetTokenCookies(w http.ResponseWriter, pair *TokenPair) {
	http.SetCookie(w, c.cookie(AccessTokenCookie, pair.AccessToken, pair.AccessExpiresAt))
	http.SetCookie(w, c.cookie(RefreshTokenCookie, pair.RefreshToken, pair.RefreshExpiresAt))
}

// ClearTokenCookies expires both token cookies.
func (c CookieSettings) ClearTokenCookies(w http.ResponseWriter) {
	for _, name := range []string{AccessTokenCookie, RefreshTokenCookie} {
		ck := c.cookie(name, "", time.Unix(0, 0))
		ck.MaxAge = -1
		http.SetCookie(w, ck)
	}
}

func (c CookieSettings) cookie(name, value string, expires time.Time) *http.Cookie {
	ck := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   c.Domain,
		Expires:  expires,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if !expires.IsZero() {
		if maxAge := int(time.Until(expires).Seconds()); maxAge > 0 {
			ck.MaxAge = maxAge
		}
	}
	return ck
}
