// Pulseboard - Developer Time Tracking and Activity Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulseboard

package auth

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/tomtom215/pulseboard/internal/models"
)

// Device types.
const (
	DeviceDesktop = "Desktop"
	DeviceMobile  = "Mobile"
	DeviceTablet  = "Tablet"
	DeviceBot     = "Bot"
)

// browserRule maps a UA token to a browser name. Order matters: Edge and
// Opera carry "Chrome", Chrome carries "Safari".
type browserRule struct {
	token string
	name  string
}

var browserRules = []browserRule{
	{"edg/", "Edge"},
	{"opr/", "Opera"},
	{"firefox/", "Firefox"},
	{"chrome/", "Chrome"},
	{"crios/", "Chrome"},
	{"fxios/", "Firefox"},
	{"safari/", "Safari"},
	{"curl/", "curl"},
	{"go-http-client/", "Go"},
	{"vscode/", "VS Code"},
	{"jetbrains", "JetBrains"},
}

// ParseUserAgent derives best-effort device metadata. Unrecognized fields
// are left as models.UnknownDevice.
func ParseUserAgent(ua string) models.DeviceInfo {
	info := models.DeviceInfo{}
	if strings.TrimSpace(ua) == "" {
		return info.Normalize()
	}
	lower := strings.ToLower(ua)

	for _, rule := range browserRules {
		idx := strings.Index(lower, rule.token)
		if idx < 0 {
			continue
		}
		info.Browser = rule.name
		if strings.HasSuffix(rule.token, "/") {
			if v := majorVersion(ua[idx+len(rule.token):]); v != "" {
				info.Browser += " " + v
			}
		}
		break
	}

	switch {
	case strings.Contains(lower, "iphone"):
		info.OS, info.DeviceType, info.DeviceName = "iOS", DeviceMobile, "iPhone"
	case strings.Contains(lower, "ipad"):
		info.OS, info.DeviceType, info.DeviceName = "iOS", DeviceTablet, "iPad"
	case strings.Contains(lower, "android"):
		info.OS = "Android"
		if strings.Contains(lower, "mobile") {
			info.DeviceType = DeviceMobile
		} else {
			info.DeviceType = DeviceTablet
		}
	case strings.Contains(lower, "windows"):
		info.OS, info.DeviceType, info.DeviceName = "Windows", DeviceDesktop, "Windows PC"
	case strings.Contains(lower, "mac os x") || strings.Contains(lower, "macintosh"):
		info.OS, info.DeviceType, info.DeviceName = "macOS", DeviceDesktop, "Mac"
	case strings.Contains(lower, "cros "):
		info.OS, info.DeviceType, info.DeviceName = "ChromeOS", DeviceDesktop, "Chromebook"
	case strings.Contains(lower, "linux"):
		info.OS, info.DeviceType, info.DeviceName = "Linux", DeviceDesktop, "Linux PC"
	}

	if strings.Contains(lower, "bot") || strings.Contains(lower, "spider") || strings.Contains(lower, "crawler") {
		info.DeviceType = DeviceBot
	}

	return info.Normalize()
}

func majorVersion(s string) string {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	return s[:end]
}

type countryKey struct{}

// CountryFromHeader copies the ISO 3166 country code an upstream CDN or
// proxy puts in header (Cloudflare's CF-IPCountry, for example) into the
// request context, where ClientCountry finds it. An empty header name
// returns a no-op middleware.
func CountryFromHeader(header string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if header == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if code := normalizeCountry(r.Header.Get(header)); code != "" {
				r = r.WithContext(context.WithValue(r.Context(), countryKey{}, code))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientCountry returns the country code stored by CountryFromHeader, or "".
func ClientCountry(r *http.Request) string {
	code, _ := r.Context().Value(countryKey{}).(string)
	return code
}

// normalizeCountry accepts two-character codes. "XX" is Cloudflare's
// unknown marker.
func normalizeCountry(v string) string {
	v = strings.ToUpper(strings.TrimSpace(v))
	if len(v) != 2 || v == "XX" {
		return ""
	}
	for i := 0; i < len(v); i++ {
		if (v[i] < 'A' || v[i] > 'Z') && (v[i] < '0' || v[i] > '9') {
			return ""
		}
	}
	return v
}

// ClientIP returns the request's remote address without the port. chi's
// RealIP middleware has already applied X-Forwarded-For when configured.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
