// Pulseboard - Developer Time Tracking and Activity Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulseboard

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tomtom215/pulseboard/internal/models"
)

func TestParseUserAgent(t *testing.T) {
	tests := []struct {
		name string
		ua   string
		want models.DeviceInfo
	}{
		{
			name: "chrome on mac",
			ua:   "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			want: models.DeviceInfo{DeviceName: "Mac", DeviceType: DeviceDesktop, Browser: "Chrome 120", OS: "macOS"},
		},
		{
			name: "edge on windows",
			ua:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.2210.91",
			want: models.DeviceInfo{DeviceName: "Windows PC", DeviceType: DeviceDesktop, Browser: "Edge 120", OS: "Windows"},
		},
		{
			name: "safari on iphone",
			ua:   "Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
			want: models.DeviceInfo{DeviceName: "iPhone", DeviceType: DeviceMobile, Browser: "Safari 604", OS: "iOS"},
		},
		{
			name: "firefox on linux",
			ua:   "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
			want: models.DeviceInfo{DeviceName: "Linux PC", DeviceType: DeviceDesktop, Browser: "Firefox 121", OS: "Linux"},
		},
		{
			name: "android tablet",
			ua:   "Mozilla/5.0 (Linux; Android 13; SM-X700) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
			want: models.DeviceInfo{DeviceName: models.UnknownDevice, DeviceType: DeviceTablet, Browser: "Chrome 119", OS: "Android"},
		},
		{
			name: "empty",
			ua:   "",
			want: models.DeviceInfo{}.Normalize(),
		},
		{
			name: "plugin client",
			ua:   "curl/8.4.0",
			want: models.DeviceInfo{DeviceName: models.UnknownDevice, DeviceType: models.UnknownDevice, Browser: "curl 8", OS: models.UnknownDevice},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseUserAgent(tt.ua); got != tt.want {
				t.Errorf("ParseUserAgent() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestCountryFromHeader(t *testing.T) {
	tests := []struct {
		name   string
		header string
		value  string
		want   string
	}{
		{"lowercase code", "CF-IPCountry", "de", "DE"},
		{"tor exit", "CF-IPCountry", "T1", "T1"},
		{"unknown marker", "CF-IPCountry", "XX", ""},
		{"full name", "CF-IPCountry", "Germany", ""},
		{"punctuation", "CF-IPCountry", "D-", ""},
		{"missing", "CF-IPCountry", "", ""},
		{"disabled", "", "DE", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := CountryFromHeader(tt.header)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				got = ClientInfoFromRequest(r).Country
			}))
			r := httptest.NewRequest("GET", "/", nil)
			if tt.value != "" {
				r.Header.Set("CF-IPCountry", tt.value)
			}
			h.ServeHTTP(httptest.NewRecorder(), r)
			if got != tt.want {
				t.Errorf("Country = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "203.0.113.7:51234"
	if got := ClientIP(r); got != "203.0.113.7" {
		t.Errorf("ClientIP() = %q", got)
	}
	r.RemoteAddr = "203.0.113.8"
	if got := ClientIP(r); got != "203.0.113.8" {
		t.Errorf("ClientIP() without port = %q", got)
	}
}
