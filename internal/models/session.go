// Pulseboard - Developer Time Tracking and Activity Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulseboard

package models

import "time"

// UnknownDevice is the placeholder for undetectable device attributes.
const UnknownDevice = "Unknown"

// DeviceInfo is best-effort metadata derived from the User-Agent.
type DeviceInfo struct {
	DeviceName string `json:"device_name"`
	DeviceType string `json:"device_type"`
	Browser    string `json:"browser"`
	OS         string `json:"os"`
}

// Normalize replaces empty fields with UnknownDevice.
func (d DeviceInfo) Normalize() DeviceInfo {
	if d.DeviceName == "" {
		d.DeviceName = UnknownDevice
	}
	if d.DeviceType == "" {
		d.DeviceType = UnknownDevice
	}
	if d.Browser == "" {
		d.Browser = UnknownDevice
	}
	if d.OS == "" {
		d.OS = UnknownDevice
	}
	return d
}

// Session is one authenticated device or browser instance of a user.
// A session is active iff it is not revoked and has not expired.
type Session struct {
	ID         string    `json:"id"`
	UserID     int64     `json:"user_id"`
	RefreshID  string    `json:"-"`
	DeviceName string    `json:"device_name"`
	DeviceType string    `json:"device_type"`
	Browser    string    `json:"browser"`
	OS         string    `json:"os"`
	IPAddress  string    `json:"ip_address"`
	LastActive time.Time `json:"last_active"`
	ExpiresAt  time.Time `json:"expires_at"`
	Revoked    bool      `json:"revoked"`
	CreatedAt  time.Time `json:"created_at"`

	// Current is set by the API when the session belongs to the caller's request.
	Current bool `json:"current,omitempty"`
}

// IsActive reports whether the session can still be used at now.
func (s *Session) IsActive(now time.Time) bool {
	return !s.Revoked && now.Before(s.ExpiresAt)
}

// Device returns the session's device metadata.
func (s *Session) Device() DeviceInfo {
	return DeviceInfo{DeviceName: s.DeviceName, DeviceType: s.DeviceType, Browser: s.Browser, OS: s.OS}
}
