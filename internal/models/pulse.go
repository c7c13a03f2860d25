// Pulseboard - Developer Time Tracking and Activity Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulseboard

package models

import (
	"time"

	"github.com/google/uuid"
)

// MaxPulseBatch is the largest accepted ingest batch.
const MaxPulseBatch = 1000

// PulseInput is one activity pulse as sent by an editor plugin.
type PulseInput struct {
	Time     time.Time `json:"time" validate:"required,notfuture"`
	Duration float64   `json:"duration" validate:"gte=0,lte=86400"`
	Project  string    `json:"project" validate:"max=255"`
	Language string    `json:"language" validate:"max=100"`
	Machine  string    `json:"machine" validate:"max=255"`
	Editor   string    `json:"editor" validate:"max=100"`
	Entity   string    `json:"entity" validate:"max=1024"`
	Branch   string    `json:"branch" validate:"max=255"`
	IsWrite  bool      `json:"is_write"`
}

// Pulse is a stored activity pulse.
type Pulse struct {
	ID              uuid.UUID `json:"id"`
	UserID          int64     `json:"user_id"`
	Timestamp       time.Time `json:"timestamp"`
	DurationSeconds float64   `json:"duration_seconds"`
	Project         string    `json:"project"`
	Language        string    `json:"language"`
	Machine         string    `json:"machine"`
	Editor          string    `json:"editor"`
	Entity          string    `json:"entity"`
	Branch          string    `json:"branch"`
	IsWrite         bool      `json:"is_write"`
	CreatedAt       time.Time `json:"created_at"`
}

// ToPulse converts validated input into a storable pulse for userID.
func (in *PulseInput) ToPulse(userID int64, now time.Time) Pulse {
	return Pulse{
		ID:              uuid.New(),
		UserID:          userID,
		Timestamp:       in.Time.UTC(),
		DurationSeconds: in.Duration,
		Project:         in.Project,
		Language:        in.Language,
		Machine:         in.Machine,
		Editor:          in.Editor,
		Entity:          in.Entity,
		Branch:          in.Branch,
		IsWrite:         in.IsWrite,
		CreatedAt:       now,
	}
}
