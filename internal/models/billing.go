// Pulseboard - Developer Time Tracking and Activity Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulseboard

package models

import (
	"time"

	"github.com/goccy/go-json"
)

// BillingEvent is the envelope of a billing provider webhook delivery.
type BillingEvent struct {
	ID   string          `json:"id" validate:"required,max=255"`
	Type string          `json:"type" validate:"required,max=100"`
	Data json.RawMessage `json:"data"`
}

// SubscriptionData is the payload of customer.subscription.* events.
type SubscriptionData struct {
	UserID         int64  `json:"user_id"`
	SubscriptionID string `json:"subscription_id"`
	Status         string `json:"status"`
}

// BillingWebhook is a stored webhook delivery.
type BillingWebhook struct {
	ID         string          `json:"id"`
	EventType  string          `json:"event_type"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"received_at"`
}
