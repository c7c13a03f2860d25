// Pulseboard - Developer Time Tracking and Activity Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulseboard

package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tomtom215/pulseboard/internal/logging"
	"github.com/tomtom215/pulseboard/internal/models"
)

// subscriptionEventPrefix marks events whose data is a models.SubscriptionData.
const subscriptionEventPrefix = "customer.subscription."

// BillingStore persists billing webhook deliveries.
type BillingStore struct {
	pool *pgxpool.Pool
}

// NewBillingStore creates a BillingStore over pool.
func NewBillingStore(pool *pgxpool.Pool) *BillingStore {
	return &BillingStore{pool: pool}
}

// SaveWebhook stores the delivery and, for subscription events, mirrors the
// subscription onto the user. Redelivered events are ignored; duplicate is
// true when the event id was already stored.
func (s *BillingStore) SaveWebhook(ctx context.Context, event *models.BillingEvent, payload []byte) (duplicate bool, err error) {
	var sub *models.SubscriptionData
	if strings.HasPrefix(event.Type, subscriptionEventPrefix) && len(event.Data) > 0 {
		sub = &models.SubscriptionData{}
		if err := json.Unmarshal(event.Data, sub); err != nil {
			return false, fmt.Errorf("decode subscription data: %w", err)
		}
		if sub.UserID == 0 {
			sub = nil
		}
	}

	err = WithTx(ctx, s.pool, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`INSERT INTO billing_webhooks (id, event_type, payload) VALUES ($1, $2, $3) ON CONFLICT (id) DO NOTHING`,
			event.ID, event.Type, payload)
		if err != nil {
			return fmt.Errorf("insert billing webhook: %w", err)
		}
		if tag.RowsAffected() == 0 {
			duplicate = true
			return nil
		}
		if sub == nil {
			return nil
		}

		batch := &pgx.Batch{}
		batch.Queue(`UPDATE users SET subscription_status = $2, subscription_id = $3, updated_at = NOW() WHERE id = $1`,
			sub.UserID, sub.Status, sub.SubscriptionID)
		br := tx.SendBatch(ctx, batch)
		tag, err = br.Exec()
		if closeErr := br.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return fmt.Errorf("mirror subscription: %w", err)
		}
		if tag.RowsAffected() == 0 {
			logging.Warn().Int64("user_id", sub.UserID).Str("event_id", event.ID).
				Msg("Billing webhook references unknown user")
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return duplicate, nil
}

// GetWebhook returns a stored delivery or ErrNotFound.
func (s *BillingStore) GetWebhook(ctx context.Context, id string) (*models.BillingWebhook, error) {
	var w models.BillingWebhook
	err := s.pool.QueryRow(ctx,
		`SELECT id, event_type, payload, received_at FROM billing_webhooks WHERE id = $1`, id,
	).Scan(&w.ID, &w.EventType, &w.Payload, &w.ReceivedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get billing webhook: %w", err)
	}
	return &w, nil
}
