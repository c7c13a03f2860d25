// Pulseboard - Developer Time Tracking and Activity Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulseboard

package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/pulseboard/internal/logging"
	"github.com/tomtom215/pulseboard/internal/models"
	"github.com/tomtom215/pulseboard/internal/validation"
)

// BillingWebhook handles POST /api/v1/billing/webhook. The raw body must be
// signed with HMAC-SHA256 under the shared secret; the hex digest is sent in
// the signature header, optionally prefixed with "sha256=". Redelivered
// event IDs are acknowledged without being applied twice.
func (h *Handler) BillingWebhook(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.billing == nil || len(h.billingSecret) == 0 {
		rw.NotFound("Billing webhooks are not enabled")
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		rw.BadRequest("Failed to read request body")
		return
	}

	if !h.validSignature(payload, r.Header.Get(h.signatureHeader)) {
		logging.Ctx(r.Context()).Warn().
			Str("remote_addr", sanitizeLogValue(r.RemoteAddr)).
			Msg("Billing webhook signature rejected")
		rw.Error(http.StatusBadRequest, ErrCodeInvalidSignature, "Invalid webhook signature")
		return
	}

	var event models.BillingEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		rw.BadRequest("invalid JSON body")
		return
	}
	if verr := validation.ValidateStruct(&event); verr != nil {
		rw.ValidationError(verr)
		return
	}

	duplicate, err := h.billing.SaveWebhook(r.Context(), &event, payload)
	if err != nil {
		rw.DatabaseError(err)
		return
	}

	logging.Ctx(r.Context()).Info().
		Str("event_id", sanitizeLogValue(event.ID)).
		Str("event_type", sanitizeLogValue(event.Type)).
		Bool("duplicate", duplicate).
		Msg("Billing webhook received")
	rw.Success(map[string]bool{"received": true, "duplicate": duplicate})
}

func (h *Handler) validSignature(payload []byte, header string) bool {
	sig := strings.TrimPrefix(strings.TrimSpace(header), "sha256=")
	if sig == "" {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, h.billingSecret)
	mac.Write(payload)
	return hmac.Equal(got, mac.Sum(nil))
}
