// Pulseboard - Developer Time Tracking and Activity Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulseboard

package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/tomtom215/pulseboard/internal/metrics"
	"github.com/tomtom215/pulseboard/internal/models"
	"github.com/tomtom215/pulseboard/internal/validation"
)

// IngestPulses handles POST /api/v1/users/{userId}/pulses. The body is a JSON
// array of up to models.MaxPulseBatch pulses, each validated on its own.
// Valid pulses are stored even when others are rejected; the response is
// 200 when all were valid, 207 when some were and 400 when none were.
func (h *Handler) IngestPulses(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.pulses == nil {
		rw.NotFound("Pulse ingest is not enabled")
		return
	}
	rc, err := requestContext(r)
	if err != nil {
		rw.Unauthorized("Authentication required")
		return
	}

	var batch []models.PulseInput
	if err := decodeJSON(w, r, &batch); err != nil {
		rw.BadRequest(err.Error())
		return
	}
	if len(batch) == 0 {
		rw.BadRequest("at least one pulse is required")
		return
	}
	if len(batch) > models.MaxPulseBatch {
		rw.BadRequest(fmt.Sprintf("at most %d pulses per request", models.MaxPulseBatch))
		return
	}

	now := time.Now().UTC()
	result := PulseIngestResult{}
	valid := make([]models.Pulse, 0, len(batch))
	for i := range batch {
		if verr := validation.ValidateStruct(&batch[i]); verr != nil {
			result.Errors = append(result.Errors, pulseError(i, verr))
			continue
		}
		valid = append(valid, batch[i].ToPulse(rc.UserID, now))
	}
	result.Accepted = len(valid)
	result.Rejected = len(result.Errors)
	metrics.RecordPulses(result.Accepted, result.Rejected)

	if len(valid) == 0 {
		rw.ErrorWithDetails(http.StatusBadRequest, ErrCodeValidationFailed, "No valid pulses in batch", result.Errors)
		return
	}

	inserted, err := h.pulses.InsertPulses(r.Context(), valid)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	result.Inserted = inserted

	if result.Rejected > 0 {
		rw.MultiStatus(result, fmt.Sprintf("%d of %d pulses rejected", result.Rejected, len(batch)))
		return
	}
	rw.Success(result)
}

func pulseError(index int, verr *validation.RequestValidationError) PulseError {
	pe := PulseError{Index: index, Message: verr.Error(), Fields: make(map[string]string)}
	for _, fe := range verr.Errors() {
		pe.Fields[fe.Field()] = fe.Error()
	}
	return pe
}
