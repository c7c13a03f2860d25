// Pulseboard - Developer Time Tracking and Activity Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulseboard

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/pulseboard/internal/audit"
)

// defaultAuditWindow is the stats range when start is omitted.
const defaultAuditWindow = 30 * 24 * time.Hour

// AuthLogStats handles GET /api/v1/users/{userId}/auth-logs/stats?start=&end=.
// Both bounds are inclusive; a date-only end covers that whole day.
func (h *Handler) AuthLogStats(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.audit == nil {
		rw.NotFound("Audit log is not enabled")
		return
	}
	rc, err := requestContext(r)
	if err != nil {
		rw.Unauthorized("Authentication required")
		return
	}

	start, err := parseTimeParam(r, "start", false)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}
	end, err := parseTimeParam(r, "end", true)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}
	if end.IsZero() {
		end = time.Now().UTC()
	} else if isDateOnly(r.URL.Query().Get("end")) {
		end = end.Add(-time.Microsecond)
	}
	if start.IsZero() {
		start = end.Add(-defaultAuditWindow)
	}
	if end.Before(start) {
		rw.BadRequest("end must not be before start")
		return
	}

	days, err := h.audit.GetStats(r.Context(), rc.UserID, start, end)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	rw.Success(days)
}

// AuthLogs handles GET /api/v1/users/{userId}/auth-logs?limit=. The limit
// defaults to 50 and is capped at 500.
func (h *Handler) AuthLogs(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.audit == nil {
		rw.NotFound("Audit log is not enabled")
		return
	}
	rc, err := requestContext(r)
	if err != nil {
		rw.Unauthorized("Authentication required")
		return
	}

	limit, err := getIntParam(r, "limit", audit.DefaultRecentLimit)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}

	events, err := h.audit.GetRecentEvents(r.Context(), rc.UserID, audit.ClampLimit(limit))
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	rw.Success(events)
}

func isDateOnly(value string) bool {
	_, err := time.Parse(time.DateOnly, value)
	return err == nil
}
