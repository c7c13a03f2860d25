// Pulseboard - Developer Time Tracking and Activity Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulseboard

package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/tomtom215/pulseboard/internal/stats"
)

// StatsSummary handles GET /api/v1/users/{userId}/stats/summary.
//
// Query parameters: granularity (day, week, month, year), and either period
// (today, 7d, 30d, month, year) or start and end.
func (h *Handler) StatsSummary(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	q, ok := h.statsQuery(rw, r)
	if !ok {
		return
	}
	q.Granularity = r.URL.Query().Get("granularity")

	buckets, err := h.stats.Summary(r.Context(), q)
	if err != nil {
		h.statsError(rw, err)
		return
	}
	rw.Success(buckets)
}

// StatsTop handles GET /api/v1/users/{userId}/stats/top/{dimension}?limit=.
// An absent limit means stats.DefaultTopLimit; an explicit 0 is rejected.
func (h *Handler) StatsTop(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	q, ok := h.statsQuery(rw, r)
	if !ok {
		return
	}
	q.Dimension = strings.ToLower(urlParam(r, "dimension"))

	limit, err := getIntParam(r, "limit", stats.DefaultTopLimit)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}
	q.Limit = limit

	ranked, err := h.stats.Top(r.Context(), q)
	if err != nil {
		h.statsError(rw, err)
		return
	}
	rw.Success(ranked)
}

// statsQuery reads the range parameters shared by both stats endpoints.
func (h *Handler) statsQuery(rw *ResponseWriter, r *http.Request) (stats.Query, bool) {
	if h.stats == nil {
		rw.NotFound("Stats are not enabled")
		return stats.Query{}, false
	}
	rc, err := requestContext(r)
	if err != nil {
		rw.Unauthorized("Authentication required")
		return stats.Query{}, false
	}

	start, err := parseTimeParam(r, "start", false)
	if err != nil {
		rw.BadRequest(err.Error())
		return stats.Query{}, false
	}
	end, err := parseTimeParam(r, "end", true)
	if err != nil {
		rw.BadRequest(err.Error())
		return stats.Query{}, false
	}

	return stats.Query{
		UserID: rc.UserID,
		Start:  start,
		End:    end,
		Period: r.URL.Query().Get("period"),
	}, true
}

func (h *Handler) statsError(rw *ResponseWriter, err error) {
	if errors.Is(err, stats.ErrInvalidQuery) {
		rw.BadRequest(err.Error())
		return
	}
	rw.DatabaseError(err)
}
