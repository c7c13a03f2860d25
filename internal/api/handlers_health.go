// Pulseboard - Developer Time Tracking and Activity Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulseboard

package api

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"
)

const healthCheckTimeout = 3 * time.Second

// HealthStatus is the body of the health endpoint.
type HealthStatus struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Uptime    float64           `json:"uptime_seconds"`
	CheckedAt time.Time         `json:"checked_at"`
}

// Health handles GET /health. Every registered dependency check runs
// concurrently; any failure reports "degraded" with a 503.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make(map[string]string, len(names))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func(name string, check HealthCheck) {
			defer wg.Done()
			result := "ok"
			if err := check(ctx); err != nil {
				result = err.Error()
			}
			mu.Lock()
			results[name] = result
			mu.Unlock()
		}(name, h.checks[name])
	}
	wg.Wait()

	status := HealthStatus{
		Status:    "healthy",
		Checks:    results,
		Uptime:    time.Since(h.startTime).Seconds(),
		CheckedAt: time.Now().UTC(),
	}
	for _, result := range results {
		if result != "ok" {
			status.Status = "degraded"
		}
	}

	if status.Status != "healthy" {
		rw.writeData(http.StatusServiceUnavailable, status)
		return
	}
	rw.Success(status)
}
