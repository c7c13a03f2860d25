// Pulseboard - Developer Time Tracking and Activity Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulseboard

// Package metrics registers Prometheus collectors for the API, the
// credential/session lifecycle, the audit sink and both data stores.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulseboard_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pulseboard_api_request_duration_seconds",
			Help:    "API request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Store queries, labelled by store (postgres, duckdb).
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pulseboard_db_query_duration_seconds",
			Help:    "Duration of database queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"store", "operation"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulseboard_db_query_errors_total",
			Help: "Total number of failed database queries",
		},
		[]string{"store", "operation"},
	)

	// Authentication
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulseboard_auth_attempts_total",
			Help: "Authentication attempts by method and result",
		},
		[]string{"method", "result"},
	)

	SessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulseboard_sessions_created_total",
			Help: "Device sessions created",
		},
	)

	SessionsReused = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulseboard_sessions_reused_total",
			Help: "Sign-ins that rotated an existing device session",
		},
	)

	SessionsRevoked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulseboard_sessions_revoked_total",
			Help: "Sessions revoked, by reason (logout, user, others, expired)",
		},
		[]string{"reason"},
	)

	// Audit sink
	AuditEventsQueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulseboard_audit_events_queued_total",
			Help: "Audit events accepted into the queue",
		},
	)

	AuditEventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulseboard_audit_events_dropped_total",
			Help: "Audit events lost, by reason (queue_full, flush_failed, stopped)",
		},
		[]string{"reason"},
	)

	AuditEventsFlushed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulseboard_audit_events_flushed_total",
			Help: "Audit events written to the analytical store",
		},
	)

	AuditFlushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pulseboard_audit_flush_duration_seconds",
			Help:    "Duration of audit batch inserts",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
	)

	AuditQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pulseboard_audit_queue_depth",
			Help: "Audit events waiting to be flushed",
		},
	)

	// Activity ingest
	PulsesIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulseboard_pulses_ingested_total",
			Help: "Pulses received, by result (accepted, rejected)",
		},
		[]string{"result"},
	)

	// API key lookups served by the in-process cache
	APIKeyCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulseboard_api_key_cache_lookups_total",
			Help: "API key authentications by cache result (hit, miss)",
		},
		[]string{"result"},
	)

	// Identity provider calls
	ProviderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulseboard_identity_provider_requests_total",
			Help: "Identity provider code exchanges by provider and result",
		},
		[]string{"provider", "result"},
	)
)

// RecordAPIRequest records one served request.
func RecordAPIRequest(method, route string, status int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordDBQuery records a query against store ("postgres" or "duckdb").
func RecordDBQuery(store, operation string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(store, operation).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(store, operation).Inc()
	}
}

// RecordAuthAttempt records an authentication attempt.
func RecordAuthAttempt(method string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	AuthAttempts.WithLabelValues(method, result).Inc()
}

// RecordSessionsRevoked adds n revocations for reason.
func RecordSessionsRevoked(reason string, n int64) {
	if n > 0 {
		SessionsRevoked.WithLabelValues(reason).Add(float64(n))
	}
}

// RecordAuditFlush records the outcome of one audit batch insert.
func RecordAuditFlush(batchSize int, duration time.Duration, err error) {
	AuditFlushDuration.Observe(duration.Seconds())
	if err != nil {
		AuditEventsDropped.WithLabelValues("flush_failed").Add(float64(batchSize))
		return
	}
	AuditEventsFlushed.Add(float64(batchSize))
}

// RecordPulses records the accepted/rejected split of one ingest batch.
func RecordPulses(accepted, rejected int) {
	PulsesIngested.WithLabelValues("accepted").Add(float64(accepted))
	PulsesIngested.WithLabelValues("rejected").Add(float64(rejected))
}

// RecordAPIKeyCacheLookup records whether an API key lookup was served from cache.
func RecordAPIKeyCacheLookup(hit bool) {
	if hit {
		APIKeyCacheLookups.WithLabelValues("hit").Inc()
		return
	}
	APIKeyCacheLookups.WithLabelValues("miss").Inc()
}
