// Pulseboard - Developer Time Tracking and Activity Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulseboard

/*
Package middleware provides the infrastructure middleware shared by every
route: request ID propagation and Prometheus instrumentation.

Both are chi-compatible func(http.Handler) http.Handler values. The router
installs them ahead of authentication:

	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.PrometheusMetrics)

RequestID accepts an upstream X-Request-ID or generates a UUID, echoes it
on the response and stores it in the logging context so every log line and
error envelope for the request carries the same id.

PrometheusMetrics labels requests by chi route pattern rather than raw path,
so /api/v1/users/42/sessions and /api/v1/users/7/sessions share one series.
*/
package middleware
