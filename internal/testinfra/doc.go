// Pulseboard - Developer Time Tracking and Activity Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulseboard

// Package testinfra starts throwaway containers for integration tests.
//
// Everything here is behind the integration build tag:
//
//	go test -tags integration ./internal/postgres/... ./internal/auth/...
//
// Tests call SkipIfNoDocker first so they pass on machines without Docker.
//
//	pg := testinfra.StartPostgres(t)
//	pool, err := postgres.NewPool(ctx, &config.PostgresConfig{DSN: pg.DSN})
package testinfra
