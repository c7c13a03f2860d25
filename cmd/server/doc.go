// Pulseboard - Developer Time Tracking and Activity Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulseboard

/*
Package main is the entry point for the Pulseboard server.

Pulseboard collects editor activity pulses from developers, aggregates them
into coding-time statistics and manages the accounts, device sessions and
API keys that authorize ingest.

# Application Architecture

	RootSupervisor ("pulseboard")
	├── DataSupervisor ("data-layer")
	│   └── Audit sink (batched DuckDB writes, final flush after HTTP drain)
	├── MaintenanceSupervisor ("maintenance-layer")
	│   ├── Session sweeper (revokes expired device sessions)
	│   └── OAuth state GC (Badger)
	└── APISupervisor ("api-layer")
	    └── HTTP server (chi)

Component initialization order:

 1. Configuration: Koanf v2 with defaults, optional YAML file and environment
 2. Logging: zerolog, also backing slog for the supervisor
 3. Postgres: pgx pool and schema migration (users, sessions, billing)
 4. DuckDB: pulses and audit event tables
 5. Authentication: JWT issuer, session store, identity providers
 6. HTTP router and supervisor tree

# Configuration

	DATABASE_URL=postgres://...          Postgres connection string
	DUCKDB_PATH=/data/pulseboard.duckdb  DuckDB file
	JWT_SECRET=...                       32+ character signing secret
	BILLING_WEBHOOK_SECRET=...           enables /api/v1/billing/webhook
	CONFIG_PATH=config.yaml              optional YAML file

# Signal Handling

SIGINT and SIGTERM cancel the supervisor tree. The HTTP server stops
accepting connections and drains in-flight requests, then the audit sink
flushes its queue and the stores are closed.
*/
package main
