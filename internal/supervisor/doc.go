// Pulseboard - Developer Time Tracking and Activity Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulseboard

/*
Package supervisor provides process supervision for Pulseboard using suture v4.

The tree separates long-running work into three layers so a failing
component restarts without disturbing the others:

	RootSupervisor ("pulseboard")
	├── DataSupervisor ("data-layer")
	│   └── AuditSinkService
	├── MaintenanceSupervisor ("maintenance-layer")
	│   ├── SessionSweeper
	│   └── BadgerStateStore (expired OAuth state GC)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

# Restart Policy

Crashed services are restarted with suture's failure decay: after
FailureThreshold failures within the decay window the supervisor backs off
for FailureBackoff before trying again. Zero-valued TreeConfig fields take
the DefaultTreeConfig values.

# Logging

Supervisor events (service panics, terminations, backoff) are forwarded to
slog through sutureslog. Pass logging.NewSlogLogger() so they share the
zerolog output with the rest of the process.

# Usage

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
	    ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
	    return err
	}
	tree.AddAPIService(httpSvc)
	tree.AddMaintenanceService(sweeper)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
	    logging.Error().Err(err).Msg("supervisor tree stopped")
	}

After Serve returns, UnstoppedServiceReport lists services that ignored
cancellation past ShutdownTimeout.
*/
package supervisor
