// Pulseboard - Developer Time Tracking and Activity Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulseboard

/*
Package services provides suture.Service wrappers for Pulseboard components.

Components with a ListenAndServe or Start/Stop lifecycle are adapted to
suture's context-aware Serve pattern:

	type Service interface {
	    Serve(ctx context.Context) error
	}

# Available Services

HTTPServerService wraps *http.Server. Cancelling the context triggers a
graceful shutdown bounded by the configured timeout. Drained reports when
the last in-flight request has returned.

AuditSinkService wraps audit.Sink. It keeps the sink's drain loop alive
after cancellation until the HTTP server has drained, then performs the
final flush.

The session sweeper and the OAuth state store already expose
Serve(ctx) error and are added to the tree directly.

# Shutdown Ordering

	httpSvc := services.NewHTTPServerService(server, 10*time.Second)
	tree.AddAPIService(httpSvc)
	tree.AddDataService(services.NewAuditSinkService(sink, httpSvc.Drained(), 15*time.Second))
*/
package services
