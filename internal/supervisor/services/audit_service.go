// Pulseboard - Developer Time Tracking and Activity Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulseboard

package services

import (
	"context"
	"time"
)

// AuditSink is the Start/Stop lifecycle of audit.Sink.
type AuditSink interface {
	Start(ctx context.Context) error
	Stop()
}

// AuditSinkService runs the audit sink under suture. On shutdown it waits
// for after (typically HTTPServerService.Drained) before the final flush,
// so events recorded by the last in-flight requests are still written.
type AuditSinkService struct {
	sink    AuditSink
	after   <-chan struct{}
	maxWait time.Duration
}

// NewAuditSinkService wraps sink. after may be nil; maxWait bounds the wait
// for it and defaults to 15s.
func NewAuditSinkService(sink AuditSink, after <-chan struct{}, maxWait time.Duration) *AuditSinkService {
	if maxWait <= 0 {
		maxWait = 15 * time.Second
	}
	return &AuditSinkService{sink: sink, after: after, maxWait: maxWait}
}

// Serve implements suture.Service.
func (a *AuditSinkService) Serve(ctx context.Context) error {
	// The drain loop must outlive ctx until the final flush.
	if err := a.sink.Start(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	<-ctx.Done()

	if a.after != nil {
		timer := time.NewTimer(a.maxWait)
		select {
		case <-a.after:
		case <-timer.C:
		}
		timer.Stop()
	}
	a.sink.Stop()
	return ctx.Err()
}

// String implements fmt.Stringer for supervisor logs.
func (a *AuditSinkService) String() string {
	return "audit-sink"
}
