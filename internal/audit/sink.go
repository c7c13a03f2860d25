// Pulseboard - Developer Time Tracking and Activity Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulseboard

package audit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tomtom215/pulseboard/internal/config"
	"github.com/tomtom215/pulseboard/internal/logging"
	"github.com/tomtom215/pulseboard/internal/metrics"
)

// flushTimeout bounds a single batch insert. Flushes use a fresh context so
// that supervisor shutdown does not cancel an insert halfway.
const flushTimeout = 30 * time.Second

// SinkStats is a point-in-time view of the sink counters.
type SinkStats struct {
	Queued     int64 `json:"queued"`
	Dropped    int64 `json:"dropped"`
	Flushed    int64 `json:"flushed"`
	Failed     int64 `json:"failed_batches"`
	QueueDepth int   `json:"queue_depth"`
}

// Sink buffers audit events in a bounded queue and writes them to a Store in
// batches from a single drain goroutine.
//
// Record never blocks: when the queue is full the event is dropped and
// counted. A batch that fails to insert is logged and dropped; there is no
// retry. Stop drains what is left, bounded by StopTimeout.
type Sink struct {
	store Store
	cfg   config.AuditConfig
	log   zerolog.Logger
	now   func() time.Time

	queue chan *Event

	// flushMu serializes drains between the loop and Flush/Stop.
	flushMu sync.Mutex

	started  atomic.Bool
	stopped  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}

	dropWarn rate.Sometimes

	queued  atomic.Int64
	dropped atomic.Int64
	flushed atomic.Int64
	failed  atomic.Int64
}

// NewSink creates a sink over store. Zero config values take defaults.
func NewSink(store Store, cfg config.AuditConfig) (*Sink, error) {
	if store == nil {
		return nil, fmt.Errorf("audit store required")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 10000
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 2 * time.Second
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 10 * time.Second
	}

	return &Sink{
		store:    store,
		cfg:      cfg,
		log:      logging.WithComponent("audit"),
		now:      time.Now,
		queue:    make(chan *Event, cfg.QueueSize),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		dropWarn: rate.Sometimes{First: 1, Interval: 10 * time.Second},
	}, nil
}

// Record enqueues event without blocking. ID and Timestamp are filled in
// when unset.
func (s *Sink) Record(event *Event) {
	if event == nil {
		return
	}
	if s.stopped.Load() {
		s.drop("stopped", event)
		return
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}

	select {
	case s.queue <- event:
		s.queued.Add(1)
		metrics.AuditEventsQueued.Inc()
		metrics.AuditQueueDepth.Set(float64(len(s.queue)))
	default:
		s.drop("queue_full", event)
	}
}

func (s *Sink) drop(reason string, event *Event) {
	s.dropped.Add(1)
	metrics.AuditEventsDropped.WithLabelValues(reason).Inc()
	s.dropWarn.Do(func() {
		s.log.Warn().
			Str("reason", reason).
			Str("event_type", string(event.EventType)).
			Int64("dropped_total", s.dropped.Load()).
			Int("queue_capacity", s.cfg.QueueSize).
			Msg("Audit event dropped")
	})
}

// Start launches the drain goroutine. Calling it again is a no-op.
func (s *Sink) Start(ctx context.Context) error {
	if s.stopped.Load() {
		return fmt.Errorf("audit sink is stopped")
	}
	if s.started.Swap(true) {
		return nil
	}

	go s.run(ctx)
	s.log.Info().
		Int("queue_size", s.cfg.QueueSize).
		Int("batch_size", s.cfg.BatchSize).
		Dur("flush_interval", s.cfg.FlushInterval).
		Msg("Audit sink started")
	return nil
}

// Stop halts the drain loop and flushes the remaining queue. It is idempotent.
func (s *Sink) Stop() {
	s.stopOnce.Do(func() {
		s.stopped.Store(true)
		close(s.stopCh)
		if s.started.Load() {
			<-s.doneCh
		}

		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.StopTimeout)
		defer cancel()
		if err := s.Flush(ctx); err != nil {
			s.log.Warn().Err(err).Int("remaining", len(s.queue)).Msg("Audit sink stopped before queue was drained")
		}
		s.log.Info().
			Int64("flushed", s.flushed.Load()).
			Int64("dropped", s.dropped.Load()).
			Msg("Audit sink stopped")
	})
}

// Serve implements suture.Service.
func (s *Sink) Serve(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return ctx.Err()
}

// String implements fmt.Stringer for supervisor logs.
func (s *Sink) String() string { return "audit-sink" }

// Flush drains the queue until it is empty or ctx is done.
func (s *Sink) Flush(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, _ := s.drainOnce(ctx)
		if n == 0 {
			return nil
		}
	}
}

// Stats returns the sink counters.
func (s *Sink) Stats() SinkStats {
	return SinkStats{
		Queued:     s.queued.Load(),
		Dropped:    s.dropped.Load(),
		Flushed:    s.flushed.Load(),
		Failed:     s.failed.Load(),
		QueueDepth: len(s.queue),
	}
}

func (s *Sink) run(ctx context.Context) {
	defer close(s.doneCh)

	timer := time.NewTimer(s.cfg.FlushInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-timer.C:
			flushCtx, cancel := context.WithTimeout(context.Background(), flushTimeout)
			_, more := s.drainOnce(flushCtx)
			cancel()

			if more {
				timer.Reset(0)
			} else {
				timer.Reset(s.cfg.FlushInterval)
			}
		}
	}
}

// drainOnce writes up to BatchSize queued events. It returns how many were
// taken and whether more are waiting.
func (s *Sink) drainOnce(ctx context.Context) (int, bool) {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	batch := make([]*Event, 0, s.cfg.BatchSize)
take:
	for len(batch) < s.cfg.BatchSize {
		select {
		case e := <-s.queue:
			batch = append(batch, e)
		default:
			break take
		}
	}
	metrics.AuditQueueDepth.Set(float64(len(s.queue)))
	if len(batch) == 0 {
		return 0, false
	}

	start := time.Now()
	err := s.store.InsertBatch(ctx, batch)
	metrics.RecordAuditFlush(len(batch), time.Since(start), err)
	if err != nil {
		s.failed.Add(1)
		s.dropped.Add(int64(len(batch)))
		s.log.Error().Err(err).Int("batch_size", len(batch)).Msg("Audit batch insert failed, events dropped")
	} else {
		s.flushed.Add(int64(len(batch)))
		s.log.Debug().Int("batch_size", len(batch)).Dur("elapsed", time.Since(start)).Msg("Audit batch flushed")
	}

	return len(batch), len(s.queue) > 0
}
