// Pulseboard - Developer Time Tracking and Activity Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulseboard

package audit

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps events in memory. It is used by tests and by the
// handlers' unit tests through Sink.
type MemoryStore struct {
	mu      sync.RWMutex
	auth    []*Event
	apiKeys []*Event

	// FailNext makes the next InsertBatch return this error.
	FailNext error
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// InsertBatch appends events.
func (m *MemoryStore) InsertBatch(_ context.Context, events []*Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.FailNext; err != nil {
		m.FailNext = nil
		return err
	}
	for _, e := range events {
		c := *e
		if c.Kind == KindAPIKey {
			m.apiKeys = append(m.apiKeys, &c)
		} else {
			m.auth = append(m.auth, &c)
		}
	}
	return nil
}

// GetStats groups the user's auth log entries by UTC day.
func (m *MemoryStore) GetStats(_ context.Context, userID int64, start, end time.Time) ([]DailyStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type sets struct {
		stats   DailyStats
		ips     map[string]struct{}
		country map[string]struct{}
		devices map[string]struct{}
	}
	days := make(map[time.Time]*sets)

	for _, e := range m.auth {
		if e.UserID != userID || e.Timestamp.Before(start) || e.Timestamp.After(end) {
			continue
		}
		ts := e.Timestamp.UTC()
		day := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
		d, ok := days[day]
		if !ok {
			d = &sets{
				stats:   DailyStats{Day: day},
				ips:     make(map[string]struct{}),
				country: make(map[string]struct{}),
				devices: make(map[string]struct{}),
			}
			days[day] = d
		}
		d.stats.Total++
		if e.Success {
			d.stats.Successes++
		} else {
			d.stats.Failures++
		}
		addNonEmpty(d.ips, e.IPAddress)
		addNonEmpty(d.country, e.Country)
		addNonEmpty(d.devices, e.DeviceType)
	}

	out := make([]DailyStats, 0, len(days))
	for _, d := range days {
		d.stats.UniqueIPs = int64(len(d.ips))
		d.stats.UniqueCountries = int64(len(d.country))
		d.stats.UniqueDeviceTypes = int64(len(d.devices))
		out = append(out, d.stats)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out, nil
}

func addNonEmpty(set map[string]struct{}, v string) {
	if v != "" {
		set[v] = struct{}{}
	}
}

// GetRecentEvents returns the user's newest auth log entries.
func (m *MemoryStore) GetRecentEvents(_ context.Context, userID int64, limit int) ([]*Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit = ClampLimit(limit)
	out := make([]*Event, 0)
	for _, e := range m.auth {
		if e.UserID == userID {
			c := *e
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// AuthEvents returns a copy of every stored auth log entry in insert order.
func (m *MemoryStore) AuthEvents() []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Event, len(m.auth))
	for i, e := range m.auth {
		out[i] = *e
	}
	return out
}

// APIKeyEvents returns a copy of every stored API key event.
func (m *MemoryStore) APIKeyEvents() []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Event, len(m.apiKeys))
	for i, e := range m.apiKeys {
		out[i] = *e
	}
	return out
}

// CountType returns how many auth log entries have type t.
func (m *MemoryStore) CountType(t EventType) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, e := range m.auth {
		if e.EventType == t {
			n++
		}
	}
	return n
}
