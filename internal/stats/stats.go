// Pulseboard - Developer Time Tracking and Activity Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulseboard

// Package stats answers coding-time questions over the pulses table:
// time totals bucketed by day, week, month or year, and rankings of
// languages, projects, machines and editors.
//
// Both queries run directly against DuckDB. Nothing is cached.
package stats

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/pulseboard/internal/metrics"
)

// ErrInvalidQuery is returned for a query that fails validation.
var ErrInvalidQuery = errors.New("invalid stats query")

// Granularities accepted by Summary.
const (
	GranularityDay   = "day"
	GranularityWeek  = "week"
	GranularityMonth = "month"
	GranularityYear  = "year"
)

// Named periods resolved relative to the current time.
const (
	PeriodToday = "today"
	Period7d    = "7d"
	Period30d   = "30d"
	PeriodMonth = "month"
	PeriodYear  = "year"
)

// Dimensions accepted by Top.
const (
	DimensionLanguage = "language"
	DimensionProject  = "project"
	DimensionMachine  = "machine"
	DimensionEditor   = "editor"
)

// DefaultTopLimit is the Top limit used when a caller does not choose one.
const DefaultTopLimit = 10

const maxTopLimit = 100

// Longest range Summary accepts for each granularity. Every period in the
// range becomes a bucket in the response, so the span bounds its size.
var maxSummarySpan = map[string]time.Duration{
	GranularityDay:   366 * 24 * time.Hour,
	GranularityWeek:  5 * 366 * 24 * time.Hour,
	GranularityMonth: 10 * 366 * 24 * time.Hour,
	GranularityYear:  100 * 366 * 24 * time.Hour,
}

// Query selects a user's pulses in a time range. Either Period or Start and
// End are used; with neither, the last seven days are queried. End is
// exclusive.
type Query struct {
	UserID      int64
	Start       time.Time
	End         time.Time
	Period      string
	Granularity string
	Dimension   string
	Limit       int
}

// Bucket is the coding time in one period of a Summary.
type Bucket struct {
	Period       time.Time `json:"period"`
	TotalSeconds float64   `json:"total_seconds"`
}

// Ranked is one entry of a Top listing.
type Ranked struct {
	Name         string  `json:"name"`
	TotalSeconds float64 `json:"total_seconds"`
	Percent      float64 `json:"percent"`
}

// Service runs stats queries against the DuckDB connection.
type Service struct {
	conn *sql.DB
	now  func() time.Time
}

// NewService creates a Service over conn.
func NewService(conn *sql.DB) *Service {
	return &Service{conn: conn, now: time.Now}
}

// Summary returns per-period coding time. Periods without pulses are
// included with a zero total.
func (s *Service) Summary(ctx context.Context, q Query) (buckets []Bucket, err error) {
	if q.Granularity == "" {
		q.Granularity = GranularityDay
	}
	bucketSQL, err := bucketExpr(q.Granularity)
	if err != nil {
		return nil, err
	}
	start, end, err := s.resolveRange(q)
	if err != nil {
		return nil, err
	}
	if span := maxSummarySpan[q.Granularity]; end.Sub(start) > span {
		return nil, fmt.Errorf("%w: %s granularity covers at most %d days", ErrInvalidQuery, q.Granularity, int(span.Hours()/24))
	}

	began := time.Now()
	defer func() { metrics.RecordDBQuery("duckdb", "stats_summary", time.Since(began), err) }()

	query := fmt.Sprintf(`
	SELECT
		%s AS bucket,
		SUM(duration_seconds) AS total
	FROM pulses
	WHERE user_id = ? AND "timestamp" >= ? AND "timestamp" < ?
	GROUP BY bucket
	ORDER BY bucket`, bucketSQL)

	rows, err := s.conn.QueryContext(ctx, query, q.UserID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query summary: %w", err)
	}
	defer rows.Close()

	totals := make(map[int64]float64)
	for rows.Next() {
		var bucket time.Time
		var total float64
		if err := rows.Scan(&bucket, &total); err != nil {
			return nil, fmt.Errorf("failed to scan summary row: %w", err)
		}
		totals[bucket.Unix()] = total
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating summary rows: %w", err)
	}

	return fillBuckets(totals, start, end, q.Granularity), nil
}

// Top ranks the values of q.Dimension by coding time and returns at most
// q.Limit entries, which must be in 1..100. Percent is relative to the
// user's total time in the range. Pulses with no value for the
// dimension are grouped as "unknown".
func (s *Service) Top(ctx context.Context, q Query) (ranked []Ranked, err error) {
	column, err := dimensionColumn(q.Dimension)
	if err != nil {
		return nil, err
	}
	if q.Limit < 1 || q.Limit > maxTopLimit {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidQuery, maxTopLimit)
	}
	start, end, err := s.resolveRange(q)
	if err != nil {
		return nil, err
	}

	began := time.Now()
	defer func() { metrics.RecordDBQuery("duckdb", "stats_top", time.Since(began), err) }()

	query := fmt.Sprintf(`
	WITH totals AS (
		SELECT
			COALESCE(NULLIF(%s, ''), 'unknown') AS name,
			SUM(duration_seconds) AS total
		FROM pulses
		WHERE user_id = ? AND "timestamp" >= ? AND "timestamp" < ?
		GROUP BY name
	)
	SELECT
		name,
		total,
		COALESCE(ROUND(total * 100.0 / NULLIF(SUM(total) OVER (), 0), 2), 0) AS percent
	FROM totals
	ORDER BY total DESC, name
	LIMIT ?`, column)

	rows, err := s.conn.QueryContext(ctx, query, q.UserID, start, end, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top %s: %w", q.Dimension, err)
	}
	defer rows.Close()

	ranked = make([]Ranked, 0, q.Limit)
	for rows.Next() {
		var r Ranked
		if err := rows.Scan(&r.Name, &r.TotalSeconds, &r.Percent); err != nil {
			return nil, fmt.Errorf("failed to scan top row: %w", err)
		}
		ranked = append(ranked, r)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating top rows: %w", err)
	}
	return ranked, nil
}

// resolveRange turns q into a half-open [start, end) range in UTC.
func (s *Service) resolveRange(q Query) (time.Time, time.Time, error) {
	now := s.now().UTC()

	if q.Period != "" {
		if !q.Start.IsZero() || !q.End.IsZero() {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: period cannot be combined with start or end", ErrInvalidQuery)
		}
		return periodRange(q.Period, now)
	}

	start, end := q.Start.UTC(), q.End.UTC()
	switch {
	case start.IsZero() && end.IsZero():
		return periodRange(Period7d, now)
	case end.IsZero():
		end = now
	case start.IsZero():
		start = end.AddDate(0, 0, -7)
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end must be after start", ErrInvalidQuery)
	}
	return start, end, nil
}

func periodRange(period string, now time.Time) (time.Time, time.Time, error) {
	today := truncate(now, GranularityDay)
	end := today.AddDate(0, 0, 1)

	switch period {
	case PeriodToday:
		return today, end, nil
	case Period7d:
		return today.AddDate(0, 0, -6), end, nil
	case Period30d:
		return today.AddDate(0, 0, -29), end, nil
	case PeriodMonth:
		return truncate(now, GranularityMonth), end, nil
	case PeriodYear:
		return truncate(now, GranularityYear), end, nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("%w: unknown period %q", ErrInvalidQuery, period)
	}
}

// bucketExpr returns the DuckDB truncation for a granularity. Only these
// literals are ever interpolated into SQL.
func bucketExpr(granularity string) (string, error) {
	switch granularity {
	case GranularityDay:
		return `CAST(DATE_TRUNC('day', "timestamp") AS TIMESTAMP)`, nil
	case GranularityWeek:
		return `CAST(DATE_TRUNC('week', "timestamp") AS TIMESTAMP)`, nil
	case GranularityMonth:
		return `CAST(DATE_TRUNC('month', "timestamp") AS TIMESTAMP)`, nil
	case GranularityYear:
		return `CAST(DATE_TRUNC('year', "timestamp") AS TIMESTAMP)`, nil
	default:
		return "", fmt.Errorf("%w: granularity must be day, week, month or year", ErrInvalidQuery)
	}
}

func dimensionColumn(dimension string) (string, error) {
	switch dimension {
	case DimensionLanguage:
		return "language", nil
	case DimensionProject:
		return "project", nil
	case DimensionMachine:
		return "machine", nil
	case DimensionEditor:
		return "editor", nil
	default:
		return "", fmt.Errorf("%w: dimension must be language, project, machine or editor", ErrInvalidQuery)
	}
}

// truncate mirrors DuckDB's DATE_TRUNC in UTC; weeks start on Monday.
func truncate(t time.Time, granularity string) time.Time {
	t = t.UTC()
	y, m, d := t.Date()
	switch granularity {
	case GranularityWeek:
		day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case GranularityMonth:
		return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	case GranularityYear:
		return time.Date(y, 1, 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
}

func step(t time.Time, granularity string) time.Time {
	switch granularity {
	case GranularityWeek:
		return t.AddDate(0, 0, 7)
	case GranularityMonth:
		return t.AddDate(0, 1, 0)
	case GranularityYear:
		return t.AddDate(1, 0, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}

// fillBuckets emits one bucket per period overlapping [start, end).
func fillBuckets(totals map[int64]float64, start, end time.Time, granularity string) []Bucket {
	var buckets []Bucket
	for t := truncate(start, granularity); t.Before(end); t = step(t, granularity) {
		buckets = append(buckets, Bucket{Period: t, TotalSeconds: totals[t.Unix()]})
	}
	return buckets
}
