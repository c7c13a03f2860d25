// Pulseboard - Developer Time Tracking and Activity Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulseboard

package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/crypto/bcrypt"

	"github.com/tomtom215/pulseboard/internal/audit"
	"github.com/tomtom215/pulseboard/internal/auth"
	"github.com/tomtom215/pulseboard/internal/config"
	"github.com/tomtom215/pulseboard/internal/models"
	"github.com/tomtom215/pulseboard/internal/stats"
)

const (
	testSecret        = "this_is_a_very_long_secret_key_for_testing_purposes_12345"
	testBillingSecret = "whsec_test_secret"
	testUserAgent     = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

type fakePulseWriter struct {
	mu     sync.Mutex
	pulses []models.Pulse
	err    error
}

func (f *fakePulseWriter) InsertPulses(_ context.Context, pulses []models.Pulse) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.pulses = append(f.pulses, pulses...)
	return len(pulses), nil
}

type fakeStats struct {
	lastQuery stats.Query
	err       error
}

func (f *fakeStats) Summary(_ context.Context, q stats.Query) ([]stats.Bucket, error) {
	f.lastQuery = q
	if f.err != nil {
		return nil, f.err
	}
	return []stats.Bucket{{Period: time.Date(2026, 5, 13, 0, 0, 0, 0, time.UTC), TotalSeconds: 3600}}, nil
}

func (f *fakeStats) Top(_ context.Context, q stats.Query) ([]stats.Ranked, error) {
	f.lastQuery = q
	if f.err != nil {
		return nil, f.err
	}
	if q.Limit < 1 || q.Limit > 100 {
		return nil, fmt.Errorf("%w: limit", stats.ErrInvalidQuery)
	}
	return []stats.Ranked{{Name: "go", TotalSeconds: 3600, Percent: 100}}, nil
}

type fakeBilling struct {
	seen map[string]bool
}

func (f *fakeBilling) SaveWebhook(_ context.Context, event *models.BillingEvent, _ []byte) (bool, error) {
	if f.seen == nil {
		f.seen = make(map[string]bool)
	}
	if f.seen[event.ID] {
		return true, nil
	}
	f.seen[event.ID] = true
	return false, nil
}

// apiFixture is a full router over in-memory stores.
type apiFixture struct {
	router   http.Handler
	svc      *auth.Service
	issuer   *auth.Issuer
	users    *auth.MemoryUserStore
	sessions *auth.MemorySessionStore
	events   *audit.MemoryStore
	sink     *audit.Sink
	pulses   *fakePulseWriter
	stats    *fakeStats
	billing  *fakeBilling
}

type fixtureOption func(*HandlerConfig, *ChiMiddlewareConfig)

func newAPIFixture(t *testing.T, opts ...fixtureOption) *apiFixture {
	t.Helper()

	issuer, err := auth.NewIssuer(&config.SecurityConfig{
		JWTSecret:       testSecret,
		JWTIssuer:       "pulseboard-test",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("NewIssuer failed: %v", err)
	}
	users := auth.NewMemoryUserStore()
	sessions := auth.NewMemorySessionStore()
	events := audit.NewMemoryStore()
	sink, err := audit.NewSink(events, config.AuditConfig{})
	if err != nil {
		t.Fatalf("NewSink failed: %v", err)
	}
	svc, err := auth.NewService(auth.ServiceConfig{
		Issuer:       issuer,
		Sessions:     sessions,
		Users:        users,
		Audit:        sink,
		PasswordCost: bcrypt.MinCost,
	})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	f := &apiFixture{
		svc:      svc,
		issuer:   issuer,
		users:    users,
		sessions: sessions,
		events:   events,
		sink:     sink,
		pulses:   &fakePulseWriter{},
		stats:    &fakeStats{},
		billing:  &fakeBilling{},
	}

	cfg := HandlerConfig{
		Auth:          svc,
		Sessions:      sessions,
		APIKeys:       users,
		Audit:         events,
		Pulses:        f.pulses,
		Stats:         f.stats,
		Billing:       f.billing,
		BillingSecret: testBillingSecret,
	}
	mwCfg := DefaultChiMiddlewareConfig()
	mwCfg.RateLimitDisabled = true
	for _, opt := range opts {
		opt(&cfg, mwCfg)
	}

	handler, err := NewHandler(cfg)
	if err != nil {
		t.Fatalf("NewHandler failed: %v", err)
	}
	authMW := auth.NewMiddleware(auth.MiddlewareConfig{
		Issuer:  issuer,
		Users:   users,
		APIKeys: users,
		Audit:   sink,
	})
	f.router = NewRouter(handler, authMW, NewChiMiddleware(mwCfg)).SetupChi()
	return f
}

// flush writes queued audit events so assertions can read them.
func (f *apiFixture) flush(t *testing.T) {
	t.Helper()
	if err := f.sink.Flush(context.Background()); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any, setup ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("User-Agent", testUserAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, fn := range setup {
		fn(req)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

// register creates a local account and returns its sign-in result.
func (f *apiFixture) register(t *testing.T, email string) *auth.SignInResult {
	t.Helper()
	res, err := f.svc.Register(context.Background(), email, "Test User", "correct-horse-battery", auth.ClientInfo{
		Device:    auth.ParseUserAgent(testUserAgent),
		UserAgent: testUserAgent,
		IPAddress: "192.0.2.1",
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return res
}

func bearer(token string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withCookie(name, value string) func(*http.Request) {
	return func(r *http.Request) { r.AddCookie(&http.Cookie{Name: name, Value: value}) }
}

func withHeader(key, value string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set(key, value) }
}

// testEnvelope decodes the response envelope with data left raw.
type testEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) testEnvelope {
	t.Helper()
	var env testEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (body %s)", err, rec.Body.String())
	}
	return env
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	env := decodeEnvelope(t, rec)
	if err := json.Unmarshal(env.Data, dst); err != nil {
		t.Fatalf("decode data: %v (body %s)", err, rec.Body.String())
	}
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
