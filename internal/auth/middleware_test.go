// Pulseboard - Developer Time Tracking and Activity Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulseboard

package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/pulseboard/internal/audit"
	"github.com/tomtom215/pulseboard/internal/config"
	"github.com/tomtom215/pulseboard/internal/models"
)

type middlewareFixture struct {
	issuer *Issuer
	users  *MemoryUserStore
	sink   *audit.Sink
	store  *audit.MemoryStore
	mw     *Middleware
	user   *models.User
}

func newMiddlewareFixture(t *testing.T) *middlewareFixture {
	t.Helper()

	users := NewMemoryUserStore()
	user, _, err := users.UpsertExternal(context.Background(), models.ExternalProfile{
		Provider: "github", ExternalID: "gh-1", Email: "ada@example.com", FullName: "Ada",
	})
	if err != nil {
		t.Fatalf("UpsertExternal failed: %v", err)
	}

	store := audit.NewMemoryStore()
	sink, err := audit.NewSink(store, config.AuditConfig{})
	if err != nil {
		t.Fatalf("NewSink failed: %v", err)
	}

	issuer := newTestIssuer(t, nil)
	return &middlewareFixture{
		issuer: issuer,
		users:  users,
		sink:   sink,
		store:  store,
		user:   user,
		mw: NewMiddleware(MiddlewareConfig{
			Issuer:      issuer,
			Users:       users,
			APIKeys:     users,
			Audit:       sink,
			RefreshPath: "/api/v1/auth/refresh",
		}),
	}
}

func (f *middlewareFixture) accessToken(t *testing.T, userID int64, sessionID string) string {
	t.Helper()
	tok, err := f.issuer.IssueAccessToken(UserClaims{UserID: userID, Email: "ada@example.com", SessionID: sessionID})
	if err != nil {
		t.Fatalf("IssueAccessToken failed: %v", err)
	}
	return tok
}

// router mounts a probe handler at /users/{userId}/things behind mw and
// captures the RequestContext it sees.
func (f *middlewareFixture) router(mw func(http.Handler) http.Handler, got **RequestContext) http.Handler {
	r := chi.NewRouter()
	r.Route("/users/{userId}", func(r chi.Router) {
		r.Use(mw)
		r.Get("/things", func(w http.ResponseWriter, r *http.Request) {
			rc, ok := FromContext(r.Context())
			if ok && got != nil {
				*got = rc
			}
			w.WriteHeader(http.StatusOK)
		})
	})
	r.With(mw).Get("/me", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return r
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) authErrorBody {
	t.Helper()
	var body authErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %v (%s)", err, rec.Body.String())
	}
	return body
}

func TestRequireBearer(t *testing.T) {
	f := newMiddlewareFixture(t)
	var rc *RequestContext
	h := f.router(f.mw.RequireBearer, &rc)
	own := "/users/1/things"

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"valid token", own, "Bearer " + f.accessToken(t, f.user.ID, "sess-1"), http.StatusOK},
		{"lowercase scheme", own, "bearer " + f.accessToken(t, f.user.ID, ""), http.StatusOK},
		{"no route owner", "/me", "Bearer " + f.accessToken(t, f.user.ID, ""), http.StatusOK},
		{"missing header", own, "", http.StatusUnauthorized},
		{"basic scheme", own, "Basic YWRhOnB3", http.StatusUnauthorized},
		{"garbage token", own, "Bearer not.a.jwt", http.StatusUnauthorized},
		{"unknown user", "/users/99/things", "Bearer " + f.accessToken(t, 99, ""), http.StatusUnauthorized},
		{"other user's route", "/users/2/things", "Bearer " + f.accessToken(t, f.user.ID, ""), http.StatusForbidden},
		{"non numeric owner", "/users/abc/things", "Bearer " + f.accessToken(t, f.user.ID, ""), http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
			if tt.want != http.StatusOK {
				body := decodeError(t, rec)
				if body.Success || body.Error.Code == "" || body.Error.Message == "" {
					t.Errorf("unexpected error body: %+v", body)
				}
			}
		})
	}

	if rc == nil {
		t.Fatal("handler never saw a RequestContext")
	}
	if rc.UserID != f.user.ID || rc.AuthMethod != AuthMethodBearer || rc.User == nil || rc.User.Email != "ada@example.com" {
		t.Errorf("unexpected request context: %+v", rc)
	}
}

func TestRequireBearer_CarriesSessionID(t *testing.T) {
	f := newMiddlewareFixture(t)
	var rc *RequestContext
	h := f.router(f.mw.RequireBearer, &rc)

	req := httptest.NewRequest(http.MethodGet, "/users/1/things", nil)
	req.Header.Set("Authorization", "Bearer "+f.accessToken(t, f.user.ID, "sess-42"))
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if rc == nil || rc.SessionID != "sess-42" {
		t.Fatalf("session id not propagated: %+v", rc)
	}
	if rc.Device.Browser != "Chrome 120" {
		t.Errorf("device browser = %q", rc.Device.Browser)
	}
}

func TestRequireBearer_ExpiredToken(t *testing.T) {
	f := newMiddlewareFixture(t)
	clock := newFakeClock()
	f.issuer.WithClock(clock.Now)
	tok := f.accessToken(t, f.user.ID, "")
	clock.Advance(time.Hour)

	h := f.router(f.mw.RequireBearer, nil)
	req := httptest.NewRequest(http.MethodGet, "/users/1/things", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRequireCookie(t *testing.T) {
	f := newMiddlewareFixture(t)
	h := f.router(f.mw.RequireCookie, nil)

	t.Run("valid access cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/users/1/things", nil)
		req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: f.accessToken(t, f.user.ID, "")})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("refresh cookie only redirects", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/users/1/things?x=1", nil)
		req.AddCookie(&http.Cookie{Name: RefreshTokenCookie, Value: "opaque"})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusTemporaryRedirect {
			t.Fatalf("status = %d, want 307", rec.Code)
		}
		loc := rec.Header().Get("Location")
		want := "/api/v1/auth/refresh?redirect=%2Fusers%2F1%2Fthings%3Fx%3D1"
		if loc != want {
			t.Errorf("Location = %q, want %q", loc, want)
		}
	})

	t.Run("invalid access with refresh redirects", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/users/1/things", nil)
		req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: "bad"})
		req.AddCookie(&http.Cookie{Name: RefreshTokenCookie, Value: "opaque"})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusTemporaryRedirect {
			t.Errorf("status = %d, want 307", rec.Code)
		}
	})

	t.Run("expired cookie on non-GET is not redirected", func(t *testing.T) {
		for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodHead} {
			req := httptest.NewRequest(method, "/users/1/things", strings.NewReader(`[{"entity":"main.go"}]`))
			req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: "bad"})
			req.AddCookie(&http.Cookie{Name: RefreshTokenCookie, Value: "opaque"})
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("%s status = %d, want 401", method, rec.Code)
			}
			if loc := rec.Header().Get("Location"); loc != "" {
				t.Errorf("%s redirected to %q", method, loc)
			}
		}
	})

	t.Run("no cookies", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/1/things", nil))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})
}

func TestRequireAPIKey(t *testing.T) {
	f := newMiddlewareFixture(t)
	if err := f.users.SetAPIKey(context.Background(), f.user.ID, "pk_test_key"); err != nil {
		t.Fatalf("SetAPIKey failed: %v", err)
	}
	var rc *RequestContext
	h := f.router(f.mw.RequireAPIKey, &rc)

	t.Run("valid key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/users/1/things", nil)
		req.Header.Set(APIKeyHeader, "pk_test_key")
		req.Header.Set("User-Agent", "vscode-pulseboard/1.2")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if rc == nil || rc.AuthMethod != AuthMethodAPIKey || rc.User == nil {
			t.Fatalf("unexpected request context: %+v", rc)
		}
		if err := f.sink.Flush(context.Background()); err != nil {
			t.Fatalf("Flush failed: %v", err)
		}
		events := f.store.APIKeyEvents()
		if len(events) != 1 || events[0].Path != "/users/1/things" || events[0].UserAgent != "vscode-pulseboard/1.2" {
			t.Errorf("api key events = %+v", events)
		}
		u, _ := f.users.GetByID(context.Background(), f.user.ID)
		if u.APIKeyLastUsedAt == nil {
			t.Error("last used timestamp not updated")
		}
	})

	t.Run("unknown key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/users/1/things", nil)
		req.Header.Set(APIKeyHeader, "nope")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("key for another user's route", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/users/7/things", nil)
		req.Header.Set(APIKeyHeader, "pk_test_key")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403", rec.Code)
		}
	})

	t.Run("falls back to cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/users/1/things", nil)
		req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: f.accessToken(t, f.user.ID, "")})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK || rc.AuthMethod != AuthMethodCookie {
			t.Errorf("status = %d, method = %s", rec.Code, rc.AuthMethod)
		}
	})
}

func TestOwnsRoute_IDParam(t *testing.T) {
	f := newMiddlewareFixture(t)
	r := chi.NewRouter()
	r.With(f.mw.RequireBearer).Get("/accounts/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	for path, want := range map[string]int{
		"/accounts/1": http.StatusNoContent,
		"/accounts/2": http.StatusForbidden,
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer "+f.accessToken(t, f.user.ID, ""))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Errorf("%s: status = %d, want %d", path, rec.Code, want)
		}
	}
}

func TestFromContext_Missing(t *testing.T) {
	if _, ok := FromContext(context.Background()); ok {
		t.Error("expected no RequestContext on a bare context")
	}
}

func TestBearerToken(t *testing.T) {
	tests := map[string]bool{
		"Bearer abc":  true,
		"bearer abc":  true,
		"Bearer  ":    false,
		"Bearer":      false,
		"Token abc":   false,
		"":            false,
		"Bearer a b":  true,
		"BEARER xyz ": true,
	}
	for header, ok := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		_, err := bearerToken(req)
		if (err == nil) != ok {
			t.Errorf("bearerToken(%q) err = %v, want ok=%v", header, err, ok)
		}
		if err != nil && !strings.Contains(err.Error(), "no credentials") {
			t.Errorf("unexpected error %v", err)
		}
	}
}
