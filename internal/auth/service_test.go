// Pulseboard - Developer Time Tracking and Activity Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulseboard

package auth

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/tomtom215/pulseboard/internal/audit"
	"github.com/tomtom215/pulseboard/internal/config"
	"github.com/tomtom215/pulseboard/internal/models"
)

type serviceFixture struct {
	svc      *Service
	clock    *fakeClock
	issuer   *Issuer
	sessions *MemorySessionStore
	users    *MemoryUserStore
	sink     *audit.Sink
	events   *audit.MemoryStore
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	clock := newFakeClock()
	issuer := newTestIssuer(t, clock.Now)
	sessions := NewMemorySessionStore(WithSessionClock(clock.Now))
	users := NewMemoryUserStore()
	events := audit.NewMemoryStore()
	sink, err := audit.NewSink(events, config.AuditConfig{})
	if err != nil {
		t.Fatalf("NewSink failed: %v", err)
	}

	svc, err := NewService(ServiceConfig{
		Issuer:       issuer,
		Sessions:     sessions,
		Users:        users,
		Audit:        sink,
		PasswordCost: bcrypt.MinCost,
	})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return &serviceFixture{svc: svc, clock: clock, issuer: issuer, sessions: sessions, users: users, sink: sink, events: events}
}

// flush writes queued audit events so assertions can read them.
func (f *serviceFixture) flush(t *testing.T) {
	t.Helper()
	if err := f.sink.Flush(context.Background()); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
}

var (
	githubProfile = models.ExternalProfile{Provider: "github", ExternalID: "gh-7", Email: "Grace@Example.com", FullName: "Grace"}
	laptop        = ClientInfo{Device: chromeMac, UserAgent: "Chrome", IPAddress: "10.0.0.1", Country: "DE"}
	phone         = ClientInfo{Device: models.DeviceInfo{DeviceType: "Mobile", Browser: "Safari 17", OS: "iOS 17"}, IPAddress: "10.0.0.2"}
)

func TestNewService_RequiresDependencies(t *testing.T) {
	if _, err := NewService(ServiceConfig{}); err == nil {
		t.Error("expected error for empty config")
	}
}

func TestSignInExternal_FirstSignIn(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	res, err := f.svc.SignInExternal(ctx, githubProfile, laptop)
	if err != nil {
		t.Fatalf("SignInExternal failed: %v", err)
	}
	if !res.UserCreated || !res.SessionCreated {
		t.Errorf("expected new user and session, got %+v", res)
	}
	if res.User.Email != "grace@example.com" {
		t.Errorf("email = %q, want lowercased", res.User.Email)
	}

	claims, err := f.issuer.VerifyAccessToken(res.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("access token invalid: %v", err)
	}
	if claims.UserID != res.User.ID || claims.SessionID != res.SessionID {
		t.Errorf("claims = %+v", claims)
	}
	refreshID, err := f.issuer.VerifyRefreshToken(res.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("refresh token invalid: %v", err)
	}
	sess, err := f.sessions.GetSessionByRefreshID(ctx, refreshID)
	if err != nil || sess.ID != res.SessionID {
		t.Fatalf("session not stored under refresh id: %v", err)
	}

	f.flush(t)
	if n := f.events.CountType(audit.EventCreated); n != 1 {
		t.Errorf("created events = %d, want 1", n)
	}
	if n := f.events.CountType(audit.EventSignedIn); n != 1 {
		t.Errorf("signed_in events = %d, want 1", n)
	}
	for _, e := range f.events.AuthEvents() {
		if e.Provider != "github" || e.SessionID != res.SessionID || e.IPAddress != "10.0.0.1" || e.Country != "DE" {
			t.Errorf("unexpected event %+v", e)
		}
	}
}

func TestSignInExternal_ReusesDeviceSession(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	first, err := f.svc.SignInExternal(ctx, githubProfile, laptop)
	if err != nil {
		t.Fatalf("first sign-in failed: %v", err)
	}
	f.clock.Advance(time.Minute)

	// Browser updated and IP changed: family match.
	second, err := f.svc.SignInExternal(ctx, githubProfile, ClientInfo{Device: chromeMacUpdated, IPAddress: "10.9.9.9"})
	if err != nil {
		t.Fatalf("second sign-in failed: %v", err)
	}
	if second.SessionCreated || second.UserCreated {
		t.Errorf("expected reuse, got %+v", second)
	}
	if second.SessionID != first.SessionID {
		t.Errorf("session id = %s, want %s", second.SessionID, first.SessionID)
	}

	// The first refresh token was rotated away.
	if _, err := f.svc.Refresh(ctx, first.Tokens.RefreshToken, laptop); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("old refresh token: err = %v, want ErrSessionNotFound", err)
	}

	third, err := f.svc.SignInExternal(ctx, githubProfile, phone)
	if err != nil {
		t.Fatalf("phone sign-in failed: %v", err)
	}
	if !third.SessionCreated || third.SessionID == first.SessionID {
		t.Error("a different device should get its own session")
	}

	f.flush(t)
	if c, r := f.events.CountType(audit.EventCreated), f.events.CountType(audit.EventRefreshed); c != 2 || r != 1 {
		t.Errorf("created=%d refreshed=%d, want 2 and 1", c, r)
	}
}

func TestSignInLocal(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("GenerateFromPassword failed: %v", err)
	}
	user, err := f.users.CreateLocal(ctx, "lin@example.com", "Lin", string(hash))
	if err != nil {
		t.Fatalf("CreateLocal failed: %v", err)
	}
	if _, _, err := f.users.UpsertExternal(ctx, models.ExternalProfile{Provider: "google", ExternalID: "g-1", Email: "sso@example.com"}); err != nil {
		t.Fatalf("UpsertExternal failed: %v", err)
	}

	tests := []struct {
		name     string
		email    string
		password string
		wantErr  bool
	}{
		{"correct password", "lin@example.com", "correct horse", false},
		{"email case and spaces", "  LIN@example.com ", "correct horse", false},
		{"wrong password", "lin@example.com", "battery staple", true},
		{"unknown email", "nobody@example.com", "correct horse", true},
		{"account without password", "sso@example.com", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.svc.SignInLocal(ctx, tt.email, tt.password, laptop)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidCredentials) {
					t.Errorf("err = %v, want ErrInvalidCredentials", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("SignInLocal failed: %v", err)
			}
			if res.User.ID != user.ID {
				t.Errorf("user id = %d, want %d", res.User.ID, user.ID)
			}
		})
	}

	f.flush(t)
	if n := f.events.CountType(audit.EventFailed); n != 3 {
		t.Errorf("failed events = %d, want 3", n)
	}
	for _, e := range f.events.AuthEvents() {
		if e.EventType == audit.EventFailed && (e.Success || e.ErrorMessage == "" || e.Provider != audit.ProviderLocal) {
			t.Errorf("bad failure event %+v", e)
		}
	}
}

func TestRegister(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	res, err := f.svc.Register(ctx, "New@Example.com", "Newcomer", "s3cret-pass", laptop)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if !res.UserCreated || res.User.Provider != models.ProviderLocal {
		t.Errorf("unexpected result %+v", res)
	}
	if _, err := f.svc.SignInLocal(ctx, "new@example.com", "s3cret-pass", laptop); err != nil {
		t.Errorf("sign-in after register failed: %v", err)
	}
	if _, err := f.svc.Register(ctx, "new@example.com", "Again", "whatever1", laptop); err == nil {
		t.Error("expected duplicate email to fail")
	}
}

func TestRefresh(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	signIn, err := f.svc.SignInExternal(ctx, githubProfile, laptop)
	if err != nil {
		t.Fatalf("SignInExternal failed: %v", err)
	}
	f.clock.Advance(10 * time.Minute)

	res, err := f.svc.Refresh(ctx, signIn.Tokens.RefreshToken, laptop)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if res.SessionID != signIn.SessionID || res.Tokens.RefreshToken == signIn.Tokens.RefreshToken {
		t.Errorf("refresh should rotate within the same session: %+v", res)
	}
	sess, err := f.sessions.GetSessionByID(ctx, res.SessionID)
	if err != nil {
		t.Fatalf("GetSessionByID failed: %v", err)
	}
	if !sess.LastActive.Equal(f.clock.Now()) {
		t.Errorf("last_active = %v, want %v", sess.LastActive, f.clock.Now())
	}

	// Reusing the rotated token fails.
	if _, err := f.svc.Refresh(ctx, signIn.Tokens.RefreshToken, laptop); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
	// An access token is not a refresh token.
	if _, err := f.svc.Refresh(ctx, res.Tokens.AccessToken, laptop); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}

	f.flush(t)
	// Sign-in recorded "created"; only the successful refresh counts here.
	if n := f.events.CountType(audit.EventRefreshed); n != 1 {
		t.Errorf("refreshed events = %d, want 1", n)
	}
}

func TestRefresh_RevokedSessionRecordsNothing(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	signIn, err := f.svc.SignInExternal(ctx, githubProfile, laptop)
	if err != nil {
		t.Fatalf("SignInExternal failed: %v", err)
	}
	ok, err := f.svc.RevokeSession(ctx, signIn.User.ID, signIn.SessionID, laptop)
	if err != nil || !ok {
		t.Fatalf("RevokeSession = %v, %v", ok, err)
	}

	if _, err := f.svc.Refresh(ctx, signIn.Tokens.RefreshToken, laptop); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
	f.flush(t)
	if n := f.events.CountType(audit.EventRefreshed); n != 0 {
		t.Errorf("refreshed events = %d, want 0", n)
	}
}

func TestLogout(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	signIn, err := f.svc.SignInExternal(ctx, githubProfile, laptop)
	if err != nil {
		t.Fatalf("SignInExternal failed: %v", err)
	}

	revoked, err := f.svc.Logout(ctx, signIn.Tokens.RefreshToken, "", laptop)
	if err != nil || !revoked {
		t.Fatalf("Logout = %v, %v", revoked, err)
	}
	if _, err := f.sessions.GetSessionByID(ctx, signIn.SessionID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("session still active after logout: %v", err)
	}

	again, err := f.svc.Logout(ctx, signIn.Tokens.RefreshToken, signIn.SessionID, laptop)
	if err != nil || again {
		t.Errorf("second logout = %v, %v; want false, nil", again, err)
	}

	f.flush(t)
	if r, o := f.events.CountType(audit.EventRevoked), f.events.CountType(audit.EventSignedOut); r != 1 || o != 1 {
		t.Errorf("revoked=%d signed_out=%d, want 1 and 1", r, o)
	}
}

func TestLogout_BySessionID(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	signIn, err := f.svc.SignInExternal(ctx, githubProfile, laptop)
	if err != nil {
		t.Fatalf("SignInExternal failed: %v", err)
	}
	revoked, err := f.svc.Logout(ctx, "", signIn.SessionID, laptop)
	if err != nil || !revoked {
		t.Errorf("Logout = %v, %v", revoked, err)
	}
}

func TestRevokeOthers(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	only, err := f.svc.SignInExternal(ctx, githubProfile, laptop)
	if err != nil {
		t.Fatalf("SignInExternal failed: %v", err)
	}
	n, err := f.svc.RevokeOthers(ctx, only.User.ID, only.SessionID, laptop)
	if err != nil || n != 0 {
		t.Fatalf("RevokeOthers with one session = %d, %v; want 0", n, err)
	}

	if _, err := f.svc.SignInExternal(ctx, githubProfile, phone); err != nil {
		t.Fatalf("phone sign-in failed: %v", err)
	}
	n, err = f.svc.RevokeOthers(ctx, only.User.ID, only.SessionID, laptop)
	if err != nil || n != 1 {
		t.Fatalf("RevokeOthers = %d, %v; want 1", n, err)
	}
	list, err := f.sessions.ListActiveSessions(ctx, only.User.ID)
	if err != nil || len(list) != 1 || list[0].ID != only.SessionID {
		t.Errorf("remaining sessions = %v, %v", sessionIDs(list), err)
	}

	f.flush(t)
	assertRevokedEvents(t, f, 1)
}

func TestRevokeSession(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	first, err := f.svc.SignInExternal(ctx, githubProfile, laptop)
	if err != nil {
		t.Fatalf("SignInExternal failed: %v", err)
	}
	second, err := f.svc.SignInExternal(ctx, githubProfile, phone)
	if err != nil {
		t.Fatalf("phone sign-in failed: %v", err)
	}

	if ok, err := f.svc.RevokeSession(ctx, first.User.ID+1, second.SessionID, laptop); err != nil || ok {
		t.Fatalf("revoking another user's session = %v, %v; want false", ok, err)
	}
	if ok, err := f.svc.RevokeSession(ctx, first.User.ID, second.SessionID, laptop); err != nil || !ok {
		t.Fatalf("RevokeSession = %v, %v; want true", ok, err)
	}

	f.flush(t)
	assertRevokedEvents(t, f, 1)
}

// assertRevokedEvents checks that revoked events carry the user's email
// and provider.
func assertRevokedEvents(t *testing.T, f *serviceFixture, want int) {
	t.Helper()
	var got int
	for _, e := range f.events.AuthEvents() {
		if e.EventType != audit.EventRevoked {
			continue
		}
		got++
		if e.Provider != "github" || e.Email != "grace@example.com" {
			t.Errorf("revoked event provider = %q, email = %q", e.Provider, e.Email)
		}
	}
	if got != want {
		t.Errorf("revoked events = %d, want %d", got, want)
	}
}

func TestCookieSettings(t *testing.T) {
	pair := &TokenPair{
		AccessToken:      "a",
		RefreshToken:     "r",
		AccessExpiresAt:  time.Now().Add(15 * time.Minute),
		RefreshExpiresAt: time.Now().Add(24 * time.Hour),
	}

	rec := httptest.NewRecorder()
	CookieSettings{Secure: true, Domain: "example.com"}.SetTokenCookies(rec, pair)
	cookies := rec.Result().Cookies()
	if len(cookies) != 2 {
		t.Fatalf("got %d cookies, want 2", len(cookies))
	}
	for _, c := range cookies {
		if !c.HttpOnly || !c.Secure || c.Domain != "example.com" || c.MaxAge <= 0 {
			t.Errorf("cookie %s has wrong attributes: %+v", c.Name, c)
		}
	}

	rec = httptest.NewRecorder()
	CookieSettings{}.ClearTokenCookies(rec)
	for _, c := range rec.Result().Cookies() {
		if c.Value != "" || c.MaxAge >= 0 {
			t.Errorf("cookie %s not cleared: %+v", c.Name, c)
		}
	}
}
