// Pulseboard - Developer Time Tracking and Activity Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulseboard

package auth

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/zitadel/oidc/v3/pkg/oidc"
	"golang.org/x/oauth2"
)

func openTestStateStore(t *testing.T) *BadgerStateStore {
	t.Helper()
	store, err := OpenBadgerStateStore("")
	if err != nil {
		t.Fatalf("OpenBadgerStateStore failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestBadgerStateStore_ConsumeOnce(t *testing.T) {
	store := openTestStateStore(t)
	ctx := context.Background()
	now := time.Now()

	in := &StateData{Provider: "github", CodeVerifier: "verifier", Redirect: "/dash", CreatedAt: now, ExpiresAt: now.Add(time.Minute)}
	if err := store.Put(ctx, "state-1", in); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.Consume(ctx, "state-1")
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if got.Provider != "github" || got.CodeVerifier != "verifier" || got.Redirect != "/dash" {
		t.Errorf("unexpected state %+v", got)
	}

	if _, err := store.Consume(ctx, "state-1"); !errors.Is(err, ErrStateNotFound) {
		t.Errorf("second Consume err = %v, want ErrStateNotFound", err)
	}
	if _, err := store.Consume(ctx, ""); !errors.Is(err, ErrStateNotFound) {
		t.Errorf("empty key err = %v, want ErrStateNotFound", err)
	}
}

func TestBadgerStateStore_Expired(t *testing.T) {
	store := openTestStateStore(t)
	ctx := context.Background()
	clock := newFakeClock()
	store.now = clock.Now

	if err := store.Put(ctx, "s", &StateData{Provider: "oidc", ExpiresAt: clock.Now().Add(time.Minute)}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	clock.Advance(2 * time.Minute)

	if _, err := store.Consume(ctx, "s"); !errors.Is(err, ErrStateNotFound) {
		t.Errorf("err = %v, want ErrStateNotFound", err)
	}
}

func TestBadgerStateStore_PutValidates(t *testing.T) {
	store := openTestStateStore(t)
	if err := store.Put(context.Background(), "", &StateData{}); err == nil {
		t.Error("expected error for empty key")
	}
	if err := store.Put(context.Background(), "k", nil); err == nil {
		t.Error("expected error for nil state")
	}
}

type fakeIdP struct {
	lastState     string
	lastChallenge string
	lastVerifier  string
	claims        *oidc.IDTokenClaims
	err           error
	calls         int
}

func (f *fakeIdP) authURL(state, challenge string) string {
	f.lastState, f.lastChallenge = state, challenge
	return "https://idp.example.com/authorize?state=" + url.QueryEscape(state) + "&code_challenge=" + challenge
}

func (f *fakeIdP) exchange(_ context.Context, code, verifier string) (*oidc.IDTokenClaims, error) {
	f.calls++
	f.lastVerifier = verifier
	if f.err != nil {
		return nil, f.err
	}
	return f.claims, nil
}

func newFakeProvider(t *testing.T, idp *fakeIdP) *Provider {
	t.Helper()
	return newProvider("github", openTestStateStore(t), time.Minute, idp.authURL, idp.exchange)
}

func TestProvider_AuthorizationAndExchange(t *testing.T) {
	claims := &oidc.IDTokenClaims{}
	claims.Subject = "gh-123"
	claims.Email = "Octo@Example.com"
	claims.Name = "Octo Cat"
	claims.Picture = "https://avatars.example.com/octo.png"
	idp := &fakeIdP{claims: claims}
	p := newFakeProvider(t, idp)
	ctx := context.Background()

	authURL, err := p.AuthorizationURL(ctx, "/dashboard")
	if err != nil {
		t.Fatalf("AuthorizationURL failed: %v", err)
	}
	if idp.lastState == "" || idp.lastChallenge == "" {
		t.Fatalf("state or challenge missing from %s", authURL)
	}

	profile, redirect, err := p.Exchange(ctx, "code-1", idp.lastState)
	if err != nil {
		t.Fatalf("Exchange failed: %v", err)
	}
	if redirect != "/dashboard" {
		t.Errorf("redirect = %q", redirect)
	}
	if oidc.NewSHACodeChallenge(idp.lastVerifier) != idp.lastChallenge {
		t.Error("code verifier does not match the challenge sent to the provider")
	}
	if profile.Provider != "github" || profile.ExternalID != "gh-123" || profile.Email != "octo@example.com" ||
		profile.FullName != "Octo Cat" || profile.AvatarURL == "" {
		t.Errorf("unexpected profile %+v", profile)
	}

	// State is single use.
	if _, _, err := p.Exchange(ctx, "code-1", idp.lastState); !errors.Is(err, ErrStateNotFound) {
		t.Errorf("replayed state err = %v, want ErrStateNotFound", err)
	}
}

func TestProvider_ExchangeErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown state", func(t *testing.T) {
		p := newFakeProvider(t, &fakeIdP{})
		if _, _, err := p.Exchange(ctx, "code", "never-issued"); !errors.Is(err, ErrStateNotFound) {
			t.Errorf("err = %v, want ErrStateNotFound", err)
		}
	})

	t.Run("state of another provider", func(t *testing.T) {
		idp := &fakeIdP{}
		store := openTestStateStore(t)
		google := newProvider("google", store, time.Minute, idp.authURL, idp.exchange)
		github := newProvider("github", store, time.Minute, idp.authURL, idp.exchange)
		if _, err := google.AuthorizationURL(ctx, ""); err != nil {
			t.Fatalf("AuthorizationURL failed: %v", err)
		}
		if _, _, err := github.Exchange(ctx, "code", idp.lastState); !errors.Is(err, ErrStateNotFound) {
			t.Errorf("err = %v, want ErrStateNotFound", err)
		}
	})

	t.Run("missing subject", func(t *testing.T) {
		idp := &fakeIdP{claims: &oidc.IDTokenClaims{}}
		p := newFakeProvider(t, idp)
		if _, err := p.AuthorizationURL(ctx, ""); err != nil {
			t.Fatalf("AuthorizationURL failed: %v", err)
		}
		if _, _, err := p.Exchange(ctx, "code", idp.lastState); !errors.Is(err, ErrExchangeFailed) {
			t.Errorf("err = %v, want ErrExchangeFailed", err)
		}
	})

	t.Run("circuit opens after repeated failures", func(t *testing.T) {
		idp := &fakeIdP{err: &oauth2.RetrieveError{Response: &http.Response{StatusCode: http.StatusBadGateway}}}
		p := newFakeProvider(t, idp)

		var last error
		for i := 0; i < 6; i++ {
			if _, err := p.AuthorizationURL(ctx, ""); err != nil {
				t.Fatalf("AuthorizationURL failed: %v", err)
			}
			_, _, last = p.Exchange(ctx, "code", idp.lastState)
		}
		if !errors.Is(last, ErrProviderUnavailable) {
			t.Errorf("err = %v, want ErrProviderUnavailable", last)
		}
		if idp.calls != 5 {
			t.Errorf("provider called %d times, want 5", idp.calls)
		}
	})

	t.Run("rejected codes keep the circuit closed", func(t *testing.T) {
		idp := &fakeIdP{err: &oauth2.RetrieveError{
			Response:  &http.Response{StatusCode: http.StatusBadRequest},
			ErrorCode: "invalid_grant",
		}}
		p := newFakeProvider(t, idp)

		for i := 0; i < 8; i++ {
			if _, err := p.AuthorizationURL(ctx, ""); err != nil {
				t.Fatalf("AuthorizationURL failed: %v", err)
			}
			_, _, err := p.Exchange(ctx, "garbage", idp.lastState)
			if !errors.Is(err, ErrExchangeFailed) {
				t.Fatalf("attempt %d: err = %v, want ErrExchangeFailed", i, err)
			}
		}

		claims := &oidc.IDTokenClaims{}
		claims.Subject = "gh-123"
		idp.err, idp.claims = nil, claims
		if _, err := p.AuthorizationURL(ctx, ""); err != nil {
			t.Fatalf("AuthorizationURL failed: %v", err)
		}
		if _, _, err := p.Exchange(ctx, "good", idp.lastState); err != nil {
			t.Errorf("legitimate exchange failed: %v", err)
		}
	})
}

func TestProviderHealthy(t *testing.T) {
	retrieve := func(code int) error {
		return &oauth2.RetrieveError{Response: &http.Response{StatusCode: code}}
	}
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, true},
		{"bad request", retrieve(http.StatusBadRequest), true},
		{"unauthorized client", retrieve(http.StatusUnauthorized), true},
		{"wrapped bad request", errors.Join(errors.New("exchange"), retrieve(http.StatusBadRequest)), true},
		{"server error", retrieve(http.StatusInternalServerError), false},
		{"no response", &oauth2.RetrieveError{}, false},
		{"network", errors.New("dial tcp: connection refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := providerHealthy(tt.err); got != tt.want {
				t.Errorf("providerHealthy = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProviders_Get(t *testing.T) {
	ps := Providers{"github": newFakeProvider(t, &fakeIdP{})}
	if p, err := ps.Get("github"); err != nil || p.Name() != "github" {
		t.Errorf("Get(github) = %v, %v", p, err)
	}
	if _, err := ps.Get("gitlab"); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("err = %v, want ErrUnknownProvider", err)
	}
}
