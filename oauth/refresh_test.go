package oauth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/clockbot/db"
)

type memStore struct {
	mu     sync.Mutex
	tokens map[string]db.OAuthToken
	upErr  error
}

func (m *memStore) GetOAuthToken(_ context.Context, provider string) (db.OAuthToken, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[provider]
	return t, ok, nil
}

func (m *memStore) UpsertOAuthToken(_ context.Context, t db.OAuthToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upErr != nil {
		return m.upErr
	}
	m.tokens[t.Provider] = t
	return nil
}

func (m *memStore) get(p string) db.OAuthToken {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[p]
}

func newStore(tok db.OAuthToken) *memStore {
	return &memStore{tokens: map[string]db.OAuthToken{tok.Provider: tok}}
}

func TestRefreshIfDueOutsideWindow(t *testing.T) {
	s := newStore(db.OAuthToken{Provider: "twitch", AccessToken: "a", RefreshToken: "r", Expiry: time.Now().Add(time.Hour)})
	called := false
	fn := func(context.Context, string) (string, string, time.Time, string, error) {
		called = true
		return "", "", time.Time{}, "", nil
	}
	refreshed, err := RefreshIfDue(context.Background(), s, "twitch", 30*time.Minute, fn)
	if err != nil || refreshed || called {
		t.Fatalf("RefreshIfDue() = %v, %v (called=%v)", refreshed, err, called)
	}
}

func TestRefreshIfDueWithinWindow(t *testing.T) {
	s := newStore(db.OAuthToken{Provider: "twitch", AccessToken: "old-access", RefreshToken: "old-refresh", Expiry: time.Now().Add(5 * time.Minute), Scope: "chat:read"})
	newExpiry := time.Now().Add(2 * time.Hour)
	fn := func(_ context.Context, rt string) (string, string, time.Time, string, error) {
		if rt != "old-refresh" {
			t.Errorf("refresh called with wrong token: got %s, want old-refresh", rt)
		}
		return "new-access", "", newExpiry, "", nil
	}
	refreshed, err := RefreshIfDue(context.Background(), s, "twitch", 15*time.Minute, fn)
	if err != nil || !refreshed {
		t.Fatalf("RefreshIfDue() = %v, %v", refreshed, err)
	}
	got := s.get("twitch")
	if got.AccessToken != "new-access" || got.RefreshToken != "old-refresh" || got.Scope != "chat:read" || !got.Expiry.Equal(newExpiry) {
		t.Errorf("stored token = %+v", got)
	}
}

func TestRefreshIfDueErrors(t *testing.T) {
	base := db.OAuthToken{Provider: "twitch", RefreshToken: "r", Expiry: time.Now()}
	failing := func(context.Context, string) (string, string, time.Time, string, error) {
		return "", "", time.Time{}, "", errors.New("invalid refresh token")
	}
	if _, err := RefreshIfDue(context.Background(), newStore(base), "twitch", time.Minute, failing); err == nil {
		t.Error("expected refresh error")
	}

	ok := func(context.Context, string) (string, string, time.Time, string, error) {
		return "a", "r2", time.Now().Add(time.Hour), "", nil
	}
	s := newStore(base)
	s.upErr = errors.New("db down")
	if _, err := RefreshIfDue(context.Background(), s, "twitch", time.Minute, ok); err == nil {
		t.Error("expected persist error")
	}

	// no refresh token and missing provider are skipped silently
	if r, err := RefreshIfDue(context.Background(), newStore(db.OAuthToken{Provider: "twitch"}), "twitch", time.Minute, ok); r || err != nil {
		t.Errorf("no refresh token: %v, %v", r, err)
	}
	if r, err := RefreshIfDue(context.Background(), newStore(base), "other", time.Minute, ok); r || err != nil {
		t.Errorf("missing provider: %v, %v", r, err)
	}
}

func TestStartRefresherRefreshesAndStops(t *testing.T) {
	s := newStore(db.OAuthToken{Provider: "twitch", AccessToken: "old", RefreshToken: "r", Expiry: time.Now().Add(time.Minute)})
	var mu sync.Mutex
	calls := 0
	fn := func(context.Context, string) (string, string, time.Time, string, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return "new", "r", time.Now().Add(time.Minute), "", nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	StartRefresher(ctx, s, "twitch", 20*time.Millisecond, time.Hour, fn)

	deadline := time.Now().Add(2 * time.Second)
	for s.get("twitch").AccessToken != "new" {
		if time.Now().After(deadline) {
			t.Fatal("token never refreshed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	after := calls
	mu.Unlock()
	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if calls != after {
		t.Errorf("refresher kept running after cancel: %d -> %d", after, calls)
	}
}
