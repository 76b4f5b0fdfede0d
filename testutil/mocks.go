package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
)

// MockOAuthServer mimics the Twitch id.twitch.tv token endpoint.
type MockOAuthServer struct {
	*httptest.Server

	mu     sync.Mutex
	forms  []url.Values
	status int
	body   map[string]any
}

// NewMockOAuthServer starts a server that answers /oauth2/token with a
// bearer token until told otherwise.
func NewMockOAuthServer(t *testing.T) *MockOAuthServer {
	t.Helper()
	m := &MockOAuthServer{status: http.StatusOK}
	m.MockTokenResponse("mock-access", "mock-refresh", 14400, "chat:read", "chat:edit")
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/oauth2/token" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = r.ParseForm()
		m.mu.Lock()
		m.forms = append(m.forms, r.PostForm)
		status, body := m.status, m.body
		m.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body) //nolint:errcheck // test mock response
	}))
	t.Cleanup(m.Close)
	return m
}

// AuthURL and TokenURL are the endpoints to point an oauth2 client at.
func (m *MockOAuthServer) AuthURL() string  { return m.URL + "/oauth2/authorize" }
func (m *MockOAuthServer) TokenURL() string { return m.URL + "/oauth2/token" }

// MockTokenResponse sets a successful token response. Scopes are sent as a
// JSON array, as Twitch does.
func (m *MockOAuthServer) MockTokenResponse(accessToken, refreshToken string, expiresIn int, scopes ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = http.StatusOK
	m.body = map[string]any{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"expires_in":    expiresIn,
		"scope":         scopes,
		"token_type":    "bearer",
	}
}

// MockTokenError makes the endpoint reject every grant.
func (m *MockOAuthServer) MockTokenError(status int, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = status
	m.body = map[string]any{"status": status, "message": message}
}

// Forms returns the form bodies posted so far.
func (m *MockOAuthServer) Forms() []url.Values {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]url.Values(nil), m.forms...)
}
