// Package server exposes the HTTP API handlers.
package server

import (
	"context"
	"sync"
	"time"

	"github.com/onnwee/clockbot/config"
	"github.com/onnwee/clockbot/db"
	"github.com/onnwee/clockbot/timekeeping"
	"github.com/onnwee/clockbot/twitchapi"
)

const (
	// Maximum number of OAuth states to keep in memory
	maxOAuthStates = 10000
	oauthStateTTL  = 10 * time.Minute
)

// Flows is the part of timekeeping.Runner the API drives.
type Flows interface {
	PerformAction(ctx context.Context, name string) (timekeeping.Message, error)
	Locate(ctx context.Context, name string) ([]timekeeping.Probe, error)
	LastOutcomes() []timekeeping.Outcome
	Busy() bool
}

// Store is the part of db.Store the API reads and writes. It is optional.
type Store interface {
	Ping(ctx context.Context) error
	RecentRuns(ctx context.Context, limit int, action string) ([]db.RunRecord, error)
	UpsertOAuthToken(ctx context.Context, t db.OAuthToken) error
}

// Deps are the collaborators behind the routes. Only Flows is required.
type Deps struct {
	Flows Flows
	Store Store
	OAuth *twitchapi.OAuth
	// BrowserCheck reports whether a browser can be launched; used by /readyz.
	BrowserCheck func(ctx context.Context) error
	Config       *config.Config
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	deps       Deps
	now        func() time.Time
	stateStore map[string]time.Time
	stateMu    sync.Mutex
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(deps Deps) *Handlers {
	return &Handlers{
		deps:       deps,
		now:        time.Now,
		stateStore: make(map[string]time.Time),
	}
}

// addOAuthState records state until expiry. It refuses new states past
// maxOAuthStates so an unauthenticated caller cannot grow the map forever.
func (h *Handlers) addOAuthState(state string, expiry time.Time) bool {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	if len(h.stateStore)%100 == 0 {
		now := h.now()
		for s, exp := range h.stateStore {
			if now.After(exp) {
				delete(h.stateStore, s)
			}
		}
	}
	if len(h.stateStore) >= maxOAuthStates {
		return false
	}
	h.stateStore[state] = expiry
	return true
}

// consumeOAuthState reports whether state is known and unexpired, and forgets it.
func (h *Handlers) consumeOAuthState(state string) bool {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	exp, ok := h.stateStore[state]
	delete(h.stateStore, state)
	return ok && !h.now().After(exp)
}
