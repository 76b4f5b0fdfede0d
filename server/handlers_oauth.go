package server

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/onnwee/clockbot/db"
	"github.com/onnwee/clockbot/twitchapi"
)

// HandleTwitchOAuthStart redirects to Twitch to authorize the chat bot account.
func (h *Handlers) HandleTwitchOAuthStart(w http.ResponseWriter, r *http.Request) {
	if h.deps.OAuth == nil {
		http.Error(w, "oauth not configured (need TWITCH_CLIENT_ID + TWITCH_REDIRECT_URI)", http.StatusBadRequest)
		return
	}
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		http.Error(w, "state gen error", http.StatusInternalServerError)
		return
	}
	st := hex.EncodeToString(b)
	if !h.addOAuthState(st, h.now().Add(oauthStateTTL)) {
		http.Error(w, "too many pending authorizations", http.StatusServiceUnavailable)
		return
	}
	http.Redirect(w, r, h.deps.OAuth.AuthorizeURL(st), http.StatusFound)
}

// HandleTwitchOAuthCallback exchanges the code and stores the bot token.
func (h *Handlers) HandleTwitchOAuthCallback(w http.ResponseWriter, r *http.Request) {
	if h.deps.OAuth == nil {
		http.Error(w, "oauth not configured", http.StatusBadRequest)
		return
	}
	if h.deps.Store == nil {
		http.Error(w, "token storage requires DB_DSN", http.StatusServiceUnavailable)
		return
	}
	code := r.URL.Query().Get("code")
	st := r.URL.Query().Get("state")
	if code == "" || st == "" {
		http.Error(w, "missing code/state", http.StatusBadRequest)
		return
	}
	if !h.consumeOAuthState(st) {
		http.Error(w, "invalid state", http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	tok, err := h.deps.OAuth.Exchange(ctx, code)
	if err != nil {
		slog.Warn("twitch oauth exchange failed", slog.String("component", "http"), slog.Any("err", err))
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	scope := twitchapi.Scope(tok)
	err = h.deps.Store.UpsertOAuthToken(ctx, db.OAuthToken{
		Provider:     twitchapi.Provider,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       twitchapi.Expiry(tok),
		Scope:        scope,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "scope": scope, "expiry": twitchapi.Expiry(tok)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode JSON response", slog.Any("err", err))
	}
}
