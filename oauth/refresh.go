// Package oauth provides generic token refresh scheduling for providers whose
// tokens are persisted in the oauth_tokens table. It performs jittered checks
// and refreshes when expiry falls within a configured window.
package oauth

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/onnwee/clockbot/db"
)

// RefreshFunc performs provider-specific refresh and returns (access, refresh, expiry, scope)
type RefreshFunc func(ctx context.Context, refreshToken string) (string, string, time.Time, string, error)

// TokenStore is the part of db.Store the refresher needs.
type TokenStore interface {
	GetOAuthToken(ctx context.Context, provider string) (db.OAuthToken, bool, error)
	UpsertOAuthToken(ctx context.Context, t db.OAuthToken) error
}

// RefreshIfDue refreshes provider's token when its remaining lifetime is within
// window. It reports whether a refresh happened. A missing token or one without a
// refresh token is not an error.
func RefreshIfDue(ctx context.Context, store TokenStore, provider string, window time.Duration, fn RefreshFunc) (bool, error) {
	tok, ok, err := store.GetOAuthToken(ctx, provider)
	if err != nil {
		return false, fmt.Errorf("load %s token: %w", provider, err)
	}
	if !ok || tok.RefreshToken == "" {
		return false, nil
	}
	// If still outside window skip quickly
	if !tok.Expiry.IsZero() && time.Until(tok.Expiry) > window {
		return false, nil
	}
	ctx2, cancel := context.WithTimeout(ctx, 15*time.Second)
	newAT, newRT, newExp, newScope, err := fn(ctx2, tok.RefreshToken)
	cancel()
	if err != nil {
		return false, fmt.Errorf("refresh %s token: %w", provider, err)
	}
	if newRT == "" {
		newRT = tok.RefreshToken
	}
	if newScope == "" {
		newScope = tok.Scope
	}
	err = store.UpsertOAuthToken(ctx, db.OAuthToken{
		Provider:     provider,
		AccessToken:  newAT,
		RefreshToken: newRT,
		Expiry:       newExp,
		Scope:        strings.TrimSpace(newScope),
	})
	if err != nil {
		return false, fmt.Errorf("persist %s token: %w", provider, err)
	}
	return true, nil
}

// StartRefresher launches a goroutine that periodically checks an oauth token row and refreshes it.
// provider: key in oauth_tokens table.
// interval: how often to wake up and check.
// window: refresh when remaining lifetime <= window.
func StartRefresher(ctx context.Context, store TokenStore, provider string, interval, window time.Duration, fn RefreshFunc) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	// Randomize initial delay to spread load across instances.
	//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
	initialJitter := time.Duration(rand.Int63n(int64(interval/2) + 1))
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(initialJitter):
		}
		for {
			refreshed, err := RefreshIfDue(ctx, store, provider, window, fn)
			switch {
			case err != nil:
				slog.Warn("token refresh failed", slog.String("provider", provider), slog.Any("err", err))
			case refreshed:
				slog.Info("token refreshed", slog.String("provider", provider))
			}

			// ±20% jitter per iteration
			jitterRange := int64(interval/5) + 1
			//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
			nextSleep := interval + time.Duration(rand.Int63n(jitterRange*2)-jitterRange)
			if nextSleep < interval/2 {
				nextSleep = interval / 2
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(nextSleep):
			}
		}
	}()
}
