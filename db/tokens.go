package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/onnwee/clockbot/crypto"
)

// OAuthToken is a stored provider token with plaintext secrets.
type OAuthToken struct {
	Provider     string
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
	Scope        string
}

// UpsertOAuthToken stores or updates the token for a provider (e.g. twitch).
// With an encryptor configured, tokens are stored as encryption_version=1.
func (s *Store) UpsertOAuthToken(ctx context.Context, t OAuthToken) error {
	encVersion := 0
	encKeyID := ""
	access, refresh := t.AccessToken, t.RefreshToken

	if s.enc != nil {
		encVersion = 1
		encKeyID = "default"
		var err error
		if access, err = crypto.EncryptString(s.enc, access); err != nil {
			return fmt.Errorf("encrypt access token: %w", err)
		}
		if refresh, err = crypto.EncryptString(s.enc, refresh); err != nil {
			return fmt.Errorf("encrypt refresh token: %w", err)
		}
	}

	q := `INSERT INTO oauth_tokens(provider, access_token, refresh_token, expires_at, scope, encryption_version, encryption_key_id, updated_at)
		  VALUES($1,$2,$3,$4,$5,$6,$7,NOW())
		  ON CONFLICT(provider) DO UPDATE SET
		    access_token=EXCLUDED.access_token,
		    refresh_token=EXCLUDED.refresh_token,
		    expires_at=EXCLUDED.expires_at,
		    scope=EXCLUDED.scope,
		    encryption_version=EXCLUDED.encryption_version,
		    encryption_key_id=EXCLUDED.encryption_key_id,
		    updated_at=NOW()`
	_, err := s.DB.ExecContext(ctx, q, t.Provider, access, refresh, t.Expiry, t.Scope, encVersion, encKeyID)
	return err
}

// GetOAuthToken returns the stored token; found is false when none exists.
// Plaintext rows (encryption_version=0) are read as-is.
func (s *Store) GetOAuthToken(ctx context.Context, provider string) (t OAuthToken, found bool, err error) {
	var encVersion int
	var access, refresh, scope sql.NullString
	var expiry sql.NullTime

	err = s.DB.QueryRowContext(ctx,
		`SELECT access_token, refresh_token, expires_at, scope, COALESCE(encryption_version, 0)
		 FROM oauth_tokens WHERE provider = $1`, provider).
		Scan(&access, &refresh, &expiry, &scope, &encVersion)
	if err == sql.ErrNoRows {
		return OAuthToken{}, false, nil
	}
	if err != nil {
		return OAuthToken{}, false, err
	}
	t = OAuthToken{Provider: provider, AccessToken: access.String, RefreshToken: refresh.String, Expiry: expiry.Time, Scope: scope.String}

	if encVersion == 1 {
		if s.enc == nil {
			return OAuthToken{}, false, fmt.Errorf("token is encrypted but ENCRYPTION_KEY not configured")
		}
		if t.AccessToken, err = crypto.DecryptString(s.enc, t.AccessToken); err != nil {
			return OAuthToken{}, false, fmt.Errorf("decrypt access token: %w", err)
		}
		if t.RefreshToken, err = crypto.DecryptString(s.enc, t.RefreshToken); err != nil {
			return OAuthToken{}, false, fmt.Errorf("decrypt refresh token: %w", err)
		}
	}
	return t, true, nil
}

// EncryptPlaintextTokens re-stores every encryption_version=0 row through the
// encryptor. It returns the number of rows migrated.
func (s *Store) EncryptPlaintextTokens(ctx context.Context) (int, error) {
	if s.enc == nil {
		return 0, fmt.Errorf("ENCRYPTION_KEY not configured")
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT provider FROM oauth_tokens WHERE COALESCE(encryption_version, 0) = 0`)
	if err != nil {
		return 0, err
	}
	var providers []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			rows.Close()
			return 0, err
		}
		providers = append(providers, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	n := 0
	for _, p := range providers {
		t, ok, err := s.GetOAuthToken(ctx, p)
		if err != nil {
			return n, fmt.Errorf("read %s: %w", p, err)
		}
		if !ok {
			continue
		}
		if err := s.UpsertOAuthToken(ctx, t); err != nil {
			return n, fmt.Errorf("encrypt %s: %w", p, err)
		}
		n++
	}
	return n, nil
}
