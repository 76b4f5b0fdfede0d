package main

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/onnwee/clockbot/crypto"
	"github.com/onnwee/clockbot/testutil"
)

// 32 bytes, base64
const testKey = "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY="

func TestSealReader(t *testing.T) {
	sealed, err := sealReader(strings.NewReader("hunter2\n"), testKey)
	if err != nil {
		t.Fatalf("sealReader() error = %v", err)
	}
	if !crypto.IsSealed(sealed) {
		t.Fatalf("sealed = %q", sealed)
	}
	got, err := crypto.Reveal(sealed, testKey)
	if err != nil || got != "hunter2" {
		t.Errorf("Reveal() = %q, %v", got, err)
	}
}

func TestSealReaderErrors(t *testing.T) {
	if _, err := sealReader(strings.NewReader("\n"), testKey); err == nil {
		t.Error("expected error for empty secret")
	}
	if _, err := sealReader(strings.NewReader("x"), "short"); err == nil {
		t.Error("expected error for bad key")
	}
}

func TestMigrateTokens(t *testing.T) {
	database := testutil.SetupTestDB(t)
	ctx := context.Background()

	_, err := database.ExecContext(ctx,
		`INSERT INTO oauth_tokens (provider, access_token, refresh_token, expires_at, scope, encryption_version)
		 VALUES ('twitch', 'plain-access', 'plain-refresh', $1, 'chat:read', 0)`,
		time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("insert token: %v", err)
	}

	if err := migrateTokens(ctx, database, testKey, true); err != nil {
		t.Fatalf("dry run: %v", err)
	}
	status, err := encryptionStatus(ctx, database)
	if err != nil || status[0] != 1 {
		t.Fatalf("after dry run status = %v, %v", status, err)
	}

	if err := migrateTokens(ctx, database, testKey, false); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	status, _ = encryptionStatus(ctx, database)
	if status[0] != 0 || status[1] != 1 {
		t.Errorf("after migration status = %v", status)
	}
	var stored string
	if err := database.QueryRowContext(ctx, `SELECT access_token FROM oauth_tokens WHERE provider='twitch'`).Scan(&stored); err != nil {
		t.Fatal(err)
	}
	if stored == "plain-access" {
		t.Error("access token still plaintext")
	}
}
