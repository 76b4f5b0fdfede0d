// Package main seals secrets with ENCRYPTION_KEY.
//
// By default it reads one line from stdin and prints it sealed as enc:<base64>,
// ready to paste into PAYLOCITY_PASSWORD. With -tokens it instead encrypts every
// plaintext row in oauth_tokens (encryption_version=0) in place.
//
// Usage:
//
//	seal-secret < password.txt
//	seal-secret -tokens [-dry-run]
//
// Environment Variables:
//
//	ENCRYPTION_KEY: Base64-encoded 32-byte key (required)
//	DB_DSN: Database connection string (required with -tokens)
//
// Example:
//
//	export ENCRYPTION_KEY="$(openssl rand -base64 32)"
//	printf '%s' 'hunter2' | ./seal-secret
package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/clockbot/crypto"
	"github.com/onnwee/clockbot/db"
)

func main() {
	tokens := flag.Bool("tokens", false, "Encrypt plaintext rows in oauth_tokens instead of sealing stdin")
	dryRun := flag.Bool("dry-run", false, "With -tokens, report what would be encrypted without changing anything")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))
	_ = godotenv.Load()

	key := os.Getenv("ENCRYPTION_KEY")
	if key == "" {
		slog.Error("ENCRYPTION_KEY environment variable is required")
		os.Exit(1)
	}

	if !*tokens {
		sealed, err := sealReader(os.Stdin, key)
		if err != nil {
			slog.Error("seal failed", slog.Any("error", err))
			os.Exit(1)
		}
		fmt.Println(sealed)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	database, err := db.Connect(ctx, os.Getenv("DB_DSN"))
	if err != nil {
		slog.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer database.Close()

	if err := migrateTokens(ctx, database, key, *dryRun); err != nil {
		slog.Error("token encryption failed", slog.Any("error", err))
		os.Exit(1)
	}
}

// sealReader seals the first line of r. Trailing newlines are not part of the secret.
func sealReader(r io.Reader, key string) (string, error) {
	enc, err := crypto.NewAESEncryptor(key)
	if err != nil {
		return "", err
	}
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read secret: %w", err)
	}
	secret := strings.TrimRight(line, "\r\n")
	if secret == "" {
		return "", errors.New("empty secret on stdin")
	}
	return crypto.Seal(enc, secret)
}

// migrateTokens encrypts plaintext oauth_tokens rows and reports the result.
func migrateTokens(ctx context.Context, database *sql.DB, key string, dryRun bool) error {
	if err := db.Migrate(ctx, database); err != nil {
		return err
	}
	before, err := encryptionStatus(ctx, database)
	if err != nil {
		return err
	}
	slog.Info("token encryption status", slog.Int("plaintext", before[0]), slog.Int("encrypted", before[1]), slog.Bool("dry_run", dryRun))
	if dryRun || before[0] == 0 {
		return nil
	}

	store, err := db.NewStore(database, key)
	if err != nil {
		return err
	}
	n, err := store.EncryptPlaintextTokens(ctx)
	slog.Info("migration summary", slog.Int("total", before[0]), slog.Int("migrated", n))
	return err
}

// encryptionStatus counts oauth_tokens rows per encryption_version.
func encryptionStatus(ctx context.Context, database *sql.DB) (map[int]int, error) {
	rows, err := database.QueryContext(ctx, `
		SELECT COALESCE(encryption_version, 0), COUNT(*)
		FROM oauth_tokens
		GROUP BY 1
	`)
	if err != nil {
		return nil, fmt.Errorf("query encryption status: %w", err)
	}
	defer rows.Close()

	out := map[int]int{}
	for rows.Next() {
		var version, count int
		if err := rows.Scan(&version, &count); err != nil {
			return nil, fmt.Errorf("scan encryption status: %w", err)
		}
		out[version] = count
	}
	return out, rows.Err()
}
