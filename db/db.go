// Package db provides the Postgres connection, schema migration, and the small
// data access helpers behind action history, the kv table and stored OAuth tokens.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'

	"github.com/onnwee/clockbot/crypto"
)

// Connect opens a Postgres pool for dsn and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("empty DB_DSN")
	}
	dbx, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	dbx.SetMaxOpenConns(5)
	dbx.SetConnMaxIdleTime(5 * time.Minute)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := dbx.PingContext(pctx); err != nil {
		_ = dbx.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return dbx, nil
}

// Migrate applies idempotent schema changes for all required tables and indices.
// It mirrors migrations/000001_init.up.sql and is used when versioned
// migrations cannot run (e.g. a role without permission to create schema_migrations).
func Migrate(ctx context.Context, dbx *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS action_runs (
			id BIGSERIAL PRIMARY KEY,
			run_id TEXT NOT NULL UNIQUE,
			action TEXT NOT NULL,
			status TEXT NOT NULL,
			detail TEXT,
			artifact TEXT,
			source TEXT,
			duration_ms BIGINT DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`ALTER TABLE action_runs ADD COLUMN IF NOT EXISTS duration_ms BIGINT DEFAULT 0`,
		`CREATE INDEX IF NOT EXISTS idx_action_runs_created ON action_runs(created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_action_runs_action_created ON action_runs(action, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value TEXT,
			updated_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS oauth_tokens (
			provider TEXT PRIMARY KEY,
			access_token TEXT,
			refresh_token TEXT,
			expires_at TIMESTAMPTZ,
			scope TEXT,
			updated_at TIMESTAMPTZ DEFAULT NOW(),
			encryption_version INTEGER DEFAULT 0,
			encryption_key_id TEXT
		)`,
	}
	for i, s := range stmts {
		if _, err := dbx.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("postgres migrate step %d failed: %w", i, err)
		}
	}
	return nil
}

// Store bundles the connection with the optional token encryptor.
type Store struct {
	DB  *sql.DB
	enc crypto.Encryptor
}

// NewStore wraps dbx. An empty encryptionKey stores OAuth tokens in plaintext.
func NewStore(dbx *sql.DB, encryptionKey string) (*Store, error) {
	s := &Store{DB: dbx}
	if encryptionKey == "" {
		slog.Warn("ENCRYPTION_KEY not set, OAuth tokens will be stored in plaintext (not recommended for production)", slog.String("component", "db_encryption"))
		return s, nil
	}
	enc, err := crypto.NewAESEncryptor(encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize encryption: %w", err)
	}
	s.enc = enc
	return s, nil
}

// Ping checks connectivity for readiness probes.
func (s *Store) Ping(ctx context.Context) error { return s.DB.PingContext(ctx) }

// SetKV upserts a key in the kv table.
func (s *Store) SetKV(ctx context.Context, key, value string) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO kv(key, value, updated_at) VALUES($1, $2, NOW())
		 ON CONFLICT(key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`, key, value)
	return err
}

// GetKV returns the value for key and whether it exists.
func (s *Store) GetKV(ctx context.Context, key string) (string, bool, error) {
	var v sql.NullString
	err := s.DB.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = $1`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v.String, true, nil
}
