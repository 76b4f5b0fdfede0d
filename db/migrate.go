package db

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// newMigrator builds a migrate instance from the embedded files, or from
// migrationsPath (a file:// URL) when it is non-empty.
func newMigrator(db *sql.DB, migrationsPath string) (*migrate.Migrate, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}
	var m *migrate.Migrate
	if migrationsPath == "" {
		src, serr := iofs.New(migrationFS, "migrations")
		if serr != nil {
			return nil, fmt.Errorf("open embedded migrations: %w", serr)
		}
		m, err = migrate.NewWithInstance("iofs", src, "postgres", driver)
	} else {
		m, err = migrate.NewWithDatabaseInstance(migrationsPath, "postgres", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}

// MigrationsDir returns a file:// URL for an on-disk migrations directory,
// probing the locations used when running from the repo root or from db/.
func MigrationsDir() (string, error) {
	possiblePaths := []string{"db/migrations", "migrations", "./db/migrations", "./migrations"}
	for _, path := range possiblePaths {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(path)
			if err != nil {
				return "", fmt.Errorf("failed to get absolute path for %s: %w", path, err)
			}
			return "file://" + absPath, nil
		}
	}
	return "", fmt.Errorf("migrations directory not found in any of the expected locations: %v", possiblePaths)
}

// RunMigrations applies the embedded versioned migrations. Safe to run repeatedly.
func RunMigrations(db *sql.DB) error { return RunMigrationsFromPath(db, "") }

// RunMigrationsFromPath applies migrations from a file:// URL; empty means embedded.
func RunMigrationsFromPath(db *sql.DB, migrationsPath string) error {
	m, err := newMigrator(db, migrationsPath)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			slog.Info("database schema is up to date", slog.String("component", "db_migrate"))
			return nil
		}
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		slog.Warn("could not determine migration version", slog.Any("error", err), slog.String("component", "db_migrate"))
		return nil
	}
	if dirty {
		return fmt.Errorf("database is in dirty state at version %d - manual intervention required", version)
	}
	slog.Info("migrations applied successfully",
		slog.Uint64("version", uint64(version)),
		slog.String("component", "db_migrate"))
	return nil
}

// MigrateDown rolls back the most recent embedded migration.
// WARNING: this drops action history.
func MigrateDown(db *sql.DB) error {
	m, err := newMigrator(db, "")
	if err != nil {
		return err
	}
	if err := m.Steps(-1); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			slog.Info("no migrations to roll back", slog.String("component", "db_migrate"))
			return nil
		}
		return fmt.Errorf("failed to roll back migration: %w", err)
	}
	return nil
}

// GetMigrationVersion returns the current migration version and dirty state.
func GetMigrationVersion(db *sql.DB) (version uint, dirty bool, err error) {
	m, err := newMigrator(db, "")
	if err != nil {
		return 0, false, err
	}
	v, d, err := m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}
	return v, d, nil
}
