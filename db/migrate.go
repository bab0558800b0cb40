// Package db embeds the schema migrations and runs them with golang-migrate.
package db

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5" // pgx v5 driver
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies all pending migrations against connURL, which must be a
// postgres:// or postgresql:// URL. Already-applied versions are skipped via
// the schema_migrations table golang-migrate maintains.
func Migrate(connURL string) error {
	m, err := newMigrator(connURL)
	if err != nil {
		return err
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil {
			slog.Warn("failed to close migration source", "error", srcErr)
		}
		if dbErr != nil {
			slog.Warn("failed to close migration database connection", "error", dbErr)
		}
	}()

	// Refuse to run on a dirty database; a half-applied migration needs a
	// human decision, not another Up().
	if version, dirty, err := currentVersion(m); err != nil {
		return err
	} else if dirty {
		slog.Error("database is in dirty migration state, manual intervention required",
			"version", version,
			"hint", fmt.Sprintf("inspect schema and run: migrate force %d", version))
		return fmt.Errorf("database in dirty state (version=%d), manual cleanup required", version)
	}

	switch err := m.Up(); {
	case errors.Is(err, migrate.ErrNoChange):
		slog.Debug("no new migrations to apply")
		return nil
	case err != nil:
		if version, dirty, verErr := currentVersion(m); verErr == nil && dirty {
			slog.Error("migration failed, database now in dirty state",
				"version", version,
				"hint", fmt.Sprintf("fix the migration and run: migrate force %d", version))
		}
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if version, dirty, err := currentVersion(m); err != nil {
		slog.Warn("migrations completed but version check failed", "error", err)
	} else {
		slog.Info("migrations completed", "version", version, "dirty", dirty)
	}
	return nil
}

func newMigrator(connURL string) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}

	dbURL, err := convertToMigrateURL(connURL)
	if err != nil {
		return nil, err
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}

// convertToMigrateURL rewrites a postgres:// or postgresql:// URL to the pgx5
// scheme golang-migrate's pgx v5 driver registers under.
func convertToMigrateURL(connURL string) (string, error) {
	u, err := url.Parse(connURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse database URL: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "postgres", "postgresql":
		u.Scheme = "pgx5"
		return u.String(), nil
	default:
		return "", fmt.Errorf("unsupported database URL scheme: %s (expected postgres or postgresql)", u.Scheme)
	}
}

// currentVersion treats a fresh database (no version row yet) as version 0.
func currentVersion(m *migrate.Migrate) (uint, bool, error) {
	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, fmt.Errorf("failed to check migration version: %w", err)
	}
	return version, dirty, nil
}

// MigrationsFS exposes the embedded migration files for test bootstrap code
// that applies them through an existing connection pool.
func MigrationsFS() embed.FS {
	return migrationsFS
}
