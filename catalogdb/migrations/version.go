// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package migrations

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/pgx"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// CheckMode defines how migration version checking should behave.
type CheckMode int

const (
	// CheckModeWait waits for migrations to complete, warning if they
	// don't complete within the timeout.
	CheckModeWait CheckMode = iota
	// CheckModeWarn logs version mismatches but continues.
	CheckModeWarn
	// CheckModeSkip skips migration checking entirely.
	CheckModeSkip
)

// CheckOptions controls migration version checking.
type CheckOptions struct {
	Mode          CheckMode
	Timeout       time.Duration
	RetryInterval time.Duration
	AllowDirty    bool
}

type CheckOption func(*CheckOptions)

func WithCheckMode(mode CheckMode) CheckOption {
	return func(opts *CheckOptions) { opts.Mode = mode }
}

func WithTimeout(timeout time.Duration) CheckOption {
	return func(opts *CheckOptions) { opts.Timeout = timeout }
}

func WithRetryInterval(interval time.Duration) CheckOption {
	return func(opts *CheckOptions) { opts.RetryInterval = interval }
}

func WithAllowDirty(allow bool) CheckOption {
	return func(opts *CheckOptions) { opts.AllowDirty = allow }
}

func DefaultCheckOptions() CheckOptions {
	return CheckOptions{
		Mode:          CheckModeWait,
		Timeout:       120 * time.Second,
		RetryInterval: 5 * time.Second,
		AllowDirty:    false,
	}
}

// CheckExpectedVersion verifies that catalogdb is at the expected
// migration version using default options (wait mode).
func CheckExpectedVersion(ctx context.Context, pool *pgxpool.Pool) error {
	return CheckVersion(ctx, pool)
}

// CheckVersion verifies that catalogdb is at the expected migration
// version with configurable options.
func CheckVersion(ctx context.Context, pool *pgxpool.Pool, options ...CheckOption) error {
	if !migrationCheckEnabledFromEnv() {
		slog.Debug("Migration version checking disabled for catalogdb")
		return nil
	}

	opts := DefaultCheckOptions()
	for _, option := range options {
		option(&opts)
	}

	if opts.Mode == CheckModeSkip {
		slog.Debug("Migration version checking skipped for catalogdb")
		return nil
	}

	applyEnvironmentOverrides(&opts)

	return checkMigrationVersion(ctx, pool, opts)
}

func migrationCheckEnabledFromEnv() bool {
	if val := os.Getenv("CATALOGDB_MIGRATION_CHECK_ENABLED"); val != "" {
		return strings.ToLower(val) == "true"
	}
	return true
}

func applyEnvironmentOverrides(opts *CheckOptions) {
	if val := os.Getenv("MIGRATION_CHECK_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			opts.Timeout = d
		}
	}
	if val := os.Getenv("MIGRATION_CHECK_RETRY_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			opts.RetryInterval = d
		}
	}
	if val := os.Getenv("MIGRATION_CHECK_ALLOW_DIRTY"); val != "" {
		opts.AllowDirty = strings.ToLower(val) == "true"
	}
}

// extractLatestMigrationVersion extracts the highest migration version
// from the embedded migration files.
func extractLatestMigrationVersion(files embed.FS) (uint, error) {
	entries, err := files.ReadDir(".")
	if err != nil {
		return 0, fmt.Errorf("failed to read migration directory: %w", err)
	}

	var maxVersion uint
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if !strings.HasSuffix(name, ".up.sql") {
			continue
		}

		// Filenames look like "1755613200_initial.up.sql".
		parts := strings.SplitN(name, "_", 2)
		if len(parts) < 1 {
			continue
		}

		version, err := strconv.ParseUint(parts[0], 10, 64)
		if err != nil {
			continue
		}

		if uint(version) > maxVersion {
			maxVersion = uint(version)
		}
	}

	if maxVersion == 0 {
		return 0, fmt.Errorf("no valid migration files found")
	}

	return maxVersion, nil
}

func checkMigrationVersion(ctx context.Context, pool *pgxpool.Pool, opts CheckOptions) error {
	expectedVersion, err := extractLatestMigrationVersion(migrationFiles)
	if err != nil {
		return fmt.Errorf("failed to extract expected migration version for catalogdb: %w", err)
	}

	currentVersion, dirty, err := getCurrentMigrationVersion(ctx, pool)
	if err != nil {
		return fmt.Errorf("failed to get current migration version for catalogdb: %w", err)
	}

	if dirty && !opts.AllowDirty {
		if opts.Mode == CheckModeWarn {
			slog.Warn("catalogdb migration is in dirty state, but continuing anyway")
		} else {
			return fmt.Errorf("catalogdb migration is in dirty state, please fix before proceeding")
		}
	}

	if currentVersion == expectedVersion {
		return nil
	}

	slog.Info("Checking migration version",
		slog.Uint64("current_version", uint64(currentVersion)),
		slog.Uint64("expected_version", uint64(expectedVersion)))

	if currentVersion > expectedVersion {
		if opts.Mode == CheckModeWarn {
			slog.Warn("catalogdb version is newer than expected, but continuing anyway",
				slog.Uint64("current_version", uint64(currentVersion)),
				slog.Uint64("expected_version", uint64(expectedVersion)))
			return nil
		}
		return fmt.Errorf("catalogdb version %d is newer than expected version %d - you may need to update the application",
			currentVersion, expectedVersion)
	}

	if opts.Mode == CheckModeWarn {
		slog.Warn("catalogdb version is older than expected, but continuing anyway",
			slog.Uint64("current_version", uint64(currentVersion)),
			slog.Uint64("expected_version", uint64(expectedVersion)))
		return nil
	}

	// Wait mode: poll until the expected version shows up or the timeout
	// passes. Another instance is expected to be running the migrations.
	deadline := time.Now().Add(opts.Timeout)
	ticker := time.NewTicker(opts.RetryInterval)
	defer ticker.Stop()

	for {
		currentVersion, _, err = getCurrentMigrationVersion(ctx, pool)
		if err != nil {
			return fmt.Errorf("failed to get current migration version for catalogdb: %w", err)
		}

		if currentVersion == expectedVersion {
			slog.Info("Migration version check passed",
				slog.Uint64("version", uint64(currentVersion)))
			return nil
		}

		if time.Now().After(deadline) {
			slog.Warn("Migration timeout reached for catalogdb; continuing with a possibly inconsistent schema",
				slog.Uint64("current_version", uint64(currentVersion)),
				slog.Uint64("expected_version", uint64(expectedVersion)))
			return nil
		}

		slog.Info("Waiting for migrations to complete",
			slog.Uint64("current_version", uint64(currentVersion)),
			slog.Uint64("expected_version", uint64(expectedVersion)),
			slog.Duration("remaining_timeout", time.Until(deadline)))

		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled while waiting for catalogdb migrations")
		case <-ticker.C:
		}
	}
}

func getCurrentMigrationVersion(ctx context.Context, pool *pgxpool.Pool) (uint, bool, error) {
	sourceDriver, err := iofs.New(migrationFiles, ".")
	if err != nil {
		return 0, false, fmt.Errorf("failed to create iofs driver: %w", err)
	}

	sqlDB := stdlib.OpenDBFromPool(pool)
	defer func() {
		_ = sqlDB.Close()
	}()

	dbDriver, err := pgx.WithInstance(sqlDB, &pgx.Config{
		MigrationsTable: migrationsTable,
	})
	if err != nil {
		return 0, false, fmt.Errorf("failed to create pgx driver: %w", err)
	}
	defer func() {
		_ = dbDriver.Close()
	}()

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return 0, false, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		if err == migrate.ErrNilVersion {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get current version: %w", err)
	}

	return version, dirty, nil
}
