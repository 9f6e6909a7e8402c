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

package dbopen

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cardinalhq/menurunner/catalogdb"
	"github.com/cardinalhq/menurunner/catalogdb/migrations"
)

// ConnectToCatalogDB opens a pool against the catalog database configured
// via CATALOGDB_* environment variables and verifies the schema version
// unless the options say otherwise.
func ConnectToCatalogDB(ctx context.Context, opts ...Options) (*pgxpool.Pool, error) {
	connectionString, err := getDatabaseURLFromEnv("CATALOGDB")
	if err != nil {
		return nil, errors.Join(ErrDatabaseNotConfigured, fmt.Errorf("failed to get CATALOGDB connection string: %w", err))
	}

	pool, err := catalogdb.NewConnectionPool(ctx, connectionString)
	if err != nil {
		return nil, err
	}

	skipMigrationCheck := false
	warnOnMismatch := false
	if len(opts) > 0 {
		skipMigrationCheck = opts[0].SkipMigrationCheck
		warnOnMismatch = opts[0].WarnOnMigrationMismatch
	}

	if !skipMigrationCheck {
		var checkOpts []migrations.CheckOption
		if warnOnMismatch {
			checkOpts = append(checkOpts, migrations.WithCheckMode(migrations.CheckModeWarn))
		}
		if err := migrations.CheckVersion(ctx, pool, checkOpts...); err != nil {
			pool.Close()
			return nil, fmt.Errorf("CATALOGDB migration version check failed: %w", err)
		}
	}

	return pool, nil
}

// CatalogDBStore connects to the catalog database and wraps the pool in a
// Store.
func CatalogDBStore(ctx context.Context, opts ...Options) (*catalogdb.Store, error) {
	pool, err := ConnectToCatalogDB(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return catalogdb.NewStore(pool), nil
}
