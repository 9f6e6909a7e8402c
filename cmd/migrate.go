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

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/menurunner/catalogdb/migrations"
	"github.com/cardinalhq/menurunner/cmd/dbopen"
)

func init() {
	rootCmd.AddCommand(MigrateCmd)
}

var MigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run catalog database migrations",
	Long:  "Apply all pending schema migrations to the catalog database",
	RunE:  migrate,
}

func migrate(_ *cobra.Command, _ []string) error {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(5*time.Minute))
	defer cancel()

	slog.Info("Running catalogdb migrations")
	pool, err := dbopen.ConnectToCatalogDB(ctx, dbopen.SkipMigrationCheck())
	if err != nil {
		return fmt.Errorf("failed to connect to catalog database: %w", err)
	}
	defer pool.Close()

	if err := migrations.RunMigrationsUp(context.Background(), pool); err != nil {
		return fmt.Errorf("failed to migrate catalogdb: %w", err)
	}
	slog.Info("catalogdb migrations completed successfully")
	return nil
}
