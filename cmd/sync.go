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
	"go.opentelemetry.io/otel/attribute"

	"github.com/cardinalhq/menurunner/cmd/dbopen"
	"github.com/cardinalhq/menurunner/config"
)

var syncForce bool

func init() {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one catalog sync and exit",
		Long:  "Fetch the full catalog from the configured source, replace the database mirror, and exit.",
		RunE:  runOneShotSync,
	}
	cmd.Flags().BoolVar(&syncForce, "force", false, "Sync even when the mirror is still fresh")
	rootCmd.AddCommand(cmd)
}

func runOneShotSync(_ *cobra.Command, _ []string) error {
	servicename := "menurunner-sync"
	addlAttrs := attribute.NewSet()
	doneCtx, doneFx, err := setupTelemetry(servicename, &addlAttrs)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	defer func() {
		if err := doneFx(); err != nil {
			slog.Error("Error shutting down telemetry", slog.Any("error", err))
		}
	}()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if syncForce {
		cfg.Sync.StaleAfter = 0
	}

	ctx, cancel := context.WithTimeout(doneCtx, 10*time.Minute)
	defer cancel()

	store, err := dbopen.CatalogDBStore(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to catalog database: %w", err)
	}
	defer store.Close()

	scheduler, err := buildScheduler(ctx, cfg, store)
	if err != nil {
		return err
	}

	result, err := scheduler.PerformManualSync(ctx)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	if result.Skipped {
		slog.Info("Catalog still fresh, nothing to do", slog.String("runID", result.RunID))
		return nil
	}
	slog.Info("Sync finished",
		slog.String("runID", result.RunID),
		slog.Int("itemCount", result.ItemCount),
		slog.Int64("durationMs", result.DurationMS))
	return nil
}
