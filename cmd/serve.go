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

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/cardinalhq/menurunner/catalogdb"
	"github.com/cardinalhq/menurunner/cmd/dbopen"
	"github.com/cardinalhq/menurunner/config"
	"github.com/cardinalhq/menurunner/internal/adminapi"
	"github.com/cardinalhq/menurunner/internal/catalog"
	"github.com/cardinalhq/menurunner/internal/catalogsource"
	"github.com/cardinalhq/menurunner/internal/expirycache"
	"github.com/cardinalhq/menurunner/internal/healthcheck"
	"github.com/cardinalhq/menurunner/internal/menucache"
	"github.com/cardinalhq/menurunner/internal/menus"
	"github.com/cardinalhq/menurunner/internal/syncer"
	"github.com/cardinalhq/menurunner/internal/venues"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the catalog engine: sync scheduler, caches, and admin API",
		RunE: func(_ *cobra.Command, _ []string) error {
			servicename := "menurunner-serve"
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

			// Start health check server
			healthConfig := healthcheck.GetConfigFromEnv()
			healthServer := healthcheck.NewServer(healthConfig)

			go func() {
				if err := healthServer.Start(doneCtx); err != nil {
					slog.Error("Health check server stopped", slog.Any("error", err))
				}
			}()

			store, err := dbopen.CatalogDBStore(context.Background())
			if err != nil {
				slog.Error("Failed to connect to catalog database", slog.Any("error", err))
				return fmt.Errorf("failed to connect to catalog database: %w", err)
			}
			defer store.Close()

			venueProvider := venues.New(store, cfg.Cache.VenueTTL)
			defer venueProvider.Close()

			hot := expirycache.New[uuid.UUID, []catalog.Item](cfg.Cache.HotTTL)
			menuCache := menucache.New(cfg.Cache.MenuCapacity, cfg.Cache.MenuTTL)
			menuService := menus.New(venueProvider, store, hot, menuCache, slog.Default())

			scheduler, err := buildScheduler(doneCtx, cfg, store)
			if err != nil {
				return err
			}

			if cfg.Sync.Enabled && cfg.Sync.SourceID != "" {
				if err := scheduler.Start(doneCtx); err != nil {
					return fmt.Errorf("failed to start sync scheduler: %w", err)
				}
				defer scheduler.Stop()
			} else {
				slog.Warn("Catalog sync disabled, serving whatever the store already holds",
					slog.Bool("enabled", cfg.Sync.Enabled),
					slog.String("sourceID", cfg.Sync.SourceID))
			}

			admin := adminapi.NewService(adminapi.Config{
				Port:          cfg.Admin.Port,
				MaxCatalogAge: cfg.Sync.MaxCatalogAge,
			}, scheduler, menuService, store, slog.Default())

			healthServer.SetStatus(healthcheck.StatusHealthy)
			healthServer.SetReady(true)

			g, groupCtx := errgroup.WithContext(doneCtx)
			g.Go(func() error {
				return admin.Run(groupCtx)
			})
			g.Go(func() error {
				catalogReadinessLoop(groupCtx, store, healthServer)
				return nil
			})
			return g.Wait()
		},
	}

	rootCmd.AddCommand(cmd)
}

// buildScheduler assembles the spreadsheet fetcher and the scheduler
// around it. Without a source ID there is nothing to fetch, but the
// scheduler handle is still built so the admin API can report status.
func buildScheduler(ctx context.Context, cfg *config.Config, store *catalogdb.Store) (*syncer.Scheduler, error) {
	var fetcher syncer.Fetcher
	if cfg.Sync.SourceID != "" {
		rowSource, err := catalogsource.NewSheetsRowSource(ctx, cfg.Source.APIKey, cfg.Source.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to create sheets client: %w", err)
		}
		fetcher = catalogsource.NewAdapter(rowSource, cfg.Sync.SourceID, slog.Default())
	}
	return syncer.New(cfg.Sync, store, fetcher, slog.Default()), nil
}

// catalogReadinessLoop keeps the catalog_loaded readiness condition in
// step with the store so a pod with an empty mirror is not routed to.
func catalogReadinessLoop(ctx context.Context, store *catalogdb.Store, healthServer *healthcheck.Server) {
	update := func() {
		stats, err := store.GetCatalogStats(ctx)
		healthServer.SetReadyCondition("catalog_loaded", err == nil && stats.TotalItems > 0)
	}
	update()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			update()
		}
	}
}
