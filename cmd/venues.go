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

	"github.com/cardinalhq/menurunner/cmd/dbopen"
	"github.com/cardinalhq/menurunner/internal/venues"
)

var venueFeedFile string

func init() {
	venuesCmd := &cobra.Command{
		Use:   "venues",
		Short: "Manage the venue registry",
	}

	loadCmd := &cobra.Command{
		Use:   "load",
		Short: "Replace the venue registry from a feed file",
		Long:  "Load a YAML venue feed and replace the registry: venues absent from the feed are deactivated, the rest upserted.",
		RunE:  loadVenues,
	}
	loadCmd.Flags().StringVarP(&venueFeedFile, "file", "f", "venues.yaml", "Venue feed file, or env:VARNAME to read the feed from an environment variable")

	venuesCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(venuesCmd)
}

func loadVenues(_ *cobra.Command, _ []string) error {
	feed, err := venues.LoadFeedFile(venueFeedFile)
	if err != nil {
		return fmt.Errorf("failed to load venue feed: %w", err)
	}

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(time.Minute))
	defer cancel()

	store, err := dbopen.CatalogDBStore(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to catalog database: %w", err)
	}
	defer store.Close()

	if err := store.ReplaceVenueFeed(ctx, feed); err != nil {
		return fmt.Errorf("failed to apply venue feed: %w", err)
	}

	active := 0
	for _, v := range feed {
		if v.Active {
			active++
		}
	}
	slog.Info("Venue feed applied",
		slog.Int("venues", len(feed)),
		slog.Int("active", active))
	return nil
}
