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

// Package menus serves per-venue menus through the cache tiers. Reads fall
// through expiring cache, menu cache, then the catalog store, in increasing
// cost order, and each tier fills the ones above it. A read never returns
// an error: an unknown venue or a store outage degrades to an empty menu.
package menus

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/cardinalhq/menurunner/catalogdb"
	"github.com/cardinalhq/menurunner/internal/catalog"
	"github.com/cardinalhq/menurunner/internal/expirycache"
	"github.com/cardinalhq/menurunner/internal/menucache"
)

// VenueGetter resolves a venue and its current source locator.
type VenueGetter interface {
	GetVenue(ctx context.Context, id uuid.UUID) (catalogdb.Venue, bool, error)
}

// CatalogReader is the bottom tier.
type CatalogReader interface {
	GetAllItems(ctx context.Context) ([]catalog.Item, error)
}

type Service struct {
	venues VenueGetter
	store  CatalogReader
	hot    *expirycache.Cache[uuid.UUID, []catalog.Item]
	menu   *menucache.Cache
	logger *slog.Logger
}

func New(
	venues VenueGetter,
	store CatalogReader,
	hot *expirycache.Cache[uuid.UUID, []catalog.Item],
	menu *menucache.Cache,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		venues: venues,
		store:  store,
		hot:    hot,
		menu:   menu,
		logger: logger.With("component", "menus"),
	}
}

// VenueMenu returns the menu for a venue. The menu-cache tier is consulted
// with the venue's current source locator, so an entry cached under a
// locator the venue no longer points at reads as a miss.
func (s *Service) VenueMenu(ctx context.Context, venueID uuid.UUID) []catalog.Item {
	if items, ok := s.hot.Get(venueID); ok {
		return items
	}

	venue, found, err := s.venues.GetVenue(ctx, venueID)
	if err != nil {
		s.logger.Error("Venue lookup failed, serving empty menu",
			slog.String("venueID", venueID.String()),
			slog.Any("error", err))
		return []catalog.Item{}
	}
	if !found {
		s.logger.Warn("Unknown venue, serving empty menu",
			slog.String("venueID", venueID.String()))
		return []catalog.Item{}
	}

	if items, ok := s.menu.GetMenu(venueID.String(), venue.SourceLocator); ok {
		s.hot.Set(venueID, items)
		return items
	}

	items, err := s.store.GetAllItems(ctx)
	if err != nil {
		s.logger.Error("Catalog store read failed, serving empty menu",
			slog.String("venueID", venueID.String()),
			slog.Any("error", err))
		return []catalog.Item{}
	}

	s.menu.SetMenu(venueID.String(), venue.SourceLocator, items)
	s.hot.Set(venueID, items)
	return items
}

// InvalidateVenue drops one venue's entries from both cache tiers.
func (s *Service) InvalidateVenue(venueID uuid.UUID) {
	s.menu.Invalidate(venueID.String())
	s.hot.Delete(venueID)
}

// ClearHotCache empties the expiring cache tier only.
func (s *Service) ClearHotCache() {
	s.hot.Clear()
}

// CacheStats reports menu-cache occupancy for the status surface.
func (s *Service) CacheStats() menucache.Stats {
	return s.menu.Stats()
}
