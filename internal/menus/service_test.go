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

package menus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/menurunner/catalogdb"
	"github.com/cardinalhq/menurunner/internal/catalog"
	"github.com/cardinalhq/menurunner/internal/expirycache"
	"github.com/cardinalhq/menurunner/internal/menucache"
)

type fakeVenueGetter struct {
	venues map[uuid.UUID]catalogdb.Venue
	err    error
	calls  int
}

func (f *fakeVenueGetter) GetVenue(_ context.Context, id uuid.UUID) (catalogdb.Venue, bool, error) {
	f.calls++
	if f.err != nil {
		return catalogdb.Venue{}, false, f.err
	}
	v, ok := f.venues[id]
	return v, ok, nil
}

type fakeCatalogReader struct {
	items []catalog.Item
	err   error
	calls int
}

func (f *fakeCatalogReader) GetAllItems(_ context.Context) ([]catalog.Item, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.items, nil
}

func newTestService(t *testing.T) (*Service, *fakeVenueGetter, *fakeCatalogReader) {
	t.Helper()
	vg := &fakeVenueGetter{venues: make(map[uuid.UUID]catalogdb.Venue)}
	cr := &fakeCatalogReader{}
	hot := expirycache.New[uuid.UUID, []catalog.Item](time.Minute)
	menu := menucache.New(10, time.Minute)
	return New(vg, cr, hot, menu, nil), vg, cr
}

func menuOf(ids ...string) []catalog.Item {
	items := make([]catalog.Item, 0, len(ids))
	for _, id := range ids {
		items = append(items, catalog.Item{ID: id, Name: id, Category: catalog.CategoryBeer})
	}
	return items
}

func TestVenueMenu_FillsTiers(t *testing.T) {
	svc, vg, cr := newTestService(t)

	id := uuid.New()
	vg.venues[id] = catalogdb.Venue{ID: id, Name: "Tap Room", SourceLocator: "sheet-1", Active: true}
	cr.items = menuOf("stout", "pilsner")

	ctx := context.Background()
	items := svc.VenueMenu(ctx, id)
	require.Len(t, items, 2)
	assert.Equal(t, 1, cr.calls)

	// Second read is served from the hot tier without touching anything else.
	items = svc.VenueMenu(ctx, id)
	require.Len(t, items, 2)
	assert.Equal(t, 1, cr.calls)
	assert.Equal(t, 1, vg.calls)
}

func TestVenueMenu_MenuTierSurvivesHotClear(t *testing.T) {
	svc, vg, cr := newTestService(t)

	id := uuid.New()
	vg.venues[id] = catalogdb.Venue{ID: id, SourceLocator: "sheet-1", Active: true}
	cr.items = menuOf("stout")

	ctx := context.Background()
	_ = svc.VenueMenu(ctx, id)
	require.Equal(t, 1, cr.calls)

	svc.ClearHotCache()

	items := svc.VenueMenu(ctx, id)
	require.Len(t, items, 1)
	assert.Equal(t, 1, cr.calls, "menu tier should satisfy the read after a hot-tier clear")
}

func TestVenueMenu_LocatorChangeForcesRefill(t *testing.T) {
	svc, vg, cr := newTestService(t)

	id := uuid.New()
	vg.venues[id] = catalogdb.Venue{ID: id, SourceLocator: "sheet-1", Active: true}
	cr.items = menuOf("stout")

	ctx := context.Background()
	_ = svc.VenueMenu(ctx, id)
	require.Equal(t, 1, cr.calls)

	// Repoint the venue and drop the hot tier; the menu-tier entry still
	// carries the old locator and must read as a miss.
	vg.venues[id] = catalogdb.Venue{ID: id, SourceLocator: "sheet-2", Active: true}
	cr.items = menuOf("mezcal")
	svc.ClearHotCache()

	items := svc.VenueMenu(ctx, id)
	require.Len(t, items, 1)
	assert.Equal(t, "mezcal", items[0].ID)
	assert.Equal(t, 2, cr.calls)
}

func TestVenueMenu_UnknownVenue(t *testing.T) {
	svc, _, cr := newTestService(t)

	items := svc.VenueMenu(context.Background(), uuid.New())
	assert.Empty(t, items)
	assert.NotNil(t, items)
	assert.Zero(t, cr.calls, "unknown venue should not reach the store")
}

func TestVenueMenu_VenueLookupError(t *testing.T) {
	svc, vg, cr := newTestService(t)
	vg.err = errors.New("connection refused")

	items := svc.VenueMenu(context.Background(), uuid.New())
	assert.Empty(t, items)
	assert.Zero(t, cr.calls)
}

func TestVenueMenu_StoreErrorDegradesToEmpty(t *testing.T) {
	svc, vg, cr := newTestService(t)

	id := uuid.New()
	vg.venues[id] = catalogdb.Venue{ID: id, SourceLocator: "sheet-1", Active: true}
	cr.err = errors.New("relation does not exist")

	ctx := context.Background()
	items := svc.VenueMenu(ctx, id)
	assert.Empty(t, items)

	// The failure must not be cached; a recovered store serves the next read.
	cr.err = nil
	cr.items = menuOf("stout")
	items = svc.VenueMenu(ctx, id)
	require.Len(t, items, 1)
}

func TestInvalidateVenue(t *testing.T) {
	svc, vg, cr := newTestService(t)

	id := uuid.New()
	vg.venues[id] = catalogdb.Venue{ID: id, SourceLocator: "sheet-1", Active: true}
	cr.items = menuOf("stout")

	ctx := context.Background()
	_ = svc.VenueMenu(ctx, id)
	require.Equal(t, 1, cr.calls)

	svc.InvalidateVenue(id)

	_ = svc.VenueMenu(ctx, id)
	assert.Equal(t, 2, cr.calls, "invalidation should force a store read")
}

func TestCacheStats(t *testing.T) {
	svc, vg, cr := newTestService(t)

	id := uuid.New()
	vg.venues[id] = catalogdb.Venue{ID: id, SourceLocator: "sheet-1", Active: true}
	cr.items = menuOf("stout")

	_ = svc.VenueMenu(context.Background(), id)

	stats := svc.CacheStats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, 10, stats.Capacity)
}
