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

package catalogsource

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/menurunner/internal/catalog"
)

type fakeRowSource struct {
	grids map[string][][]string
	errs  map[string]error
	calls []string
}

func (f *fakeRowSource) FetchPartition(_ context.Context, _ string, partition string) ([][]string, error) {
	f.calls = append(f.calls, partition)
	if err := f.errs[partition]; err != nil {
		return nil, err
	}
	return f.grids[partition], nil
}

func header() []string {
	return []string{"ID", "Name", "Category", "Description", "Ingredients", "Strength", "Flavors", "Occasions", "Price", "Featured", "Available"}
}

func TestAdapter_FetchAll(t *testing.T) {
	t.Parallel()

	t.Run("maps rows from every partition in order", func(t *testing.T) {
		t.Parallel()
		src := &fakeRowSource{grids: map[string][][]string{
			"beer": {
				header(),
				{"b1", "Pilsner", "beer", "crisp lager", "water, malt, hops", "4.8", "crisp, bitter", "casual", "6.50", "no", "yes"},
			},
			"wine": {
				header(),
				{"w1", "Rioja", "wine", "", "", "13.5", "dry, rich", "date, business", "11", "true", ""},
			},
		}}
		a := NewAdapter(src, "sheet-1", nil)

		items, err := a.FetchAll(context.Background())
		require.NoError(t, err)
		require.Len(t, items, 2)

		assert.Equal(t, "b1", items[0].ID)
		assert.Equal(t, catalog.CategoryBeer, items[0].Category)
		assert.Equal(t, []string{"water", "malt", "hops"}, items[0].Ingredients)
		assert.InDelta(t, 4.8, items[0].Strength, 0.0001)
		assert.Equal(t, []catalog.Flavor{catalog.FlavorCrisp, catalog.FlavorBitter}, items[0].Flavors)
		assert.Equal(t, int64(650), items[0].PriceCents)
		assert.False(t, items[0].Featured)
		assert.True(t, items[0].Available)

		assert.Equal(t, "w1", items[1].ID)
		assert.Equal(t, []catalog.Occasion{catalog.OccasionDate, catalog.OccasionBusiness}, items[1].Occasions)
		assert.Equal(t, int64(1100), items[1].PriceCents)
		assert.True(t, items[1].Featured)
		assert.True(t, items[1].Available, "empty available cell defaults to available")

		// Every category partition is attempted, in fixed order.
		want := make([]string, 0)
		for _, c := range catalog.Categories() {
			want = append(want, string(c))
		}
		assert.Equal(t, want, src.calls)
	})

	t.Run("failed partition is skipped, survivors still load", func(t *testing.T) {
		t.Parallel()
		src := &fakeRowSource{
			grids: map[string][][]string{
				"beer": {header(), {"b1", "Stout", "beer", "", "", "", "", "", "", "", ""}},
			},
			errs: map[string]error{
				"wine":     errors.New("quota exceeded"),
				"cocktail": errors.New("tab missing"),
			},
		}
		a := NewAdapter(src, "sheet-1", nil)

		items, err := a.FetchAll(context.Background())
		require.NoError(t, err, "partial failure must not fail the fetch")
		require.Len(t, items, 1)
		assert.Equal(t, "b1", items[0].ID)
	})

	t.Run("every partition failing yields ErrNoData", func(t *testing.T) {
		t.Parallel()
		src := &fakeRowSource{errs: map[string]error{}}
		for _, c := range catalog.Categories() {
			src.errs[string(c)] = errors.New("boom")
		}
		a := NewAdapter(src, "sheet-1", nil)

		_, err := a.FetchAll(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNoData)
		assert.Contains(t, err.Error(), "boom", "partition errors ride along for context")
	})

	t.Run("all partitions empty yields ErrNoData", func(t *testing.T) {
		t.Parallel()
		src := &fakeRowSource{grids: map[string][][]string{}}
		a := NewAdapter(src, "sheet-1", nil)

		_, err := a.FetchAll(context.Background())
		assert.ErrorIs(t, err, ErrNoData)
	})
}

func TestAdapter_RowValidation(t *testing.T) {
	t.Parallel()

	t.Run("rows missing id or name are skipped individually", func(t *testing.T) {
		t.Parallel()
		src := &fakeRowSource{grids: map[string][][]string{
			"beer": {
				header(),
				{"", "No ID", "beer"},
				{"b2", ""},
				{"b3", "Keeper", "beer"},
			},
		}}
		a := NewAdapter(src, "sheet-1", nil)

		items, err := a.FetchAll(context.Background())
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "b3", items[0].ID)
	})

	t.Run("unknown set values are dropped, unknown category falls back to partition", func(t *testing.T) {
		t.Parallel()
		src := &fakeRowSource{grids: map[string][][]string{
			"cider": {
				header(),
				{"c1", "Scrumpy", "moonshine", "", "", "not-a-number", "fruity, umami", "casual, armageddon", "-3", "maybe", "??"},
			},
		}}
		a := NewAdapter(src, "sheet-1", nil)

		items, err := a.FetchAll(context.Background())
		require.NoError(t, err)
		require.Len(t, items, 1)

		item := items[0]
		assert.Equal(t, catalog.CategoryCider, item.Category)
		assert.Equal(t, []catalog.Flavor{catalog.FlavorFruity}, item.Flavors)
		assert.Equal(t, []catalog.Occasion{catalog.OccasionCasual}, item.Occasions)
		assert.Zero(t, item.Strength)
		assert.Zero(t, item.PriceCents)
		assert.False(t, item.Featured)
		assert.True(t, item.Available)
	})

	t.Run("header matching is case-insensitive and ignores unknown columns", func(t *testing.T) {
		t.Parallel()
		src := &fakeRowSource{grids: map[string][][]string{
			"spirit": {
				{"  iD ", "NAME", "bartender notes", "PRICE"},
				{"s1", "Mezcal", "ignore me", "$14.25"},
			},
		}}
		a := NewAdapter(src, "sheet-1", nil)

		items, err := a.FetchAll(context.Background())
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "Mezcal", items[0].Name)
		assert.Equal(t, int64(1425), items[0].PriceCents)
		assert.Equal(t, catalog.CategorySpirit, items[0].Category)
	})

	t.Run("short rows read as empty cells", func(t *testing.T) {
		t.Parallel()
		src := &fakeRowSource{grids: map[string][][]string{
			"beer": {
				header(),
				{"b1", "Helles"},
			},
		}}
		a := NewAdapter(src, "sheet-1", nil)

		items, err := a.FetchAll(context.Background())
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Empty(t, items[0].Description)
		assert.True(t, items[0].Available)
	})
}

func Test_parsePriceCents(t *testing.T) {
	t.Parallel()
	assert.Equal(t, int64(1250), parsePriceCents("12.50"))
	assert.Equal(t, int64(900), parsePriceCents("$9"))
	assert.Equal(t, int64(0), parsePriceCents(""))
	assert.Equal(t, int64(0), parsePriceCents("free"))
	assert.Equal(t, int64(0), parsePriceCents("-2"))
}

func Test_parseLooseBool(t *testing.T) {
	t.Parallel()
	assert.True(t, parseLooseBool("TRUE", false))
	assert.True(t, parseLooseBool("Yes", false))
	assert.True(t, parseLooseBool("1", false))
	assert.False(t, parseLooseBool("no", true))
	assert.False(t, parseLooseBool("0", true))
	assert.True(t, parseLooseBool("", true), "empty keeps the default")
	assert.False(t, parseLooseBool("banana", false), "garbage keeps the default")
}
