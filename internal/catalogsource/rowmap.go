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
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/cardinalhq/menurunner/internal/catalog"
)

// Column names recognized in a partition's header row. Matching is
// case-insensitive and unknown columns are ignored.
const (
	colID          = "id"
	colName        = "name"
	colCategory    = "category"
	colDescription = "description"
	colIngredients = "ingredients"
	colStrength    = "strength"
	colFlavors     = "flavors"
	colOccasions   = "occasions"
	colPrice       = "price"
	colFeatured    = "featured"
	colAvailable   = "available"
)

// mapRows maps one partition's cell grid to items. The first row is the
// header. Each unusable data row is skipped on its own; it never fails
// the partition.
func (a *Adapter) mapRows(partition catalog.Category, rows [][]string) []catalog.Item {
	if len(rows) < 2 {
		return nil
	}

	cols := headerIndex(rows[0])
	items := make([]catalog.Item, 0, len(rows)-1)
	for i, row := range rows[1:] {
		item, ok := a.mapRow(partition, cols, row)
		if !ok {
			rowsSkippedCounter.Add(context.Background(), 1)
			a.logger.Warn("skipping source row without id or name",
				slog.String("spreadsheetID", a.spreadsheetID),
				slog.String("partition", string(partition)),
				slog.Int("row", i+2))
			continue
		}
		items = append(items, item)
	}
	return items
}

// mapRow validates and normalizes one data row. Rows without an id or a
// name are unusable. Field-level problems degrade: unknown flavors and
// occasions are dropped, an unknown category falls back to the partition
// it arrived in, and unparseable numbers become zero.
func (a *Adapter) mapRow(partition catalog.Category, cols map[string]int, row []string) (catalog.Item, bool) {
	id := cell(cols, row, colID)
	name := cell(cols, row, colName)
	if id == "" || name == "" {
		return catalog.Item{}, false
	}

	item := catalog.Item{
		ID:          id,
		Name:        name,
		Category:    partition,
		Description: cell(cols, row, colDescription),
		Ingredients: splitList(cell(cols, row, colIngredients)),
	}

	if c, ok := catalog.ParseCategory(cell(cols, row, colCategory)); ok {
		item.Category = c
	}
	if s, err := strconv.ParseFloat(cell(cols, row, colStrength), 64); err == nil && s >= 0 {
		item.Strength = s
	}
	for _, f := range splitList(cell(cols, row, colFlavors)) {
		if fl, ok := catalog.ParseFlavor(f); ok {
			item.Flavors = append(item.Flavors, fl)
		}
	}
	for _, o := range splitList(cell(cols, row, colOccasions)) {
		if oc, ok := catalog.ParseOccasion(o); ok {
			item.Occasions = append(item.Occasions, oc)
		}
	}
	item.PriceCents = parsePriceCents(cell(cols, row, colPrice))
	item.Featured = parseLooseBool(cell(cols, row, colFeatured), false)
	item.Available = parseLooseBool(cell(cols, row, colAvailable), true)

	return item, true
}

func headerIndex(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" {
			continue
		}
		if _, dup := cols[h]; !dup {
			cols[h] = i
		}
	}
	return cols
}

func cell(cols map[string]int, row []string, name string) string {
	idx, ok := cols[name]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// parsePriceCents reads a currency amount like "12.50" or "$9". Anything
// unparseable or negative is unpriced (zero).
func parsePriceCents(s string) int64 {
	s = strings.TrimPrefix(s, "$")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0
	}
	return int64(math.Round(v * 100))
}

func parseLooseBool(s string, def bool) bool {
	switch strings.ToLower(s) {
	case "true", "yes", "y", "1":
		return true
	case "false", "no", "n", "0":
		return false
	default:
		return def
	}
}
