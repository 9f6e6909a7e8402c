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

package catalogdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/cardinalhq/menurunner/internal/catalog"
)

const getAllItemsQuery = `
SELECT id, name, category, description, ingredients, strength, flavors, occasions, price_cents, featured, available, updated_at
FROM catalog_items
ORDER BY category, name, id
`

// GetAllItems returns the whole catalog mirror.
func (s *Store) GetAllItems(ctx context.Context) ([]catalog.Item, error) {
	rows, err := s.connPool.Query(ctx, getAllItemsQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanItems(rows)
}

const getItemsByCategoryQuery = `
SELECT id, name, category, description, ingredients, strength, flavors, occasions, price_cents, featured, available, updated_at
FROM catalog_items
WHERE category = $1
ORDER BY name, id
`

func (s *Store) GetItemsByCategory(ctx context.Context, category catalog.Category) ([]catalog.Item, error) {
	rows, err := s.connPool.Query(ctx, getItemsByCategoryQuery, string(category))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanItems(rows)
}

const getItemByIDQuery = `
SELECT id, name, category, description, ingredients, strength, flavors, occasions, price_cents, featured, available, updated_at
FROM catalog_items
WHERE id = $1
`

// GetItemByID returns the item and whether it exists. A missing id is not
// an error.
func (s *Store) GetItemByID(ctx context.Context, id string) (catalog.Item, bool, error) {
	row := s.connPool.QueryRow(ctx, getItemByIDQuery, id)
	item, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Item{}, false, nil
	}
	if err != nil {
		return catalog.Item{}, false, err
	}
	return item, true, nil
}

const deleteAllItemsQuery = `DELETE FROM catalog_items`

const deleteCategoryItemsQuery = `DELETE FROM catalog_items WHERE category = $1`

const insertItemQuery = `
INSERT INTO catalog_items (id, name, category, description, ingredients, strength, flavors, occasions, price_cents, featured, available, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now())
ON CONFLICT (id) DO UPDATE SET
  name = EXCLUDED.name,
  category = EXCLUDED.category,
  description = EXCLUDED.description,
  ingredients = EXCLUDED.ingredients,
  strength = EXCLUDED.strength,
  flavors = EXCLUDED.flavors,
  occasions = EXCLUDED.occasions,
  price_cents = EXCLUDED.price_cents,
  featured = EXCLUDED.featured,
  available = EXCLUDED.available,
  updated_at = now()
`

const insertBatchSize = 100

// ReplaceAllItems swaps the whole mirror for items. The delete and the
// inserts run outside a transaction, and that is load-bearing: a reader
// can observe an empty or partially filled table mid-replace. Foreground
// traffic rides the caches while this runs, and the gap closes when the
// last batch lands. Do not wrap this in a transaction without checking
// what depends on the window.
func (s *Store) ReplaceAllItems(ctx context.Context, items []catalog.Item) error {
	if _, err := s.connPool.Exec(ctx, deleteAllItemsQuery); err != nil {
		return fmt.Errorf("failed to clear catalog_items: %w", err)
	}
	return s.insertItems(ctx, items)
}

// ReplaceCategoryItems rewrites a single category, leaving the rest of
// the mirror untouched. Same non-transactional window as ReplaceAllItems.
func (s *Store) ReplaceCategoryItems(ctx context.Context, category catalog.Category, items []catalog.Item) error {
	if _, err := s.connPool.Exec(ctx, deleteCategoryItemsQuery, string(category)); err != nil {
		return fmt.Errorf("failed to clear category %s: %w", category, err)
	}
	return s.insertItems(ctx, items)
}

// ClearItems empties the mirror.
func (s *Store) ClearItems(ctx context.Context) error {
	_, err := s.connPool.Exec(ctx, deleteAllItemsQuery)
	return err
}

// insertItems writes items in batches. A duplicate id within one load
// collapses onto the later row.
func (s *Store) insertItems(ctx context.Context, items []catalog.Item) error {
	for start := 0; start < len(items); start += insertBatchSize {
		end := min(start+insertBatchSize, len(items))

		batch := &pgx.Batch{}
		for _, item := range items[start:end] {
			batch.Queue(insertItemQuery,
				item.ID, item.Name, string(item.Category), item.Description,
				emptyIfNil(item.Ingredients), item.Strength,
				fromFlavors(item.Flavors), fromOccasions(item.Occasions),
				item.PriceCents, item.Featured, item.Available)
		}

		br := s.connPool.SendBatch(ctx, batch)
		for range end - start {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("failed to insert catalog items batch at %d: %w", start, err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("failed to close catalog items batch at %d: %w", start, err)
		}
	}
	return nil
}

// Stats summarizes the mirror for status reporting.
type Stats struct {
	TotalItems  int64                      `json:"totalItems"`
	PerCategory map[catalog.Category]int64 `json:"perCategory"`
	LastUpdated *time.Time                 `json:"lastUpdated,omitempty"`
}

const catalogStatsQuery = `
SELECT category, count(*), max(updated_at)
FROM catalog_items
GROUP BY category
`

func (s *Store) GetCatalogStats(ctx context.Context) (Stats, error) {
	rows, err := s.connPool.Query(ctx, catalogStatsQuery)
	if err != nil {
		return Stats{}, err
	}
	defer rows.Close()

	stats := Stats{PerCategory: make(map[catalog.Category]int64)}
	for rows.Next() {
		var category string
		var count int64
		var last time.Time
		if err := rows.Scan(&category, &count, &last); err != nil {
			return Stats{}, err
		}
		stats.PerCategory[catalog.Category(category)] = count
		stats.TotalItems += count
		if stats.LastUpdated == nil || last.After(*stats.LastUpdated) {
			stats.LastUpdated = &last
		}
	}
	if err := rows.Err(); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

const newestItemQuery = `SELECT max(updated_at) FROM catalog_items`

// CatalogIsHealthy reports whether the mirror is non-empty and no older
// than maxAge. An empty mirror is never healthy.
func (s *Store) CatalogIsHealthy(ctx context.Context, maxAge time.Duration) (bool, error) {
	var newest *time.Time
	if err := s.connPool.QueryRow(ctx, newestItemQuery).Scan(&newest); err != nil {
		return false, err
	}
	if newest == nil {
		return false, nil
	}
	return time.Since(*newest) <= maxAge, nil
}

func scanItems(rows pgx.Rows) ([]catalog.Item, error) {
	var items []catalog.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func scanItem(row pgx.Row) (catalog.Item, error) {
	var (
		item      catalog.Item
		category  string
		flavors   []string
		occasions []string
	)
	if err := row.Scan(&item.ID, &item.Name, &category, &item.Description,
		&item.Ingredients, &item.Strength, &flavors, &occasions,
		&item.PriceCents, &item.Featured, &item.Available, &item.UpdatedAt); err != nil {
		return catalog.Item{}, err
	}
	item.Category = catalog.Category(category)
	item.Flavors = toFlavors(flavors)
	item.Occasions = toOccasions(occasions)
	return item, nil
}

func toFlavors(ss []string) []catalog.Flavor {
	if len(ss) == 0 {
		return nil
	}
	out := make([]catalog.Flavor, len(ss))
	for i, s := range ss {
		out[i] = catalog.Flavor(s)
	}
	return out
}

func fromFlavors(fs []catalog.Flavor) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = string(f)
	}
	return out
}

func toOccasions(ss []string) []catalog.Occasion {
	if len(ss) == 0 {
		return nil
	}
	out := make([]catalog.Occasion, len(ss))
	for i, s := range ss {
		out[i] = catalog.Occasion(s)
	}
	return out
}

func fromOccasions(os []catalog.Occasion) []string {
	out := make([]string, len(os))
	for i, o := range os {
		out[i] = string(o)
	}
	return out
}

func emptyIfNil(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}
