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

// Package menucache bounds how many venue menus sit in memory at once.
// Eviction is by insertion recency: when the cache is full, the entry
// inserted longest ago is removed no matter how recently it was read.
// Each entry also remembers the source locator it was filled from, so a
// menu cached from one spreadsheet never serves a venue that has since
// been repointed at another.
package menucache

import (
	"context"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/menurunner/internal/catalog"
)

const (
	DefaultCapacity = 100
	DefaultTTL      = 15 * time.Minute
)

var (
	cacheHits     metric.Int64Counter
	cacheMisses   metric.Int64Counter
	evictions     metric.Int64Counter
	invalidations metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/menurunner/internal/menucache")

	var err error

	cacheHits, err = meter.Int64Counter(
		"menurunner.menucache.hits",
		metric.WithDescription("Number of menu cache hits"),
	)
	if err != nil {
		log.Fatalf("failed to create menucache.hits counter: %v", err)
	}

	cacheMisses, err = meter.Int64Counter(
		"menurunner.menucache.misses",
		metric.WithDescription("Number of menu cache misses"),
	)
	if err != nil {
		log.Fatalf("failed to create menucache.misses counter: %v", err)
	}

	evictions, err = meter.Int64Counter(
		"menurunner.menucache.evictions",
		metric.WithDescription("Number of menu cache entries evicted to make room"),
	)
	if err != nil {
		log.Fatalf("failed to create menucache.evictions counter: %v", err)
	}

	invalidations, err = meter.Int64Counter(
		"menurunner.menucache.invalidations",
		metric.WithDescription("Number of menu cache entries dropped for a stale source locator"),
	)
	if err != nil {
		log.Fatalf("failed to create menucache.invalidations counter: %v", err)
	}
}

// Entry is one venue's cached menu.
type Entry struct {
	Items         []catalog.Item
	InsertedAt    time.Time
	SourceLocator string
}

type Stats struct {
	Entries  int `json:"entries"`
	Capacity int `json:"capacity"`
}

// Cache is safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]Entry
	capacity int
	ttl      time.Duration

	nowFn func() time.Time
}

func New(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		entries:  make(map[string]Entry),
		capacity: capacity,
		ttl:      ttl,
		nowFn:    time.Now,
	}
}

// GetMenu returns the cached menu for venueID if it is neither expired
// nor cached under a different source locator. Either failure deletes
// the entry and misses.
func (c *Cache) GetMenu(venueID, sourceLocator string) ([]catalog.Item, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[venueID]
	if !ok {
		cacheMisses.Add(context.Background(), 1)
		return nil, false
	}
	if c.nowFn().Sub(e.InsertedAt) > c.ttl {
		delete(c.entries, venueID)
		cacheMisses.Add(context.Background(), 1)
		return nil, false
	}
	if e.SourceLocator != sourceLocator {
		delete(c.entries, venueID)
		invalidations.Add(context.Background(), 1)
		cacheMisses.Add(context.Background(), 1)
		return nil, false
	}
	cacheHits.Add(context.Background(), 1)
	return e.Items, true
}

// SetMenu stores a venue's menu. When the cache is at capacity the entry
// with the oldest insertion time is evicted first, even if venueID would
// only overwrite an existing entry.
func (c *Cache) SetMenu(venueID, sourceLocator string, items []catalog.Item) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.capacity {
		c.evictOldestLocked()
	}
	c.entries[venueID] = Entry{
		Items:         items,
		InsertedAt:    c.nowFn(),
		SourceLocator: sourceLocator,
	}
}

func (c *Cache) Invalidate(venueID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, venueID)
}

func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Entries: len(c.entries), Capacity: c.capacity}
}

func (c *Cache) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	first := true
	for k, e := range c.entries {
		if first || e.InsertedAt.Before(oldestAt) {
			oldestKey, oldestAt = k, e.InsertedAt
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
		evictions.Add(context.Background(), 1)
	}
}
