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

// Package expirycache implements a map-backed cache whose entries carry a
// time-to-live. Expiry is discovered lazily: the read that finds an entry
// past its TTL deletes it and reports a miss. There is no background
// sweeper, so memory for expired entries is reclaimed only when they are
// read again or the cache is cleared.
package expirycache

import (
	"context"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	cacheHits   metric.Int64Counter
	cacheMisses metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/menurunner/internal/expirycache")

	var err error

	cacheHits, err = meter.Int64Counter(
		"menurunner.expirycache.hits",
		metric.WithDescription("Number of expiring cache hits"),
	)
	if err != nil {
		log.Fatalf("failed to create expirycache.hits counter: %v", err)
	}

	cacheMisses, err = meter.Int64Counter(
		"menurunner.expirycache.misses",
		metric.WithDescription("Number of expiring cache misses"),
	)
	if err != nil {
		log.Fatalf("failed to create expirycache.misses counter: %v", err)
	}
}

type entry[V any] struct {
	value      V
	insertedAt time.Time
	ttl        time.Duration
}

// Cache is safe for concurrent use. Reads take the write lock because a
// read may delete the entry it finds.
type Cache[K comparable, V any] struct {
	mu         sync.Mutex
	entries    map[K]entry[V]
	defaultTTL time.Duration

	nowFn func() time.Time
}

func New[K comparable, V any](defaultTTL time.Duration) *Cache[K, V] {
	return &Cache[K, V]{
		entries:    make(map[K]entry[V]),
		defaultTTL: defaultTTL,
		nowFn:      time.Now,
	}
}

// Set stores value under key with the cache-wide default TTL. Replacing
// an existing entry restarts its clock.
func (c *Cache[K, V]) Set(key K, value V) {
	c.SetTTL(key, value, c.defaultTTL)
}

// SetTTL stores value under key with a per-entry TTL.
func (c *Cache[K, V]) SetTTL(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[V]{value: value, insertedAt: c.nowFn(), ttl: ttl}
}

// Get returns the live value for key. A read that discovers an expired
// entry removes it, so the key is absent afterward. Absence is a miss,
// never an error.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.entries[key]
	if !ok {
		cacheMisses.Add(context.Background(), 1)
		return zero, false
	}
	if c.expired(e) {
		delete(c.entries, key)
		cacheMisses.Add(context.Background(), 1)
		return zero, false
	}
	cacheHits.Add(context.Background(), 1)
	return e.value, true
}

// Has reports whether key holds a live entry, with the same lazy removal
// as Get.
func (c *Cache[K, V]) Has(key K) bool {
	_, ok := c.Get(key)
	return ok
}

func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}

// Len counts resident entries, including any whose expiry no read has
// discovered yet.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// An entry is expired only when strictly older than its TTL; a read at
// exactly the TTL boundary is still served.
func (c *Cache[K, V]) expired(e entry[V]) bool {
	return c.nowFn().Sub(e.insertedAt) > e.ttl
}
