// Copyright (C) 2025-2026 CardinalHQ, Inc
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

// Package venues provides cached access to venue records.
package venues

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"

	"github.com/cardinalhq/menurunner/catalogdb"
)

// Querier defines the minimal database interface required by the venue service.
type Querier interface {
	GetVenue(ctx context.Context, id uuid.UUID) (catalogdb.Venue, bool, error)
	ListActiveVenues(ctx context.Context) ([]catalogdb.Venue, error)
	ReplaceVenueFeed(ctx context.Context, venues []catalogdb.Venue) error
}

// venueCacheValue holds a cached venue lookup or error.
type venueCacheValue struct {
	Venue catalogdb.Venue
	Found bool
	Err   error
}

// Service provides cached access to venues.
type Service struct {
	querier Querier
	cache   *ttlcache.Cache[uuid.UUID, venueCacheValue]
}

// New creates a venue service with the given querier and cache TTL.
func New(querier Querier, ttl time.Duration) *Service {
	cache := ttlcache.New(
		ttlcache.WithTTL[uuid.UUID, venueCacheValue](ttl),
	)
	go cache.Start()
	return &Service{
		querier: querier,
		cache:   cache,
	}
}

// Close stops the cache background goroutine and releases resources.
func (s *Service) Close() {
	s.cache.Stop()
}

// GetVenue fetches a venue with caching. The loader is created fresh for
// each call, capturing the current context. Since ttlcache uses lazy
// expiration (no background refresh), the loader is only invoked
// synchronously during the Get() call on cache miss.
func (s *Service) GetVenue(ctx context.Context, id uuid.UUID) (catalogdb.Venue, bool, error) {
	loader := ttlcache.LoaderFunc[uuid.UUID, venueCacheValue](
		func(cache *ttlcache.Cache[uuid.UUID, venueCacheValue], key uuid.UUID) *ttlcache.Item[uuid.UUID, venueCacheValue] {
			venue, found, err := s.querier.GetVenue(ctx, key)
			return cache.Set(key, venueCacheValue{
				Venue: venue,
				Found: found,
				Err:   err,
			}, ttlcache.DefaultTTL)
		},
	)

	cached := s.cache.Get(id, ttlcache.WithLoader(loader)).Value()
	return cached.Venue, cached.Found, cached.Err
}

// ListActive lists all active venues, uncached.
func (s *Service) ListActive(ctx context.Context) ([]catalogdb.Venue, error) {
	return s.querier.ListActiveVenues(ctx)
}

// ApplyFeed replaces the venue feed and drops all cached lookups.
func (s *Service) ApplyFeed(ctx context.Context, venues []catalogdb.Venue) error {
	if err := s.querier.ReplaceVenueFeed(ctx, venues); err != nil {
		return err
	}
	s.cache.DeleteAll()
	return nil
}

// Invalidate drops one venue from the cache.
func (s *Service) Invalidate(id uuid.UUID) {
	s.cache.Delete(id)
}
