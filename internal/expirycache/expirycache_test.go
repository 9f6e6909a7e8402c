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

package expirycache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestCache returns a cache pinned to a controllable clock.
func newTestCache(t *testing.T, defaultTTL time.Duration) (*Cache[string, int], *time.Time) {
	t.Helper()
	c := New[string, int](defaultTTL)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.nowFn = func() time.Time { return now }
	return c, &now
}

func TestCache_Get(t *testing.T) {
	t.Parallel()

	t.Run("hit before the TTL elapses", func(t *testing.T) {
		t.Parallel()
		c, now := newTestCache(t, time.Minute)

		c.Set("a", 1)
		*now = now.Add(59 * time.Second)

		v, ok := c.Get("a")
		require.True(t, ok)
		assert.Equal(t, 1, v)
	})

	t.Run("still served at exactly the TTL boundary", func(t *testing.T) {
		t.Parallel()
		c, now := newTestCache(t, time.Minute)

		c.Set("a", 1)
		*now = now.Add(time.Minute)

		_, ok := c.Get("a")
		assert.True(t, ok)
	})

	t.Run("read past the TTL misses and removes the entry", func(t *testing.T) {
		t.Parallel()
		c, now := newTestCache(t, time.Minute)

		c.Set("a", 1)
		require.Equal(t, 1, c.Len())

		*now = now.Add(time.Minute + time.Nanosecond)

		_, ok := c.Get("a")
		assert.False(t, ok)
		assert.Equal(t, 0, c.Len(), "discovering read must delete the entry")
	})

	t.Run("missing key is a miss, not an error", func(t *testing.T) {
		t.Parallel()
		c, _ := newTestCache(t, time.Minute)

		v, ok := c.Get("nope")
		assert.False(t, ok)
		assert.Zero(t, v)
	})
}

func TestCache_SetTTL(t *testing.T) {
	t.Parallel()
	c, now := newTestCache(t, time.Minute)

	c.SetTTL("short", 1, time.Second)
	c.Set("long", 2)

	*now = now.Add(2 * time.Second)

	_, ok := c.Get("short")
	assert.False(t, ok, "per-entry TTL overrides the default")

	_, ok = c.Get("long")
	assert.True(t, ok)
}

func TestCache_Set_RestartsClock(t *testing.T) {
	t.Parallel()
	c, now := newTestCache(t, time.Minute)

	c.Set("a", 1)
	*now = now.Add(45 * time.Second)
	c.Set("a", 2)
	*now = now.Add(45 * time.Second)

	v, ok := c.Get("a")
	require.True(t, ok, "re-set entry is aged from its second insertion")
	assert.Equal(t, 2, v)
}

func TestCache_Has(t *testing.T) {
	t.Parallel()
	c, now := newTestCache(t, time.Minute)

	c.Set("a", 1)
	assert.True(t, c.Has("a"))

	*now = now.Add(2 * time.Minute)
	assert.False(t, c.Has("a"))
	assert.Equal(t, 0, c.Len(), "Has removes discovered-expired entries too")
}

func TestCache_DeleteAndClear(t *testing.T) {
	t.Parallel()
	c, _ := newTestCache(t, time.Minute)

	c.Set("a", 1)
	c.Set("b", 2)

	c.Delete("a")
	assert.False(t, c.Has("a"))
	assert.True(t, c.Has("b"))

	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestCache_Len_CountsUndiscoveredEntries(t *testing.T) {
	t.Parallel()
	c, now := newTestCache(t, time.Minute)

	c.Set("a", 1)
	c.Set("b", 2)
	*now = now.Add(time.Hour)

	// No read has discovered the expiry yet.
	assert.Equal(t, 2, c.Len())

	c.Has("a")
	assert.Equal(t, 1, c.Len())
}
