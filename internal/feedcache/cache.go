// Drift Feed Engine - Personalized Feed Ranking and Delivery
// Copyright 2026 Drift Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftapp/feedengine

// Package feedcache provides the keyed, time-bounded page cache backing the
// feed source adapter. Entries expire after a configurable TTL, expired reads
// are misses, and concurrent identical fetches are collapsed into a single
// in-flight call via singleflight.
package feedcache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/singleflight"

	"github.com/driftapp/feedengine/internal/feed"
	"github.com/driftapp/feedengine/internal/metrics"
)

// DefaultTTL is the entry lifetime when none is configured.
const DefaultTTL = 180 * time.Second

// entry is one cached page with its expiration.
type entry struct {
	page      *feed.Page
	expiresAt time.Time
}

// Stats tracks cache performance counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	TotalKeys int64
}

// Cache is a thread-safe TTL page cache with in-flight fetch deduplication.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
	clock   func() time.Time

	group singleflight.Group

	statsMu sync.Mutex
	stats   Stats
}

// New creates a cache with the given TTL. A zero or negative TTL falls back
// to DefaultTTL.
func New(ttl time.Duration) *Cache {
	return newCache(ttl, time.Now)
}

// newCache allows an injected clock for tests.
func newCache(ttl time.Duration, clock func() time.Time) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		entries: make(map[string]entry),
		ttl:     ttl,
		clock:   clock,
	}
}

// Get returns the cached page for key. A read past the entry's expiration is
// a miss and evicts the stale entry.
func (c *Cache) Get(key string) (*feed.Page, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		c.recordMiss()
		return nil, false
	}

	if c.clock().After(e.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		c.recordMiss()
		c.recordEviction()
		return nil, false
	}

	c.recordHit()
	return e.page, true
}

// Put stores a page under key with the configured TTL.
func (c *Cache) Put(key string, page *feed.Page) {
	c.mu.Lock()
	c.entries[key] = entry{
		page:      page,
		expiresAt: c.clock().Add(c.ttl),
	}
	total := int64(len(c.entries))
	c.mu.Unlock()

	c.statsMu.Lock()
	c.stats.TotalKeys = total
	c.statsMu.Unlock()
}

// Fetch returns the cached page for key, or runs fn to produce it. Concurrent
// callers with the same key share a single in-flight call and all observe the
// same result. Successful results are stored under key; errors are not cached.
func (c *Cache) Fetch(ctx context.Context, key string, fn func(context.Context) (*feed.Page, error)) (*feed.Page, error) {
	if page, ok := c.Get(key); ok {
		return page, nil
	}

	// The shared call is detached from the first caller's cancellation so a
	// canceled leader cannot fail every collapsed waiter. The per-source
	// timeout inside fn still bounds the fetch.
	fetchCtx := context.WithoutCancel(ctx)

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		// Re-check: a concurrent caller may have populated the entry
		// between the miss and the singleflight slot.
		if page, ok := c.Get(key); ok {
			return page, nil
		}

		page, err := fn(fetchCtx)
		if err != nil {
			return nil, err
		}
		c.Put(key, page)
		return page, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*feed.Page), nil
}

// InvalidateAll clears every entry, forcing a full re-fetch and re-score.
// Called on explicit user refresh.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	evicted := int64(len(c.entries))
	c.entries = make(map[string]entry)
	c.mu.Unlock()

	c.statsMu.Lock()
	c.stats.Evictions += evicted
	c.stats.TotalKeys = 0
	c.statsMu.Unlock()
}

// GetStats returns a snapshot of the cache counters.
func (c *Cache) GetStats() Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

func (c *Cache) recordHit() {
	c.statsMu.Lock()
	c.stats.Hits++
	c.statsMu.Unlock()
	metrics.CacheHits.Inc()
}

func (c *Cache) recordMiss() {
	c.statsMu.Lock()
	c.stats.Misses++
	c.statsMu.Unlock()
	metrics.CacheMisses.Inc()
}

func (c *Cache) recordEviction() {
	c.statsMu.Lock()
	c.stats.Evictions++
	c.statsMu.Unlock()
}

// Key builds a cache key from source kind, cursor and active filters, so
// distinct queries never collide. Filters are serialized in sorted order and
// hashed for a compact key.
func Key(kind feed.Kind, cursor string, filters map[string]string) string {
	if len(filters) == 0 {
		return fmt.Sprintf("%s:%s", kind, cursor)
	}

	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make([][2]string, 0, len(filters))
	for _, k := range keys {
		ordered = append(ordered, [2]string{k, filters[k]})
	}

	data, err := json.Marshal(ordered)
	if err != nil {
		return fmt.Sprintf("%s:%s:%v", kind, cursor, filters)
	}
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%s:%s:%x", kind, cursor, hash[:16])
}
