// Drift Feed Engine - Personalized Feed Ranking and Delivery
// Copyright 2026 Drift Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftapp/feedengine

// Package source adapts the three independent backing collections (posts,
// promoted content, discovery profiles) into parallel, independently
// fallible page fetches. Each source is guarded by its own circuit breaker
// and timeout, and backed by the shared TTL page cache so concurrent
// identical fetches collapse into one remote call.
package source

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/driftapp/feedengine/internal/feed"
	"github.com/driftapp/feedengine/internal/feedcache"
	"github.com/driftapp/feedengine/internal/metrics"
	"github.com/driftapp/feedengine/internal/store"
)

// DefaultTimeout is the per-source fetch timeout. A timed-out source is
// treated identically to a failed one.
const DefaultTimeout = 10 * time.Second

// breakerSettings tunes the per-source circuit breakers.
const (
	breakerFailureThreshold = 5
	breakerOpenTimeout      = 30 * time.Second
	breakerHalfOpenRequests = 1
)

// Cursors carries per-source pagination state across page fetches.
type Cursors struct {
	Posts    string `json:"posts,omitempty"`
	Promoted string `json:"promoted,omitempty"`
	Profiles string `json:"profiles,omitempty"`
}

// Get returns the cursor for a kind.
func (c Cursors) Get(kind feed.Kind) string {
	switch kind {
	case feed.KindPromoted:
		return c.Promoted
	case feed.KindProfile:
		return c.Profiles
	default:
		return c.Posts
	}
}

// Set updates the cursor for a kind.
func (c *Cursors) Set(kind feed.Kind, cursor string) {
	switch kind {
	case feed.KindPromoted:
		c.Promoted = cursor
	case feed.KindProfile:
		c.Profiles = cursor
	default:
		c.Posts = cursor
	}
}

// Result is one parallel fetch across all sources. Failed sources contribute
// zero items; the page is served from the survivors.
type Result struct {
	Items   map[feed.Kind][]feed.FeedItem
	Cursors Cursors
	Failed  []*feed.SourceError
}

// AllFailed reports whether no source contributed items.
func (r *Result) AllFailed() bool {
	return len(r.Failed) == len(feed.Kinds())
}

// Fetcher fetches pages from the remote store with per-source resilience.
type Fetcher struct {
	lister   store.Lister
	cache    *feedcache.Cache
	breakers map[feed.Kind]*gobreaker.CircuitBreaker[store.ListResult]
	timeout  time.Duration
	logger   zerolog.Logger
}

// New creates a fetcher over the given lister and page cache.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func New(lister store.Lister, cache *feedcache.Cache, timeout time.Duration, logger zerolog.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	breakers := make(map[feed.Kind]*gobreaker.CircuitBreaker[store.ListResult], len(feed.Kinds()))
	for _, kind := range feed.Kinds() {
		breakers[kind] = newBreaker(string(kind))
	}

	return &Fetcher{
		lister:   lister,
		cache:    cache,
		breakers: breakers,
		timeout:  timeout,
		logger:   logger.With().Str("component", "source").Logger(),
	}
}

// newBreaker creates the circuit breaker for one source.
func newBreaker(name string) *gobreaker.CircuitBreaker[store.ListResult] {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: breakerHalfOpenRequests,
		Timeout:     breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailureThreshold
		},
	}
	return gobreaker.NewCircuitBreaker[store.ListResult](settings)
}

// FetchPage fetches one page from a single source, going through the cache,
// the circuit breaker, and the per-source timeout in that order.
func (f *Fetcher) FetchPage(ctx context.Context, kind feed.Kind, cursor string, limit int, exclude []string) (store.ListResult, error) {
	filters := queryFilters(kind)
	key := feedcache.Key(kind, cursor, cacheFilters(filters, limit, exclude))

	page, err := f.cache.Fetch(ctx, key, func(ctx context.Context) (*feed.Page, error) {
		result, err := f.breakers[kind].Execute(func() (store.ListResult, error) {
			fetchCtx, cancel := context.WithTimeout(ctx, f.timeout)
			defer cancel()
			return f.lister.List(fetchCtx, store.Query{
				Collection: store.CollectionFor(kind),
				Filters:    filters,
				ExcludeIDs: exclude,
				Descending: true,
				Cursor:     cursor,
				Limit:      limit,
			})
		})
		if err != nil {
			return nil, err
		}
		return &feed.Page{
			Items:     result.Items,
			Cursor:    result.NextCursor,
			FetchedAt: time.Now(),
		}, nil
	})
	if err != nil {
		metrics.SourceFetchFailures.WithLabelValues(string(kind)).Inc()
		return store.ListResult{}, &feed.SourceError{Kind: kind, Err: err}
	}

	return store.ListResult{Items: page.Items, NextCursor: page.Cursor}, nil
}

// FetchAll fans out to all sources in parallel and awaits every result.
// A failure in one source never fails the page: the failed source is logged
// and contributes zero items. When every source fails the caller receives a
// PageLoadError via Result.AllFailed.
func (f *Fetcher) FetchAll(ctx context.Context, cursors Cursors, limit int, exclude []string) *Result {
	kinds := feed.Kinds()
	type fetchOutcome struct {
		kind   feed.Kind
		result store.ListResult
		err    error
	}

	outcomes := make([]fetchOutcome, len(kinds))
	var wg sync.WaitGroup
	for i, kind := range kinds {
		wg.Add(1)
		go func(idx int, k feed.Kind) {
			defer wg.Done()
			result, err := f.FetchPage(ctx, k, cursors.Get(k), limit, exclude)
			outcomes[idx] = fetchOutcome{kind: k, result: result, err: err}
		}(i, kind)
	}
	wg.Wait()

	out := &Result{Items: make(map[feed.Kind][]feed.FeedItem, len(kinds))}
	for _, o := range outcomes {
		if o.err != nil {
			srcErr, ok := o.err.(*feed.SourceError)
			if !ok {
				srcErr = &feed.SourceError{Kind: o.kind, Err: o.err}
			}
			out.Failed = append(out.Failed, srcErr)
			f.logger.Warn().
				Str("source", string(o.kind)).
				Err(srcErr.Err).
				Msg("source fetch failed, serving page from survivors")
			continue
		}
		out.Items[o.kind] = o.result.Items
		out.Cursors.Set(o.kind, o.result.NextCursor)
	}

	return out
}

// BreakerState reports a source breaker's state for health endpoints.
func (f *Fetcher) BreakerState(kind feed.Kind) string {
	return f.breakers[kind].State().String()
}

// queryFilters returns the server-side filters for a source.
func queryFilters(kind feed.Kind) map[string]string {
	if kind == feed.KindPromoted {
		// Expired or paused promotions are excluded server-side.
		return map[string]string{"active": "true"}
	}
	return nil
}

// cacheFilters folds limit and exclusions into the cache key filters so
// distinct queries never collide on an entry.
func cacheFilters(filters map[string]string, limit int, exclude []string) map[string]string {
	merged := make(map[string]string, len(filters)+2)
	for k, v := range filters {
		merged[k] = v
	}
	merged["limit"] = strconv.Itoa(limit)
	if len(exclude) > 0 {
		merged["exclude"] = strings.Join(exclude, ",")
	}
	return merged
}
