// Drift Feed Engine - Personalized Feed Ranking and Delivery
// Copyright 2026 Drift Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftapp/feedengine

package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/driftapp/feedengine/internal/feed"
	"github.com/driftapp/feedengine/internal/feedcache"
	"github.com/driftapp/feedengine/internal/metrics"
	"github.com/driftapp/feedengine/internal/mutation"
	"github.com/driftapp/feedengine/internal/source"
	"github.com/driftapp/feedengine/internal/store"
)

// State is the controller's lifecycle state. Loading, refreshing and
// loading-more are mutually exclusive; conflicting requests queue or no-op
// rather than interleave.
type State string

const (
	StateIdle        State = "idle"
	StateLoading     State = "loading"
	StateReady       State = "ready"
	StateLoadingMore State = "loading_more"
	StateRefreshing  State = "refreshing"
	StateError       State = "error"
)

// ErrNotReady is returned when an operation is requested from a state that
// does not permit it.
var ErrNotReady = errors.New("feed not ready")

// Page-load retry bounds: exponential backoff, three attempts total.
const (
	retryInitialInterval = 500 * time.Millisecond
	retryMaxAttempts     = 3
)

// DefaultPageSize is the per-source page size when none is configured.
const DefaultPageSize = 20

// Controller orchestrates fetching, scoring, mixing and pagination for one
// viewer session. It is the single public surface the delivery layer
// consumes: Load, LoadMore, Refresh, RecordInteraction, and the mutation
// pass-throughs.
//
// All feed state is guarded by one mutex; every async operation's failure
// path lands in a well-defined, previously reachable state (ready or error),
// never a partial one.
type Controller struct {
	mu             sync.Mutex
	state          State
	generation     uint64
	items          []feed.RankedItem
	seen           map[string]struct{}
	cursors        source.Cursors
	exhausted      bool
	pendingRefresh bool
	updatedAt      time.Time

	pageSize int
	fetcher  *source.Fetcher
	cache    *feedcache.Cache
	mixer    *feed.Mixer
	tracker  *feed.BehaviorTracker
	coord    *mutation.Coordinator
	notifier store.Notifier
	clock    func() time.Time
	logger   zerolog.Logger
}

// NewController creates an idle controller. The mutation coordinator is
// attached separately because it needs the controller as its feed view.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewController(fetcher *source.Fetcher, cache *feedcache.Cache, mixer *feed.Mixer, tracker *feed.BehaviorTracker, notifier store.Notifier, pageSize int, logger zerolog.Logger) *Controller {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Controller{
		state:    StateIdle,
		seen:     make(map[string]struct{}),
		pageSize: pageSize,
		fetcher:  fetcher,
		cache:    cache,
		mixer:    mixer,
		tracker:  tracker,
		notifier: notifier,
		clock:    time.Now,
		logger:   logger.With().Str("component", "controller").Logger(),
	}
}

// AttachCoordinator wires the session's mutation coordinator. Must be called
// before Load.
func (c *Controller) AttachCoordinator(coord *mutation.Coordinator) {
	c.coord = coord
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot is a point-in-time copy of the visible feed.
type Snapshot struct {
	State     State             `json:"state"`
	Items     []feed.RankedItem `json:"items"`
	Exhausted bool              `json:"exhausted"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Snapshot returns a copy of the current feed safe to serialize without
// holding the controller lock.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	items := make([]feed.RankedItem, len(c.items))
	copy(items, c.items)
	return Snapshot{
		State:     c.state,
		Items:     items,
		Exhausted: c.exhausted,
		UpdatedAt: c.updatedAt,
	}
}

// Load fetches the first page from all sources, scores, mixes and caches it.
// Valid from idle, and from error as the explicit user-triggered retry.
func (c *Controller) Load(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle && c.state != StateError {
		c.mu.Unlock()
		return feed.ErrAlreadyLoaded
	}
	c.state = StateLoading
	c.generation++
	gen := c.generation
	c.mu.Unlock()

	return c.loadPage(ctx, gen, "load", source.Cursors{}, true)
}

// LoadMore fetches the next page and appends it. It is a no-op from any
// state other than ready, and once the feed is exhausted.
func (c *Controller) LoadMore(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateReady || c.exhausted {
		c.mu.Unlock()
		return nil
	}
	c.state = StateLoadingMore
	gen := c.generation
	cursors := c.cursors
	c.mu.Unlock()

	start := c.clock()
	result := c.fetcher.FetchAll(ctx, cursors, c.pageSize, c.excludedIDs())
	metrics.PageLoadDuration.WithLabelValues("load_more").Observe(c.clock().Sub(start).Seconds())

	if result.AllFailed() {
		pageErr := &feed.PageLoadError{Sources: result.Failed}
		metrics.PageLoads.WithLabelValues("load_more", "error").Inc()

		c.mu.Lock()
		if gen == c.generation {
			// Pagination failure never abandons the loaded feed.
			c.state = StateReady
		}
		c.mu.Unlock()

		c.settleQueuedRefresh(ctx)
		return pageErr
	}

	c.recordOutcome("load_more", result)

	excluded := c.exclusionSet()
	c.mu.Lock()
	if gen != c.generation {
		// Superseded by a refresh; discard the stale page.
		c.mu.Unlock()
		c.settleQueuedRefresh(ctx)
		return nil
	}
	c.applyPageLocked(result, excluded, false)
	c.state = StateReady
	c.mu.Unlock()

	c.settleQueuedRefresh(ctx)
	return nil
}

// Refresh invalidates the cache, resets pagination and the seen-id set (but
// never the swipe-exclusion set, which is permanent for the session) and
// re-fetches page one. Issued while another operation is in flight it is
// queued, supersedes that operation's result, and runs once it settles.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateLoading, StateLoadingMore, StateRefreshing:
		c.pendingRefresh = true
		c.generation++ // stale in-flight results are dropped
		c.mu.Unlock()
		return nil
	case StateIdle:
		c.mu.Unlock()
		return ErrNotReady
	}
	c.state = StateRefreshing
	c.generation++
	gen := c.generation
	c.mu.Unlock()

	return c.doRefresh(ctx, gen)
}

// doRefresh performs the refresh fetch under an already-claimed generation.
func (c *Controller) doRefresh(ctx context.Context, gen uint64) error {
	c.cache.InvalidateAll()

	c.mu.Lock()
	c.cursors = source.Cursors{}
	c.seen = make(map[string]struct{})
	c.exhausted = false
	c.mu.Unlock()

	return c.loadPage(ctx, gen, "refresh", source.Cursors{}, true)
}

// RecordInteraction forwards a viewer interaction to the behavior tracker.
// Always accepted; never blocks or fails.
func (c *Controller) RecordInteraction(ev feed.InteractionEvent) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = c.clock()
	}
	c.tracker.RecordInteraction(ev)
}

// Mutate implements mutation.Feed: it applies fn to the in-memory item under
// the controller lock and reports the item's kind.
func (c *Controller) Mutate(id string, fn func(*feed.FeedItem)) (feed.Kind, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.items {
		if c.items[i].Item.ID == id {
			fn(&c.items[i].Item)
			return c.items[i].Item.Kind, true
		}
	}
	return "", false
}

// Remove implements mutation.Feed: it drops the item from the visible feed.
// The item stays in the seen set, so it is not re-shown by later pages.
func (c *Controller) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.items {
		if c.items[i].Item.ID == id {
			c.items = append(c.items[:i], c.items[i+1:]...)
			return
		}
	}
}

// loadPage runs the shared fetch/score/mix path for load and refresh,
// retrying with exponential backoff while every source fails.
func (c *Controller) loadPage(ctx context.Context, gen uint64, op string, cursors source.Cursors, replace bool) error {
	start := c.clock()
	result, err := c.fetchWithRetry(ctx, cursors)
	metrics.PageLoadDuration.WithLabelValues(op).Observe(c.clock().Sub(start).Seconds())

	if err != nil {
		metrics.PageLoads.WithLabelValues(op, "error").Inc()
		c.logger.Error().Str("operation", op).Err(err).Msg("page load failed after retries")

		c.mu.Lock()
		superseded := gen != c.generation
		if !superseded {
			c.state = StateError
			c.pendingRefresh = false
		}
		c.mu.Unlock()

		if superseded {
			// A queued refresh owns the next fetch.
			c.settleQueuedRefresh(ctx)
			return nil
		}
		if c.notifier != nil {
			c.notifier.Notify("Couldn't load your feed. Tap to retry.", store.NoticeError)
		}
		return err
	}

	c.recordOutcome(op, result)

	excluded := c.exclusionSet()
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		c.settleQueuedRefresh(ctx)
		return nil
	}
	c.applyPageLocked(result, excluded, replace)
	c.state = StateReady
	c.mu.Unlock()

	c.settleQueuedRefresh(ctx)
	return nil
}

// fetchWithRetry fans out to all sources, retrying the whole fetch with
// exponential backoff only when every source failed, capped at three
// attempts.
func (c *Controller) fetchWithRetry(ctx context.Context, cursors source.Cursors) (*source.Result, error) {
	var result *source.Result

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = retryInitialInterval

	operation := func() error {
		result = c.fetcher.FetchAll(ctx, cursors, c.pageSize, c.excludedIDs())
		if result.AllFailed() {
			return &feed.PageLoadError{Sources: result.Failed}
		}
		return nil
	}

	err := backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(policy, retryMaxAttempts-1), ctx))
	if err != nil {
		return nil, err
	}
	return result, nil
}

// applyPageLocked scores, mixes and installs one fetched page. Callers must
// hold mu and pass an exclusion set snapshotted before taking it.
func (c *Controller) applyPageLocked(result *source.Result, excluded map[string]struct{}, replace bool) {
	now := c.clock()
	profile := c.tracker.Profile()

	posts := c.admitLocked(result.Items[feed.KindPost], excluded)
	secondary := c.admitLocked(result.Items[feed.KindPromoted], excluded)
	secondary = append(secondary, c.admitLocked(result.Items[feed.KindProfile], excluded)...)

	primaryRanked := feed.Rank(posts, now, profile)
	secondaryRanked := feed.Rank(secondary, now, profile)
	mixed := c.mixer.Mix(primaryRanked, secondaryRanked, profile.Pattern)

	if replace {
		c.items = mixed
	} else {
		c.items = append(c.items, mixed...)
	}

	c.cursors = result.Cursors

	// Exhaustion signal: the primary source returned a short page and has
	// no continuation.
	c.exhausted = len(result.Items[feed.KindPost]) < c.pageSize && result.Cursors.Posts == ""

	c.updatedAt = now
}

// admitLocked filters out already-seen and session-excluded items and marks
// the survivors seen. Callers must hold mu. The exclusion set is a snapshot
// taken before mu: the coordinator calls into the controller while holding
// its own lock, so the controller must never take the coordinator's lock
// while holding mu.
func (c *Controller) admitLocked(items []feed.FeedItem, excluded map[string]struct{}) []feed.FeedItem {
	admitted := make([]feed.FeedItem, 0, len(items))
	for _, it := range items {
		if _, dup := c.seen[it.ID]; dup {
			continue
		}
		if _, skip := excluded[it.ID]; skip {
			continue
		}
		c.seen[it.ID] = struct{}{}
		admitted = append(admitted, it)
	}
	return admitted
}

// settleQueuedRefresh runs a refresh that was queued while another operation
// was in flight.
func (c *Controller) settleQueuedRefresh(ctx context.Context) {
	c.mu.Lock()
	if !c.pendingRefresh || c.state == StateRefreshing {
		c.mu.Unlock()
		return
	}
	c.pendingRefresh = false
	c.state = StateRefreshing
	c.generation++
	gen := c.generation
	c.mu.Unlock()

	if err := c.doRefresh(ctx, gen); err != nil {
		c.logger.Warn().Err(err).Msg("queued refresh failed")
	}
}

// excludedIDs returns the session's swipe exclusions for server-side
// filtering. Must not be called with mu held.
func (c *Controller) excludedIDs() []string {
	if c.coord == nil {
		return nil
	}
	return c.coord.ExcludedIDs()
}

// exclusionSet snapshots the swipe exclusions as a set for page admission.
// Must not be called with mu held.
func (c *Controller) exclusionSet() map[string]struct{} {
	if c.coord == nil {
		return nil
	}
	ids := c.coord.ExcludedIDs()
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// recordOutcome records load metrics and logs partial failures.
func (c *Controller) recordOutcome(op string, result *source.Result) {
	if len(result.Failed) > 0 {
		metrics.PageLoads.WithLabelValues(op, "partial").Inc()
		return
	}
	metrics.PageLoads.WithLabelValues(op, "ok").Inc()
}
