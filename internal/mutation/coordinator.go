// Drift Feed Engine - Personalized Feed Ranking and Delivery
// Copyright 2026 Drift Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftapp/feedengine

// Package mutation applies user actions (like, share, swipe) optimistically
// against the in-memory feed, persists them remotely, and reconciles or
// rolls back on failure. Each pending mutation is independent and
// self-contained: remote confirmations may settle out of order without a
// global lock across mutations.
package mutation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/driftapp/feedengine/internal/feed"
	"github.com/driftapp/feedengine/internal/metrics"
	"github.com/driftapp/feedengine/internal/store"
)

// writeTimeout bounds each remote mutation write.
const writeTimeout = 10 * time.Second

// Feed is the coordinator's view of the in-memory feed. Implemented by the
// session controller; both methods run under the session's lock.
type Feed interface {
	// Mutate applies fn to the item if present, returning its kind.
	Mutate(id string, fn func(*feed.FeedItem)) (feed.Kind, bool)

	// Remove drops the item from the visible feed.
	Remove(id string)
}

// Quota carries the session's remaining client-side action budget, fetched
// once at session start. Once exhausted, swipes are rejected synchronously
// with no network call.
type Quota struct {
	SwipesRemaining     int
	SuperLikesRemaining int
}

// Coordinator owns the optimistic-mutation protocol for one session.
type Coordinator struct {
	mu       sync.Mutex
	feed     Feed
	writer   store.Writer
	notifier store.Notifier
	logger   zerolog.Logger
	clock    func() time.Time

	pending  map[string]*feed.PendingMutation
	liked    map[string]struct{}
	excluded map[string]struct{}
	quota    Quota

	wg sync.WaitGroup
}

// NewCoordinator creates a coordinator for one session.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewCoordinator(f Feed, writer store.Writer, notifier store.Notifier, quota Quota, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		feed:     f,
		writer:   writer,
		notifier: notifier,
		logger:   logger.With().Str("component", "mutation").Logger(),
		clock:    time.Now,
		pending:  make(map[string]*feed.PendingMutation),
		liked:    make(map[string]struct{}),
		excluded: make(map[string]struct{}),
		quota:    quota,
	}
}

// ApplyLike optimistically increments the item's like counter and persists
// the change. Liking an already-liked item is a no-op.
func (c *Coordinator) ApplyLike(ctx context.Context, itemID string) error {
	c.mu.Lock()
	if _, done := c.liked[itemID]; done {
		c.mu.Unlock()
		return nil
	}

	kind, ok := c.feed.Mutate(itemID, func(item *feed.FeedItem) {
		item.LikeCount++
		item.Liked = true
	})
	if !ok {
		c.mu.Unlock()
		return feed.ErrItemNotFound
	}

	c.liked[itemID] = struct{}{}
	pm := c.recordPendingLocked(itemID, feed.MutationLike)
	c.mu.Unlock()

	c.persist(ctx, pm, func(writeCtx context.Context) error {
		return c.writer.Update(writeCtx, store.CollectionFor(kind), itemID, store.Patch{"like_count": 1})
	}, func() {
		c.feed.Mutate(itemID, func(item *feed.FeedItem) {
			item.LikeCount--
			item.Liked = false
		})
		delete(c.liked, itemID)
	})

	return nil
}

// ApplyShare optimistically increments the item's share counter and persists
// the change. Shares are not idempotent: every share counts.
func (c *Coordinator) ApplyShare(ctx context.Context, itemID string) error {
	c.mu.Lock()
	kind, ok := c.feed.Mutate(itemID, func(item *feed.FeedItem) {
		item.ShareCount++
	})
	if !ok {
		c.mu.Unlock()
		return feed.ErrItemNotFound
	}
	pm := c.recordPendingLocked(itemID, feed.MutationShare)
	c.mu.Unlock()

	c.persist(ctx, pm, func(writeCtx context.Context) error {
		return c.writer.Update(writeCtx, store.CollectionFor(kind), itemID, store.Patch{"share_count": 1})
	}, func() {
		c.feed.Mutate(itemID, func(item *feed.FeedItem) {
			item.ShareCount--
		})
	})

	return nil
}

// ApplySwipe records a like/pass decision on a discovery profile. The profile
// is removed from the visible feed immediately and never re-queried within
// the session. Quota exhaustion is rejected synchronously with no network
// call.
func (c *Coordinator) ApplySwipe(ctx context.Context, profileID string, liked, superLike bool) error {
	c.mu.Lock()
	if c.quota.SwipesRemaining <= 0 {
		c.mu.Unlock()
		metrics.Mutations.WithLabelValues(string(feed.MutationPass), "quota_rejected").Inc()
		return feed.ErrQuotaExceeded
	}
	if superLike && c.quota.SuperLikesRemaining <= 0 {
		c.mu.Unlock()
		metrics.Mutations.WithLabelValues(string(feed.MutationPass), "quota_rejected").Inc()
		return feed.ErrSuperLikeQuotaExceeded
	}

	c.quota.SwipesRemaining--
	if superLike {
		c.quota.SuperLikesRemaining--
	}
	c.excluded[profileID] = struct{}{}

	c.feed.Mutate(profileID, func(item *feed.FeedItem) {
		item.Liked = liked
		item.Passed = !liked
	})
	c.feed.Remove(profileID)

	pm := c.recordPendingLocked(profileID, feed.MutationPass)
	c.mu.Unlock()

	c.persist(ctx, pm, func(writeCtx context.Context) error {
		_, err := c.writer.InsertRecord(writeCtx, store.CollectionSwipes, store.Record{
			"profile_id": profileID,
			"liked":      liked,
			"super_like": superLike,
			"swiped_at":  c.clock(),
		})
		return err
	}, func() {
		delete(c.excluded, profileID)
		c.quota.SwipesRemaining++
		if superLike {
			c.quota.SuperLikesRemaining++
		}
	})

	return nil
}

// ExcludedIDs returns the swiped-profile exclusion set, which survives
// refreshes for the lifetime of the session.
func (c *Coordinator) ExcludedIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.excluded))
	for id := range c.excluded {
		ids = append(ids, id)
	}
	return ids
}

// IsExcluded reports whether a profile has been swiped this session.
func (c *Coordinator) IsExcluded(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.excluded[id]
	return ok
}

// RemainingQuota returns the current client-side action budget.
func (c *Coordinator) RemainingQuota() Quota {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.quota
}

// PendingCount returns the number of unsettled mutations.
func (c *Coordinator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Wait blocks until every in-flight remote write has settled. Used on
// shutdown and in tests.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// recordPendingLocked creates the pending entry for one mutation.
// Callers must hold mu.
func (c *Coordinator) recordPendingLocked(itemID string, kind feed.MutationKind) *feed.PendingMutation {
	pm := &feed.PendingMutation{
		ID:        uuid.NewString(),
		ItemID:    itemID,
		Kind:      kind,
		AppliedAt: c.clock(),
	}
	c.pending[pm.ID] = pm
	return pm
}

// persist fires the remote write asynchronously. On success the pending
// entry is marked committed and dropped: the optimistic state is the final
// state, so no re-render round trip happens. On failure revert restores the
// in-memory effect exactly, the entry is discarded, and the failure is
// surfaced as a brief non-blocking notification.
func (c *Coordinator) persist(ctx context.Context, pm *feed.PendingMutation, write func(context.Context) error, revert func()) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
		defer cancel()

		err := write(writeCtx)

		c.mu.Lock()
		delete(c.pending, pm.ID)
		if err != nil {
			revert()
		} else {
			pm.Committed = true
		}
		c.mu.Unlock()

		if err != nil {
			metrics.Mutations.WithLabelValues(string(pm.Kind), "rolled_back").Inc()
			c.logger.Warn().
				Str("item_id", pm.ItemID).
				Str("kind", string(pm.Kind)).
				Err(err).
				Msg("mutation write failed, rolled back")
			if c.notifier != nil {
				c.notifier.Notify("Your action couldn't be saved. Please try again.", store.NoticeError)
			}
			return
		}

		metrics.Mutations.WithLabelValues(string(pm.Kind), "committed").Inc()
	}()
}
