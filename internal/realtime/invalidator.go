// Drift Feed Engine - Personalized Feed Ranking and Delivery
// Copyright 2026 Drift Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftapp/feedengine

// Package realtime subscribes to remote change notifications and perturbs
// the feed's refresh timing. New-post events raise a non-blocking
// "new content available" prompt; directly relevant state changes (a paid
// promotion becoming active) trigger an automatic silent refresh. A debounce
// window protects against bursts of notifications; dropped subscription
// channels are silently re-established with backoff.
package realtime

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/driftapp/feedengine/internal/feed"
	"github.com/driftapp/feedengine/internal/metrics"
	"github.com/driftapp/feedengine/internal/store"
)

// MinDebounce is the minimum interval between invalidator-triggered
// refreshes, regardless of notification volume.
const MinDebounce = 2 * time.Second

// resubscribe backoff bounds.
const (
	resubscribeInitial = 1 * time.Second
	resubscribeMax     = 30 * time.Second
)

// Sink receives the invalidator's refresh decisions. Implemented by the
// session layer: PromptNewContent surfaces a manual-refresh prompt,
// SilentRefresh re-fetches in the background.
type Sink interface {
	PromptNewContent()
	SilentRefresh(ctx context.Context)
}

// Invalidator watches all three backing collections for one deployment and
// fans refresh decisions out to its sink. It implements suture.Service via
// Serve.
type Invalidator struct {
	subscriber store.Subscriber
	sink       Sink
	limiter    *rate.Limiter
	logger     zerolog.Logger

	collections []store.Collection
}

// New creates an invalidator with the standard collection set and a debounce
// window no shorter than MinDebounce.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func New(subscriber store.Subscriber, sink Sink, debounce time.Duration, logger zerolog.Logger) *Invalidator {
	if debounce < MinDebounce {
		debounce = MinDebounce
	}
	return &Invalidator{
		subscriber: subscriber,
		sink:       sink,
		limiter:    rate.NewLimiter(rate.Every(debounce), 1),
		logger:     logger.With().Str("component", "realtime").Logger(),
		collections: []store.Collection{
			store.CollectionPosts,
			store.CollectionPromoted,
			store.CollectionProfiles,
		},
	}
}

// Serve implements the suture.Service interface. It maintains one
// subscription per collection until the context is canceled, re-establishing
// any dropped channel with exponential backoff. Loaded feed state is never
// touched by a channel drop; while resubscribing, freshness degrades to the
// adaptive polling cadence.
func (inv *Invalidator) Serve(ctx context.Context) error {
	errCh := make(chan subscriptionDrop, len(inv.collections))
	subs := make(map[store.Collection]store.Subscription, len(inv.collections))

	defer func() {
		for _, sub := range subs {
			sub.Unsubscribe()
		}
	}()

	for _, coll := range inv.collections {
		sub, err := inv.subscribeWithBackoff(ctx, coll, errCh)
		if err != nil {
			return err
		}
		subs[coll] = sub
	}

	inv.logger.Info().Int("collections", len(subs)).Msg("realtime invalidator running")

	for {
		select {
		case <-ctx.Done():
			inv.logger.Info().Msg("realtime invalidator shutting down")
			return ctx.Err()

		case drop := <-errCh:
			subErr := &feed.SubscriptionError{Collection: string(drop.collection), Err: drop.err}
			inv.logger.Warn().Err(subErr).Msg("subscription dropped, resubscribing")

			if old := subs[drop.collection]; old != nil {
				old.Unsubscribe()
			}
			sub, err := inv.subscribeWithBackoff(ctx, drop.collection, errCh)
			if err != nil {
				return err
			}
			subs[drop.collection] = sub
		}
	}
}

// String returns the service name for supervisor logging.
func (inv *Invalidator) String() string { return "realtime-invalidator" }

// subscriptionDrop pairs a dropped collection with its error.
type subscriptionDrop struct {
	collection store.Collection
	err        error
}

// subscribeWithBackoff establishes one subscription, retrying with
// exponential backoff until the context is canceled.
func (inv *Invalidator) subscribeWithBackoff(ctx context.Context, coll store.Collection, errCh chan subscriptionDrop) (store.Subscription, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = resubscribeInitial
	policy.MaxInterval = resubscribeMax
	policy.MaxElapsedTime = 0 // retry until canceled

	var sub store.Subscription
	operation := func() error {
		var err error
		sub, err = inv.subscriber.Subscribe(ctx, coll, func(ev store.Event) {
			inv.handleEvent(ctx, ev)
		})
		return err
	}

	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return nil, err
	}

	// Forward channel drops into the serve loop.
	go func() {
		if err, ok := <-sub.Err(); ok && err != nil {
			select {
			case errCh <- subscriptionDrop{collection: coll, err: err}:
			case <-ctx.Done():
			}
		}
	}()

	return sub, nil
}

// handleEvent applies the refresh policy for one change notification.
// Promotion state changes refresh silently; new posts and new discovery
// profiles raise a non-intrusive prompt. At most one refresh decision passes
// per debounce window.
//
// Only inserts count as new content on the prompt path. Updates to existing
// rows, including the engine's own counter write-backs echoed by the store,
// are dropped before they can consume a debounce token.
func (inv *Invalidator) handleEvent(ctx context.Context, ev store.Event) {
	if ev.Collection != store.CollectionPromoted && ev.Type != store.EventInsert {
		return
	}

	if !inv.limiter.Allow() {
		metrics.RealtimeRefreshes.WithLabelValues("debounced").Inc()
		return
	}

	switch ev.Collection {
	case store.CollectionPromoted:
		metrics.RealtimeRefreshes.WithLabelValues("hard").Inc()
		inv.logger.Debug().
			Str("collection", string(ev.Collection)).
			Str("item_id", ev.ItemID).
			Msg("promotion change, silent refresh")
		inv.sink.SilentRefresh(ctx)

	case store.CollectionPosts, store.CollectionProfiles:
		metrics.RealtimeRefreshes.WithLabelValues("soft").Inc()
		inv.logger.Debug().
			Str("collection", string(ev.Collection)).
			Str("item_id", ev.ItemID).
			Msg("new content, prompting")
		inv.sink.PromptNewContent()
	}
}
