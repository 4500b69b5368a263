// Drift Feed Engine - Personalized Feed Ranking and Delivery
// Copyright 2026 Drift Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftapp/feedengine

package feed

import (
	"errors"
	"fmt"
)

// Sentinel errors for local policy rejections and state-machine guards.
var (
	// ErrQuotaExceeded is returned synchronously when the daily swipe quota
	// is exhausted. No network call is made.
	ErrQuotaExceeded = errors.New("daily swipe quota exceeded")

	// ErrSuperLikeQuotaExceeded is returned when the super-like quota is
	// exhausted.
	ErrSuperLikeQuotaExceeded = errors.New("super like quota exceeded")

	// ErrItemNotFound is returned when a mutation targets an item that is
	// not in the current feed.
	ErrItemNotFound = errors.New("item not in current feed")

	// ErrAlreadyLoaded is returned when Load is called outside the idle or
	// error states.
	ErrAlreadyLoaded = errors.New("feed already loaded")
)

// SourceError records the failure of a single backing collection during a
// parallel page fetch. It is recovered locally: the page is served from the
// surviving sources.
type SourceError struct {
	Kind Kind
	Err  error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s: %v", e.Kind, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// PageLoadError means every backing collection failed for one page fetch.
// It is retryable with backoff; after the retry cap the controller settles
// into the error state.
type PageLoadError struct {
	Sources []*SourceError
}

func (e *PageLoadError) Error() string {
	return fmt.Sprintf("page load failed: all %d sources failed", len(e.Sources))
}

// MutationError means a remote write failed after its optimistic in-memory
// application. The effect has already been rolled back when this surfaces.
type MutationError struct {
	ItemID string
	Kind   MutationKind
	Err    error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("mutation %s on %s failed: %v", e.Kind, e.ItemID, e.Err)
}

func (e *MutationError) Unwrap() error { return e.Err }

// SubscriptionError means a realtime change channel dropped. Recovered by
// resubscription with backoff; loaded feed state is unaffected.
type SubscriptionError struct {
	Collection string
	Err        error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("subscription %s dropped: %v", e.Collection, e.Err)
}

func (e *SubscriptionError) Unwrap() error { return e.Err }
