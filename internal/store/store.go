// Drift Feed Engine - Personalized Feed Ranking and Delivery
// Copyright 2026 Drift Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftapp/feedengine

// Package store defines the collaborator contracts the feed engine depends
// on: a remote list query, a remote write surface, an at-least-once change
// subscription, and a fire-and-forget user notification surface. The engine
// is implementation-agnostic over these; package memstore and natsbridge
// provide concrete implementations.
package store

import (
	"context"
	"time"

	"github.com/driftapp/feedengine/internal/feed"
)

// Collection names the three backing collections plus the mutation targets.
type Collection string

const (
	CollectionPosts    Collection = "posts"
	CollectionPromoted Collection = "promoted_content"
	CollectionProfiles Collection = "discovery_profiles"
	CollectionSwipes   Collection = "swipes"
)

// CollectionFor maps a feed kind to its backing collection.
func CollectionFor(kind feed.Kind) Collection {
	switch kind {
	case feed.KindPromoted:
		return CollectionPromoted
	case feed.KindProfile:
		return CollectionProfiles
	default:
		return CollectionPosts
	}
}

// Query describes one remote list call. Filters are server-side: excluding
// already-interacted IDs, expired content, or blocked users happens in the
// store, not in the engine.
type Query struct {
	Collection Collection
	Filters    map[string]string
	ExcludeIDs []string
	OrderBy    string
	Descending bool
	Cursor     string
	Limit      int
}

// ListResult is one page of a remote list call.
type ListResult struct {
	Items      []feed.FeedItem
	NextCursor string
}

// Lister is the remote list-query contract.
type Lister interface {
	List(ctx context.Context, q Query) (ListResult, error)
}

// Patch is a partial update applied to a remote record. Integer values on
// counter fields are relative deltas.
type Patch map[string]any

// Record is a schemaless row for non-content collections such as swipes.
type Record map[string]any

// Writer is the remote write contract, used for mutation persistence and
// counter increments.
type Writer interface {
	Insert(ctx context.Context, c Collection, item feed.FeedItem) (string, error)
	InsertRecord(ctx context.Context, c Collection, record Record) (string, error)
	Update(ctx context.Context, c Collection, id string, patch Patch) error
}

// EventType classifies a change notification.
type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
)

// Event is one change notification. Delivery is at-least-once and order is
// not guaranteed.
type Event struct {
	Collection Collection `json:"collection"`
	Type       EventType  `json:"type"`
	ItemID     string     `json:"item_id"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// Subscription is a live change-notification channel. Err yields at most one
// error when the channel drops; Unsubscribe is idempotent.
type Subscription interface {
	Unsubscribe()
	Err() <-chan error
}

// Subscriber is the change-subscription contract.
type Subscriber interface {
	Subscribe(ctx context.Context, c Collection, handler func(Event)) (Subscription, error)
}

// NoticeKind classifies a user-facing notification.
type NoticeKind string

const (
	NoticeInfo       NoticeKind = "info"
	NoticeError      NoticeKind = "error"
	NoticeNewContent NoticeKind = "new_content"
)

// Notifier is the fire-and-forget notification surface, owned by the UI
// layer. Used for transient mutation failures and new-content prompts.
type Notifier interface {
	Notify(message string, kind NoticeKind)
}

// NopNotifier discards all notices.
type NopNotifier struct{}

func (NopNotifier) Notify(string, NoticeKind) {}

// Store bundles the remote contracts a full engine deployment needs.
type Store interface {
	Lister
	Writer
	Subscriber
}
