// Drift Feed Engine - Personalized Feed Ranking and Delivery
// Copyright 2026 Drift Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftapp/feedengine

package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/driftapp/feedengine/internal/feed"
)

// MemStore is an in-memory Store used by tests and standalone mode. Cursors
// are encoded offsets; change events are delivered synchronously to
// subscribers on insert and update.
type MemStore struct {
	mu      sync.RWMutex
	items   map[Collection][]feed.FeedItem
	records map[Collection][]Record
	subs    map[Collection][]*memSubscription
	clock   func() time.Time
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		items:   make(map[Collection][]feed.FeedItem),
		records: make(map[Collection][]Record),
		subs:    make(map[Collection][]*memSubscription),
		clock:   time.Now,
	}
}

// Seed loads items into a collection without emitting change events.
func (s *MemStore) Seed(c Collection, items ...feed.FeedItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[c] = append(s.items[c], items...)
}

// List implements Lister. Items are returned newest-first unless the query
// orders otherwise; excluded IDs and the promoted active filter are applied
// server-side, matching the remote contract.
func (s *MemStore) List(ctx context.Context, q Query) (ListResult, error) {
	if err := ctx.Err(); err != nil {
		return ListResult{}, err
	}

	s.mu.RLock()
	all := make([]feed.FeedItem, len(s.items[q.Collection]))
	copy(all, s.items[q.Collection])
	s.mu.RUnlock()

	excluded := make(map[string]struct{}, len(q.ExcludeIDs))
	for _, id := range q.ExcludeIDs {
		excluded[id] = struct{}{}
	}

	filtered := all[:0]
	for _, it := range all {
		if _, skip := excluded[it.ID]; skip {
			continue
		}
		if q.Filters["active"] == "true" && it.Promoted != nil && !it.Promoted.Active {
			continue
		}
		filtered = append(filtered, it)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		if q.Descending || q.OrderBy == "" {
			return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
		}
		return filtered[i].CreatedAt.Before(filtered[j].CreatedAt)
	})

	offset := 0
	if q.Cursor != "" {
		n, err := strconv.Atoi(q.Cursor)
		if err != nil {
			return ListResult{}, fmt.Errorf("invalid cursor %q: %w", q.Cursor, err)
		}
		offset = n
	}
	if offset >= len(filtered) {
		return ListResult{Items: []feed.FeedItem{}}, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = len(filtered) - offset
	}
	end := offset + limit
	if end > len(filtered) {
		end = len(filtered)
	}

	result := ListResult{Items: filtered[offset:end]}
	if end < len(filtered) {
		result.NextCursor = strconv.Itoa(end)
	}
	return result, nil
}

// Insert implements Writer and notifies subscribers.
func (s *MemStore) Insert(ctx context.Context, c Collection, item feed.FeedItem) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}

	s.mu.Lock()
	s.items[c] = append(s.items[c], item)
	s.mu.Unlock()

	s.publish(Event{Collection: c, Type: EventInsert, ItemID: item.ID, OccurredAt: s.clock()})
	return item.ID, nil
}

// InsertRecord implements Writer for schemaless collections such as swipes.
func (s *MemStore) InsertRecord(ctx context.Context, c Collection, record Record) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id, _ := record["id"].(string)
	if id == "" {
		id = uuid.NewString()
		record["id"] = id
	}

	s.mu.Lock()
	s.records[c] = append(s.records[c], record)
	s.mu.Unlock()

	s.publish(Event{Collection: c, Type: EventInsert, ItemID: id, OccurredAt: s.clock()})
	return id, nil
}

// Records returns a copy of the stored records for a collection.
func (s *MemStore) Records(c Collection) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, len(s.records[c]))
	copy(out, s.records[c])
	return out
}

// Update implements Writer. Integer patch values are counter deltas; fields
// outside the counter set are ignored.
func (s *MemStore) Update(ctx context.Context, c Collection, id string, patch Patch) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	items := s.items[c]
	found := false
	for i := range items {
		if items[i].ID != id {
			continue
		}
		applyPatch(&items[i], patch)
		found = true
		break
	}
	s.mu.Unlock()

	if !found {
		return fmt.Errorf("update %s/%s: %w", c, id, feed.ErrItemNotFound)
	}

	s.publish(Event{Collection: c, Type: EventUpdate, ItemID: id, OccurredAt: s.clock()})
	return nil
}

func applyPatch(item *feed.FeedItem, patch Patch) {
	for field, value := range patch {
		delta, ok := value.(int)
		if !ok {
			continue
		}
		switch field {
		case "like_count":
			item.LikeCount += delta
		case "share_count":
			item.ShareCount += delta
		case "view_count":
			item.ViewCount += delta
		case "comment_count":
			item.CommentCount += delta
		}
	}
}

// memSubscription implements Subscription for MemStore.
type memSubscription struct {
	handler func(Event)
	errCh   chan error
	once    sync.Once
	store   *MemStore
	coll    Collection
}

func (m *memSubscription) Unsubscribe() {
	m.once.Do(func() {
		m.store.removeSub(m.coll, m)
		close(m.errCh)
	})
}

func (m *memSubscription) Err() <-chan error { return m.errCh }

// Subscribe implements Subscriber. Handlers run synchronously on the
// publishing goroutine, which keeps test ordering deterministic.
func (s *MemStore) Subscribe(ctx context.Context, c Collection, handler func(Event)) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sub := &memSubscription{
		handler: handler,
		errCh:   make(chan error, 1),
		store:   s,
		coll:    c,
	}

	s.mu.Lock()
	s.subs[c] = append(s.subs[c], sub)
	s.mu.Unlock()

	return sub, nil
}

// DropSubscriptions simulates a channel failure for every subscriber of the
// collection. Used by tests exercising resubscription.
func (s *MemStore) DropSubscriptions(c Collection, err error) {
	s.mu.Lock()
	subs := s.subs[c]
	s.subs[c] = nil
	s.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.errCh <- err:
		default:
		}
	}
}

func (s *MemStore) publish(ev Event) {
	s.mu.RLock()
	subs := make([]*memSubscription, len(s.subs[ev.Collection]))
	copy(subs, s.subs[ev.Collection])
	s.mu.RUnlock()

	for _, sub := range subs {
		sub.handler(ev)
	}
}

func (s *MemStore) removeSub(c Collection, target *memSubscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs := s.subs[c]
	for i, sub := range subs {
		if sub == target {
			s.subs[c] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}
