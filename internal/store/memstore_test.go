// Drift Feed Engine - Personalized Feed Ranking and Delivery
// Copyright 2026 Drift Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftapp/feedengine

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/driftapp/feedengine/internal/feed"
)

func seedPosts(s *MemStore, n int) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		s.Seed(CollectionPosts, feed.FeedItem{
			ID:        string(rune('a' + i)),
			Kind:      feed.KindPost,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
	}
}

func TestListNewestFirst(t *testing.T) {
	s := NewMemStore()
	seedPosts(s, 3)

	res, err := s.List(context.Background(), Query{Collection: CollectionPosts})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"c", "b", "a"}
	for i, id := range want {
		if res.Items[i].ID != id {
			t.Errorf("position %d = %s, want %s", i, res.Items[i].ID, id)
		}
	}
}

func TestListPagination(t *testing.T) {
	s := NewMemStore()
	seedPosts(s, 5)

	first, err := s.List(context.Background(), Query{Collection: CollectionPosts, Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(first.Items) != 2 || first.NextCursor == "" {
		t.Fatalf("first page = %d items, cursor %q", len(first.Items), first.NextCursor)
	}

	second, err := s.List(context.Background(), Query{
		Collection: CollectionPosts, Limit: 2, Cursor: first.NextCursor,
	})
	if err != nil {
		t.Fatal(err)
	}
	if second.Items[0].ID == first.Items[0].ID {
		t.Error("second page repeats first page")
	}

	last, err := s.List(context.Background(), Query{
		Collection: CollectionPosts, Limit: 2, Cursor: second.NextCursor,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(last.Items) != 1 || last.NextCursor != "" {
		t.Errorf("last page = %d items, cursor %q; want 1 item, empty cursor", len(last.Items), last.NextCursor)
	}
}

func TestListCursorPastEnd(t *testing.T) {
	s := NewMemStore()
	seedPosts(s, 2)

	res, err := s.List(context.Background(), Query{Collection: CollectionPosts, Cursor: "10"})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Items) != 0 || res.NextCursor != "" {
		t.Errorf("past-end page = %+v, want empty", res)
	}
}

func TestListInvalidCursor(t *testing.T) {
	s := NewMemStore()
	seedPosts(s, 2)

	if _, err := s.List(context.Background(), Query{Collection: CollectionPosts, Cursor: "not-a-number"}); err == nil {
		t.Error("expected error for malformed cursor")
	}
}

func TestListExcludesIDs(t *testing.T) {
	s := NewMemStore()
	seedPosts(s, 3)

	res, err := s.List(context.Background(), Query{
		Collection: CollectionPosts,
		ExcludeIDs: []string{"b"},
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, it := range res.Items {
		if it.ID == "b" {
			t.Error("excluded ID returned")
		}
	}
	if len(res.Items) != 2 {
		t.Errorf("got %d items, want 2", len(res.Items))
	}
}

func TestListActiveFilterOnPromoted(t *testing.T) {
	s := NewMemStore()
	s.Seed(CollectionPromoted,
		feed.FeedItem{ID: "live", Kind: feed.KindPromoted, Promoted: &feed.PromotedDetails{Active: true}},
		feed.FeedItem{ID: "ended", Kind: feed.KindPromoted, Promoted: &feed.PromotedDetails{Active: false}},
	)

	res, err := s.List(context.Background(), Query{
		Collection: CollectionPromoted,
		Filters:    map[string]string{"active": "true"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Items) != 1 || res.Items[0].ID != "live" {
		t.Errorf("items = %+v, want only live", res.Items)
	}
}

func TestUpdateAppliesCounterDeltas(t *testing.T) {
	s := NewMemStore()
	s.Seed(CollectionPosts, feed.FeedItem{ID: "p", Kind: feed.KindPost, LikeCount: 10})

	if err := s.Update(context.Background(), CollectionPosts, "p", Patch{"like_count": 1}); err != nil {
		t.Fatal(err)
	}
	res, err := s.List(context.Background(), Query{Collection: CollectionPosts})
	if err != nil {
		t.Fatal(err)
	}
	if res.Items[0].LikeCount != 11 {
		t.Errorf("like count = %d, want 11", res.Items[0].LikeCount)
	}

	if err := s.Update(context.Background(), CollectionPosts, "p", Patch{"like_count": -1}); err != nil {
		t.Fatal(err)
	}
	res, _ = s.List(context.Background(), Query{Collection: CollectionPosts})
	if res.Items[0].LikeCount != 10 {
		t.Errorf("like count after revert = %d, want 10", res.Items[0].LikeCount)
	}
}

func TestUpdateUnknownItem(t *testing.T) {
	s := NewMemStore()
	err := s.Update(context.Background(), CollectionPosts, "ghost", Patch{"like_count": 1})
	if !errors.Is(err, feed.ErrItemNotFound) {
		t.Errorf("err = %v, want ErrItemNotFound", err)
	}
}

func TestInsertPublishesEvent(t *testing.T) {
	s := NewMemStore()

	var events []Event
	sub, err := s.Subscribe(context.Background(), CollectionPosts, func(ev Event) {
		events = append(events, ev)
	})
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	id, err := s.Insert(context.Background(), CollectionPosts, feed.FeedItem{Kind: feed.KindPost})
	if err != nil {
		t.Fatal(err)
	}
	if id == "" {
		t.Error("expected generated ID")
	}
	if len(events) != 1 || events[0].Type != EventInsert || events[0].ItemID != id {
		t.Errorf("events = %+v", events)
	}
}

func TestUnsubscribeStopsEvents(t *testing.T) {
	s := NewMemStore()

	count := 0
	sub, err := s.Subscribe(context.Background(), CollectionPosts, func(Event) { count++ })
	if err != nil {
		t.Fatal(err)
	}
	sub.Unsubscribe()
	sub.Unsubscribe() // idempotent

	if _, err := s.Insert(context.Background(), CollectionPosts, feed.FeedItem{}); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("handler ran %d times after unsubscribe", count)
	}
}

func TestDropSubscriptionsSignalsError(t *testing.T) {
	s := NewMemStore()

	sub, err := s.Subscribe(context.Background(), CollectionPosts, func(Event) {})
	if err != nil {
		t.Fatal(err)
	}

	boom := errors.New("channel lost")
	s.DropSubscriptions(CollectionPosts, boom)

	select {
	case got := <-sub.Err():
		if !errors.Is(got, boom) {
			t.Errorf("err = %v, want channel lost", got)
		}
	case <-time.After(time.Second):
		t.Fatal("no error delivered after drop")
	}
}

func TestInsertRecord(t *testing.T) {
	s := NewMemStore()

	id, err := s.InsertRecord(context.Background(), CollectionSwipes, Record{
		"profile_id": "prof-1",
		"liked":      true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if id == "" {
		t.Error("expected generated record ID")
	}

	records := s.Records(CollectionSwipes)
	if len(records) != 1 || records[0]["profile_id"] != "prof-1" {
		t.Errorf("records = %+v", records)
	}
}
