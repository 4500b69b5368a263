// Drift Feed Engine - Personalized Feed Ranking and Delivery
// Copyright 2026 Drift Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftapp/feedengine

package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/driftapp/feedengine/internal/store"
)

// recordingSink counts refresh decisions and signals on each one.
type recordingSink struct {
	mu        sync.Mutex
	prompts   int
	refreshes int
	signal    chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{signal: make(chan struct{}, 16)}
}

func (s *recordingSink) PromptNewContent() {
	s.mu.Lock()
	s.prompts++
	s.mu.Unlock()
	s.signal <- struct{}{}
}

func (s *recordingSink) SilentRefresh(context.Context) {
	s.mu.Lock()
	s.refreshes++
	s.mu.Unlock()
	s.signal <- struct{}{}
}

func (s *recordingSink) counts() (prompts, refreshes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prompts, s.refreshes
}

// fakeSubscription lets a test drop the channel on demand.
type fakeSubscription struct {
	errCh chan error
	once  sync.Once
}

func newFakeSubscription() *fakeSubscription {
	return &fakeSubscription{errCh: make(chan error, 1)}
}

func (s *fakeSubscription) Unsubscribe()      { s.once.Do(func() { close(s.errCh) }) }
func (s *fakeSubscription) Err() <-chan error { return s.errCh }
func (s *fakeSubscription) drop(err error)    { s.errCh <- err }

// fakeSubscriber hands out fakeSubscriptions and records handlers.
type fakeSubscriber struct {
	mu       sync.Mutex
	subs     map[store.Collection][]*fakeSubscription
	handlers map[store.Collection]func(store.Event)
	failures int
	attempts int
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{
		subs:     make(map[store.Collection][]*fakeSubscription),
		handlers: make(map[store.Collection]func(store.Event)),
	}
}

func (f *fakeSubscriber) Subscribe(_ context.Context, c store.Collection, handler func(store.Event)) (store.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("subscribe refused")
	}
	sub := newFakeSubscription()
	f.subs[c] = append(f.subs[c], sub)
	f.handlers[c] = handler
	return sub, nil
}

func (f *fakeSubscriber) subCount(c store.Collection) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs[c])
}

func (f *fakeSubscriber) emit(c store.Collection, ev store.Event) {
	f.mu.Lock()
	handler := f.handlers[c]
	f.mu.Unlock()
	handler(ev)
}

func (f *fakeSubscriber) latest(c store.Collection) *fakeSubscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	subs := f.subs[c]
	return subs[len(subs)-1]
}

func waitSignal(t *testing.T, ch chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for sink signal")
	}
}

func TestEventPolicyRouting(t *testing.T) {
	tests := []struct {
		name          string
		collection    store.Collection
		wantPrompts   int
		wantRefreshes int
	}{
		{"new post prompts", store.CollectionPosts, 1, 0},
		{"new profile prompts", store.CollectionProfiles, 1, 0},
		{"promotion change refreshes silently", store.CollectionPromoted, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := newRecordingSink()
			inv := New(newFakeSubscriber(), sink, MinDebounce, zerolog.Nop())

			inv.handleEvent(context.Background(), store.Event{
				Collection: tt.collection,
				Type:       store.EventInsert,
				ItemID:     "x1",
			})

			prompts, refreshes := sink.counts()
			if prompts != tt.wantPrompts || refreshes != tt.wantRefreshes {
				t.Errorf("prompts=%d refreshes=%d, want %d and %d",
					prompts, refreshes, tt.wantPrompts, tt.wantRefreshes)
			}
		})
	}
}

func TestDebounceDropsBurst(t *testing.T) {
	sink := newRecordingSink()
	inv := New(newFakeSubscriber(), sink, time.Hour, zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		inv.handleEvent(ctx, store.Event{Collection: store.CollectionPosts, Type: store.EventInsert})
	}

	prompts, _ := sink.counts()
	if prompts != 1 {
		t.Errorf("prompts = %d for a burst, want 1 per debounce window", prompts)
	}
}

func TestUpdatesDoNotPromptOrConsumeDebounce(t *testing.T) {
	sink := newRecordingSink()
	inv := New(newFakeSubscriber(), sink, time.Hour, zerolog.Nop())
	ctx := context.Background()

	// Counter write-backs echo as update events on the posts collection.
	// They must not prompt and must not burn the debounce token.
	for i := 0; i < 3; i++ {
		inv.handleEvent(ctx, store.Event{Collection: store.CollectionPosts, Type: store.EventUpdate, ItemID: "p1"})
	}
	inv.handleEvent(ctx, store.Event{Collection: store.CollectionProfiles, Type: store.EventUpdate, ItemID: "u1"})

	if prompts, refreshes := sink.counts(); prompts != 0 || refreshes != 0 {
		t.Fatalf("prompts=%d refreshes=%d after updates, want none", prompts, refreshes)
	}

	// A genuine insert afterwards still gets through.
	inv.handleEvent(ctx, store.Event{Collection: store.CollectionPosts, Type: store.EventInsert, ItemID: "p2"})
	if prompts, _ := sink.counts(); prompts != 1 {
		t.Errorf("prompts = %d after insert, want 1", prompts)
	}

	// Promotion activation arrives as an update and still refreshes hard.
	inv2 := New(newFakeSubscriber(), sink, time.Hour, zerolog.Nop())
	inv2.handleEvent(ctx, store.Event{Collection: store.CollectionPromoted, Type: store.EventUpdate, ItemID: "ad1"})
	if _, refreshes := sink.counts(); refreshes != 1 {
		t.Errorf("refreshes = %d after promotion update, want 1", refreshes)
	}
}

func TestDebounceFloor(t *testing.T) {
	inv := New(newFakeSubscriber(), newRecordingSink(), time.Millisecond, zerolog.Nop())

	if got, want := inv.limiter.Limit(), rate.Every(MinDebounce); got != want {
		t.Errorf("limiter rate = %v, want floor %v", got, want)
	}
}

func TestServeSubscribesAllCollections(t *testing.T) {
	subscriber := newFakeSubscriber()
	sink := newRecordingSink()
	inv := New(subscriber, sink, MinDebounce, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- inv.Serve(ctx) }()

	waitFor(t, func() bool {
		return subscriber.subCount(store.CollectionPosts) == 1 &&
			subscriber.subCount(store.CollectionPromoted) == 1 &&
			subscriber.subCount(store.CollectionProfiles) == 1
	})

	// Events flow through to the sink while serving.
	subscriber.emit(store.CollectionPosts, store.Event{Collection: store.CollectionPosts, Type: store.EventInsert})
	waitSignal(t, sink.signal)

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not stop on cancel")
	}
}

func TestServeResubscribesDroppedChannel(t *testing.T) {
	subscriber := newFakeSubscriber()
	inv := New(subscriber, newRecordingSink(), MinDebounce, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = inv.Serve(ctx) }()

	waitFor(t, func() bool { return subscriber.subCount(store.CollectionPosts) == 1 })

	subscriber.latest(store.CollectionPosts).drop(errors.New("connection reset"))

	waitFor(t, func() bool { return subscriber.subCount(store.CollectionPosts) == 2 })

	// The other collections keep their original subscriptions.
	if got := subscriber.subCount(store.CollectionPromoted); got != 1 {
		t.Errorf("promoted resubscribed %d times, want untouched", got)
	}
}

func TestSubscribeRetriesWithBackoff(t *testing.T) {
	subscriber := newFakeSubscriber()
	subscriber.failures = 2
	inv := New(subscriber, newRecordingSink(), MinDebounce, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan subscriptionDrop, 1)
	sub, err := inv.subscribeWithBackoff(ctx, store.CollectionPosts, errCh)
	if err != nil {
		t.Fatalf("subscribeWithBackoff: %v", err)
	}
	defer sub.Unsubscribe()

	subscriber.mu.Lock()
	attempts := subscriber.attempts
	subscriber.mu.Unlock()
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3 (two refusals then success)", attempts)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}
