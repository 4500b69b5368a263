// Drift Feed Engine - Personalized Feed Ranking and Delivery
// Copyright 2026 Drift Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftapp/feedengine

package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/driftapp/feedengine/internal/feed"
	"github.com/driftapp/feedengine/internal/feedcache"
	"github.com/driftapp/feedengine/internal/mutation"
	"github.com/driftapp/feedengine/internal/store"
)

// sessionNotices records notices per session for NotifierFor assertions.
type sessionNotices struct {
	mu      sync.Mutex
	notices map[string][]store.NoticeKind
}

func newSessionNotices() *sessionNotices {
	return &sessionNotices{notices: make(map[string][]store.NoticeKind)}
}

func (n *sessionNotices) notifierFor(sessionID string) store.Notifier {
	return notifierFunc(func(_ string, kind store.NoticeKind) {
		n.mu.Lock()
		defer n.mu.Unlock()
		n.notices[sessionID] = append(n.notices[sessionID], kind)
	})
}

func (n *sessionNotices) kinds(sessionID string) []store.NoticeKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]store.NoticeKind(nil), n.notices[sessionID]...)
}

// notifierFunc adapts a function to store.Notifier.
type notifierFunc func(string, store.NoticeKind)

func (f notifierFunc) Notify(message string, kind store.NoticeKind) { f(message, kind) }

func newTestManager(t *testing.T, lister store.Lister, notifierFor func(string) store.Notifier) *Manager {
	t.Helper()
	return NewManager(ManagerConfig{
		Lister:      lister,
		Writer:      &nopWriter{},
		NotifierFor: notifierFor,
		Cache:       feedcache.New(time.Minute),
		PageSize:    2,
		SessionTTL:  30 * time.Minute,
		Quota:       StaticQuota{SwipesRemaining: 10, SuperLikesRemaining: 5},
	}, zerolog.Nop())
}

func seededLister() *scriptedLister {
	lister := newScriptedLister()
	lister.set(store.CollectionPosts, "", store.ListResult{
		Items: []feed.FeedItem{freshPost("p1"), freshPost("p2")}, NextCursor: "c1",
	})
	return lister
}

func TestGetOrCreateReusesSession(t *testing.T) {
	m := newTestManager(t, seededLister(), nil)
	ctx := context.Background()

	first, err := m.GetOrCreate(ctx, "s1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	second, err := m.GetOrCreate(ctx, "s1")
	if err != nil {
		t.Fatalf("GetOrCreate again: %v", err)
	}
	if first != second {
		t.Error("same id must return the same session")
	}

	other, err := m.GetOrCreate(ctx, "s2")
	if err != nil {
		t.Fatalf("GetOrCreate s2: %v", err)
	}
	if other == first {
		t.Error("distinct ids must get distinct sessions")
	}
	if len(m.Sessions()) != 2 {
		t.Errorf("active sessions = %d, want 2", len(m.Sessions()))
	}
}

func TestGetOrCreateTouchesLastSeen(t *testing.T) {
	m := newTestManager(t, seededLister(), nil)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.clock = func() time.Time { return base }

	s, err := m.GetOrCreate(context.Background(), "s1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if !s.LastSeen().Equal(base) {
		t.Errorf("LastSeen = %v, want creation time", s.LastSeen())
	}

	later := base.Add(10 * time.Minute)
	m.clock = func() time.Time { return later }
	if _, err := m.GetOrCreate(context.Background(), "s1"); err != nil {
		t.Fatalf("GetOrCreate again: %v", err)
	}
	if !s.LastSeen().Equal(later) {
		t.Errorf("LastSeen = %v after reuse, want %v", s.LastSeen(), later)
	}
}

func TestGetOrCreateQuotaFailure(t *testing.T) {
	m := newTestManager(t, seededLister(), nil)
	quotaErr := errors.New("quota service down")
	m.quota = quotaFunc(func(context.Context, string) (mutation.Quota, error) {
		return mutation.Quota{}, quotaErr
	})

	if _, err := m.GetOrCreate(context.Background(), "s1"); !errors.Is(err, quotaErr) {
		t.Fatalf("err = %v, want quota failure", err)
	}
	if len(m.Sessions()) != 0 {
		t.Error("failed creation must not register a session")
	}
}

// quotaFunc adapts a function to QuotaProvider.
type quotaFunc func(context.Context, string) (mutation.Quota, error)

func (f quotaFunc) FetchQuota(ctx context.Context, id string) (mutation.Quota, error) {
	return f(ctx, id)
}

func TestSweepEvictsExpiredSessions(t *testing.T) {
	m := newTestManager(t, seededLister(), nil)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.clock = func() time.Time { return base }
	ctx := context.Background()

	if _, err := m.GetOrCreate(ctx, "stale"); err != nil {
		t.Fatalf("GetOrCreate stale: %v", err)
	}
	if _, err := m.GetOrCreate(ctx, "fresh"); err != nil {
		t.Fatalf("GetOrCreate fresh: %v", err)
	}

	// Only the fresh session is touched past the TTL horizon.
	later := base.Add(31 * time.Minute)
	m.clock = func() time.Time { return later }
	if _, err := m.GetOrCreate(ctx, "fresh"); err != nil {
		t.Fatalf("touch fresh: %v", err)
	}

	m.sweep()

	if _, ok := m.Get("stale"); ok {
		t.Error("stale session must be swept")
	}
	if _, ok := m.Get("fresh"); !ok {
		t.Error("fresh session must survive the sweep")
	}
}

func TestPromptNewContentReachesEverySession(t *testing.T) {
	notices := newSessionNotices()
	m := newTestManager(t, seededLister(), notices.notifierFor)
	ctx := context.Background()

	for _, id := range []string{"s1", "s2"} {
		if _, err := m.GetOrCreate(ctx, id); err != nil {
			t.Fatalf("GetOrCreate %s: %v", id, err)
		}
	}

	m.PromptNewContent()

	for _, id := range []string{"s1", "s2"} {
		kinds := notices.kinds(id)
		if len(kinds) != 1 || kinds[0] != store.NoticeNewContent {
			t.Errorf("session %s notices = %v, want one new_content", id, kinds)
		}
	}
}

func TestSilentRefreshOnlyReadySessions(t *testing.T) {
	lister := seededLister()
	m := newTestManager(t, lister, nil)
	ctx := context.Background()

	ready, err := m.GetOrCreate(ctx, "ready")
	if err != nil {
		t.Fatalf("GetOrCreate ready: %v", err)
	}
	if err := ready.Controller.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	idle, err := m.GetOrCreate(ctx, "idle")
	if err != nil {
		t.Fatalf("GetOrCreate idle: %v", err)
	}

	before := ready.Controller.Snapshot().UpdatedAt
	m.SilentRefresh(ctx)

	waitForCond(t, func() bool {
		snap := ready.Controller.Snapshot()
		return snap.State == StateReady && snap.UpdatedAt.After(before)
	})
	if got := idle.Controller.State(); got != StateIdle {
		t.Errorf("idle session state = %s after silent refresh, want untouched", got)
	}
}

func TestAutoRefreshSweepHonorsCadence(t *testing.T) {
	lister := seededLister()
	m := newTestManager(t, lister, nil)
	ctx := context.Background()

	s, err := m.GetOrCreate(ctx, "s1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if err := s.Controller.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}

	before := s.Controller.Snapshot().UpdatedAt
	now := time.Now().Add(time.Hour)
	m.AutoRefreshSweep(ctx, now)

	waitForCond(t, func() bool {
		snap := s.Controller.Snapshot()
		return snap.State == StateReady && snap.UpdatedAt.After(before)
	})

	// The slot is claimed: an immediate second sweep at the same instant
	// does not refresh again.
	if s.AutoRefreshDue(now) {
		t.Error("cadence slot must be claimed by the first sweep")
	}
}

func waitForCond(t *testing.T, cond func() bool) {
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
