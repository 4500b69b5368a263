// Drift Feed Engine - Personalized Feed Ranking and Delivery
// Copyright 2026 Drift Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftapp/feedengine

package feed

import (
	"sync"
	"time"
)

// Behavior tracking constants.
const (
	// behaviorWindow bounds how long a rolling window accumulates before
	// counters are zeroed. Bounds memory and prevents permanent skew from
	// a single burst of activity.
	behaviorWindow = 5 * time.Minute

	// Engagement-rate thresholds for pattern classification.
	highEngagementRate = 0.3
	lowEngagementRate  = 0.1

	// preferredKindThreshold is how many engagements with a kind, within
	// one window, mark it as preferred.
	preferredKindThreshold = 3
)

// Adaptive refresh cadence tiers, keyed on time since last activity.
const (
	refreshActive    = 15 * time.Second
	refreshRecent    = 30 * time.Second
	refreshIdle      = 60 * time.Second
	activeThreshold  = 60 * time.Second
	recentThreshold  = 5 * time.Minute
)

// BehaviorTracker consumes interaction events and maintains a rolling profile
// of the viewer's engagement pattern and scroll cadence. It is the single
// source of cadence truth: components wanting a refresh interval ask it
// rather than running their own timers.
//
// Safe for concurrent use.
type BehaviorTracker struct {
	mu    sync.Mutex
	clock func() time.Time

	windowStart time.Time
	postsViewed int
	engagements int
	kindCounts  map[Kind]int

	lastActiveAt time.Time
}

// NewBehaviorTracker creates a tracker with neutral defaults.
func NewBehaviorTracker() *BehaviorTracker {
	return newBehaviorTracker(time.Now)
}

// newBehaviorTracker allows an injected clock for tests.
func newBehaviorTracker(clock func() time.Time) *BehaviorTracker {
	now := clock()
	return &BehaviorTracker{
		clock:       clock,
		windowStart: now,
		kindCounts:  make(map[Kind]int),
	}
}

// RecordInteraction folds one event into the rolling window.
// It never blocks and never fails.
func (t *BehaviorTracker) RecordInteraction(ev InteractionEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock()
	t.resetIfStale(now)
	t.lastActiveAt = now

	switch {
	case ev.Kind == InteractionView:
		t.postsViewed++
	case ev.Kind.IsEngagement():
		t.engagements++
		if ev.ItemKind != "" {
			t.kindCounts[ev.ItemKind]++
		}
	}
}

// Profile returns a snapshot of the current behavior profile.
func (t *BehaviorTracker) Profile() *BehaviorProfile {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock()
	t.resetIfStale(now)

	profile := &BehaviorProfile{
		Pattern:        t.patternLocked(),
		PreferredKinds: make(map[Kind]struct{}, len(t.kindCounts)),
		LastActiveAt:   t.lastActiveAt,
	}

	if t.postsViewed > 0 {
		elapsed := now.Sub(t.windowStart)
		profile.AvgScrollInterval = elapsed / time.Duration(t.postsViewed)
	}

	for kind, count := range t.kindCounts {
		if count >= preferredKindThreshold {
			profile.PreferredKinds[kind] = struct{}{}
		}
	}

	return profile
}

// RecommendedRefreshInterval returns the advisory refresh cadence based on
// how recently the viewer was active. The controller is free to ignore it
// under backoff conditions.
func (t *BehaviorTracker) RecommendedRefreshInterval() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.lastActiveAt.IsZero() {
		return refreshIdle
	}

	idle := t.clock().Sub(t.lastActiveAt)
	switch {
	case idle <= activeThreshold:
		return refreshActive
	case idle <= recentThreshold:
		return refreshRecent
	default:
		return refreshIdle
	}
}

// patternLocked classifies the engagement pattern from the current window.
// Callers must hold mu.
func (t *BehaviorTracker) patternLocked() EngagementPattern {
	if t.postsViewed == 0 {
		return PatternMedium
	}
	rate := float64(t.engagements) / float64(t.postsViewed)
	switch {
	case rate > highEngagementRate:
		return PatternHigh
	case rate < lowEngagementRate:
		return PatternLow
	default:
		return PatternMedium
	}
}

// resetIfStale zeroes the window once it exceeds behaviorWindow.
// Callers must hold mu.
func (t *BehaviorTracker) resetIfStale(now time.Time) {
	if now.Sub(t.windowStart) < behaviorWindow {
		return
	}
	t.windowStart = now
	t.postsViewed = 0
	t.engagements = 0
	t.kindCounts = make(map[Kind]int)
}
