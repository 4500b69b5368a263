// Drift Feed Engine - Personalized Feed Ranking and Delivery
// Copyright 2026 Drift Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftapp/feedengine

package feed

import (
	"sort"
	"time"
)

// Scoring weights and bounds. The final score is a fixed-weight blend of the
// four component scores; weights sum to 1.0.
const (
	weightEngagement   = 0.3
	weightFreshness    = 0.4
	weightDiversity    = 0.2
	weightPersonalized = 0.1

	// engagementCap bounds the engagement component.
	engagementCap = 100.0

	// freshnessHorizonDays is the linear decay horizon. Items older than
	// this score zero freshness but remain rankable.
	freshnessHorizonDays = 100.0

	// Diversity rewards kinds outside the viewer's preferred set.
	diversityNovel    = 100.0
	diversityFamiliar = 50.0

	// Personalization starts from a neutral base and adds a fraction of
	// the component matching the viewer's engagement pattern.
	personalizedBase  = 50.0
	personalizedBoost = 0.3
)

// Counter weights for the engagement component.
const (
	likeWeight    = 1.0
	commentWeight = 3.0
	shareWeight   = 5.0
	viewWeight    = 0.1
)

// Score computes the multi-factor relevance score for one item.
// It is a pure function of its inputs: no hidden state, deterministic, and
// safe for per-(item, time-bucket) caching. A nil profile scores with neutral
// diversity and personalization.
func Score(item *FeedItem, now time.Time, profile *BehaviorProfile) ContentScore {
	engagement := engagementScore(item)
	freshness := freshnessScore(item, now)

	diversity := diversityNovel
	if profile.Prefers(item.Kind) {
		diversity = diversityFamiliar
	}

	personalized := personalizedBase
	if profile != nil {
		switch profile.Pattern {
		case PatternHigh:
			personalized += engagement * personalizedBoost
		case PatternLow:
			personalized += freshness * personalizedBoost
		}
	}

	final := engagement*weightEngagement +
		freshness*weightFreshness +
		diversity*weightDiversity +
		personalized*weightPersonalized

	return ContentScore{
		ItemID:            item.ID,
		EngagementScore:   engagement,
		FreshnessScore:    freshness,
		DiversityScore:    diversity,
		PersonalizedScore: personalized,
		FinalScore:        final,
	}
}

// engagementScore blends the interaction counters, capped at engagementCap.
// Items with no counters at all score zero here and rank on freshness and
// diversity alone.
func engagementScore(item *FeedItem) float64 {
	raw := float64(item.LikeCount)*likeWeight +
		float64(item.CommentCount)*commentWeight +
		float64(item.ShareCount)*shareWeight +
		float64(item.ViewCount)*viewWeight
	if raw > engagementCap {
		return engagementCap
	}
	return raw
}

// freshnessScore decays linearly from 100 to 0 over the decay horizon and is
// clamped at both ends: never negative for old items, never above 100 for
// items stamped in the future.
func freshnessScore(item *FeedItem, now time.Time) float64 {
	ageDays := now.Sub(item.CreatedAt).Hours() / 24.0
	if ageDays < 0 {
		ageDays = 0
	}
	score := freshnessHorizonDays - ageDays
	if score < 0 {
		return 0
	}
	return score
}

// Rank scores every candidate and returns them in descending final-score
// order. The ordering is total: ties break by CreatedAt descending, then by
// ID for full determinism. Items past the decay horizon are never excluded,
// only ranked low.
func Rank(items []FeedItem, now time.Time, profile *BehaviorProfile) []RankedItem {
	ranked := make([]RankedItem, 0, len(items))
	for i := range items {
		ranked = append(ranked, RankedItem{
			Item:  items[i],
			Score: Score(&items[i], now, profile),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score.FinalScore != ranked[j].Score.FinalScore {
			return ranked[i].Score.FinalScore > ranked[j].Score.FinalScore
		}
		if !ranked[i].Item.CreatedAt.Equal(ranked[j].Item.CreatedAt) {
			return ranked[i].Item.CreatedAt.After(ranked[j].Item.CreatedAt)
		}
		return ranked[i].Item.ID < ranked[j].Item.ID
	})

	return ranked
}
