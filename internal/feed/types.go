// Drift Feed Engine - Personalized Feed Ranking and Delivery
// Copyright 2026 Drift Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftapp/feedengine

package feed

import (
	"time"
)

// Kind identifies which backing collection a feed item came from.
type Kind string

const (
	// KindPost is a regular social post.
	KindPost Kind = "post"
	// KindPromoted is sponsored or promotable content.
	KindPromoted Kind = "promoted"
	// KindProfile is a discovery candidate profile.
	KindProfile Kind = "profile"
)

// Kinds lists all feed item kinds in fetch order.
func Kinds() []Kind {
	return []Kind{KindPost, KindPromoted, KindProfile}
}

// FeedItem is the tagged union over posts, promoted content and discovery
// profiles. Exactly one of Post, Promoted or Profile is non-nil, matching Kind.
// All fields are immutable after fetch except the counters and the Liked/Passed
// local flags, which are owned by the mutation coordinator.
type FeedItem struct {
	// ID is an opaque identifier, globally unique within its source collection.
	ID string `json:"id"`

	// Kind is the source collection the item belongs to.
	Kind Kind `json:"kind"`

	// OwnerID identifies the attributed creator or profile.
	// Used for rotation fairness when injecting secondary content.
	OwnerID string `json:"owner_id"`

	// CreatedAt is when the item was created in its source collection.
	CreatedAt time.Time `json:"created_at"`

	// Engagement counters, all non-negative.
	ViewCount    int `json:"view_count"`
	LikeCount    int `json:"like_count"`
	ShareCount   int `json:"share_count"`
	CommentCount int `json:"comment_count"`

	// IsPromoted marks items surfaced through a paid placement.
	IsPromoted bool `json:"is_promoted"`

	// Kind-specific payloads.
	Post     *PostDetails     `json:"post,omitempty"`
	Promoted *PromotedDetails `json:"promoted,omitempty"`
	Profile  *ProfileDetails  `json:"profile,omitempty"`

	// Liked and Passed are session-local flags set optimistically by the
	// mutation coordinator. They are never read back from the store.
	Liked  bool `json:"liked"`
	Passed bool `json:"passed"`
}

// PostDetails carries the post-specific payload.
type PostDetails struct {
	Body     string `json:"body"`
	MediaURL string `json:"media_url,omitempty"`
}

// PromotedDetails carries the sponsored-content payload.
type PromotedDetails struct {
	CampaignID  string    `json:"campaign_id"`
	Active      bool      `json:"active"`
	ActiveUntil time.Time `json:"active_until,omitempty"`
}

// ProfileDetails carries the discovery-profile payload.
type ProfileDetails struct {
	DisplayName string `json:"display_name"`
	Age         int    `json:"age,omitempty"`
	Bio         string `json:"bio,omitempty"`

	// Compatibility is an externally computed match signal in [0,1].
	// It is an input to scoring, never invented at call time.
	Compatibility float64 `json:"compatibility,omitempty"`
}

// ContentScore is the multi-factor relevance breakdown for one item.
// Derived on every scoring pass, never persisted.
type ContentScore struct {
	ItemID            string  `json:"item_id"`
	EngagementScore   float64 `json:"engagement_score"`
	FreshnessScore    float64 `json:"freshness_score"`
	DiversityScore    float64 `json:"diversity_score"`
	PersonalizedScore float64 `json:"personalized_score"`
	FinalScore        float64 `json:"final_score"`
}

// RankedItem pairs a feed item with its score for a single scoring pass.
type RankedItem struct {
	Item  FeedItem     `json:"item"`
	Score ContentScore `json:"score"`
}

// Page is one fetched slice of the feed.
type Page struct {
	// Items carries no duplicate IDs within the page.
	Items []FeedItem `json:"items"`

	// Cursor is the opaque continuation token, empty when exhausted.
	Cursor string `json:"cursor,omitempty"`

	// FetchedAt is when the page was fetched from the source.
	FetchedAt time.Time `json:"fetched_at"`
}

// EngagementPattern classifies the viewer's observed engagement rate.
type EngagementPattern string

const (
	// PatternHigh indicates an engagement rate above 0.3.
	PatternHigh EngagementPattern = "high"
	// PatternMedium indicates an engagement rate between 0.1 and 0.3.
	PatternMedium EngagementPattern = "medium"
	// PatternLow indicates an engagement rate below 0.1.
	PatternLow EngagementPattern = "low"
)

// BehaviorProfile is the rolling, process-scoped profile of one viewer
// session. Created with neutral defaults, mutated by every recorded
// interaction, reset periodically to prevent stale drift.
type BehaviorProfile struct {
	// AvgScrollInterval is the mean time between viewed items in the
	// current window.
	AvgScrollInterval time.Duration `json:"avg_scroll_interval"`

	// Pattern is the engagement classification for the current window.
	Pattern EngagementPattern `json:"pattern"`

	// PreferredKinds is the set of content kinds the viewer engages with.
	PreferredKinds map[Kind]struct{} `json:"-"`

	// LastActiveAt is when the viewer last produced any interaction.
	LastActiveAt time.Time `json:"last_active_at"`
}

// Prefers reports whether the given kind is in the preferred set.
func (p *BehaviorProfile) Prefers(kind Kind) bool {
	if p == nil || p.PreferredKinds == nil {
		return false
	}
	_, ok := p.PreferredKinds[kind]
	return ok
}

// InteractionKind classifies a recorded viewer interaction.
type InteractionKind string

const (
	InteractionView    InteractionKind = "view"
	InteractionLike    InteractionKind = "like"
	InteractionShare   InteractionKind = "share"
	InteractionComment InteractionKind = "comment"
	InteractionSkip    InteractionKind = "skip"
)

// IsEngagement reports whether the interaction counts toward the
// engagement rate. Views establish the denominator; skips are neutral.
func (k InteractionKind) IsEngagement() bool {
	switch k {
	case InteractionLike, InteractionShare, InteractionComment:
		return true
	default:
		return false
	}
}

// InteractionEvent is one append-only, ephemeral interaction record.
type InteractionEvent struct {
	ItemID   string          `json:"item_id"`
	ItemKind Kind            `json:"item_kind,omitempty"`
	Kind     InteractionKind `json:"kind"`

	// Duration is how long the item was on screen, when known.
	Duration time.Duration `json:"duration_ms,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
}

// MutationKind classifies an optimistic user action.
type MutationKind string

const (
	MutationLike  MutationKind = "like"
	MutationShare MutationKind = "share"
	MutationPass  MutationKind = "pass"
)

// PendingMutation tracks one optimistically applied action until its remote
// write settles. On commit it is dropped; on failure the in-memory effect is
// reverted exactly and the entry discarded.
type PendingMutation struct {
	ID        string       `json:"id"`
	ItemID    string       `json:"item_id"`
	Kind      MutationKind `json:"kind"`
	AppliedAt time.Time    `json:"applied_at"`
	Committed bool         `json:"committed"`
}
