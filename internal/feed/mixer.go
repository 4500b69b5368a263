// Drift Feed Engine - Personalized Feed Ranking and Delivery
// Copyright 2026 Drift Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftapp/feedengine

package feed

// Canonical injection ratio set. Earlier experiments carried divergent
// per-surface ratios; these constants supersede them.
const (
	// Injection intervals: a secondary item is eligible every k-th output
	// slot, keyed on the viewer's engagement pattern.
	injectionIntervalHigh   = 4
	injectionIntervalMedium = 6
	injectionIntervalLow    = 8

	// DefaultQualityFloor is the minimum final score a secondary item
	// needs to be injected. Low-quality background content is never
	// forced into the stream merely to fill a slot.
	DefaultQualityFloor = 30.0
)

// Mixer interleaves a ranked primary stream with a secondary/background
// stream, honoring injection ratios and per-owner rotation fairness.
type Mixer struct {
	qualityFloor float64
}

// NewMixer creates a mixer with the given quality floor. A zero or negative
// floor falls back to DefaultQualityFloor.
func NewMixer(qualityFloor float64) *Mixer {
	if qualityFloor <= 0 {
		qualityFloor = DefaultQualityFloor
	}
	return &Mixer{qualityFloor: qualityFloor}
}

// InjectionInterval returns the eligible-slot spacing for a pattern.
func InjectionInterval(pattern EngagementPattern) int {
	switch pattern {
	case PatternHigh:
		return injectionIntervalHigh
	case PatternLow:
		return injectionIntervalLow
	default:
		return injectionIntervalMedium
	}
}

// ownerQueue is a FIFO of one owner's secondary candidates.
type ownerQueue struct {
	owner string
	items []RankedItem
}

// Mix walks the already-ranked primary list and splices in one secondary
// item at every k-th output slot, where k depends on the engagement pattern.
// Secondary candidates are drawn round-robin across distinct owners so one
// creator cannot monopolize injected slots. A candidate below the quality
// floor is discarded and its slot stays uninjected; the next candidate is
// tried at the following eligible slot. Primary ordering is preserved for
// non-injected positions. When primary is exhausted, remaining qualifying
// secondary items are appended.
func (m *Mixer) Mix(primary, secondary []RankedItem, pattern EngagementPattern) []RankedItem {
	if len(secondary) == 0 {
		return append([]RankedItem(nil), primary...)
	}

	interval := InjectionInterval(pattern)
	ring := groupByOwner(secondary)

	out := make([]RankedItem, 0, len(primary)+len(secondary))
	for _, p := range primary {
		if len(out) > 0 && len(out)%interval == 0 && len(ring) > 0 {
			if item, ok := nextSecondary(&ring, m.qualityFloor); ok {
				out = append(out, item)
			}
		}
		out = append(out, p)
	}

	// Primary exhausted: drain remaining qualifying secondary in rotation.
	for len(ring) > 0 {
		if item, ok := nextSecondary(&ring, m.qualityFloor); ok {
			out = append(out, item)
		}
	}

	return out
}

// groupByOwner builds the rotation ring: one queue per distinct owner, in
// order of first appearance, each queue preserving the ranked order.
func groupByOwner(items []RankedItem) []*ownerQueue {
	index := make(map[string]*ownerQueue)
	ring := make([]*ownerQueue, 0)
	for _, it := range items {
		q, ok := index[it.Item.OwnerID]
		if !ok {
			q = &ownerQueue{owner: it.Item.OwnerID}
			index[it.Item.OwnerID] = q
			ring = append(ring, q)
		}
		q.items = append(q.items, it)
	}
	return ring
}

// nextSecondary pops the head candidate of the front owner and rotates the
// ring. It reports whether the candidate passed the quality floor; a failed
// candidate is discarded without filling the slot.
func nextSecondary(ring *[]*ownerQueue, floor float64) (RankedItem, bool) {
	q := (*ring)[0]
	item := q.items[0]
	q.items = q.items[1:]

	// Rotate; drop owners with no remaining candidates.
	*ring = (*ring)[1:]
	if len(q.items) > 0 {
		*ring = append(*ring, q)
	}

	if item.Score.FinalScore > floor {
		return item, true
	}
	return RankedItem{}, false
}
