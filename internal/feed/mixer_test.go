// Drift Feed Engine - Personalized Feed Ranking and Delivery
// Copyright 2026 Drift Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftapp/feedengine

package feed

import (
	"fmt"
	"testing"
)

func ranked(id, owner string, score float64) RankedItem {
	return RankedItem{
		Item:  FeedItem{ID: id, Kind: KindPost, OwnerID: owner},
		Score: ContentScore{ItemID: id, FinalScore: score},
	}
}

func rankedBatch(prefix string, n int, score float64) []RankedItem {
	out := make([]RankedItem, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, ranked(fmt.Sprintf("%s-%02d", prefix, i), prefix, score))
	}
	return out
}

func TestMixInjectionPositionsLowPattern(t *testing.T) {
	primary := rankedBatch("primary", 24, 80)
	secondary := []RankedItem{
		ranked("sec-0", "owner-a", 70),
		ranked("sec-1", "owner-b", 70),
		ranked("sec-2", "owner-c", 70),
	}

	out := NewMixer(0).Mix(primary, secondary, PatternLow)

	// Low engagement injects every 8th slot: output positions 8, 16, 24.
	wantSecondary := map[int]string{8: "sec-0", 16: "sec-1", 24: "sec-2"}
	for pos, id := range wantSecondary {
		if out[pos].Item.ID != id {
			t.Errorf("position %d = %s, want %s", pos, out[pos].Item.ID, id)
		}
	}
	if len(out) != 27 {
		t.Errorf("output length = %d, want 27", len(out))
	}
}

func TestMixIntervalPerPattern(t *testing.T) {
	tests := []struct {
		pattern EngagementPattern
		want    int
	}{
		{PatternHigh, 4},
		{PatternMedium, 6},
		{PatternLow, 8},
		{EngagementPattern("unknown"), 6},
	}
	for _, tt := range tests {
		if got := InjectionInterval(tt.pattern); got != tt.want {
			t.Errorf("InjectionInterval(%s) = %d, want %d", tt.pattern, got, tt.want)
		}
	}
}

func TestMixFirstInjectionAtInterval(t *testing.T) {
	primary := rankedBatch("primary", 10, 80)
	secondary := []RankedItem{ranked("sec-0", "owner-a", 70)}

	out := NewMixer(0).Mix(primary, secondary, PatternHigh)

	// No injection at position zero; the first eligible slot is position 4.
	if out[0].Item.ID != "primary-00" {
		t.Errorf("position 0 = %s, want primary-00", out[0].Item.ID)
	}
	if out[4].Item.ID != "sec-0" {
		t.Errorf("position 4 = %s, want sec-0", out[4].Item.ID)
	}
}

func TestMixOwnerRotation(t *testing.T) {
	primary := rankedBatch("primary", 40, 80)
	secondary := []RankedItem{
		ranked("a-0", "owner-a", 70),
		ranked("a-1", "owner-a", 70),
		ranked("a-2", "owner-a", 70),
		ranked("b-0", "owner-b", 70),
		ranked("c-0", "owner-c", 70),
	}

	out := NewMixer(0).Mix(primary, secondary, PatternHigh)

	var injected []string
	for _, it := range out {
		if it.Item.OwnerID != "primary" {
			injected = append(injected, it.Item.ID)
		}
	}

	// Round-robin across distinct owners before any owner repeats.
	want := []string{"a-0", "b-0", "c-0", "a-1", "a-2"}
	if len(injected) != len(want) {
		t.Fatalf("injected %v, want %v", injected, want)
	}
	for i := range want {
		if injected[i] != want[i] {
			t.Errorf("injection %d = %s, want %s", i, injected[i], want[i])
		}
	}
}

func TestMixQualityFloor(t *testing.T) {
	primary := rankedBatch("primary", 16, 80)
	secondary := []RankedItem{
		ranked("low", "owner-a", 20),
		ranked("at-floor", "owner-b", 30),
		ranked("good", "owner-c", 31),
	}

	out := NewMixer(30).Mix(primary, secondary, PatternHigh)

	for _, it := range out {
		switch it.Item.ID {
		case "low":
			t.Error("item below floor was injected")
		case "at-floor":
			t.Error("item exactly at floor was injected; floor is strict")
		}
	}

	found := false
	for _, it := range out {
		if it.Item.ID == "good" {
			found = true
		}
	}
	if !found {
		t.Error("item above floor missing from output")
	}
}

func TestMixFailedCandidateLeavesSlotEmpty(t *testing.T) {
	primary := rankedBatch("primary", 12, 80)
	secondary := []RankedItem{
		ranked("bad", "owner-a", 5),
		ranked("good", "owner-b", 70),
	}

	out := NewMixer(30).Mix(primary, secondary, PatternHigh)

	// The failed candidate is discarded; position 4 keeps primary content
	// and "good" lands at the next eligible slot.
	if out[4].Item.ID != "primary-04" {
		t.Errorf("position 4 = %s, want primary-04 (slot left empty)", out[4].Item.ID)
	}
	var goodPos int = -1
	for i, it := range out {
		if it.Item.ID == "good" {
			goodPos = i
		}
	}
	if goodPos != 8 {
		t.Errorf("good injected at %d, want 8", goodPos)
	}
}

func TestMixNoSecondary(t *testing.T) {
	primary := rankedBatch("primary", 5, 80)

	out := NewMixer(0).Mix(primary, nil, PatternMedium)
	if len(out) != 5 {
		t.Fatalf("output length = %d, want 5", len(out))
	}
	for i := range primary {
		if out[i].Item.ID != primary[i].Item.ID {
			t.Errorf("position %d = %s, want %s", i, out[i].Item.ID, primary[i].Item.ID)
		}
	}
}

func TestMixDrainsSecondaryAfterPrimaryExhausted(t *testing.T) {
	primary := rankedBatch("primary", 2, 80)
	secondary := []RankedItem{
		ranked("a-0", "owner-a", 70),
		ranked("b-0", "owner-b", 70),
		ranked("low", "owner-c", 10),
	}

	out := NewMixer(30).Mix(primary, secondary, PatternLow)

	if len(out) != 4 {
		t.Fatalf("output length = %d, want 4 (low-quality drain candidate dropped)", len(out))
	}
	if out[0].Item.ID != "primary-00" || out[1].Item.ID != "primary-01" {
		t.Error("primary ordering not preserved")
	}
}

func TestMixPreservesPrimaryOrder(t *testing.T) {
	primary := rankedBatch("primary", 20, 80)
	secondary := rankedBatch("sec", 3, 70)

	out := NewMixer(0).Mix(primary, secondary, PatternMedium)

	var got []string
	for _, it := range out {
		if it.Item.OwnerID == "primary" {
			got = append(got, it.Item.ID)
		}
	}
	for i := range got {
		if got[i] != primary[i].Item.ID {
			t.Fatalf("primary order broken at %d: %s", i, got[i])
		}
	}
}
