// Drift Feed Engine - Personalized Feed Ranking and Delivery
// Copyright 2026 Drift Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftapp/feedengine

// Package feed holds the pure domain core of the feed engine: the item
// model, deterministic multi-factor scoring, the rolling behavior tracker,
// and the primary/secondary content mixer.
//
// Nothing in this package performs I/O. Scoring is a pure function of
// (item, now, profile); the mixer is a pure function of its inputs plus a
// configured quality floor. This keeps the ranking core trivially testable
// with injected clocks and fixed fixtures.
package feed
