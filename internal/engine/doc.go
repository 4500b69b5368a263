// Drift Feed Engine - Personalized Feed Ranking and Delivery
// Copyright 2026 Drift Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftapp/feedengine

// Package engine orchestrates the feed pipeline: parallel source fetches
// through the TTL cache, deterministic scoring, primary/secondary mixing,
// pagination with cross-page deduplication, optimistic mutations, and the
// adaptive refresh cadence, all behind a small per-session state machine.
//
// The controller serializes load, load-more and refresh; the only true
// parallel fan-out is the three source fetches inside one page load. A
// generation counter supersedes in-flight work when a refresh lands, so
// stale results are discarded rather than applied.
package engine
