// Drift Feed Engine - Personalized Feed Ranking and Delivery
// Copyright 2026 Drift Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftapp/feedengine

// Package supervisor builds the suture supervision tree that keeps the
// session manager, realtime services and HTTP server running with
// per-layer failure isolation.
package supervisor
