// Drift Feed Engine - Personalized Feed Ranking and Delivery
// Copyright 2026 Drift Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftapp/feedengine

// Package api exposes the feed engine over HTTP. Sessions are addressed by
// the X-Session-ID header; the load endpoint mints one on first contact.
// All responses share a single JSON envelope with a status, optional data
// or error, and a timestamp.
package api
