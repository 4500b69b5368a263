// Drift Feed Engine - Personalized Feed Ranking and Delivery
// Copyright 2026 Drift Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftapp/feedengine

// Package middleware provides HTTP middleware shared across the API:
// request ID propagation and Prometheus request instrumentation.
package middleware
