// Drift Feed Engine - Personalized Feed Ranking and Delivery
// Copyright 2026 Drift Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftapp/feedengine

// Package config loads and validates the engine's runtime configuration
// from struct defaults, an optional YAML file, and FEED_-prefixed
// environment variables, layered in that order.
package config
