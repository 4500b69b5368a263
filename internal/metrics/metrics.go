// Drift Feed Engine - Personalized Feed Ranking and Delivery
// Copyright 2026 Drift Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftapp/feedengine

// Package metrics provides Prometheus instrumentation for the feed engine:
// page load latency and outcomes, per-source failures, cache efficiency,
// mutation rollbacks, and websocket connections.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PageLoadDuration tracks end-to-end page load latency per operation.
	PageLoadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "feed_page_load_duration_seconds",
			Help:    "Duration of feed page loads in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"}, // "load", "load_more", "refresh"
	)

	// PageLoads counts page load outcomes per operation.
	PageLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_page_loads_total",
			Help: "Total number of feed page load attempts",
		},
		[]string{"operation", "result"}, // result: "ok", "partial", "error"
	)

	// SourceFetchFailures counts per-source fetch failures and timeouts.
	SourceFetchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_source_fetch_failures_total",
			Help: "Total number of failed or timed-out source fetches",
		},
		[]string{"source"},
	)

	// CacheHits counts page cache hits.
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feed_cache_hits_total",
			Help: "Total number of feed page cache hits",
		},
	)

	// CacheMisses counts page cache misses, including expired reads.
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feed_cache_misses_total",
			Help: "Total number of feed page cache misses",
		},
	)

	// Mutations counts optimistic mutations per kind and outcome.
	Mutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_mutations_total",
			Help: "Total number of optimistic mutations",
		},
		[]string{"kind", "result"}, // result: "committed", "rolled_back", "quota_rejected"
	)

	// RealtimeRefreshes counts invalidator-triggered refreshes per policy.
	RealtimeRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_realtime_refreshes_total",
			Help: "Total number of realtime-triggered refreshes",
		},
		[]string{"policy"}, // "soft", "hard", "debounced"
	)

	// WebsocketClients tracks currently connected websocket clients.
	WebsocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "feed_websocket_clients",
			Help: "Current number of connected websocket clients",
		},
	)

	// ActiveSessions tracks live feed sessions.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "feed_active_sessions",
			Help: "Current number of active feed sessions",
		},
	)

	// HTTPRequestDuration tracks API request latency per route and status.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "feed_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	// HTTPActiveRequests tracks in-flight HTTP requests.
	HTTPActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "feed_http_active_requests",
			Help: "Current number of in-flight HTTP requests",
		},
	)
)
