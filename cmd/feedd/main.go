// Drift Feed Engine - Personalized Feed Ranking and Delivery
// Copyright 2026 Drift Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftapp/feedengine

// Package main is the entry point for the Drift feed engine daemon.
//
// The daemon assembles the full delivery pipeline: content sources backed
// by the store, per-session ranking and mixing, optimistic mutations,
// realtime invalidation over store change events, and the HTTP/websocket
// surface. Components run under a suture supervision tree with per-layer
// failure isolation.
//
// Configuration is loaded via koanf with layered sources (highest wins):
// FEED_-prefixed environment variables, an optional YAML file found via
// FEED_CONFIG_PATH, then built-in defaults.
//
// With nats.url set, store change events are consumed from NATS subjects
// under nats.subject_prefix. Without it the daemon runs standalone on the
// in-memory store's own event stream, which is the development setup.
//
// Shutdown on SIGINT or SIGTERM is graceful: the HTTP listener drains
// in-flight requests, websocket clients receive close frames, and pending
// mutation writes are given time to settle.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"

	"github.com/driftapp/feedengine/internal/api"
	"github.com/driftapp/feedengine/internal/config"
	"github.com/driftapp/feedengine/internal/engine"
	"github.com/driftapp/feedengine/internal/feedcache"
	"github.com/driftapp/feedengine/internal/logging"
	"github.com/driftapp/feedengine/internal/realtime"
	"github.com/driftapp/feedengine/internal/store"
	"github.com/driftapp/feedengine/internal/store/natsbridge"
	"github.com/driftapp/feedengine/internal/supervisor"
	"github.com/driftapp/feedengine/internal/supervisor/services"
	ws "github.com/driftapp/feedengine/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: cfg.Logging.Timestamp,
	})
	logger := logging.Logger()

	logging.Info().
		Int("port", cfg.Server.Port).
		Int("page_size", cfg.Feed.PageSize).
		Bool("nats", cfg.NATS.URL != "").
		Msg("starting drift feed engine")

	memStore := store.NewMemStore()

	// Change events come from NATS when configured, otherwise from the
	// in-memory store's own synchronous event stream.
	var subscriber store.Subscriber = memStore
	if cfg.NATS.URL != "" {
		conn, err := nats.Connect(cfg.NATS.URL,
			nats.MaxReconnects(-1),
			nats.Name("feedengine"),
		)
		if err != nil {
			logging.Fatal().Err(err).Str("url", cfg.NATS.URL).Msg("failed to connect to NATS")
		}
		defer conn.Close()
		subscriber = natsbridge.New(conn, cfg.NATS.SubjectPrefix, logger)
		logging.Info().Str("url", cfg.NATS.URL).Msg("consuming change events from NATS")
	}

	hub := ws.NewHub()
	cache := feedcache.New(cfg.Feed.CacheTTL)

	manager := engine.NewManager(engine.ManagerConfig{
		Lister: memStore,
		Writer: memStore,
		NotifierFor: func(sessionID string) store.Notifier {
			return ws.NewSessionNotifier(hub, sessionID)
		},
		Cache:         cache,
		SourceTimeout: cfg.Feed.SourceTimeout,
		PageSize:      cfg.Feed.PageSize,
		QualityFloor:  cfg.Feed.QualityFloor,
		SessionTTL:    cfg.Feed.SessionTTL,
		Quota: engine.StaticQuota{
			SwipesRemaining:     cfg.Feed.SwipeQuota,
			SuperLikesRemaining: cfg.Feed.SuperLikeQuota,
		},
	}, logger)

	router := api.NewRouter(api.NewHandler(manager), hub, cfg.Server)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	tree := supervisor.NewTree(logger, supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})

	tree.AddSessionService(manager)
	if cfg.Feed.AutoRefresh {
		tree.AddSessionService(services.NewRefreshService(manager, services.RefreshServiceConfig{
			PollInterval: cfg.Feed.RefreshInterval,
		}, logger))
	}

	if cfg.Realtime.Enabled {
		tree.AddRealtimeService(hub)
		tree.AddRealtimeService(realtime.New(subscriber, manager, cfg.Realtime.Debounce, logger))
	}

	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().Str("addr", server.Addr).Msg("feed engine ready")
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("supervisor tree exited")
		os.Exit(1)
	}

	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("service did not stop within timeout")
		}
	}
	logging.Info().Msg("feed engine stopped")
}
