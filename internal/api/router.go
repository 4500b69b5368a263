// Drift Feed Engine - Personalized Feed Ranking and Delivery
// Copyright 2026 Drift Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftapp/feedengine

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/driftapp/feedengine/internal/config"
	"github.com/driftapp/feedengine/internal/middleware"
	"github.com/driftapp/feedengine/internal/websocket"
)

// Router assembles the HTTP surface.
type Router struct {
	handler *Handler
	hub     *websocket.Hub
	cfg     config.ServerConfig
}

// NewRouter creates a router over the given handler and websocket hub.
func NewRouter(handler *Handler, hub *websocket.Hub, cfg config.ServerConfig) *Router {
	return &Router{handler: handler, hub: hub, cfg: cfg}
}

// Setup builds the chi route tree with the global middleware stack.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Prometheus)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   router.cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", SessionHeader, "X-Request-ID"},
		ExposedHeaders:   []string{SessionHeader, "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})

	r.Route("/api/v1", func(r chi.Router) {
		if router.cfg.RateLimit > 0 {
			r.Use(httprate.Limit(
				router.cfg.RateLimit,
				router.cfg.RateWindow,
				httprate.WithKeyFuncs(httprate.KeyByIP),
			))
		}

		r.Route("/feed", func(r chi.Router) {
			r.Get("/", router.handler.FeedSnapshot)
			r.Post("/load", router.handler.FeedLoad)
			r.Post("/load-more", router.handler.FeedLoadMore)
			r.Post("/refresh", router.handler.FeedRefresh)
			r.Post("/interactions", router.handler.RecordInteraction)

			r.Route("/mutations", func(r chi.Router) {
				r.Post("/like", router.handler.MutateLike)
				r.Post("/share", router.handler.MutateShare)
				r.Post("/swipe", router.handler.MutateSwipe)
			})
		})

		r.Get("/ws", router.handler.ServeWS(router.hub))
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
