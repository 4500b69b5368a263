// Drift Feed Engine - Personalized Feed Ranking and Delivery
// Copyright 2026 Drift Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftapp/feedengine

package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// AutoRefresher sweeps sessions whose background-refresh cadence has
// elapsed. Satisfied by the engine's session manager.
type AutoRefresher interface {
	AutoRefreshSweep(ctx context.Context, now time.Time)
}

// RefreshServiceConfig holds the auto-refresh poller configuration.
type RefreshServiceConfig struct {
	// PollInterval is how often eligible sessions are checked. It bounds
	// how precisely per-session refresh cadences are honored, so it should
	// be well under the shortest cadence.
	PollInterval time.Duration
}

// RefreshService drives adaptive background refreshes. Each session's own
// behavior tracker decides its cadence; this service only supplies the
// clock ticks.
type RefreshService struct {
	refresher AutoRefresher
	config    RefreshServiceConfig
	logger    zerolog.Logger
}

// NewRefreshService creates the auto-refresh poller.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewRefreshService(refresher AutoRefresher, cfg RefreshServiceConfig, logger zerolog.Logger) *RefreshService {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	return &RefreshService{
		refresher: refresher,
		config:    cfg,
		logger:    logger.With().Str("service", "auto-refresh").Logger(),
	}
}

// Serve implements suture.Service.
func (s *RefreshService) Serve(ctx context.Context) error {
	s.logger.Info().
		Dur("poll_interval", s.config.PollInterval).
		Msg("auto-refresh service starting")

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("auto-refresh service shutting down")
			return ctx.Err()
		case now := <-ticker.C:
			s.refresher.AutoRefreshSweep(ctx, now)
		}
	}
}

// String returns the service name for supervisor logging.
func (s *RefreshService) String() string { return "auto-refresh-service" }
