// Drift Feed Engine - Personalized Feed Ranking and Delivery
// Copyright 2026 Drift Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftapp/feedengine

package api

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/driftapp/feedengine/internal/engine"
	"github.com/driftapp/feedengine/internal/feed"
	"github.com/driftapp/feedengine/internal/logging"
	"github.com/driftapp/feedengine/internal/mutation"
)

// SessionHeader carries the feed session ID. The load endpoint mints one
// when the header is absent; every other endpoint requires it.
const SessionHeader = "X-Session-ID"

var validate = validator.New()

// Handler serves the feed API. Session state lives in the engine manager;
// the handler only resolves sessions and translates errors.
type Handler struct {
	manager *engine.Manager
	started time.Time
}

// NewHandler creates the API handler.
func NewHandler(manager *engine.Manager) *Handler {
	return &Handler{manager: manager, started: time.Now()}
}

// session resolves the request's feed session, creating it when mint is
// set. It writes the error response itself and returns nil on failure.
func (h *Handler) session(w http.ResponseWriter, r *http.Request, mint bool) *engine.Session {
	id := r.Header.Get(SessionHeader)
	if id == "" {
		if !mint {
			respondError(w, http.StatusBadRequest, "MISSING_SESSION", "X-Session-ID header is required")
			return nil
		}
		id = uuid.NewString()
	}

	s, err := h.manager.GetOrCreate(r.Context(), id)
	if err != nil {
		logging.Error().Err(err).Str("session_id", id).Msg("failed to resolve session")
		respondError(w, http.StatusInternalServerError, "SESSION_ERROR", "Could not resolve session")
		return nil
	}
	w.Header().Set(SessionHeader, s.ID)
	return s
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", "Request body is not valid JSON")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return false
	}
	return true
}

// feedState is the snapshot payload returned by the feed endpoints.
type feedState struct {
	SessionID string            `json:"session_id"`
	State     engine.State      `json:"state"`
	Items     []feed.RankedItem `json:"items"`
	Exhausted bool              `json:"exhausted"`
	UpdatedAt time.Time         `json:"updated_at"`
	Quota     mutation.Quota    `json:"quota"`
}

func snapshotPayload(s *engine.Session) feedState {
	snap := s.Controller.Snapshot()
	return feedState{
		SessionID: s.ID,
		State:     snap.State,
		Items:     snap.Items,
		Exhausted: snap.Exhausted,
		UpdatedAt: snap.UpdatedAt,
		Quota:     s.Coordinator.RemainingQuota(),
	}
}

// FeedLoad performs the initial page load for a session, minting the
// session when the header is absent.
func (h *Handler) FeedLoad(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r, true)
	if s == nil {
		return
	}
	if err := s.Controller.Load(r.Context()); err != nil {
		respondFeedError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, snapshotPayload(s))
}

// FeedLoadMore appends the next page. A call that races a refresh or an
// exhausted feed is a no-op and still returns the current snapshot.
func (h *Handler) FeedLoadMore(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r, false)
	if s == nil {
		return
	}
	if err := s.Controller.LoadMore(r.Context()); err != nil {
		respondFeedError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, snapshotPayload(s))
}

// FeedRefresh rebuilds the feed from page one. Issued mid-operation it is
// queued and the response reflects the pre-refresh snapshot.
func (h *Handler) FeedRefresh(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r, false)
	if s == nil {
		return
	}
	if err := s.Controller.Refresh(r.Context()); err != nil {
		respondFeedError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, snapshotPayload(s))
}

// FeedSnapshot returns the current feed without side effects.
func (h *Handler) FeedSnapshot(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r, false)
	if s == nil {
		return
	}
	respondJSON(w, http.StatusOK, snapshotPayload(s))
}

type interactionRequest struct {
	ItemID   string `json:"item_id" validate:"required"`
	ItemKind string `json:"item_kind" validate:"omitempty,oneof=post promoted profile"`
	Kind     string `json:"kind" validate:"required,oneof=view like share comment skip"`
	Duration int64  `json:"duration_ms" validate:"min=0"`
}

// RecordInteraction feeds one interaction into the session's behavior
// tracker. Interactions are ephemeral and never persisted.
func (h *Handler) RecordInteraction(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r, false)
	if s == nil {
		return
	}

	var req interactionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	s.Controller.RecordInteraction(feed.InteractionEvent{
		ItemID:   req.ItemID,
		ItemKind: feed.Kind(req.ItemKind),
		Kind:     feed.InteractionKind(req.Kind),
		Duration: time.Duration(req.Duration) * time.Millisecond,
	})
	respondJSON(w, http.StatusAccepted, map[string]string{"recorded": req.Kind})
}

type mutationRequest struct {
	ItemID string `json:"item_id" validate:"required"`
}

// MutateLike applies an optimistic like.
func (h *Handler) MutateLike(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r, false)
	if s == nil {
		return
	}

	var req mutationRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := s.Coordinator.ApplyLike(r.Context(), req.ItemID); err != nil {
		respondFeedError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, snapshotPayload(s))
}

// MutateShare applies an optimistic share.
func (h *Handler) MutateShare(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r, false)
	if s == nil {
		return
	}

	var req mutationRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := s.Coordinator.ApplyShare(r.Context(), req.ItemID); err != nil {
		respondFeedError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, snapshotPayload(s))
}

type swipeRequest struct {
	ProfileID string `json:"profile_id" validate:"required"`
	Liked     bool   `json:"liked"`
	SuperLike bool   `json:"super_like"`
}

// MutateSwipe applies a swipe. Quota violations are rejected synchronously
// with 429 before any optimistic update happens.
func (h *Handler) MutateSwipe(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r, false)
	if s == nil {
		return
	}

	var req swipeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := s.Coordinator.ApplySwipe(r.Context(), req.ProfileID, req.Liked, req.SuperLike); err != nil {
		respondFeedError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, snapshotPayload(s))
}

// HealthLive reports process liveness.
func (h *Handler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// HealthReady reports readiness to serve feed traffic.
func (h *Handler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":         "ready",
		"uptime_seconds": int(time.Since(h.started).Seconds()),
	})
}
