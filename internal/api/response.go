// Drift Feed Engine - Personalized Feed Ranking and Delivery
// Copyright 2026 Drift Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftapp/feedengine

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/driftapp/feedengine/internal/engine"
	"github.com/driftapp/feedengine/internal/feed"
	"github.com/driftapp/feedengine/internal/logging"
)

// Response is the envelope for all API payloads.
type Response struct {
	Status   string    `json:"status"` // "ok" or "error"
	Data     any       `json:"data,omitempty"`
	Error    *APIError `json:"error,omitempty"`
	Metadata Metadata  `json:"metadata"`
}

// APIError carries a machine-readable code alongside the message.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Metadata is attached to every response.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	respond(w, status, &Response{
		Status:   "ok",
		Data:     data,
		Metadata: Metadata{Timestamp: time.Now().UTC()},
	})
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respond(w, status, &Response{
		Status:   "error",
		Error:    &APIError{Code: code, Message: message},
		Metadata: Metadata{Timestamp: time.Now().UTC()},
	})
}

func respond(w http.ResponseWriter, status int, resp *Response) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")

	data, err := json.Marshal(resp)
	if err != nil {
		logging.Error().Err(err).Msg("failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("failed to write JSON response")
	}
}

// respondFeedError maps domain errors onto HTTP statuses and stable codes.
func respondFeedError(w http.ResponseWriter, err error) {
	var pageErr *feed.PageLoadError
	switch {
	case errors.Is(err, feed.ErrSuperLikeQuotaExceeded):
		respondError(w, http.StatusTooManyRequests, "SUPER_LIKE_QUOTA_EXCEEDED", "No super likes remaining")
	case errors.Is(err, feed.ErrQuotaExceeded):
		respondError(w, http.StatusTooManyRequests, "SWIPE_QUOTA_EXCEEDED", "No swipes remaining")
	case errors.Is(err, feed.ErrItemNotFound):
		respondError(w, http.StatusNotFound, "ITEM_NOT_FOUND", "Item is not in the current feed")
	case errors.Is(err, feed.ErrAlreadyLoaded):
		respondError(w, http.StatusConflict, "ALREADY_LOADED", "Feed is already loaded")
	case errors.Is(err, engine.ErrNotReady):
		respondError(w, http.StatusConflict, "NOT_READY", "Feed has not been loaded yet")
	case errors.As(err, &pageErr):
		respondError(w, http.StatusBadGateway, "SOURCES_UNAVAILABLE", "All content sources failed")
	default:
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Something went wrong")
	}
}
