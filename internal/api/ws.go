// Drift Feed Engine - Personalized Feed Ranking and Delivery
// Copyright 2026 Drift Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftapp/feedengine

package api

import (
	"net/http"

	gorilla "github.com/gorilla/websocket"

	"github.com/driftapp/feedengine/internal/logging"
	"github.com/driftapp/feedengine/internal/websocket"
)

var upgrader = gorilla.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin is enforced by the CORS middleware in front of this handler.
	CheckOrigin: func(*http.Request) bool { return true },
}

// ServeWS upgrades the connection and attaches it to the session's push
// channel. The session ID comes from the header or, for browser clients
// that cannot set headers on websocket dials, the session query parameter.
func (h *Handler) ServeWS(hub *websocket.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.Header.Get(SessionHeader)
		if sessionID == "" {
			sessionID = r.URL.Query().Get("session")
		}
		if sessionID == "" {
			respondError(w, http.StatusBadRequest, "MISSING_SESSION", "session is required for websocket")
			return
		}
		if _, ok := h.manager.Get(sessionID); !ok {
			respondError(w, http.StatusNotFound, "SESSION_NOT_FOUND", "session does not exist")
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logging.Error().Err(err).Msg("websocket upgrade failed")
			return
		}

		client := websocket.NewClient(hub, conn, sessionID)
		client.Start()
	}
}
