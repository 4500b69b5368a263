// Drift Feed Engine - Personalized Feed Ranking and Delivery
// Copyright 2026 Drift Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftapp/feedengine

package websocket

import (
	"github.com/driftapp/feedengine/internal/store"
)

// SessionNotifier delivers user-facing notices for one session over the
// hub. It satisfies store.Notifier.
type SessionNotifier struct {
	hub       *Hub
	sessionID string
}

// NewSessionNotifier binds notices for sessionID to the hub.
func NewSessionNotifier(hub *Hub, sessionID string) *SessionNotifier {
	return &SessionNotifier{hub: hub, sessionID: sessionID}
}

// Notify pushes a notice frame to the session's clients. New-content
// notices become dedicated new_content frames so clients can show the
// refresh prompt without parsing notice text.
func (n *SessionNotifier) Notify(message string, kind store.NoticeKind) {
	if kind == store.NoticeNewContent {
		n.hub.NotifyNewContent(n.sessionID)
		return
	}
	n.hub.SendToSession(n.sessionID, MessageTypeNotice, NoticeData{
		Message: message,
		Kind:    string(kind),
	})
}
