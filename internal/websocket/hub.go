// Drift Feed Engine - Personalized Feed Ranking and Delivery
// Copyright 2026 Drift Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftapp/feedengine

package websocket

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/driftapp/feedengine/internal/logging"
	"github.com/driftapp/feedengine/internal/metrics"
)

// Message types pushed to connected feed clients.
const (
	MessageTypeNewContent  = "new_content"
	MessageTypeFeedUpdated = "feed_updated"
	MessageTypeNotice      = "notice"
	MessageTypePing        = "ping"
	MessageTypePong        = "pong"
)

// Message is the envelope for all client-bound frames.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// NoticeData carries a user-facing notice, e.g. a quota or load failure.
type NoticeData struct {
	Message string `json:"message"`
	Kind    string `json:"kind"`
}

// FeedUpdatedData tells a client its feed was silently refreshed and the
// current snapshot should be re-fetched.
type FeedUpdatedData struct {
	Timestamp string `json:"timestamp"`
	ItemCount int    `json:"item_count"`
}

type envelope struct {
	sessionID string // empty means broadcast to every client
	msg       Message
}

// Hub tracks connected clients, grouped by session, and fans messages out
// to them. It runs as a supervised service.
type Hub struct {
	clients    map[*Client]bool
	outbox     chan envelope
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates an idle Hub. Call Serve to start delivery.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		outbox:     make(chan envelope, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
	}
}

// Serve runs the delivery loop until ctx is canceled. Lifecycle events are
// drained before outbound messages so client state is consistent when a
// frame goes out.
func (h *Hub) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.addClient(client)
			continue
		case client := <-h.Unregister:
			h.removeClient(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()
		case client := <-h.Register:
			h.addClient(client)
		case client := <-h.Unregister:
			h.removeClient(client)
		case env := <-h.outbox:
			h.deliver(env)
		}
	}
}

func (h *Hub) String() string { return "websocket-hub" }

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()
	metrics.WebsocketClients.Inc()
	logging.Info().
		Str("session_id", client.sessionID).
		Int("total_clients", total).
		Msg("websocket client connected")
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
		metrics.WebsocketClients.Dec()
	}
	total := len(h.clients)
	h.mu.Unlock()
	logging.Info().
		Str("session_id", client.sessionID).
		Int("total_clients", total).
		Msg("websocket client disconnected")
}

// deliver sends a frame to the targeted session's clients, or to everyone
// when the envelope has no session. Clients are visited in ID order so
// delivery is reproducible, and a client with a full send buffer is dropped.
func (h *Hub) deliver(env envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()

	targets := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		if env.sessionID == "" || client.sessionID == env.sessionID {
			targets = append(targets, client)
		}
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i].id < targets[j].id })

	var toRemove []*Client
	for _, client := range targets {
		select {
		case client.send <- env.msg:
		default:
			toRemove = append(toRemove, client)
		}
	}
	for _, client := range toRemove {
		close(client.send)
		delete(h.clients, client)
		metrics.WebsocketClients.Dec()
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })

	for _, client := range clients {
		close(client.send)
		delete(h.clients, client)
		metrics.WebsocketClients.Dec()
	}
	logging.Info().
		Str("component", "websocket-hub").
		Int("clients_closed", len(clients)).
		Msg("websocket hub stopped")
}

// SendToSession queues a frame for every client attached to a session.
// Frames are dropped when the outbox is full rather than blocking callers.
func (h *Hub) SendToSession(sessionID, messageType string, data any) {
	select {
	case h.outbox <- envelope{sessionID: sessionID, msg: Message{Type: messageType, Data: data}}:
	default:
		logging.Warn().
			Str("message_type", messageType).
			Str("session_id", sessionID).
			Msg("websocket outbox full, dropping message")
	}
}

// Broadcast queues a frame for every connected client.
func (h *Hub) Broadcast(messageType string, data any) {
	select {
	case h.outbox <- envelope{msg: Message{Type: messageType, Data: data}}:
	default:
		logging.Warn().Str("message_type", messageType).Msg("websocket outbox full, dropping message")
	}
}

// NotifyFeedUpdated tells a session that its feed was rebuilt behind the
// scenes and the snapshot endpoint should be re-read.
func (h *Hub) NotifyFeedUpdated(sessionID string, itemCount int) {
	h.SendToSession(sessionID, MessageTypeFeedUpdated, FeedUpdatedData{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		ItemCount: itemCount,
	})
}

// NotifyNewContent prompts a session to offer a manual refresh.
func (h *Hub) NotifyNewContent(sessionID string) {
	h.SendToSession(sessionID, MessageTypeNewContent, nil)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
