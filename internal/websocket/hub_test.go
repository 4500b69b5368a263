// Drift Feed Engine - Personalized Feed Ranking and Delivery
// Copyright 2026 Drift Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftapp/feedengine

package websocket

import (
	"context"
	"testing"
	"time"

	"github.com/driftapp/feedengine/internal/store"
)

// newTestClient builds a client without a live connection. Only the send
// channel and session binding matter for hub delivery tests.
func newTestClient(hub *Hub, sessionID string) *Client {
	return &Client{
		id:        clientIDCounter.Add(1),
		sessionID: sessionID,
		hub:       hub,
		send:      make(chan Message, 8),
	}
}

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.Serve(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("hub did not stop after cancel")
		}
	})
	return hub, cancel
}

func waitForMessage(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return Message{}
	}
}

func assertNoMessage(t *testing.T, ch <-chan Message) {
	t.Helper()
	select {
	case msg := <-ch:
		t.Fatalf("unexpected message: %+v", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHubSendToSessionTargetsOnlyThatSession(t *testing.T) {
	hub, _ := startHub(t)

	a := newTestClient(hub, "session-a")
	b := newTestClient(hub, "session-b")
	hub.Register <- a
	hub.Register <- b

	hub.SendToSession("session-a", MessageTypeNewContent, nil)

	msg := waitForMessage(t, a.send)
	if msg.Type != MessageTypeNewContent {
		t.Errorf("message type = %q, want %q", msg.Type, MessageTypeNewContent)
	}
	assertNoMessage(t, b.send)
}

func TestHubBroadcastReachesAllClients(t *testing.T) {
	hub, _ := startHub(t)

	a := newTestClient(hub, "session-a")
	b := newTestClient(hub, "session-b")
	hub.Register <- a
	hub.Register <- b

	hub.Broadcast(MessageTypeNotice, NoticeData{Message: "maintenance", Kind: "info"})

	for _, c := range []*Client{a, b} {
		msg := waitForMessage(t, c.send)
		if msg.Type != MessageTypeNotice {
			t.Errorf("message type = %q, want %q", msg.Type, MessageTypeNotice)
		}
	}
}

func TestHubUnregisterClosesSendChannel(t *testing.T) {
	hub, _ := startHub(t)

	c := newTestClient(hub, "session-a")
	hub.Register <- c
	hub.Unregister <- c

	select {
	case _, ok := <-c.send:
		if ok {
			t.Error("expected closed channel, got message")
		}
	case <-time.After(2 * time.Second):
		t.Error("send channel not closed after unregister")
	}

	if n := hub.ClientCount(); n != 0 {
		t.Errorf("ClientCount() = %d, want 0", n)
	}
}

func TestSessionNotifierRoutesNewContent(t *testing.T) {
	hub, _ := startHub(t)

	c := newTestClient(hub, "session-a")
	hub.Register <- c

	notifier := NewSessionNotifier(hub, "session-a")
	notifier.Notify("fresh posts available", store.NoticeNewContent)

	msg := waitForMessage(t, c.send)
	if msg.Type != MessageTypeNewContent {
		t.Errorf("message type = %q, want %q", msg.Type, MessageTypeNewContent)
	}
}

func TestSessionNotifierWrapsErrors(t *testing.T) {
	hub, _ := startHub(t)

	c := newTestClient(hub, "session-a")
	hub.Register <- c

	notifier := NewSessionNotifier(hub, "session-a")
	notifier.Notify("Couldn't load your feed. Tap to retry.", store.NoticeError)

	msg := waitForMessage(t, c.send)
	if msg.Type != MessageTypeNotice {
		t.Fatalf("message type = %q, want %q", msg.Type, MessageTypeNotice)
	}
	data, ok := msg.Data.(NoticeData)
	if !ok {
		t.Fatalf("data type = %T, want NoticeData", msg.Data)
	}
	if data.Kind != string(store.NoticeError) {
		t.Errorf("notice kind = %q, want %q", data.Kind, store.NoticeError)
	}
}
