// Drift Feed Engine - Personalized Feed Ranking and Delivery
// Copyright 2026 Drift Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftapp/feedengine

// Package natsbridge implements the store.Subscriber contract over NATS
// subjects. Each backing collection maps to one subject under a configurable
// prefix; change events arrive as JSON-encoded store.Event payloads.
package natsbridge

import (
	"context"
	"fmt"
	"sync"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/driftapp/feedengine/internal/store"
)

// DefaultSubjectPrefix is the subject namespace for change events.
const DefaultSubjectPrefix = "feed.events"

// Bridge adapts a NATS connection to the store.Subscriber contract.
//
// NATS exposes a single connection-wide async error handler, so the bridge
// installs one at construction and routes errors to the affected
// subscription's Err channel through a registry. An error with no
// subscription attached is connection-scoped and fans out to every channel.
type Bridge struct {
	conn   *nats.Conn
	prefix string
	logger zerolog.Logger

	mu   sync.Mutex
	subs map[*nats.Subscription]chan error
}

// New creates a bridge over an established NATS connection.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func New(conn *nats.Conn, prefix string, logger zerolog.Logger) *Bridge {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	b := &Bridge{
		conn:   conn,
		prefix: prefix,
		logger: logger.With().Str("component", "natsbridge").Logger(),
		subs:   make(map[*nats.Subscription]chan error),
	}
	if conn != nil {
		conn.SetErrorHandler(b.routeError)
	}
	return b
}

// Subject returns the NATS subject for a collection.
func (b *Bridge) Subject(c store.Collection) string {
	return fmt.Sprintf("%s.%s", b.prefix, c)
}

// routeError delivers an async NATS error to the owning subscription's Err
// channel, or to every channel when the error is connection-scoped. Channels
// hold one error; the invalidator is already resubscribing after the first.
func (b *Bridge) routeError(_ *nats.Conn, sub *nats.Subscription, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub == nil {
		for _, ch := range b.subs {
			select {
			case ch <- err:
			default:
			}
		}
		return
	}

	ch, ok := b.subs[sub]
	if !ok {
		b.logger.Warn().Err(err).Msg("async error for unknown subscription")
		return
	}
	select {
	case ch <- err:
	default:
	}
}

// natsSubscription wraps a NATS subscription as a store.Subscription.
type natsSubscription struct {
	bridge *Bridge
	sub    *nats.Subscription
	errCh  chan error
	once   sync.Once
}

func (n *natsSubscription) Unsubscribe() {
	n.once.Do(func() {
		n.bridge.forget(n.sub)
		_ = n.sub.Unsubscribe()
		close(n.errCh)
	})
}

func (n *natsSubscription) Err() <-chan error { return n.errCh }

// forget removes a subscription from the error-routing registry.
func (b *Bridge) forget(sub *nats.Subscription) {
	b.mu.Lock()
	delete(b.subs, sub)
	b.mu.Unlock()
}

// Subscribe implements store.Subscriber. Malformed payloads are logged and
// dropped; the subscription itself stays healthy. Connection loss surfaces
// on Err for the invalidator to resubscribe with backoff.
func (b *Bridge) Subscribe(ctx context.Context, c store.Collection, handler func(store.Event)) (store.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	subject := b.Subject(c)
	sub, err := b.conn.Subscribe(subject, func(msg *nats.Msg) {
		var ev store.Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			b.logger.Warn().
				Str("subject", subject).
				Err(err).
				Msg("dropping malformed change event")
			return
		}
		if ev.Collection == "" {
			ev.Collection = c
		}
		handler(ev)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}

	errCh := make(chan error, 1)
	b.mu.Lock()
	b.subs[sub] = errCh
	b.mu.Unlock()

	b.logger.Debug().Str("subject", subject).Msg("subscribed to change events")

	return &natsSubscription{bridge: b, sub: sub, errCh: errCh}, nil
}

// Publish emits a change event, used by writers co-located with the bridge.
func (b *Bridge) Publish(ev store.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return b.conn.Publish(b.Subject(ev.Collection), data)
}
