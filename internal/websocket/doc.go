// Drift Feed Engine - Personalized Feed Ranking and Delivery
// Copyright 2026 Drift Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftapp/feedengine

// Package websocket pushes feed events to connected clients. Each client
// is bound to a feed session, so refresh prompts and silent-update
// notifications reach only the session they concern.
package websocket
