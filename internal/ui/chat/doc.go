// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the interactive chat view for the clausedesk TUI.
//
// # Architecture
//
// The package follows the Bubble Tea model/update/view pattern:
//
//   - model.go: the Model struct and construction
//   - update.go: message handling and streaming commands
//   - view.go: rendering with Lip Gloss styles
//   - messages.go: Bubble Tea message type definitions
//   - streaming.go: token batching for flicker-free streaming
//   - cancel.go: thread-safe stream cancellation
//   - keys.go: keyboard bindings
//
// # Streaming flow
//
// When the user submits a question the update loop adds the user turn
// and an empty assistant turn, then starts a goroutine that streams from
// the backend. Events cross into the update loop as messages stamped
// with the assistant message ID; events for a stale ID are dropped, so a
// cancelled stream can never write into a later answer. Deltas are
// batched by StreamingBuffer and rendered on a ~30fps tick.
//
// Cancellation (Esc) cancels the request context. The partial answer is
// kept and the turn is marked cancelled.
package chat
