// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
//
// This file defines all Bubble Tea message types used by the chat
// interface. Streaming messages carry the ID of the assistant message
// they belong to; updates for a stale ID are ignored, which keeps a
// cancelled stream from writing into the next answer.
package chat

import (
	"time"

	"github.com/clausedesk/clausedesk-tui/internal/model"
)

// =============================================================================
// STREAMING MESSAGES
// =============================================================================

// StreamStartMsg signals that streaming has begun for a message.
type StreamStartMsg struct {
	MessageID string
	StartTime time.Time
}

// StreamTokenMsg delivers a content delta from the stream.
type StreamTokenMsg struct {
	MessageID string
	Token     string
}

// StreamSourcesMsg delivers the retrieved citations for an answer.
type StreamSourcesMsg struct {
	MessageID string
	Sources   []model.Citation
}

// StreamCompleteMsg signals that streaming has finished successfully.
type StreamCompleteMsg struct {
	MessageID string
	Meta      model.AnswerMeta
}

// StreamErrorMsg signals an error that terminated the stream.
type StreamErrorMsg struct {
	MessageID string
	Err       error
}

// StreamCancelledMsg signals that the user cancelled the stream.
// Partial content remains in the message.
type StreamCancelledMsg struct {
	MessageID string
}

// StreamTickMsg drives the render loop while streaming.
type StreamTickMsg struct {
	Time time.Time
}

// ActivityTickMsg drives the idle and auto-save timers.
type ActivityTickMsg struct {
	Time time.Time
}

// =============================================================================
// CONVERSATION MESSAGES
// =============================================================================

// ConversationSavedMsg reports the result of a save.
type ConversationSavedMsg struct {
	ID  string
	Err error
}

// HealthCheckMsg reports backend reachability at startup.
type HealthCheckMsg struct {
	Reachable bool
	Err       error
}
