// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// MaxMessages is the maximum number of messages kept in a conversation.
	// Older messages are pruned in pairs to keep user/assistant alternation.
	MaxMessages = 1000

	// TitlePreviewLength is the number of characters of the first user
	// message used as the conversation title.
	TitlePreviewLength = 50

	// DefaultHistoryWindow is the default number of trailing messages sent
	// with each request. Bounds the request size for long conversations.
	DefaultHistoryWindow = 20
)

// =============================================================================
// CONVERSATION
// =============================================================================

// Conversation is an ordered sequence of messages with metadata.
type Conversation struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Messages  []*Message `json:"messages"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	// ContextFiles are contract file ids scoping retrieval for this
	// conversation. Empty means search the whole workspace.
	ContextFiles []string `json:"context_files,omitempty"`

	// RemoteID is the backend's conversation id, set after the first
	// exchange so follow-ups share server-side retrieval state.
	RemoteID string `json:"remote_id,omitempty"`
}

// NewConversation creates an empty conversation.
func NewConversation() *Conversation {
	now := time.Now()
	return &Conversation{
		ID:        "conv_" + uuid.NewString(),
		Title:     "New conversation",
		Messages:  make([]*Message, 0),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AddUserMessage appends a user message and updates the title if this is
// the first user message.
func (c *Conversation) AddUserMessage(content string) *Message {
	msg := NewUserMessage(content)
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = time.Now()
	c.updateTitle()
	c.pruneOldMessages()
	return msg
}

// AddAssistantMessage appends an empty streaming assistant message. The
// returned message is the trailing turn that stream events apply to.
func (c *Conversation) AddAssistantMessage() *Message {
	msg := NewAssistantMessage()
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = time.Now()
	return msg
}

// Last returns the trailing message, or nil for an empty conversation.
func (c *Conversation) Last() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return c.Messages[len(c.Messages)-1]
}

// AppendToLast appends a content delta to the trailing message if it is a
// streaming assistant message. Deltas arriving when no stream is active
// are dropped.
func (c *Conversation) AppendToLast(delta string) {
	last := c.Last()
	if last == nil || last.Role != RoleAssistant {
		return
	}
	last.AppendDelta(delta)
	c.UpdatedAt = time.Now()
}

// FinalizeLast completes the trailing assistant message if it is streaming.
func (c *Conversation) FinalizeLast() {
	last := c.Last()
	if last == nil || last.Role != RoleAssistant {
		return
	}
	last.FinalizeStream()
	c.UpdatedAt = time.Now()
}

// Window returns up to n trailing messages. n <= 0 returns all messages.
// The returned slice aliases the conversation's messages.
func (c *Conversation) Window(n int) []*Message {
	if n <= 0 || len(c.Messages) <= n {
		return c.Messages
	}
	return c.Messages[len(c.Messages)-n:]
}

// MessageCount returns the number of messages in the conversation.
func (c *Conversation) MessageCount() int {
	return len(c.Messages)
}

// IsEmpty reports whether the conversation has no messages.
func (c *Conversation) IsEmpty() bool {
	return len(c.Messages) == 0
}

// Clear removes all messages, keeping the conversation identity.
func (c *Conversation) Clear() {
	c.Messages = c.Messages[:0]
	c.Title = "New conversation"
	c.RemoteID = ""
	c.UpdatedAt = time.Now()
}

// updateTitle sets the title from the first user message.
func (c *Conversation) updateTitle() {
	if c.Title != "New conversation" && c.Title != "" {
		return
	}
	for _, msg := range c.Messages {
		if msg.Role != RoleUser {
			continue
		}
		title := strings.TrimSpace(msg.Content)
		title = strings.ReplaceAll(title, "\n", " ")
		runes := []rune(title)
		if len(runes) > TitlePreviewLength {
			title = string(runes[:TitlePreviewLength]) + "..."
		}
		if title != "" {
			c.Title = title
		}
		return
	}
}

// pruneOldMessages drops the oldest messages when the conversation exceeds
// MaxMessages. Messages are removed in pairs so the transcript keeps its
// user/assistant alternation.
func (c *Conversation) pruneOldMessages() {
	if len(c.Messages) <= MaxMessages {
		return
	}
	excess := len(c.Messages) - MaxMessages
	if excess%2 != 0 {
		excess++
	}
	if excess >= len(c.Messages) {
		c.Messages = c.Messages[:0]
		return
	}
	c.Messages = c.Messages[excess:]
}
