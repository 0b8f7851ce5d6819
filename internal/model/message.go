// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model defines the core conversation data structures for clausedesk-tui.
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE
// =============================================================================

// Role identifies the author of a message.
type Role string

const (
	// RoleUser is a message written by the user.
	RoleUser Role = "user"
	// RoleAssistant is a message produced by the retrieval backend.
	RoleAssistant Role = "assistant"
	// RoleSystem is an instruction message.
	RoleSystem Role = "system"
)

// IsValid reports whether the role is one of the known values.
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// =============================================================================
// CITATION
// =============================================================================

// Citation is a retrieved contract passage supporting an answer.
// Score is a relevance value in [0, 1].
type Citation struct {
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
	FileID     string  `json:"file_id,omitempty"`
	Filename   string  `json:"filename,omitempty"`
	Page       int     `json:"page,omitempty"`
	ChunkIndex int     `json:"chunk_index,omitempty"`
}

// =============================================================================
// ANSWER METADATA
// =============================================================================

// AnswerMeta holds the retrieval metadata delivered when an answer completes.
type AnswerMeta struct {
	// Confidence is the backend's label for the answer: "high",
	// "medium", or "low". Empty when the backend reported none.
	Confidence string `json:"confidence,omitempty"`
	// RetrievedChunks is the number of passages retrieved for the answer.
	RetrievedChunks int `json:"retrieved_chunks"`
	// ResponseTimeMs is the backend-reported latency in milliseconds.
	ResponseTimeMs int64 `json:"response_time_ms"`
	// FollowUps are suggested follow-up questions.
	FollowUps []string `json:"follow_up_suggestions,omitempty"`
	// ModelUsed is the model that produced the answer, when reported.
	ModelUsed string `json:"model_used,omitempty"`
	// TokensUsed is the token count, when reported (non-streaming only).
	TokensUsed int `json:"tokens_used,omitempty"`
}

// =============================================================================
// MESSAGE
// =============================================================================

// Message is a single turn in a conversation.
//
// While an assistant message is streaming, content deltas accumulate in an
// unexported builder and Content stays empty; FinalizeStream merges the
// builder into Content. GetDisplayContent works in both states.
type Message struct {
	ID        string     `json:"id"`
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	Timestamp time.Time  `json:"timestamp"`
	Sources   []Citation `json:"sources,omitempty"`
	Meta      *AnswerMeta `json:"meta,omitempty"`

	// Rating is the user's 1-5 rating of this answer, 0 if unrated.
	Rating int `json:"rating,omitempty"`
	// Feedback is optional free-text feedback attached with a rating.
	Feedback string `json:"feedback,omitempty"`

	// IsStreaming marks an assistant message still receiving deltas.
	IsStreaming bool `json:"-"`
	// Cancelled marks a message whose stream was cancelled by the user.
	Cancelled bool `json:"cancelled,omitempty"`
	// Failed marks a message whose stream ended in an error.
	Failed bool `json:"failed,omitempty"`

	// PERFORMANCE: strings.Builder gives O(1) amortized appends during
	// streaming instead of O(n^2) string concatenation.
	streamContent strings.Builder
}

// NewUserMessage creates a user message with the given content.
func NewUserMessage(content string) *Message {
	return &Message{
		ID:        generateMessageID(),
		Role:      RoleUser,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewSystemMessage creates a system message with the given content.
func NewSystemMessage(content string) *Message {
	return &Message{
		ID:        generateMessageID(),
		Role:      RoleSystem,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewAssistantMessage creates an empty assistant message in streaming state,
// ready to receive content deltas.
func NewAssistantMessage() *Message {
	return &Message{
		ID:          generateMessageID(),
		Role:        RoleAssistant,
		Timestamp:   time.Now(),
		IsStreaming: true,
	}
}

// AppendDelta appends a streamed content delta. It is a no-op once the
// message has been finalized, so late deltas after a terminal event are
// dropped rather than corrupting a completed answer.
func (m *Message) AppendDelta(delta string) {
	if !m.IsStreaming {
		return
	}
	m.streamContent.WriteString(delta)
}

// SetSources attaches retrieved citations to the message. Later sources
// events replace earlier ones; the backend sends the full set each time.
func (m *Message) SetSources(sources []Citation) {
	if !m.IsStreaming {
		return
	}
	m.Sources = sources
}

// FinalizeStream completes a streaming message, merging accumulated deltas
// into Content. Safe to call multiple times; only the first call has effect.
func (m *Message) FinalizeStream() {
	if !m.IsStreaming {
		return
	}
	m.Content = m.streamContent.String()
	m.streamContent.Reset()
	m.IsStreaming = false
}

// GetDisplayContent returns the content to display, whether the message is
// still streaming or finalized.
func (m *Message) GetDisplayContent() string {
	if m.IsStreaming {
		return m.streamContent.String()
	}
	return m.Content
}

// IsEmpty reports whether the message has no visible content.
func (m *Message) IsEmpty() bool {
	return m.GetDisplayContent() == ""
}

// SetRating records a user rating (1-5) with optional feedback.
// Out-of-range ratings are rejected silently.
func (m *Message) SetRating(rating int, feedback string) {
	if rating < 1 || rating > 5 {
		return
	}
	m.Rating = rating
	m.Feedback = feedback
}

// generateMessageID returns a unique message identifier.
func generateMessageID() string {
	return "msg_" + uuid.NewString()
}
