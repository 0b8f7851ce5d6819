// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api implements the HTTP client for the ClauseDesk retrieval backend.
package api

import (
	"encoding/json"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// ChatMessage is a single message in the request history.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewUserMessage creates a user chat message.
func NewUserMessage(content string) ChatMessage {
	return ChatMessage{Role: "user", Content: content}
}

// NewAssistantMessage creates an assistant chat message.
func NewAssistantMessage(content string) ChatMessage {
	return ChatMessage{Role: "assistant", Content: content}
}

// NewSystemMessage creates a system chat message.
func NewSystemMessage(content string) ChatMessage {
	return ChatMessage{Role: "system", Content: content}
}

// ChatRequest is the request body for both the streaming and one-shot
// retrieval endpoints.
type ChatRequest struct {
	// Messages is the trailing conversation window, oldest first.
	Messages []ChatMessage `json:"messages"`
	// ContextFiles restricts retrieval to the given contract file ids.
	ContextFiles []string `json:"context_files,omitempty"`
	// ConversationID ties the request to server-side conversation state.
	ConversationID string `json:"conversation_id,omitempty"`
	// TopK is the number of passages to retrieve, clamped to [1, 20].
	TopK int `json:"top_k,omitempty"`
	// Model optionally overrides the backend's default model.
	Model string `json:"model,omitempty"`
	// Stream selects the event-stream response format.
	Stream bool `json:"stream"`
}

const (
	// DefaultTopK is the retrieval depth used when TopK is unset.
	DefaultTopK = 8
	// MaxTopK is the largest retrieval depth the backend accepts.
	MaxTopK = 20
)

// ClampTopK normalizes TopK into the accepted range, applying the default
// when unset.
func (r *ChatRequest) ClampTopK() {
	if r.TopK <= 0 {
		r.TopK = DefaultTopK
	}
	if r.TopK > MaxTopK {
		r.TopK = MaxTopK
	}
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// SourceCitation is a retrieved contract passage supporting an answer.
type SourceCitation struct {
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
	FileID     string  `json:"file_id,omitempty"`
	Filename   string  `json:"filename,omitempty"`
	Page       int     `json:"page,omitempty"`
	ChunkIndex int     `json:"chunk_index,omitempty"`
}

// DonePayload is the metadata delivered with the terminal done event.
// Confidence is the backend's label for the answer: "high", "medium",
// or "low".
type DonePayload struct {
	Confidence     string   `json:"confidence"`
	RetrievedChunks int     `json:"retrieved_chunks"`
	ResponseTimeMs int64    `json:"response_time_ms"`
	FollowUps      []string `json:"follow_up_suggestions"`
}

// ChatResponse is the one-shot (non-streaming) response body.
type ChatResponse struct {
	Answer          string           `json:"answer"`
	Sources         []SourceCitation `json:"sources"`
	Confidence      string           `json:"confidence"`
	RetrievedChunks int              `json:"retrieved_chunks"`
	ModelUsed       string           `json:"model_used"`
	TokensUsed      int              `json:"tokens_used"`
	FollowUps       []string         `json:"follow_up_suggestions"`
	ExtractedClauses []ExtractedClause `json:"extracted_clauses,omitempty"`
	RiskHighlights  []RiskHighlight  `json:"risk_highlights,omitempty"`
	ConversationID  string           `json:"conversation_id"`
	ResponseTimeMs  int64            `json:"response_time_ms"`
}

// ExtractedClause is a clause the backend identified in the answer context.
type ExtractedClause struct {
	Type       string `json:"type"`
	Text       string `json:"text"`
	Confidence string `json:"confidence,omitempty"`
}

// RiskHighlight flags contract language the backend considers risky.
type RiskHighlight struct {
	Severity       string `json:"severity"`
	MatchedText    string `json:"matched_text"`
	Context        string `json:"context,omitempty"`
	Recommendation string `json:"recommendation,omitempty"`
}

// =============================================================================
// STREAM EVENTS
// =============================================================================

// EventType identifies the variant of a stream event.
type EventType string

const (
	// EventSources carries the retrieved citations for the answer.
	EventSources EventType = "sources"
	// EventContent carries an answer content delta.
	EventContent EventType = "content"
	// EventDone terminates the stream successfully with answer metadata.
	EventDone EventType = "done"
	// EventError terminates the stream with a backend-reported failure.
	EventError EventType = "error"
)

// StreamEvent is one demultiplexed event from the retrieval stream. Exactly
// the field matching Type is populated.
type StreamEvent struct {
	Type EventType

	// Content is the answer delta (EventContent).
	Content string
	// Sources are the retrieved citations (EventSources).
	Sources []SourceCitation
	// Done is the completion metadata (EventDone).
	Done *DonePayload
	// Err is the backend failure message (EventError).
	Err string
}

// IsTerminal reports whether the event ends the stream.
func (e *StreamEvent) IsTerminal() bool {
	return e.Type == EventDone || e.Type == EventError
}

// streamEnvelope is the wire shape of a stream event payload.
type streamEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}
