// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// conversations.go - Server-side conversation endpoints.
//
// The backend keeps its own conversation records so retrieval state can
// follow a conversation across clients. These calls mirror the local
// storage layer; the TUI treats the backend as authoritative for ratings.
package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// RemoteConversation is a conversation record held by the backend.
type RemoteConversation struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Messages     []ChatMessage `json:"messages,omitempty"`
	MessageCount int           `json:"message_count"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// ListConversations returns the backend's conversation records, newest first.
func (c *Client) ListConversations(ctx context.Context) ([]RemoteConversation, error) {
	var out struct {
		Conversations []RemoteConversation `json:"conversations"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/conversations", nil, &out); err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return out.Conversations, nil
}

// GetConversation fetches one conversation with its full message history.
func (c *Client) GetConversation(ctx context.Context, id string) (*RemoteConversation, error) {
	var out RemoteConversation
	path := "/conversations/" + url.PathEscape(id)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to get conversation %s: %w", id, err)
	}
	return &out, nil
}

// CreateConversation registers a new conversation with the backend and
// returns its id.
func (c *Client) CreateConversation(ctx context.Context, title string) (string, error) {
	body := map[string]string{"title": title}
	var out struct {
		ID string `json:"id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/conversations", body, &out); err != nil {
		return "", fmt.Errorf("failed to create conversation: %w", err)
	}
	return out.ID, nil
}

// DeleteConversation removes a conversation from the backend.
func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	path := "/conversations/" + url.PathEscape(id)
	if err := c.doJSON(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("failed to delete conversation %s: %w", id, err)
	}
	return nil
}

// RateMessage records a 1-5 rating with optional feedback for the message
// at the given index of a conversation.
func (c *Client) RateMessage(ctx context.Context, conversationID string, messageIndex, rating int, feedback string) error {
	if rating < 1 || rating > 5 {
		return fmt.Errorf("rating must be between 1 and 5, got %d", rating)
	}
	body := map[string]interface{}{
		"rating":   rating,
		"feedback": feedback,
	}
	path := fmt.Sprintf("/conversations/%s/messages/%d/rating",
		url.PathEscape(conversationID), messageIndex)
	if err := c.doJSON(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("failed to rate message: %w", err)
	}
	return nil
}
