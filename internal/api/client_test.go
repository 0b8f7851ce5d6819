// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestChatStreamServerErrorNoEvents(t *testing.T) {
	// An HTTP 500 before any event must surface exactly one error and
	// deliver no events.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"detail":"retrieval pipeline crashed"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-token")
	eventCount := 0
	err := client.ChatStream(context.Background(), &ChatRequest{
		Messages: []ChatMessage{NewUserMessage("q")},
	}, func(ev StreamEvent) {
		eventCount++
	})

	if err == nil {
		t.Fatal("expected an error for HTTP 500")
	}
	if eventCount != 0 {
		t.Errorf("event count = %d, want 0", eventCount)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", apiErr.Status)
	}
	if apiErr.Message != "retrieval pipeline crashed" {
		t.Errorf("message = %q", apiErr.Message)
	}
}

func TestErrorSentinelMapping(t *testing.T) {
	tests := []struct {
		status   int
		sentinel error
	}{
		{http.StatusUnauthorized, ErrAuthFailed},
		{http.StatusForbidden, ErrAuthFailed},
		{http.StatusTooManyRequests, ErrRateLimited},
		{http.StatusNotFound, ErrNotFound},
		{http.StatusServiceUnavailable, ErrServerOverloaded},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			apiErr := &APIError{Status: tt.status, Message: "x"}
			if !errors.Is(apiErr, tt.sentinel) {
				t.Errorf("status %d should match %v", tt.status, tt.sentinel)
			}
		})
	}
}

func TestChatOneShot(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/rag/chat" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("auth header = %q", got)
		}

		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Stream {
			t.Error("one-shot request should have stream=false")
		}
		if req.TopK != DefaultTopK {
			t.Errorf("top_k = %d, want default %d", req.TopK, DefaultTopK)
		}

		json.NewEncoder(w).Encode(ChatResponse{
			Answer:          "The clause caps liability at twelve months of fees.",
			Confidence:      "high",
			RetrievedChunks: 6,
			ModelUsed:       "claude-sonnet",
			ConversationID:  "srv-42",
			Sources: []SourceCitation{
				{Text: "Liability shall not exceed...", Score: 0.95, FileID: "msa.pdf", Page: 11},
			},
			FollowUps: []string{"Does the cap cover indemnification?"},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-token")
	resp, err := client.Chat(context.Background(), &ChatRequest{
		Messages: []ChatMessage{NewUserMessage("What is the liability cap?")},
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}

	if resp.Answer == "" || resp.Confidence != "high" {
		t.Errorf("response = %+v", resp)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].Page != 11 {
		t.Errorf("sources = %+v", resp.Sources)
	}
	if resp.ConversationID != "srv-42" {
		t.Errorf("conversation id = %q", resp.ConversationID)
	}
}

func TestChatDecodesBackendPayload(t *testing.T) {
	// Raw body in the backend's own shape: confidence is a label, risk
	// highlights use matched_text/context/recommendation.
	body := `{
		"answer": "Auto-renewal with 90 days notice.",
		"sources": [{"text": "renews automatically", "score": 0.9}],
		"confidence": "medium",
		"retrieved_chunks": 2,
		"extracted_clauses": [{"type": "renewal", "text": "shall renew", "confidence": "high"}],
		"risk_highlights": [{
			"severity": "high",
			"matched_text": "unlimited liability",
			"context": "clause 14.2",
			"recommendation": "negotiate a cap"
		}],
		"conversation_id": "srv-9"
	}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, body)
	}))
	defer server.Close()

	client := NewClient(server.URL, "t")
	resp, err := client.Chat(context.Background(), &ChatRequest{
		Messages: []ChatMessage{NewUserMessage("Does the MSA auto-renew?")},
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}

	if resp.Confidence != "medium" {
		t.Errorf("confidence = %q, want medium", resp.Confidence)
	}
	if len(resp.ExtractedClauses) != 1 || resp.ExtractedClauses[0].Confidence != "high" {
		t.Errorf("clauses = %+v", resp.ExtractedClauses)
	}
	if len(resp.RiskHighlights) != 1 {
		t.Fatalf("highlights = %+v", resp.RiskHighlights)
	}
	hl := resp.RiskHighlights[0]
	if hl.MatchedText != "unlimited liability" || hl.Recommendation != "negotiate a cap" {
		t.Errorf("highlight = %+v", hl)
	}
}

func TestChatRetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(ChatResponse{Answer: "recovered"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-token")
	resp, err := client.Chat(context.Background(), &ChatRequest{
		Messages: []ChatMessage{NewUserMessage("q")},
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Answer != "recovered" {
		t.Errorf("answer = %q", resp.Answer)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestChatDoesNotRetryClientError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"bad token"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "bad-token")
	_, err := client.Chat(context.Background(), &ChatRequest{
		Messages: []ChatMessage{NewUserMessage("q")},
	})
	if !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("error = %v, want ErrAuthFailed", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (no retry on 4xx)", calls.Load())
	}
}

func TestTopKClamping(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{0, DefaultTopK},
		{-3, DefaultTopK},
		{1, 1},
		{8, 8},
		{20, 20},
		{21, MaxTopK},
		{1000, MaxTopK},
	}
	for _, tt := range tests {
		req := &ChatRequest{TopK: tt.in}
		req.ClampTopK()
		if req.TopK != tt.want {
			t.Errorf("ClampTopK(%d) = %d, want %d", tt.in, req.TopK, tt.want)
		}
	}
}

func TestRateMessageValidation(t *testing.T) {
	client := NewClient("http://127.0.0.1:9", "t")
	if err := client.RateMessage(context.Background(), "c1", 0, 0, ""); err == nil {
		t.Error("rating 0 should be rejected before any request")
	}
	if err := client.RateMessage(context.Background(), "c1", 0, 6, ""); err == nil {
		t.Error("rating 6 should be rejected before any request")
	}
}

func TestRateMessageRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/conversations/conv-1/messages/3/rating" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		if body["rating"].(float64) != 5 {
			t.Errorf("rating = %v", body["rating"])
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(server.URL, "t")
	if err := client.RateMessage(context.Background(), "conv-1", 3, 5, "spot on"); err != nil {
		t.Fatalf("RateMessage failed: %v", err)
	}
}

func TestIsRetryable(t *testing.T) {
	if isRetryable(nil) {
		t.Error("nil is not retryable")
	}
	if isRetryable(context.Canceled) {
		t.Error("context cancellation is not retryable")
	}
	if !isRetryable(&APIError{Status: 502}) {
		t.Error("502 should be retryable")
	}
	if isRetryable(&APIError{Status: 400}) {
		t.Error("400 should not be retryable")
	}
}

func TestCalculateBackoff(t *testing.T) {
	if d := calculateBackoff(0); d != baseRetryDelay {
		t.Errorf("attempt 0 delay = %v", d)
	}
	if d := calculateBackoff(1); d != 2*baseRetryDelay {
		t.Errorf("attempt 1 delay = %v", d)
	}
	if d := calculateBackoff(20); d != maxRetryDelay {
		t.Errorf("large attempt should cap at %v, got %v", maxRetryDelay, d)
	}
}
