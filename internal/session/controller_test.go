// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/clausedesk/clausedesk-tui/internal/api"
	"github.com/clausedesk/clausedesk-tui/internal/model"
)

// streamHandler serves a fixed event-stream body.
func streamHandler(frames ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, f := range frames {
			io.WriteString(w, f+"\n\n")
		}
	}
}

func TestSendAppliesFullStream(t *testing.T) {
	server := httptest.NewServer(streamHandler(
		`data: {"type":"sources","data":[{"text":"Section 9","score":0.88,"file_id":"nda.pdf","page":2}]}`,
		`data: {"type":"content","data":"The non-compete "}`,
		`data: {"type":"content","data":"lasts two years."}`,
		`data: {"type":"done","data":{"confidence":"high","retrieved_chunks":4,"response_time_ms":640,"follow_up_suggestions":["Is two years enforceable?"]}}`,
	))
	defer server.Close()

	conv := model.NewConversation()
	var deltas []string
	var gotSources []model.Citation
	var gotMeta model.AnswerMeta
	var errCount atomic.Int32

	ctrl := NewController(api.NewClient(server.URL, "t"), conv, WithCallbacks(Callbacks{
		OnContent: func(d string) { deltas = append(deltas, d) },
		OnSources: func(s []model.Citation) { gotSources = s },
		OnDone:    func(m model.AnswerMeta) { gotMeta = m },
		OnError:   func(error) { errCount.Add(1) },
	}))

	if err := ctrl.Send(context.Background(), "How long is the non-compete?"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if ctrl.State() != StateCompleted {
		t.Errorf("state = %v, want completed", ctrl.State())
	}
	if errCount.Load() != 0 {
		t.Errorf("OnError fired %d times on success", errCount.Load())
	}
	if strings.Join(deltas, "") != "The non-compete lasts two years." {
		t.Errorf("deltas = %q", strings.Join(deltas, ""))
	}
	if len(gotSources) != 1 || gotSources[0].FileID != "nda.pdf" {
		t.Errorf("sources = %+v", gotSources)
	}
	if gotMeta.Confidence != "high" || len(gotMeta.FollowUps) != 1 {
		t.Errorf("meta = %+v", gotMeta)
	}

	turn := conv.Last()
	if turn.IsStreaming {
		t.Error("trailing turn should be finalized")
	}
	if turn.Content != "The non-compete lasts two years." {
		t.Errorf("turn content = %q", turn.Content)
	}
	if turn.Meta == nil || turn.Meta.RetrievedChunks != 4 {
		t.Errorf("turn meta = %+v", turn.Meta)
	}
}

func TestServerErrorFiresOnErrorExactlyOnce(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"detail":"vector store offline"}`))
	}))
	defer server.Close()

	conv := model.NewConversation()
	var errCount atomic.Int32
	var contentCount atomic.Int32

	ctrl := NewController(api.NewClient(server.URL, "t"), conv, WithCallbacks(Callbacks{
		OnContent: func(string) { contentCount.Add(1) },
		OnError:   func(error) { errCount.Add(1) },
	}))

	err := ctrl.Send(context.Background(), "q")
	if err == nil {
		t.Fatal("expected error from HTTP 500")
	}
	if errCount.Load() != 1 {
		t.Errorf("OnError fired %d times, want exactly 1", errCount.Load())
	}
	if contentCount.Load() != 0 {
		t.Errorf("OnContent fired %d times, want 0", contentCount.Load())
	}
	if ctrl.State() != StateFailed {
		t.Errorf("state = %v, want failed", ctrl.State())
	}
	if !conv.Last().Failed {
		t.Error("trailing turn should be marked failed")
	}
}

func TestErrorEventTerminatesWithSingleCallback(t *testing.T) {
	server := httptest.NewServer(streamHandler(
		`data: {"type":"content","data":"partial "}`,
		`data: {"type":"error","data":"generation aborted"}`,
	))
	defer server.Close()

	conv := model.NewConversation()
	var errCount atomic.Int32
	ctrl := NewController(api.NewClient(server.URL, "t"), conv, WithCallbacks(Callbacks{
		OnError: func(err error) {
			errCount.Add(1)
			if !strings.Contains(err.Error(), "generation aborted") {
				t.Errorf("error = %v", err)
			}
		},
	}))

	if err := ctrl.Send(context.Background(), "q"); err != nil {
		t.Fatalf("Send returned %v; backend error events settle via callback", err)
	}
	if errCount.Load() != 1 {
		t.Errorf("OnError fired %d times, want 1", errCount.Load())
	}
	if got := conv.Last().Content; got != "partial " {
		t.Errorf("partial content = %q, want preserved", got)
	}
	if ctrl.State() != StateFailed {
		t.Errorf("state = %v, want failed", ctrl.State())
	}
}

func TestFirstTerminalEventWins(t *testing.T) {
	// Defensive accumulator check against a backend that keeps emitting
	// after done.
	conv := model.NewConversation()
	ctrl := NewController(api.NewClient("http://127.0.0.1:9", "t"), conv)
	conv.AddUserMessage("q")
	turn := conv.AddAssistantMessage()
	ctrl.state = StateStreaming

	ctrl.applyEvent(turn, api.StreamEvent{Type: api.EventContent, Content: "answer"})
	ctrl.applyEvent(turn, api.StreamEvent{Type: api.EventDone, Done: &api.DonePayload{Confidence: "high"}})
	ctrl.applyEvent(turn, api.StreamEvent{Type: api.EventDone, Done: &api.DonePayload{Confidence: "low"}})
	ctrl.applyEvent(turn, api.StreamEvent{Type: api.EventError, Err: "late"})
	ctrl.applyEvent(turn, api.StreamEvent{Type: api.EventContent, Content: " extra"})

	if turn.Meta.Confidence != "high" {
		t.Errorf("confidence = %v, want the first done's label", turn.Meta.Confidence)
	}
	if turn.Failed {
		t.Error("late error event must not mark the turn failed")
	}
	if turn.Content != "answer" {
		t.Errorf("content = %q, late delta must be dropped", turn.Content)
	}
	if ctrl.State() != StateCompleted {
		t.Errorf("state = %v, want completed", ctrl.State())
	}
}

func TestCancelPreservesPartialAndIsIdempotent(t *testing.T) {
	firstDelta := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		io.WriteString(w, `data: {"type":"content","data":"partial answer"}`+"\n\n")
		flusher.Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	conv := model.NewConversation()
	var errCount atomic.Int32
	ctrl := NewController(api.NewClient(server.URL, "t"), conv, WithCallbacks(Callbacks{
		OnContent: func(string) {
			select {
			case <-firstDelta:
			default:
				close(firstDelta)
			}
		},
		OnError: func(error) { errCount.Add(1) },
	}))

	done := make(chan error, 1)
	go func() { done <- ctrl.Send(context.Background(), "q") }()

	select {
	case <-firstDelta:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for first delta")
	}

	// Repeated cancellation must be safe.
	ctrl.Cancel()
	ctrl.Cancel()
	ctrl.Cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("cancelled Send returned %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Send did not return after cancel")
	}

	if ctrl.State() != StateCancelled {
		t.Errorf("state = %v, want cancelled", ctrl.State())
	}
	turn := conv.Last()
	if !turn.Cancelled {
		t.Error("turn should be marked cancelled")
	}
	if turn.Content != "partial answer" {
		t.Errorf("partial content = %q, want preserved", turn.Content)
	}
	if errCount.Load() != 0 {
		t.Errorf("OnError fired %d times on cancellation, want 0", errCount.Load())
	}

	// Cancel with nothing active is a no-op.
	ctrl.Cancel()
}

func TestRequestWindowBounded(t *testing.T) {
	var gotMessages atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req api.ChatRequest
		json.NewDecoder(r.Body).Decode(&req)
		gotMessages.Store(int32(len(req.Messages)))
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, `data: {"type":"done","data":{}}`+"\n")
	}))
	defer server.Close()

	conv := model.NewConversation()
	for i := 0; i < 40; i++ {
		conv.AddUserMessage(fmt.Sprintf("q%d", i))
		m := conv.AddAssistantMessage()
		m.AppendDelta("a")
		m.FinalizeStream()
	}

	ctrl := NewController(api.NewClient(server.URL, "t"), conv, WithWindow(6))
	if err := ctrl.Send(context.Background(), "latest"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	// Window of 6 includes the empty trailing assistant turn, which is
	// stripped from the request.
	if gotMessages.Load() > 6 {
		t.Errorf("request carried %d messages, window is 6", gotMessages.Load())
	}
	if gotMessages.Load() == 0 {
		t.Error("request carried no messages")
	}
}

func TestEmptyMessageRejectedBeforeRequest(t *testing.T) {
	// The dead address guarantees any network attempt would fail loudly.
	conv := model.NewConversation()
	ctrl := NewController(api.NewClient("http://127.0.0.1:9", "t"), conv)

	if err := ctrl.Send(context.Background(), "   "); err != ErrEmptyMessage {
		t.Errorf("Send err = %v, want ErrEmptyMessage", err)
	}
	if _, err := ctrl.Ask(context.Background(), ""); err != ErrEmptyMessage {
		t.Errorf("Ask err = %v, want ErrEmptyMessage", err)
	}
	if conv.MessageCount() != 0 {
		t.Errorf("message count = %d, rejected input must not add turns", conv.MessageCount())
	}
	if ctrl.State() != StateIdle {
		t.Errorf("state = %v, want idle", ctrl.State())
	}
}

func TestSendWhileActiveReturnsErrBusy(t *testing.T) {
	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		io.WriteString(w, `data: {"type":"content","data":"x"}`+"\n\n")
		flusher.Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	conv := model.NewConversation()
	ctrl := NewController(api.NewClient(server.URL, "t"), conv, WithCallbacks(Callbacks{
		OnContent: func(string) {
			select {
			case <-started:
			default:
				close(started)
			}
		},
	}))

	go ctrl.Send(context.Background(), "first")
	<-started

	if err := ctrl.Send(context.Background(), "second"); err != ErrBusy {
		t.Errorf("err = %v, want ErrBusy", err)
	}
	ctrl.Cancel()
}

func TestAskFallbackFillsTurn(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req api.ChatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Stream {
			t.Error("fallback must send stream=false")
		}
		json.NewEncoder(w).Encode(api.ChatResponse{
			Answer:         "Payment is due net 30.",
			Confidence:     "high",
			ConversationID: "srv-7",
			Sources:        []api.SourceCitation{{Text: "Invoices payable within 30 days", Score: 0.97}},
		})
	}))
	defer server.Close()

	conv := model.NewConversation()
	ctrl := NewController(api.NewClient(server.URL, "t"), conv)

	resp, err := ctrl.Ask(context.Background(), "When is payment due?")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if resp.Answer != "Payment is due net 30." {
		t.Errorf("answer = %q", resp.Answer)
	}

	turn := conv.Last()
	if turn.Content != "Payment is due net 30." {
		t.Errorf("turn content = %q", turn.Content)
	}
	if len(turn.Sources) != 1 {
		t.Errorf("turn sources = %+v", turn.Sources)
	}
	if conv.RemoteID != "srv-7" {
		t.Errorf("remote id = %q, want srv-7", conv.RemoteID)
	}
	if ctrl.State() != StateCompleted {
		t.Errorf("state = %v", ctrl.State())
	}
}
