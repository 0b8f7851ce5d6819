// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// controller.go - Streaming session controller.
//
// Drives one conversation against the retrieval backend: starts streams,
// applies events to the trailing assistant turn, enforces single-terminal
// semantics, and supports idempotent cancellation that preserves partial
// content.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/clausedesk/clausedesk-tui/internal/api"
	"github.com/clausedesk/clausedesk-tui/internal/model"
)

// =============================================================================
// STATE MACHINE
// =============================================================================

// State is the controller's lifecycle state.
type State int

const (
	// StateIdle means no request is in flight.
	StateIdle State = iota
	// StateRequesting means the request was sent but no event has arrived.
	StateRequesting
	// StateStreaming means at least one event has arrived.
	StateStreaming
	// StateCompleted means the last stream finished with a done event.
	StateCompleted
	// StateFailed means the last stream ended in an error.
	StateFailed
	// StateCancelled means the last stream was cancelled by the user.
	StateCancelled
)

// String returns the state name for diagnostics.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ErrBusy is returned when a send is attempted while a stream is active.
var ErrBusy = errors.New("a request is already in flight")

// ErrEmptyMessage is returned for blank input, before any network call.
var ErrEmptyMessage = errors.New("message is empty")

// =============================================================================
// CALLBACKS
// =============================================================================

// Callbacks receive stream progress. All callbacks are optional and are
// invoked from the goroutine running Send.
type Callbacks struct {
	// OnContent receives each answer delta in arrival order.
	OnContent func(delta string)
	// OnSources receives the retrieved citations.
	OnSources func(sources []model.Citation)
	// OnDone receives the answer metadata when the stream completes.
	OnDone func(meta model.AnswerMeta)
	// OnError receives the failure. Fires exactly once per failed stream.
	OnError func(err error)
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller manages streaming queries for one conversation.
type Controller struct {
	mu     sync.Mutex
	client *api.Client
	conv   *model.Conversation

	state        State
	cancel       context.CancelFunc
	terminalSeen bool

	// window bounds the trailing message count sent with each request.
	window int
	topK   int

	callbacks Callbacks
}

// Option configures a Controller.
type Option func(*Controller)

// WithWindow sets the trailing history window size. n <= 0 keeps the
// default.
func WithWindow(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.window = n
		}
	}
}

// WithTopK sets the retrieval depth for requests.
func WithTopK(k int) Option {
	return func(c *Controller) {
		c.topK = k
	}
}

// WithCallbacks sets the stream progress callbacks.
func WithCallbacks(cb Callbacks) Option {
	return func(c *Controller) {
		c.callbacks = cb
	}
}

// NewController creates a controller for the given conversation.
func NewController(client *api.Client, conv *model.Conversation, opts ...Option) *Controller {
	c := &Controller{
		client: client,
		conv:   conv,
		state:  StateIdle,
		window: model.DefaultHistoryWindow,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Conversation returns the conversation this controller drives.
func (c *Controller) Conversation() *model.Conversation {
	return c.conv
}

// IsActive reports whether a stream is in flight.
func (c *Controller) IsActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateRequesting || c.state == StateStreaming
}

// =============================================================================
// SEND (STREAMING)
// =============================================================================

// Send submits a user message and streams the answer, blocking until the
// stream ends. Events are applied to the trailing assistant turn and
// forwarded through the callbacks. Returns ErrBusy if a stream is already
// active and ErrEmptyMessage for blank input, both before any network
// call.
//
// On failure the partial content received so far stays on the turn and
// OnError fires exactly once. Cancellation is not a failure: the turn is
// finalized with its partial content and no OnError fires.
func (c *Controller) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}

	c.mu.Lock()
	if c.state == StateRequesting || c.state == StateStreaming {
		c.mu.Unlock()
		return ErrBusy
	}

	streamCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.state = StateRequesting
	c.terminalSeen = false

	c.conv.AddUserMessage(text)
	turn := c.conv.AddAssistantMessage()
	req := c.buildRequest()
	c.mu.Unlock()

	defer cancel()

	err := c.client.ChatStream(streamCtx, req, func(ev api.StreamEvent) {
		c.applyEvent(turn, ev)
	})

	return c.finishStream(turn, err)
}

// buildRequest assembles the request from the bounded trailing window.
// The caller holds c.mu.
func (c *Controller) buildRequest() *api.ChatRequest {
	return BuildRequest(c.conv, c.window, c.topK)
}

// BuildRequest assembles a chat request from a conversation's bounded
// trailing window of messages.
func BuildRequest(conv *model.Conversation, window, topK int) *api.ChatRequest {
	msgs := conv.Window(window)
	messages := make([]api.ChatMessage, 0, len(msgs))
	for _, msg := range msgs {
		// The empty trailing assistant turn is local bookkeeping only.
		if msg.IsStreaming || (msg.Role == model.RoleAssistant && msg.IsEmpty()) {
			continue
		}
		messages = append(messages, api.ChatMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}
	return &api.ChatRequest{
		Messages:       messages,
		ContextFiles:   conv.ContextFiles,
		ConversationID: conv.RemoteID,
		TopK:           topK,
	}
}

// applyEvent applies one stream event to the trailing turn.
//
// First terminal event wins: once a done or error has been applied, every
// subsequent event (terminal or not) is dropped.
func (c *Controller) applyEvent(turn *model.Message, ev api.StreamEvent) {
	c.mu.Lock()
	if c.terminalSeen {
		c.mu.Unlock()
		return
	}
	if c.state == StateRequesting {
		c.state = StateStreaming
	}

	switch ev.Type {
	case api.EventContent:
		c.conv.AppendToLast(ev.Content)
		c.mu.Unlock()
		if c.callbacks.OnContent != nil {
			c.callbacks.OnContent(ev.Content)
		}

	case api.EventSources:
		sources := ToCitations(ev.Sources)
		turn.SetSources(sources)
		c.mu.Unlock()
		if c.callbacks.OnSources != nil {
			c.callbacks.OnSources(sources)
		}

	case api.EventDone:
		c.terminalSeen = true
		c.state = StateCompleted
		meta := ToAnswerMeta(ev.Done)
		turn.Meta = &meta
		c.conv.FinalizeLast()
		c.mu.Unlock()
		if c.callbacks.OnDone != nil {
			c.callbacks.OnDone(meta)
		}

	case api.EventError:
		c.terminalSeen = true
		c.state = StateFailed
		turn.Failed = true
		c.conv.FinalizeLast()
		c.mu.Unlock()
		if c.callbacks.OnError != nil {
			c.callbacks.OnError(fmt.Errorf("backend error: %s", ev.Err))
		}

	default:
		c.mu.Unlock()
	}
}

// finishStream settles the controller state after ChatStream returns.
func (c *Controller) finishStream(turn *model.Message, err error) error {
	c.mu.Lock()

	// A terminal event already settled everything.
	if c.terminalSeen {
		c.cancel = nil
		c.mu.Unlock()
		return nil
	}

	c.terminalSeen = true
	c.cancel = nil

	// Cancellation preserves partial content and is not a failure.
	if errors.Is(err, context.Canceled) {
		c.state = StateCancelled
		turn.Cancelled = true
		c.conv.FinalizeLast()
		c.mu.Unlock()
		return nil
	}

	// Transport or HTTP failure before a terminal event.
	c.state = StateFailed
	turn.Failed = true
	c.conv.FinalizeLast()
	c.mu.Unlock()

	if err == nil {
		err = errors.New("stream ended without completion")
	}
	if c.callbacks.OnError != nil {
		c.callbacks.OnError(err)
	}
	return err
}

// =============================================================================
// CANCEL
// =============================================================================

// Cancel stops the in-flight stream. Content received so far is preserved
// on the trailing turn. Safe to call any number of times, including when
// no stream is active.
func (c *Controller) Cancel() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// =============================================================================
// ASK (NON-STREAMING FALLBACK)
// =============================================================================

// Ask submits a user message through the one-shot endpoint and fills the
// turn from the complete response. Used when streaming is disabled.
func (c *Controller) Ask(ctx context.Context, text string) (*api.ChatResponse, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}

	c.mu.Lock()
	if c.state == StateRequesting || c.state == StateStreaming {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	c.state = StateRequesting
	c.terminalSeen = false

	c.conv.AddUserMessage(text)
	turn := c.conv.AddAssistantMessage()
	req := c.buildRequest()
	c.mu.Unlock()

	resp, err := c.client.Chat(ctx, req)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.terminalSeen = true

	if err != nil {
		c.state = StateFailed
		turn.Failed = true
		c.conv.FinalizeLast()
		if c.callbacks.OnError != nil {
			c.callbacks.OnError(err)
		}
		return nil, err
	}

	turn.AppendDelta(resp.Answer)
	turn.SetSources(ToCitations(resp.Sources))
	turn.Meta = &model.AnswerMeta{
		Confidence:      resp.Confidence,
		RetrievedChunks: resp.RetrievedChunks,
		ResponseTimeMs:  resp.ResponseTimeMs,
		FollowUps:       resp.FollowUps,
		ModelUsed:       resp.ModelUsed,
		TokensUsed:      resp.TokensUsed,
	}
	c.conv.FinalizeLast()
	if resp.ConversationID != "" {
		c.conv.RemoteID = resp.ConversationID
	}
	c.state = StateCompleted
	return resp, nil
}

// ToAnswerMeta converts a wire done payload into answer metadata.
func ToAnswerMeta(done *api.DonePayload) model.AnswerMeta {
	if done == nil {
		return model.AnswerMeta{}
	}
	return model.AnswerMeta{
		Confidence:      done.Confidence,
		RetrievedChunks: done.RetrievedChunks,
		ResponseTimeMs:  done.ResponseTimeMs,
		FollowUps:       done.FollowUps,
	}
}

// ToCitations converts wire citations into model citations.
func ToCitations(in []api.SourceCitation) []model.Citation {
	if in == nil {
		return nil
	}
	out := make([]model.Citation, len(in))
	for i, s := range in {
		out[i] = model.Citation{
			Text:       s.Text,
			Score:      s.Score,
			FileID:     s.FileID,
			Filename:   s.Filename,
			Page:       s.Page,
			ChunkIndex: s.ChunkIndex,
		}
	}
	return out
}
