// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// stream.go - Event-stream decoding for the retrieval backend.
//
// The backend answers streaming queries with a text/event-stream body:
// newline-delimited frames, payload frames carrying a "data: " prefix and
// a JSON envelope {"type": ..., "data": ...}. The reader here buffers at
// the byte level, so frames split across arbitrary chunk boundaries
// (including mid multi-byte UTF-8 sequence) reassemble identically.
//
// RELIABILITY: Malformed payload frames are dropped, never terminal.
package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// MaxFrameSize caps a single frame to guard against unbounded
	// buffering from a misbehaving server (64KB).
	MaxFrameSize = 64 * 1024

	// dataPrefix marks payload frames in the event stream.
	dataPrefix = "data: "
)

// =============================================================================
// STREAM ERROR
// =============================================================================

// StreamError is returned when a stream fails after content has already
// been delivered. Partial holds the content received before the failure so
// callers can preserve it.
type StreamError struct {
	// Partial is the concatenated content received before the failure.
	Partial string
	// Err is the underlying failure.
	Err error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	if e.Partial != "" {
		return fmt.Sprintf("stream interrupted after %d bytes: %v", len(e.Partial), e.Err)
	}
	return fmt.Sprintf("stream failed: %v", e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *StreamError) Unwrap() error {
	return e.Err
}

// =============================================================================
// SSE READER
// =============================================================================

// SSEReader decodes newline-delimited frames from an event-stream body.
type SSEReader struct {
	reader *bufio.Reader
}

// NewSSEReader creates a reader over an event-stream body.
func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{reader: bufio.NewReader(r)}
}

// ReadFrame returns the next non-empty frame without its trailing newline.
// A trailing carriage return is stripped. Returns io.EOF when the stream
// ends; a dangling partial line at EOF is discarded, never parsed.
func (r *SSEReader) ReadFrame() ([]byte, error) {
	for {
		line, err := r.readLine()
		if err != nil {
			return nil, err
		}

		frame := trimFrame(line)
		if len(frame) == 0 {
			// Blank separator line between frames.
			continue
		}
		return frame, nil
	}
}

// readLine accumulates one newline-terminated line, enforcing the frame
// cap as bytes arrive rather than after a full line has been buffered.
func (r *SSEReader) readLine() ([]byte, error) {
	var line []byte
	for {
		chunk, err := r.reader.ReadSlice('\n')
		line = append(line, chunk...)
		if len(line) > MaxFrameSize {
			return nil, fmt.Errorf("frame exceeds %d bytes", MaxFrameSize)
		}

		switch err {
		case nil:
			return line, nil
		case bufio.ErrBufferFull:
			continue
		case io.EOF:
			// The stream ended mid-line. Without its terminator the
			// fragment cannot be a complete frame, so it is dropped.
			return nil, io.EOF
		default:
			return nil, err
		}
	}
}

// trimFrame strips the trailing newline and optional carriage return.
func trimFrame(line []byte) []byte {
	line = bytes.TrimSuffix(line, []byte("\n"))
	line = bytes.TrimSuffix(line, []byte("\r"))
	return line
}

// =============================================================================
// EVENT DEMULTIPLEXING
// =============================================================================

// parseStreamEvent decodes one frame into a StreamEvent.
//
// Returns (nil, false) for frames that carry no event: frames without the
// "data: " prefix (comments, retry hints) and payload frames that fail to
// decode. Malformed payloads are dropped silently; a bad frame must never
// terminate the stream.
func parseStreamEvent(frame []byte) (*StreamEvent, bool) {
	if !bytes.HasPrefix(frame, []byte(dataPrefix)) {
		return nil, false
	}
	payload := frame[len(dataPrefix):]

	var env streamEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, false
	}

	switch EventType(env.Type) {
	case EventContent:
		var content string
		if err := json.Unmarshal(env.Data, &content); err != nil {
			return nil, false
		}
		return &StreamEvent{Type: EventContent, Content: content}, true

	case EventSources:
		var sources []SourceCitation
		if err := json.Unmarshal(env.Data, &sources); err != nil {
			return nil, false
		}
		return &StreamEvent{Type: EventSources, Sources: sources}, true

	case EventDone:
		var done DonePayload
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &done); err != nil {
				return nil, false
			}
		}
		return &StreamEvent{Type: EventDone, Done: &done}, true

	case EventError:
		var msg string
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			// Error payloads may also be {"message": "..."}.
			var obj struct {
				Message string `json:"message"`
			}
			if err := json.Unmarshal(env.Data, &obj); err != nil || obj.Message == "" {
				return nil, false
			}
			msg = obj.Message
		}
		return &StreamEvent{Type: EventError, Err: msg}, true

	default:
		// Unknown event types are dropped for forward compatibility.
		return nil, false
	}
}

// =============================================================================
// STREAMING CHAT
// =============================================================================

// ChatStream performs a streaming retrieval query, invoking fn for each
// decoded event in arrival order. It returns after the first terminal
// event (done or error), on context cancellation, or on transport failure.
//
// On failure after content has been delivered, the returned error is a
// *StreamError carrying the partial content.
func (c *Client) ChatStream(ctx context.Context, req *ChatRequest, fn func(StreamEvent)) error {
	req.Stream = true
	req.ClampTopK()
	if req.Model == "" {
		req.Model = c.model
	}

	if err := c.wait(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+apiPrefix+"/rag/stream", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.streaming.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.handleErrorResponse(resp)
	}

	return c.processStream(ctx, resp.Body, fn)
}

// processStream reads frames until a terminal event, EOF, or failure.
func (c *Client) processStream(ctx context.Context, body io.Reader, fn func(StreamEvent)) error {
	reader := NewSSEReader(body)
	var partial bytes.Buffer

	for {
		select {
		case <-ctx.Done():
			return &StreamError{Partial: partial.String(), Err: ctx.Err()}
		default:
		}

		frame, err := reader.ReadFrame()
		if err != nil {
			if err == io.EOF {
				// Server closed without a terminal event. Callers treat
				// this as a failed stream; partial content is preserved.
				return &StreamError{Partial: partial.String(), Err: io.ErrUnexpectedEOF}
			}
			return &StreamError{Partial: partial.String(), Err: err}
		}

		event, ok := parseStreamEvent(frame)
		if !ok {
			continue
		}

		if event.Type == EventContent {
			partial.WriteString(event.Content)
		}

		fn(*event)

		if event.IsTerminal() {
			return nil
		}
	}
}

// =============================================================================
// CHANNEL VARIANT
// =============================================================================

// ChatStreamChan is like ChatStream but delivers events over a channel.
// The event channel is closed when the stream ends; a stream failure is
// delivered on the error channel.
//
// PERFORMANCE: Buffered channels decouple network reads from consumers.
func (c *Client) ChatStreamChan(ctx context.Context, req *ChatRequest) (<-chan StreamEvent, <-chan error) {
	events := make(chan StreamEvent, 32)
	errc := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errc)

		err := c.ChatStream(ctx, req, func(ev StreamEvent) {
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		})
		if err != nil {
			errc <- err
		}
	}()

	return events, errc
}

// StreamStats tracks timing statistics for a stream.
type StreamStats struct {
	start      time.Time
	firstEvent time.Time
	deltas     int
	bytes      int
}

// NewStreamStats starts timing a stream.
func NewStreamStats() *StreamStats {
	return &StreamStats{start: time.Now()}
}

// Record notes one event's arrival.
func (s *StreamStats) Record(ev *StreamEvent) {
	if s.firstEvent.IsZero() {
		s.firstEvent = time.Now()
	}
	if ev.Type == EventContent {
		s.deltas++
		s.bytes += len(ev.Content)
	}
}

// TimeToFirstEvent returns the latency before the first event, or zero if
// no event arrived.
func (s *StreamStats) TimeToFirstEvent() time.Duration {
	if s.firstEvent.IsZero() {
		return 0
	}
	return s.firstEvent.Sub(s.start)
}

// Deltas returns the number of content deltas received.
func (s *StreamStats) Deltas() int {
	return s.deltas
}

// Bytes returns the total content bytes received.
func (s *StreamStats) Bytes() int {
	return s.bytes
}

// Elapsed returns the total stream duration so far.
func (s *StreamStats) Elapsed() time.Duration {
	return time.Since(s.start)
}
