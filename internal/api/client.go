// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// client.go - HTTP client for the ClauseDesk retrieval backend.
//
// RELIABILITY: Retry with exponential backoff for transient failures
// SECURITY: TLS 1.2+ enforced, bearer token auth, response size caps
package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultBaseURL is the default backend address.
	DefaultBaseURL = "http://127.0.0.1:8000"

	// apiPrefix is the versioned API path prefix.
	apiPrefix = "/api/v1"

	// DefaultTimeout is the request timeout for non-streaming calls.
	DefaultTimeout = 120 * time.Second

	// HealthTimeout bounds the reachability probe.
	HealthTimeout = 5 * time.Second

	// MaxRetries is the number of retry attempts for transient failures.
	MaxRetries = 3

	// baseRetryDelay is the initial backoff delay.
	baseRetryDelay = 500 * time.Millisecond

	// maxRetryDelay caps the exponential backoff.
	maxRetryDelay = 10 * time.Second

	// maxResponseSize caps response bodies to prevent unbounded reads (10MB).
	maxResponseSize = 10 * 1024 * 1024

	// userAgent identifies the client to the backend.
	userAgent = "clausedesk-tui/1.0"
)

// =============================================================================
// ERRORS
// =============================================================================

// Sentinel errors for common backend failures. Wrapped APIErrors match
// these via errors.Is.
var (
	// ErrAuthFailed indicates an invalid or expired API token (401/403).
	ErrAuthFailed = errors.New("authentication failed: check your API token")
	// ErrRateLimited indicates the backend rejected the request (429).
	ErrRateLimited = errors.New("rate limited: too many requests")
	// ErrNotFound indicates a missing resource (404).
	ErrNotFound = errors.New("resource not found")
	// ErrServerOverloaded indicates the backend is temporarily unavailable (503).
	ErrServerOverloaded = errors.New("server overloaded: try again shortly")
)

// APIError is a structured error from the backend.
type APIError struct {
	// Status is the HTTP status code.
	Status int
	// Code is the backend's machine-readable error code, if any.
	Code string
	// Message is the human-readable error detail.
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// Is maps status codes onto the sentinel errors so callers can use
// errors.Is without inspecting status codes.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrAuthFailed:
		return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
	case ErrRateLimited:
		return e.Status == http.StatusTooManyRequests
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrServerOverloaded:
		return e.Status == http.StatusServiceUnavailable
	}
	return false
}

// =============================================================================
// SHARED HTTP CLIENTS
// =============================================================================

// PERFORMANCE: Shared HTTP clients enable connection pooling across requests.
// Two clients are needed because streaming responses must not have an
// overall timeout; per-request deadlines come from the context instead.
var (
	sharedHTTPClient = &http.Client{
		Timeout:   DefaultTimeout,
		Transport: newPooledTransport(),
	}

	sharedStreamingClient = &http.Client{
		// No timeout: streams stay open as long as the server sends events.
		Transport: newPooledTransport(),
	}
)

func newPooledTransport() *http.Transport {
	return &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 5,
		IdleConnTimeout:     90 * time.Second,
		// SECURITY: Enforce TLS 1.2 minimum
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the ClauseDesk retrieval backend.
type Client struct {
	baseURL    string
	token      string
	model      string
	httpClient *http.Client
	streaming  *http.Client

	// limiter smooths request bursts client-side so interactive use
	// stays under the backend's per-client quota.
	limiter *rate.Limiter
}

// NewClient creates a client for the given backend URL and bearer token.
func NewClient(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: sharedHTTPClient,
		streaming:  sharedStreamingClient,
		limiter:    rate.NewLimiter(rate.Limit(5), 10),
	}
}

// WithModel sets the model override sent with requests.
func (c *Client) WithModel(model string) *Client {
	c.model = model
	return c
}

// WithHTTPClient replaces the non-streaming HTTP client (used in tests).
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// WithRateLimit replaces the client-side limiter. rps <= 0 disables limiting.
func (c *Client) WithRateLimit(rps float64, burst int) *Client {
	if rps <= 0 {
		c.limiter = nil
		return c
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	return c
}

// BaseURL returns the configured backend address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Model returns the configured model override, if any.
func (c *Client) Model() string {
	return c.model
}

// setHeaders applies the standard request headers.
func (c *Client) setHeaders(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
}

// wait applies the client-side rate limiter.
func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// =============================================================================
// REQUEST HELPERS
// =============================================================================

// doJSON performs a JSON request against an API path and decodes the
// response into out (which may be nil for empty responses).
func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	if err := c.wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiPrefix+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated &&
		resp.StatusCode != http.StatusNoContent {
		return c.handleErrorResponse(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	data, err := readResponse(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// handleErrorResponse converts a non-2xx response into an APIError.
// The backend reports errors as {"detail": "..."} or
// {"error": {"code": "...", "message": "..."}}.
func (c *Client) handleErrorResponse(resp *http.Response) error {
	data, _ := readResponse(resp.Body)

	var detail struct {
		Detail string `json:"detail"`
		Error  struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	apiErr := &APIError{Status: resp.StatusCode}
	if err := json.Unmarshal(data, &detail); err == nil {
		apiErr.Code = detail.Error.Code
		switch {
		case detail.Error.Message != "":
			apiErr.Message = detail.Error.Message
		case detail.Detail != "":
			apiErr.Message = detail.Detail
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

// readResponse reads a response body with a size cap.
// SECURITY: io.LimitReader prevents unbounded memory from malicious responses.
func readResponse(r io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, maxResponseSize))
}

// =============================================================================
// RETRY
// =============================================================================

// calculateBackoff returns the delay before the given retry attempt.
func calculateBackoff(attempt int) time.Duration {
	delay := time.Duration(float64(baseRetryDelay) * math.Pow(2, float64(attempt)))
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	return delay
}

// isRetryable reports whether an error is worth retrying.
// 4xx responses and context cancellation are never retried.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	// Connection-level failures (refused, reset) are transient.
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// =============================================================================
// NON-STREAMING CHAT
// =============================================================================

// Chat performs a one-shot retrieval query, returning the complete answer.
// This is the fallback path when streaming is unavailable or disabled.
func (c *Client) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	req.Stream = false
	req.ClampTopK()
	if req.Model == "" {
		req.Model = c.model
	}

	var lastErr error
	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(calculateBackoff(attempt - 1)):
			}
		}

		var resp ChatResponse
		err := c.doJSON(ctx, http.MethodPost, "/rag/chat", req, &resp)
		if err == nil {
			return &resp, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("chat failed after %d retries: %w", MaxRetries, lastErr)
}

// Health checks backend availability.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiPrefix+"/health", nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.handleErrorResponse(resp)
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return nil
}
