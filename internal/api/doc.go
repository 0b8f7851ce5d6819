// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api implements the HTTP client for the ClauseDesk retrieval
// backend.
//
// The backend exposes a RAG (retrieval-augmented generation) chat API over
// contract documents. Two query paths exist:
//
//   - ChatStream: POST /api/v1/rag/stream returns a text/event-stream body
//     of newline-delimited frames. Payload frames carry a "data: " prefix
//     and a JSON envelope {"type": "sources"|"content"|"done"|"error",
//     "data": ...}. Frames split across chunk boundaries reassemble
//     byte-exactly; malformed payload frames are dropped without
//     terminating the stream.
//
//   - Chat: POST /api/v1/rag/chat returns the complete answer in one
//     response, used as the fallback when streaming is disabled.
//
// Conversation records and message ratings live under /api/v1/conversations.
//
// Errors map onto sentinel values (ErrAuthFailed, ErrRateLimited,
// ErrNotFound, ErrServerOverloaded) through APIError's Is method, so
// callers branch with errors.Is. Transient failures retry with exponential
// backoff; 4xx responses and cancelled contexts never retry.
package api
