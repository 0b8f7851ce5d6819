// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session coordinates streaming queries against a conversation.
//
// Controller owns the stream lifecycle for one conversation: it submits
// the bounded trailing message window, applies decoded events to the
// trailing assistant turn, and settles into exactly one of completed,
// failed, or cancelled. The first terminal event wins; anything after it
// is dropped. Cancellation is idempotent and keeps whatever content had
// streamed in.
//
// Manager tracks user activity for the TUI's idle warnings and periodic
// auto-save.
package session
