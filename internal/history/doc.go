// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package history maintains a SQLite full-text index over saved
// conversations so past answers can be searched from the CLI and TUI.
//
// The index is derived data: the JSON files in the conversation store
// remain the source of truth, and Reindex rebuilds the database from
// them at any time. A filesystem watcher keeps the index current while
// the client runs.
package history
