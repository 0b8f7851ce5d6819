// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists conversations as JSON files under
// ~/.clausedesk/conversations, one file per conversation, and keeps a
// Bleve full-text index beside them for search across saved sessions.
//
// RELIABILITY: All writes go through atomic rename so a crash mid-save
// never leaves a truncated file. Corrupted conversation files are skipped
// on listing rather than failing the whole operation.
//
// Export renders a saved conversation to Markdown or JSON for use outside
// the tool.
package storage
