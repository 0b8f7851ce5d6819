// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model defines the core conversation data structures for
// clausedesk-tui.
//
// A Conversation is an ordered sequence of Messages. Assistant messages are
// created in a streaming state and accumulate content deltas through an
// internal builder until FinalizeStream merges them into Content. Citations
// and answer metadata attach to the trailing assistant turn as the backend
// delivers them.
//
// The package has no dependencies on transport or storage; it is shared by
// the session controller, the persistence layer, and the UI.
package model
