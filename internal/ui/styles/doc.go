// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling system for the clausedesk TUI.
//
// All colors use Lip Gloss AdaptiveColor so the palette reads correctly on
// both light and dark terminals. Theme bundles the styled components the
// chat view composes; confidence labels from the backend map to color
// bands via ConfidenceColor.
package styles
