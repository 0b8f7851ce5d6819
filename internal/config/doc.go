// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for
// clausedesk.
//
// Configuration lives in TOML under ~/.clausedesk/config.toml. Missing
// files are not an error: built-in defaults apply, and individual keys can
// be overridden by CLAUSEDESK_* environment variables at load time.
// Precedence, highest first:
//
//   - Environment variables (CLAUSEDESK_API_URL, CLAUSEDESK_API_TOKEN, ...)
//   - ~/.clausedesk/config.toml
//   - Built-in defaults
//
// Save writes the file atomically with 0600 permissions since the token
// lives in it.
package config
