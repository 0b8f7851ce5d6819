// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides command-line interface parsing and execution for
// clausedesk.
//
// This package implements the non-TUI surface of the clausedesk client:
// one-shot questions, an interactive readline chat, saved conversation
// management, and configuration commands, with JSON output for scripting.
//
// # Key Types
//
//   - Command: Enumeration of available CLI commands
//   - Args: Parsed command-line arguments with global and command-specific flags
//   - JSONResponse: Envelope for machine-readable output
//
// # Usage
//
// Parse and dispatch commands:
//
//	cmd, args := cli.Parse(os.Args[1:])
//	switch cmd {
//	case cli.CmdAsk:
//	    return cli.HandleAsk(args)
//	case cli.CmdChat:
//	    return cli.HandleChat(args)
//	// ... other commands
//	}
//
// # Commands Overview
//
//   - ask: Single question with a streamed or buffered answer
//   - chat: Interactive chat session with input history
//   - sessions: List, search, export, and delete saved conversations
//   - config: Show and edit the configuration file
package cli
