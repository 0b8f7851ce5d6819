// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli tests cover argument parsing and command routing.
package cli

import (
	"testing"
)

// =============================================================================
// COMMAND ROUTING TESTS
// =============================================================================

func TestParseArgs_CommandRouting(t *testing.T) {
	tests := []struct {
		name    string
		argv    []string
		wantCmd Command
	}{
		{"no args opens the TUI", nil, CmdTUI},
		{"explicit tui", []string{"tui"}, CmdTUI},
		{"ask", []string{"ask", "hello"}, CmdAsk},
		{"chat", []string{"chat"}, CmdChat},
		{"sessions", []string{"sessions", "list"}, CmdSessions},
		{"session singular alias", []string{"session", "list"}, CmdSessions},
		{"config", []string{"config", "show"}, CmdConfig},
		{"version", []string{"version"}, CmdVersion},
		{"version flag", []string{"--version"}, CmdVersion},
		{"help", []string{"help"}, CmdHelp},
		{"help flag", []string{"-h"}, CmdHelp},
		{"bare question falls through to ask", []string{"what", "is", "the", "notice", "period"}, CmdAsk},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, _ := parseArgs(tt.argv)
			if cmd != tt.wantCmd {
				t.Errorf("parseArgs(%v) = %v, want %v", tt.argv, cmd, tt.wantCmd)
			}
		})
	}
}

func TestParseArgs_BareQuestionBecomesQuery(t *testing.T) {
	cmd, args := parseArgs([]string{"what", "is", "the", "notice", "period"})
	if cmd != CmdAsk {
		t.Fatalf("cmd = %v, want CmdAsk", cmd)
	}
	if args.Query != "what is the notice period" {
		t.Errorf("query = %q, want %q", args.Query, "what is the notice period")
	}
}

// =============================================================================
// GLOBAL FLAG TESTS
// =============================================================================

func TestParseArgs_GlobalFlags(t *testing.T) {
	tests := []struct {
		name     string
		argv     []string
		validate func(*testing.T, Args)
	}{
		{
			name: "quiet and verbose",
			argv: []string{"-q", "-v", "ask", "hi"},
			validate: func(t *testing.T, a Args) {
				if !a.Quiet || !a.Verbose {
					t.Errorf("quiet = %v, verbose = %v, want both true", a.Quiet, a.Verbose)
				}
			},
		},
		{
			name: "json output",
			argv: []string{"ask", "--json", "hi"},
			validate: func(t *testing.T, a Args) {
				if !a.JSON {
					t.Error("JSON should be true")
				}
			},
		},
		{
			name: "no-stream",
			argv: []string{"ask", "--no-stream", "hi"},
			validate: func(t *testing.T, a Args) {
				if !a.NoStream {
					t.Error("NoStream should be true")
				}
			},
		},
		{
			name: "model short and value",
			argv: []string{"ask", "-m", "gpt-4o-mini", "hi"},
			validate: func(t *testing.T, a Args) {
				if a.Model != "gpt-4o-mini" {
					t.Errorf("model = %q, want gpt-4o-mini", a.Model)
				}
			},
		},
		{
			name: "server url override",
			argv: []string{"--url", "https://clausedesk.example.com", "chat"},
			validate: func(t *testing.T, a Args) {
				if a.ServerURL != "https://clausedesk.example.com" {
					t.Errorf("url = %q", a.ServerURL)
				}
			},
		},
		{
			name: "top-k numeric",
			argv: []string{"ask", "--top-k", "5", "hi"},
			validate: func(t *testing.T, a Args) {
				if a.TopK != 5 {
					t.Errorf("topk = %d, want 5", a.TopK)
				}
			},
		},
		{
			name: "top-k garbage ignored",
			argv: []string{"ask", "--top-k", "lots", "hi"},
			validate: func(t *testing.T, a Args) {
				if a.TopK != 0 {
					t.Errorf("topk = %d, want 0", a.TopK)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, args := parseArgs(tt.argv)
			tt.validate(t, args)
		})
	}
}

func TestParseArgs_AskContextFiles(t *testing.T) {
	_, args := parseArgs([]string{"ask", "--file", "file_1", "--file", "file_2", "what", "changed"})
	if len(args.ContextFiles) != 2 || args.ContextFiles[0] != "file_1" || args.ContextFiles[1] != "file_2" {
		t.Errorf("context files = %v, want [file_1 file_2]", args.ContextFiles)
	}
	if args.Query != "what changed" {
		t.Errorf("query = %q, want %q", args.Query, "what changed")
	}
}

func TestParseArgs_FlagsDoNotPolluteQuery(t *testing.T) {
	_, args := parseArgs([]string{"ask", "--json", "-m", "small", "what", "changed"})
	if args.Query != "what changed" {
		t.Errorf("query = %q, want %q", args.Query, "what changed")
	}
}

// =============================================================================
// SESSIONS SUBCOMMAND TESTS
// =============================================================================

func TestParseArgs_Sessions(t *testing.T) {
	tests := []struct {
		name     string
		argv     []string
		validate func(*testing.T, Args)
	}{
		{
			name: "list default",
			argv: []string{"sessions"},
			validate: func(t *testing.T, a Args) {
				if a.Subcommand != "" {
					t.Errorf("subcommand = %q, want empty", a.Subcommand)
				}
			},
		},
		{
			name: "show with id",
			argv: []string{"sessions", "show", "conv_abc"},
			validate: func(t *testing.T, a Args) {
				if a.Subcommand != "show" || a.Session != "conv_abc" {
					t.Errorf("subcommand = %q, session = %q", a.Subcommand, a.Session)
				}
			},
		},
		{
			name: "search joins words",
			argv: []string{"sessions", "search", "liability", "cap"},
			validate: func(t *testing.T, a Args) {
				if a.Query != "liability cap" {
					t.Errorf("query = %q, want %q", a.Query, "liability cap")
				}
			},
		},
		{
			name: "export with format",
			argv: []string{"sessions", "export", "conv_abc", "--format", "json"},
			validate: func(t *testing.T, a Args) {
				if a.Session != "conv_abc" || a.Format != "json" {
					t.Errorf("session = %q, format = %q", a.Session, a.Format)
				}
			},
		},
		{
			name: "delete requires explicit confirm flag",
			argv: []string{"sessions", "delete", "conv_abc"},
			validate: func(t *testing.T, a Args) {
				if a.Confirm {
					t.Error("Confirm should default to false")
				}
			},
		},
		{
			name: "delete with confirm",
			argv: []string{"sessions", "delete", "conv_abc", "--confirm"},
			validate: func(t *testing.T, a Args) {
				if !a.Confirm {
					t.Error("Confirm should be true")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, args := parseArgs(tt.argv)
			if cmd != CmdSessions {
				t.Fatalf("cmd = %v, want CmdSessions", cmd)
			}
			tt.validate(t, args)
		})
	}
}

// =============================================================================
// CONFIG SUBCOMMAND TESTS
// =============================================================================

func TestParseArgs_Config(t *testing.T) {
	cmd, args := parseArgs([]string{"config", "set", "chat.top_k", "12"})
	if cmd != CmdConfig {
		t.Fatalf("cmd = %v, want CmdConfig", cmd)
	}
	if args.Subcommand != "set" {
		t.Errorf("subcommand = %q, want set", args.Subcommand)
	}
	if len(args.Raw) != 2 || args.Raw[0] != "chat.top_k" || args.Raw[1] != "12" {
		t.Errorf("raw = %v, want [chat.top_k 12]", args.Raw)
	}
}

// =============================================================================
// JSON ENVELOPE TESTS
// =============================================================================

func TestJSONResponseEnvelope(t *testing.T) {
	resp := NewJSONResponse("ask", map[string]string{"answer": "42"})
	if !resp.Success {
		t.Error("Success should be true")
	}
	if resp.Command != "ask" {
		t.Errorf("command = %q, want ask", resp.Command)
	}
	if resp.Error != nil {
		t.Errorf("error = %v, want nil", resp.Error)
	}
	if resp.Timestamp == "" {
		t.Error("timestamp should be set")
	}
}

func TestJSONErrorResponseEnvelope(t *testing.T) {
	resp := NewJSONErrorResponse("sessions show", errNotFoundForTest{})
	if resp.Success {
		t.Error("Success should be false")
	}
	if resp.Error == nil || *resp.Error != "conversation not found" {
		t.Errorf("error = %v, want conversation not found", resp.Error)
	}
}

type errNotFoundForTest struct{}

func (errNotFoundForTest) Error() string { return "conversation not found" }
