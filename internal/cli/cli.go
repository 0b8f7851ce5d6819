// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - CLI parsing and command routing for clausedesk.
package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdTUI Command = iota
	CmdAsk
	CmdChat
	CmdSessions
	CmdConfig
	CmdVersion
	CmdHelp
)

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	Quiet    bool
	Verbose  bool
	JSON     bool
	NoStream bool
	Model    string
	ServerURL string
	TopK     int

	// Command-specific
	Query        string
	Subcommand   string
	Session      string
	Format       string
	Confirm      bool
	ContextFiles []string

	// Raw args (remaining after flag parsing)
	Raw []string
}

const usageText = `clausedesk - terminal client for the ClauseDesk contract assistant

ClauseDesk answers questions about your uploaded contracts using
retrieval-augmented generation, with streamed answers and citations
back to the source clauses.

Usage:
  clausedesk                       Start TUI (default)
  clausedesk ask "question"        Ask a single question
  clausedesk chat                  Interactive chat (REPL)
  clausedesk sessions [subcommand] Saved conversation management
  clausedesk config [subcommand]   Configuration (show|init|get|set|path|keys)
  clausedesk version               Show version
  clausedesk help                  Show this help

Ask:
  clausedesk ask "What is the notice period in the MSA?"
    --json                         Output the full response as JSON
    --no-stream                    Wait for the complete answer
    --model NAME                   Override the configured model
    --top-k N                      Retrieved passages per question (1-20)
    --file ID                      Restrict retrieval to a contract file
                                   (repeatable)

Chat commands (inside the REPL):
  /help                            Show available commands
  /clear                           Clear the conversation
  /model [name]                    Show or switch model
  /topk [n]                        Show or set retrieval depth
  /sources [on|off]                Toggle citation display
  /rate <1-5> [feedback]           Rate the last answer
  /save                            Save the conversation
  /quit                            Exit

Sessions:
  clausedesk sessions list         List saved conversations
  clausedesk sessions show <id>    Print a conversation
  clausedesk sessions search <q>   Full-text search across history
  clausedesk sessions export <id>  Export a conversation
    --format md|json               Export format (default: md)
  clausedesk sessions delete <id> --confirm
                                   Delete a conversation
  clausedesk sessions reindex      Rebuild the search index

Global flags:
  -m, --model NAME                 Model override
  --url URL                        Backend URL override
  -q, --quiet                      Minimal output
  -v, --verbose                    Verbose output

Environment:
  CLAUSEDESK_URL                   Backend base URL
  CLAUSEDESK_TOKEN                 Bearer token
  CLAUSEDESK_MODEL                 Model override
`

// PrintUsage writes the top-level usage text to stdout.
func PrintUsage() {
	fmt.Print(usageText)
}

// PrintVersion writes version information to stdout.
func PrintVersion() {
	fmt.Printf("clausedesk %s (commit %s, built %s)\n", Version, GitCommit, BuildDate)
}

// Parse parses os.Args into a command and its arguments.
func Parse() (Command, Args) {
	return parseArgs(os.Args[1:])
}

// parseArgs is the testable core of Parse.
func parseArgs(argv []string) (Command, Args) {
	remaining, args := parseGlobalFlags(argv)

	if len(remaining) == 0 {
		return CmdTUI, args
	}

	cmd := strings.ToLower(remaining[0])
	remaining = remaining[1:]
	args.Raw = remaining

	switch cmd {
	case "tui":
		return CmdTUI, args

	case "ask":
		parseAskArgs(&args, remaining)
		return CmdAsk, args

	case "chat":
		return CmdChat, args

	case "session", "sessions":
		parseSessionsArgs(&args, remaining)
		return CmdSessions, args

	case "config":
		if len(remaining) > 0 {
			args.Subcommand = remaining[0]
			args.Raw = remaining[1:]
		}
		return CmdConfig, args

	case "version", "-V", "--version":
		return CmdVersion, args

	case "help", "-h", "--help":
		return CmdHelp, args

	default:
		// Unrecognized word: treat as an ask query for convenience.
		parseAskArgs(&args, append([]string{cmd}, remaining...))
		return CmdAsk, args
	}
}

// parseGlobalFlags extracts flags valid for every command.
func parseGlobalFlags(argv []string) ([]string, Args) {
	args := Args{TopK: 0}
	var remaining []string

	i := 0
	for i < len(argv) {
		switch arg := argv[i]; arg {
		case "-q", "--quiet":
			args.Quiet = true
		case "-v", "--verbose":
			args.Verbose = true
		case "--json":
			args.JSON = true
		case "--no-stream":
			args.NoStream = true
		case "-m", "--model":
			if i+1 < len(argv) {
				i++
				args.Model = argv[i]
			}
		case "--url":
			if i+1 < len(argv) {
				i++
				args.ServerURL = argv[i]
			}
		case "--top-k", "--topk":
			if i+1 < len(argv) {
				i++
				if n, err := strconv.Atoi(argv[i]); err == nil {
					args.TopK = n
				}
			}
		default:
			remaining = append(remaining, arg)
		}
		i++
	}
	return remaining, args
}

// parseAskArgs joins the remaining positional words into the query.
func parseAskArgs(args *Args, remaining []string) {
	var words []string
	i := 0
	for i < len(remaining) {
		arg := remaining[i]
		switch {
		case arg == "--file":
			if i+1 < len(remaining) {
				i++
				args.ContextFiles = append(args.ContextFiles, remaining[i])
			}
		case !strings.HasPrefix(arg, "-"):
			words = append(words, arg)
		}
		i++
	}
	args.Query = strings.Join(words, " ")
}

// parseSessionsArgs extracts the sessions subcommand and its arguments.
func parseSessionsArgs(args *Args, remaining []string) {
	var positional []string

	i := 0
	for i < len(remaining) {
		switch arg := remaining[i]; arg {
		case "--confirm":
			args.Confirm = true
		case "--format", "-f":
			if i+1 < len(remaining) {
				i++
				args.Format = remaining[i]
			}
		default:
			positional = append(positional, arg)
		}
		i++
	}

	if len(positional) > 0 {
		args.Subcommand = positional[0]
	}
	if len(positional) > 1 {
		args.Session = positional[1]
		// search takes a multi-word query rather than an ID
		if args.Subcommand == "search" {
			args.Query = strings.Join(positional[1:], " ")
		}
	}
}
