// clausedesk TUI - A terminal interface for the ClauseDesk contract assistant.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/clausedesk/clausedesk-tui/internal/api"
	"github.com/clausedesk/clausedesk-tui/internal/cli"
	"github.com/clausedesk/clausedesk-tui/internal/config"
	"github.com/clausedesk/clausedesk-tui/internal/history"
	"github.com/clausedesk/clausedesk-tui/internal/model"
	"github.com/clausedesk/clausedesk-tui/internal/storage"
	"github.com/clausedesk/clausedesk-tui/internal/ui/chat"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	// Sync version info with cli package
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	cmd, args := cli.Parse()

	switch cmd {
	case cli.CmdTUI:
		if err := runTUI(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case cli.CmdAsk:
		if err := cli.HandleAsk(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case cli.CmdChat:
		if err := cli.HandleChat(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case cli.CmdSessions:
		if err := cli.HandleSessions(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case cli.CmdConfig:
		if err := cli.HandleConfig(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case cli.CmdVersion:
		cli.PrintVersion()
	case cli.CmdHelp:
		cli.PrintUsage()
	}
}

// runTUI starts the full-screen chat interface.
func runTUI(args cli.Args) error {
	if err := cli.RequiresTTY("tui"); err != nil {
		return err
	}

	cfg := config.Global()
	cfg.ApplyEnvOverrides()
	if args.ServerURL != "" {
		cfg.Server.URL = args.ServerURL
	}
	if args.Model != "" {
		cfg.Server.Model = args.Model
	}
	if args.TopK > 0 {
		cfg.Chat.TopK = args.TopK
	}

	client := api.NewClient(cfg.Server.URL, cfg.Server.Token)
	if cfg.Server.Model != "" {
		client.WithModel(cfg.Server.Model)
	}

	var store *storage.Store
	if dir, err := storage.DefaultDir(); err == nil {
		if s, err := storage.NewStore(dir); err == nil {
			store = s
		}
	}

	// Keep the search index current while the TUI runs.
	if cfg.History.Enabled && cfg.History.Watch && store != nil {
		dbPath := cfg.History.DBPath
		if dbPath == "" {
			dbPath, _ = history.DefaultDBPath()
		}
		if dbPath != "" {
			if idx, err := history.Open(dbPath, store); err == nil {
				if err := idx.Watch(); err == nil {
					defer idx.Close()
				} else {
					idx.Close()
				}
			}
		}
	}

	m := chat.New(client, model.NewConversation(), store, cfg)
	p := tea.NewProgram(m, tea.WithAltScreen())
	m.SetSender(p.Send)

	_, err := p.Run()
	return err
}
