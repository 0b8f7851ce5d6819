// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// sessions.go - Saved conversation management for the clausedesk CLI.
//
// Handles "clausedesk sessions <subcommand>": list, show, search, export,
// delete, and reindex over the local conversation store and its search
// index.
package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/clausedesk/clausedesk-tui/internal/config"
	"github.com/clausedesk/clausedesk-tui/internal/history"
	"github.com/clausedesk/clausedesk-tui/internal/storage"
	"github.com/clausedesk/clausedesk-tui/internal/util"
)

// HandleSessions dispatches the sessions subcommands.
func HandleSessions(args Args) error {
	store, err := openStore()
	if err != nil {
		return err
	}

	switch args.Subcommand {
	case "list", "":
		return sessionsList(store, args)
	case "show":
		return sessionsShow(store, args)
	case "search":
		return sessionsSearch(store, args)
	case "export":
		return sessionsExport(store, args)
	case "delete":
		return sessionsDelete(store, args)
	case "reindex":
		return sessionsReindex(store, args)
	default:
		return fmt.Errorf("unknown sessions subcommand: %s", args.Subcommand)
	}
}

func openStore() (*storage.Store, error) {
	dir, err := storage.DefaultDir()
	if err != nil {
		return nil, err
	}
	return storage.NewStore(dir)
}

// openIndex opens the search index, honoring a configured db path.
func openIndex(store *storage.Store) (*history.Index, error) {
	cfg := config.Global()
	dbPath := cfg.History.DBPath
	if dbPath == "" {
		var err error
		dbPath, err = history.DefaultDBPath()
		if err != nil {
			return nil, err
		}
	}
	return history.Open(dbPath, store)
}

// =============================================================================
// SUBCOMMANDS
// =============================================================================

func sessionsList(store *storage.Store, args Args) error {
	metas, err := store.List()
	if err != nil {
		return err
	}

	if args.JSON {
		return NewJSONResponse("sessions list", metas).Print()
	}
	if len(metas) == 0 {
		fmt.Println("No saved conversations.")
		return nil
	}
	for _, meta := range metas {
		fmt.Printf("%-40s  %3d msgs  %s  %s\n",
			meta.ID, meta.MessageCount,
			meta.UpdatedAt.Format("2006-01-02 15:04"),
			util.TruncateRunes(meta.Title, 48))
	}
	return nil
}

func sessionsShow(store *storage.Store, args Args) error {
	if args.Session == "" {
		return errors.New("usage: clausedesk sessions show <id>")
	}
	conv, err := store.Load(args.Session)
	if err != nil {
		return err
	}

	if args.JSON {
		return NewJSONResponse("sessions show", conv).Print()
	}

	fmt.Println(promptStyle.Render(conv.Title))
	fmt.Println(metaStyle.Render(fmt.Sprintf("%s  %d messages",
		conv.UpdatedAt.Format("2006-01-02 15:04"), conv.MessageCount())))
	fmt.Println()
	fmt.Print(storage.ExportMarkdown(conv))
	return nil
}

func sessionsSearch(store *storage.Store, args Args) error {
	if args.Query == "" {
		return errors.New("usage: clausedesk sessions search <query>")
	}

	idx, err := openIndex(store)
	if err != nil {
		return err
	}
	defer idx.Close()

	hits, err := idx.Search(args.Query, 0)
	if err != nil {
		return err
	}

	if args.JSON {
		return NewJSONResponse("sessions search", hits).Print()
	}
	if len(hits) == 0 {
		fmt.Println("No matches.")
		return nil
	}
	for _, hit := range hits {
		fmt.Printf("%s  %s\n", promptStyle.Render(hit.ConversationID),
			metaStyle.Render(hit.Timestamp.Format("2006-01-02 15:04")))
		fmt.Printf("  [%s] %s\n", hit.Role, hit.Snippet)
	}
	return nil
}

func sessionsExport(store *storage.Store, args Args) error {
	if args.Session == "" {
		return errors.New("usage: clausedesk sessions export <id> [--format json|markdown]")
	}
	conv, err := store.Load(args.Session)
	if err != nil {
		return err
	}

	switch strings.ToLower(args.Format) {
	case "json":
		data, err := storage.ExportJSON(conv)
		if err != nil {
			return err
		}
		os.Stdout.Write(data)
		fmt.Println()
	case "markdown", "md", "":
		fmt.Print(storage.ExportMarkdown(conv))
	default:
		return fmt.Errorf("unknown export format: %s (use json or markdown)", args.Format)
	}
	return nil
}

func sessionsDelete(store *storage.Store, args Args) error {
	if args.Session == "" {
		return errors.New("usage: clausedesk sessions delete <id> --confirm")
	}
	if !args.Confirm {
		return errors.New("deletion requires --confirm")
	}
	if err := store.Delete(args.Session); err != nil {
		return err
	}

	// Best effort: keep the index in sync without a full reindex.
	if idx, err := openIndex(store); err == nil {
		idx.RemoveConversation(args.Session)
		idx.Close()
	}

	if args.JSON {
		return NewJSONResponse("sessions delete", map[string]string{"deleted": args.Session}).Print()
	}
	fmt.Println("Deleted", args.Session)
	return nil
}

func sessionsReindex(store *storage.Store, args Args) error {
	idx, err := openIndex(store)
	if err != nil {
		return err
	}
	defer idx.Close()

	start := time.Now()
	if err := idx.Reindex(); err != nil {
		return err
	}
	convs, msgs, err := idx.Stats()
	if err != nil {
		return err
	}

	if args.JSON {
		return NewJSONResponse("sessions reindex", map[string]any{
			"conversations": convs,
			"messages":      msgs,
			"elapsed_ms":    time.Since(start).Milliseconds(),
		}).Print()
	}
	fmt.Printf("Indexed %d conversations (%d messages) in %s.\n",
		convs, msgs, time.Since(start).Round(time.Millisecond))
	return nil
}
