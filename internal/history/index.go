// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// index.go - SQLite index over the conversation store.
//
// The store's JSON files are the source of truth; the index is derived
// and can always be rebuilt with Reindex. A file watcher keeps it fresh
// when conversation files change outside the running client.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/clausedesk/clausedesk-tui/internal/model"
	"github.com/clausedesk/clausedesk-tui/internal/storage"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrIndexing indicates a rebuild is already in progress.
	ErrIndexing = errors.New("indexing in progress")
)

// =============================================================================
// INDEX
// =============================================================================

// Index maintains a searchable SQLite mirror of the conversation store.
type Index struct {
	db    *sql.DB
	store *storage.Store

	mu       sync.Mutex
	indexing bool
	watcher  *Watcher
}

// DefaultDBPath returns the default index database location.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".clausedesk", "history.db"), nil
}

// Open opens (or creates) the index database for a conversation store.
func Open(dbPath string, store *storage.Store) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite supports one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent access.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Index{db: db, store: store}, nil
}

// Close releases the database and stops the watcher if running.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.watcher != nil {
		idx.watcher.Close()
		idx.watcher = nil
	}
	if idx.db != nil {
		return idx.db.Close()
	}
	return nil
}

// =============================================================================
// INDEXING
// =============================================================================

// Reindex rebuilds the index from every file in the store.
func (idx *Index) Reindex() error {
	idx.mu.Lock()
	if idx.indexing {
		idx.mu.Unlock()
		return ErrIndexing
	}
	idx.indexing = true
	idx.mu.Unlock()

	defer func() {
		idx.mu.Lock()
		idx.indexing = false
		idx.mu.Unlock()
	}()

	metas, err := idx.store.List()
	if err != nil {
		return fmt.Errorf("failed to list store: %w", err)
	}

	tx, err := idx.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM conversations"); err != nil {
		return fmt.Errorf("failed to clear index: %w", err)
	}

	for _, meta := range metas {
		conv, err := idx.store.Load(meta.ID)
		if err != nil {
			// Corrupted files are already skipped by List; a racing
			// delete lands here. Either way, skip.
			continue
		}
		if err := insertConversation(tx, conv); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// UpdateConversation refreshes one conversation in the index.
func (idx *Index) UpdateConversation(id string) error {
	conv, err := idx.store.Load(id)
	if err != nil {
		if errors.Is(err, storage.ErrConversationNotFound) {
			return idx.RemoveConversation(id)
		}
		return err
	}

	tx, err := idx.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM conversations WHERE id = ?", id); err != nil {
		return err
	}
	if err := insertConversation(tx, conv); err != nil {
		return err
	}
	return tx.Commit()
}

// RemoveConversation drops one conversation from the index.
func (idx *Index) RemoveConversation(id string) error {
	_, err := idx.db.Exec("DELETE FROM conversations WHERE id = ?", id)
	return err
}

// insertConversation writes a conversation and its messages inside tx.
func insertConversation(tx *sql.Tx, conv *model.Conversation) error {
	now := time.Now().Unix()
	_, err := tx.Exec(
		"INSERT INTO conversations (id, title, updated_at, indexed_at) VALUES (?, ?, ?, ?)",
		conv.ID, conv.Title, conv.UpdatedAt.Unix(), now)
	if err != nil {
		return fmt.Errorf("failed to insert conversation %s: %w", conv.ID, err)
	}

	stmt, err := tx.Prepare(
		"INSERT INTO messages (conversation_id, position, role, content, created_at) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, msg := range conv.Messages {
		content := msg.GetDisplayContent()
		if content == "" {
			continue
		}
		if _, err := stmt.Exec(conv.ID, i, string(msg.Role), content, msg.Timestamp.Unix()); err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}
	return nil
}

// Stats returns the indexed conversation and message counts.
func (idx *Index) Stats() (conversations, messages int, err error) {
	if err = idx.db.QueryRow("SELECT COUNT(*) FROM conversations").Scan(&conversations); err != nil {
		return 0, 0, err
	}
	if err = idx.db.QueryRow("SELECT COUNT(*) FROM messages").Scan(&messages); err != nil {
		return 0, 0, err
	}
	return conversations, messages, nil
}
