// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/clausedesk/clausedesk-tui/internal/model"
	"github.com/clausedesk/clausedesk-tui/internal/util"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// MaxConversations caps stored conversations; the oldest are pruned.
	MaxConversations = 200

	// fileExt is the extension for conversation files.
	fileExt = ".json"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrConversationNotFound indicates the requested conversation does not
// exist in the store.
var ErrConversationNotFound = errors.New("conversation not found")

// StoreError wraps a storage failure with the conversation id involved.
type StoreError struct {
	ID  string
	Op  string
	Err error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.ID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// =============================================================================
// STORE CONTRACT
// =============================================================================

// ConversationStore is the persistence contract the UI layers depend on.
type ConversationStore interface {
	Save(conv *model.Conversation) error
	Load(id string) (*model.Conversation, error)
	List() ([]ConversationMeta, error)
	Delete(id string) error
}

// ConversationMeta is a listing entry without message bodies.
type ConversationMeta struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// =============================================================================
// FILE STORE
// =============================================================================

// Store persists conversations as one JSON file per conversation.
type Store struct {
	dir string
}

// Compile-time check that Store satisfies the contract.
var _ ConversationStore = (*Store)(nil)

// NewStore creates a store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// DefaultDir returns the default conversations directory.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".clausedesk", "conversations"), nil
}

// Dir returns the store's root directory.
func (s *Store) Dir() string {
	return s.dir
}

// path returns the file path for a conversation id.
func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+fileExt)
}

// Save writes a conversation atomically. Empty conversations are skipped.
// When the store exceeds MaxConversations the oldest entries are pruned.
func (s *Store) Save(conv *model.Conversation) error {
	if conv == nil || conv.IsEmpty() {
		return nil
	}

	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return &StoreError{ID: conv.ID, Op: "save", Err: err}
	}

	// SECURITY: 0600 - conversations may contain contract text.
	if err := util.AtomicWriteFile(s.path(conv.ID), data, 0600); err != nil {
		return &StoreError{ID: conv.ID, Op: "save", Err: err}
	}

	s.enforceLimit()
	return nil
}

// Load reads one conversation. Returns an error matching
// ErrConversationNotFound via errors.Is when the id does not exist.
func (s *Store) Load(id string) (*model.Conversation, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &StoreError{ID: id, Op: "load", Err: ErrConversationNotFound}
		}
		return nil, &StoreError{ID: id, Op: "load", Err: err}
	}

	var conv model.Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, &StoreError{ID: id, Op: "load", Err: fmt.Errorf("corrupted file: %w", err)}
	}
	return &conv, nil
}

// List returns metadata for all stored conversations, newest first.
// Corrupted files are skipped, not fatal.
func (s *Store) List() ([]ConversationMeta, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read storage directory: %w", err)
	}

	metas := make([]ConversationMeta, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileExt) {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), fileExt)
		conv, err := s.Load(id)
		if err != nil {
			// RELIABILITY: One corrupted file must not break listing.
			continue
		}
		metas = append(metas, ConversationMeta{
			ID:           conv.ID,
			Title:        conv.Title,
			MessageCount: conv.MessageCount(),
			UpdatedAt:    conv.UpdatedAt,
		})
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].UpdatedAt.After(metas[j].UpdatedAt)
	})
	return metas, nil
}

// Delete removes a conversation. Returns an error matching
// ErrConversationNotFound via errors.Is when the id does not exist.
func (s *Store) Delete(id string) error {
	err := os.Remove(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return &StoreError{ID: id, Op: "delete", Err: ErrConversationNotFound}
		}
		return &StoreError{ID: id, Op: "delete", Err: err}
	}
	return nil
}

// Clear removes every stored conversation.
func (s *Store) Clear() error {
	metas, err := s.List()
	if err != nil {
		return err
	}
	for _, meta := range metas {
		if err := s.Delete(meta.ID); err != nil {
			return err
		}
	}
	return nil
}

// Search returns conversations whose title contains the query,
// case-insensitive, newest first.
func (s *Store) Search(query string) ([]ConversationMeta, error) {
	metas, err := s.List()
	if err != nil {
		return nil, err
	}
	query = strings.ToLower(query)
	matched := metas[:0]
	for _, meta := range metas {
		if strings.Contains(strings.ToLower(meta.Title), query) {
			matched = append(matched, meta)
		}
	}
	return matched, nil
}

// enforceLimit prunes the oldest conversations over MaxConversations.
func (s *Store) enforceLimit() {
	metas, err := s.List()
	if err != nil || len(metas) <= MaxConversations {
		return
	}
	for _, meta := range metas[MaxConversations:] {
		os.Remove(s.path(meta.ID))
	}
}
