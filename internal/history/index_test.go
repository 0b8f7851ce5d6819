// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/clausedesk/clausedesk-tui/internal/model"
	"github.com/clausedesk/clausedesk-tui/internal/storage"
)

// newTestIndex creates a store and index in a temp directory.
func newTestIndex(t *testing.T) (*Index, *storage.Store) {
	t.Helper()

	store, err := storage.NewStore(filepath.Join(t.TempDir(), "conversations"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	idx, err := Open(filepath.Join(t.TempDir(), "history.db"), store)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx, store
}

// saveConversation creates and saves a conversation with one exchange.
func saveConversation(t *testing.T, store *storage.Store, question, answer string) *model.Conversation {
	t.Helper()

	conv := model.NewConversation()
	conv.AddUserMessage(question)
	conv.AddAssistantMessage()
	conv.AppendToLast(answer)
	conv.FinalizeLast()

	if err := store.Save(conv); err != nil {
		t.Fatalf("Save: %v", err)
	}
	return conv
}

func TestReindexAndStats(t *testing.T) {
	idx, store := newTestIndex(t)

	saveConversation(t, store, "What is the notice period?", "Thirty days per section 4.2.")
	saveConversation(t, store, "Is there an indemnity cap?", "Yes, capped at fees paid.")

	if err := idx.Reindex(); err != nil {
		t.Fatalf("Reindex: %v", err)
	}

	convs, msgs, err := idx.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if convs != 2 {
		t.Errorf("conversations = %d, want 2", convs)
	}
	if msgs != 4 {
		t.Errorf("messages = %d, want 4", msgs)
	}
}

func TestSearchFindsMessages(t *testing.T) {
	idx, store := newTestIndex(t)

	conv := saveConversation(t, store, "What is the notice period?", "Thirty days per section 4.2.")
	saveConversation(t, store, "Unrelated question", "Unrelated answer")

	if err := idx.Reindex(); err != nil {
		t.Fatalf("Reindex: %v", err)
	}

	hits, err := idx.Search("notice period", 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("got %d hits, want 1", len(hits))
	}
	if hits[0].ConversationID != conv.ID {
		t.Errorf("hit conversation = %q, want %q", hits[0].ConversationID, conv.ID)
	}
	if hits[0].Role != string(model.RoleUser) {
		t.Errorf("hit role = %q, want user", hits[0].Role)
	}
}

func TestSearchCaseInsensitive(t *testing.T) {
	idx, store := newTestIndex(t)

	saveConversation(t, store, "Explain the Termination clause", "It allows exit for convenience.")

	if err := idx.Reindex(); err != nil {
		t.Fatalf("Reindex: %v", err)
	}

	hits, err := idx.Search("termination", 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) == 0 {
		t.Error("expected case-insensitive match")
	}
}

func TestSearchEscapesLikeMetacharacters(t *testing.T) {
	idx, store := newTestIndex(t)

	saveConversation(t, store, "What does 100% liability mean?", "Full exposure without a cap.")
	saveConversation(t, store, "plain text", "plain answer")

	if err := idx.Reindex(); err != nil {
		t.Fatalf("Reindex: %v", err)
	}

	// A literal % must not act as a wildcard matching everything.
	hits, err := idx.Search("100%", 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 {
		t.Errorf("got %d hits for literal %%, want 1", len(hits))
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	idx, _ := newTestIndex(t)

	hits, err := idx.Search("   ", 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if hits != nil {
		t.Errorf("expected nil hits for blank query, got %v", hits)
	}
}

func TestUpdateConversation(t *testing.T) {
	idx, store := newTestIndex(t)

	conv := saveConversation(t, store, "first question", "first answer")
	if err := idx.Reindex(); err != nil {
		t.Fatalf("Reindex: %v", err)
	}

	conv.AddUserMessage("followup about venue")
	conv.AddAssistantMessage()
	conv.AppendToLast("Courts of Delaware.")
	conv.FinalizeLast()
	if err := store.Save(conv); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := idx.UpdateConversation(conv.ID); err != nil {
		t.Fatalf("UpdateConversation: %v", err)
	}

	hits, err := idx.Search("venue", 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 {
		t.Errorf("got %d hits after update, want 1", len(hits))
	}
}

func TestUpdateConversationRemovesDeleted(t *testing.T) {
	idx, store := newTestIndex(t)

	conv := saveConversation(t, store, "transient question", "transient answer")
	if err := idx.Reindex(); err != nil {
		t.Fatalf("Reindex: %v", err)
	}

	if err := store.Delete(conv.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := idx.UpdateConversation(conv.ID); err != nil {
		t.Fatalf("UpdateConversation: %v", err)
	}

	convs, _, err := idx.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if convs != 0 {
		t.Errorf("conversations = %d after delete, want 0", convs)
	}
}

func TestReindexReplacesStaleEntries(t *testing.T) {
	idx, store := newTestIndex(t)

	conv := saveConversation(t, store, "keep this", "kept answer")
	if err := idx.Reindex(); err != nil {
		t.Fatalf("Reindex: %v", err)
	}

	if err := store.Delete(conv.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	saveConversation(t, store, "replacement", "new answer")

	if err := idx.Reindex(); err != nil {
		t.Fatalf("Reindex: %v", err)
	}

	hits, err := idx.Search("keep this", 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("stale entry survived reindex: %v", hits)
	}
}

func TestSnippetCentersOnMatch(t *testing.T) {
	long := ""
	for i := 0; i < 40; i++ {
		long += "filler words here "
	}
	long += "NEEDLE"
	for i := 0; i < 40; i++ {
		long += " more filler"
	}

	snippet := makeSnippet(long, "needle")
	if len([]rune(snippet)) > snippetRunes+6 {
		t.Errorf("snippet too long: %d runes", len([]rune(snippet)))
	}
	if !strings.Contains(snippet, "NEEDLE") {
		t.Errorf("snippet does not contain match: %q", snippet)
	}
	if !strings.HasPrefix(snippet, "...") || !strings.HasSuffix(snippet, "...") {
		t.Errorf("expected ellipses on both sides: %q", snippet)
	}
}
