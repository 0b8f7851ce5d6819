// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// search.go - Full-history message search.
package history

import (
	"fmt"
	"strings"
	"time"

	"github.com/clausedesk/clausedesk-tui/internal/util"
)

// =============================================================================
// SEARCH
// =============================================================================

// Hit is one message matching a search query.
type Hit struct {
	ConversationID string
	Title          string
	Position       int
	Role           string
	Snippet        string
	Timestamp      time.Time
}

const (
	// DefaultSearchLimit caps result counts.
	DefaultSearchLimit = 50

	// snippetRunes is the display length of a result snippet.
	snippetRunes = 120
)

// Search finds messages containing the query, case-insensitive, most
// recent conversations first. limit <= 0 applies DefaultSearchLimit.
func (idx *Index) Search(query string, limit int) ([]Hit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	rows, err := idx.db.Query(`
		SELECT m.conversation_id, c.title, m.position, m.role, m.content, m.created_at
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		WHERE m.content LIKE ? ESCAPE '\'
		ORDER BY c.updated_at DESC, m.position ASC
		LIMIT ?`,
		"%"+escapeLike(query)+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		var content string
		var createdAt int64
		if err := rows.Scan(&h.ConversationID, &h.Title, &h.Position, &h.Role, &content, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		h.Snippet = makeSnippet(content, query)
		h.Timestamp = time.Unix(createdAt, 0)
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// escapeLike escapes LIKE metacharacters in a user query.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}

// makeSnippet returns a window of content around the first match.
func makeSnippet(content, query string) string {
	content = strings.ReplaceAll(content, "\n", " ")
	lower := strings.ToLower(content)
	pos := strings.Index(lower, strings.ToLower(query))
	if pos < 0 {
		return util.TruncateRunes(content, snippetRunes)
	}

	// Center the window on the match, in rune space.
	runes := []rune(content)
	matchRune := util.RuneLen(content[:pos])
	start := matchRune - snippetRunes/3
	if start < 0 {
		start = 0
	}
	end := start + snippetRunes
	if end > len(runes) {
		end = len(runes)
	}

	snippet := string(runes[start:end])
	if start > 0 {
		snippet = "..." + snippet
	}
	if end < len(runes) {
		snippet += "..."
	}
	return snippet
}
