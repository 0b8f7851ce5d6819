// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// export.go - Conversation export formats.
package storage

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/clausedesk/clausedesk-tui/internal/model"
)

// ExportMarkdown renders a conversation as a markdown transcript with
// citations and answer metadata.
func ExportMarkdown(conv *model.Conversation) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", conv.Title)
	fmt.Fprintf(&b, "Created: %s\n\n", conv.CreatedAt.Format("2006-01-02 15:04"))

	for _, msg := range conv.Messages {
		switch msg.Role {
		case model.RoleUser:
			fmt.Fprintf(&b, "## You\n\n%s\n\n", msg.Content)
		case model.RoleAssistant:
			b.WriteString("## ClauseDesk\n\n")
			b.WriteString(msg.GetDisplayContent())
			b.WriteString("\n\n")
			if msg.Cancelled {
				b.WriteString("*(response cancelled)*\n\n")
			}
			if msg.Failed {
				b.WriteString("*(response failed)*\n\n")
			}
			if len(msg.Sources) > 0 {
				b.WriteString("### Sources\n\n")
				for i, src := range msg.Sources {
					loc := src.Filename
					if loc == "" {
						loc = src.FileID
					}
					if src.Page > 0 {
						loc = fmt.Sprintf("%s, p.%d", loc, src.Page)
					}
					fmt.Fprintf(&b, "%d. [%.0f%%] %s", i+1, src.Score*100, src.Text)
					if loc != "" {
						fmt.Fprintf(&b, " (%s)", loc)
					}
					b.WriteString("\n")
				}
				b.WriteString("\n")
			}
			if msg.Meta != nil && msg.Meta.Confidence != "" {
				fmt.Fprintf(&b, "*Confidence: %s | Chunks: %d | %dms*\n\n",
					msg.Meta.Confidence, msg.Meta.RetrievedChunks, msg.Meta.ResponseTimeMs)
			}
		case model.RoleSystem:
			fmt.Fprintf(&b, "> %s\n\n", msg.Content)
		}
	}

	return b.String()
}

// ExportJSON renders a conversation as indented JSON.
func ExportJSON(conv *model.Conversation) ([]byte, error) {
	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to export conversation: %w", err)
	}
	return data, nil
}
