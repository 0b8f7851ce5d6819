// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"

	"github.com/clausedesk/clausedesk-tui/internal/model"
	"github.com/clausedesk/clausedesk-tui/internal/util"
)

// Fixed chrome heights used for viewport sizing.
const (
	headerHeight = 3
	inputHeight  = 3
	statusHeight = 1
)

func newViewport(width, height int) viewport.Model {
	vp := viewport.New(width, height)
	vp.MouseWheelEnabled = true
	return vp
}

// =============================================================================
// VIEW
// =============================================================================

// View renders the complete chat interface.
func (m *Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.renderInput())
	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())
	return b.String()
}

func (m *Model) renderHeader() string {
	title := m.theme.HeaderTitle.Render("ClauseDesk")
	subtitle := m.theme.HeaderSubtitle.Render("contract assistant")

	line := title + " " + subtitle
	if m.backendDown {
		line += "  " + m.theme.ErrorStyle.Render("backend unreachable")
	}
	return m.theme.Header.Width(m.width - 2).Render(line)
}

func (m *Model) renderInput() string {
	return m.theme.InputContainer.Width(m.width - 2).Render(m.input.View())
}

func (m *Model) renderStatusBar() string {
	var parts []string

	switch m.state {
	case StateStreaming:
		parts = append(parts, m.spinner.View()+m.theme.ThinkingText.Render(" thinking"))
	case StateError:
		if m.lastError != nil {
			parts = append(parts, m.theme.ErrorStyle.Render(util.TruncateRunes(m.lastError.Error(), 60)))
		}
	default:
		if m.statusMsg != "" {
			parts = append(parts, m.theme.SuccessStyle.Render(m.statusMsg))
		}
	}

	shortcuts := m.theme.ShortcutKey.Render("Enter") + m.theme.ShortcutDesc.Render(" ask  ") +
		m.theme.ShortcutKey.Render("Esc") + m.theme.ShortcutDesc.Render(" cancel  ") +
		m.theme.ShortcutKey.Render("C-s") + m.theme.ShortcutDesc.Render(" save  ") +
		m.theme.ShortcutKey.Render("C-c") + m.theme.ShortcutDesc.Render(" quit")
	parts = append(parts, shortcuts)

	return m.theme.StatusBar.Width(m.width).Render(strings.Join(parts, "  "))
}

// =============================================================================
// CONVERSATION RENDERING
// =============================================================================

// refreshViewport re-renders the conversation into the viewport.
func (m *Model) refreshViewport(gotoBottom bool) {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderConversation())
	if gotoBottom {
		m.viewport.GotoBottom()
	}
}

func (m *Model) renderConversation() string {
	if m.conversation.IsEmpty() {
		return m.theme.HeaderSubtitle.Render("\n  Ask a question about your contracts to get started.\n")
	}

	width := m.viewport.Width - 4
	if width < 20 {
		width = 20
	}

	var b strings.Builder
	for _, msg := range m.conversation.Messages {
		switch msg.Role {
		case model.RoleUser:
			b.WriteString(m.theme.UserLabel.Render("You"))
			b.WriteString("\n")
			b.WriteString(m.theme.UserText.Width(width).Render(msg.Content))
			b.WriteString("\n\n")

		case model.RoleAssistant:
			b.WriteString(m.theme.AssistantLabel.Render("ClauseDesk"))
			b.WriteString("\n")
			b.WriteString(m.renderAnswer(msg, width))
			b.WriteString("\n\n")
		}
	}
	return b.String()
}

func (m *Model) renderAnswer(msg *model.Message, width int) string {
	var b strings.Builder

	content := msg.GetDisplayContent()
	if content != "" {
		b.WriteString(m.theme.AssistantText.Width(width).Render(content))
	}

	if msg.Cancelled {
		b.WriteString("\n")
		b.WriteString(m.theme.CancelledNote.Render("(cancelled)"))
	}
	if msg.Failed {
		b.WriteString("\n")
		b.WriteString(m.theme.FailedNote.Render("(failed)"))
	}

	if m.cfg.UI.ShowSources && len(msg.Sources) > 0 {
		b.WriteString("\n")
		b.WriteString(m.renderSources(msg.Sources))
	}

	if m.cfg.UI.ShowConfidence && msg.Meta != nil && msg.Meta.Confidence != "" {
		b.WriteString("\n")
		label := msg.Meta.Confidence
		b.WriteString(m.theme.ConfidenceStyle(label).Render("confidence " + label))
	}

	return b.String()
}

func (m *Model) renderSources(sources []model.Citation) string {
	var b strings.Builder
	b.WriteString(m.theme.CitationHeader.Render("Sources"))
	for i, src := range sources {
		b.WriteString("\n")

		loc := src.Filename
		if src.Page > 0 {
			loc = fmt.Sprintf("%s p.%d", src.Filename, src.Page)
		}

		line := fmt.Sprintf("%d. %s %s  %s",
			i+1,
			m.theme.CitationFile.Render(loc),
			m.theme.CitationScore.Render(fmt.Sprintf("(%.0f%%)", src.Score*100)),
			util.TruncateRunes(src.Text, 80),
		)
		b.WriteString(m.theme.CitationItem.Render(line))
	}
	return b.String()
}
