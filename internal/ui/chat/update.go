// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/clausedesk/clausedesk-tui/internal/api"
	"github.com/clausedesk/clausedesk-tui/internal/session"
)

// =============================================================================
// COMMAND CREATORS
// =============================================================================

// streamCmd starts the streaming request in a goroutine. Content and
// source events arrive via m.send; the command's return value settles
// the stream (complete, error, or cancelled).
func (m *Model) streamCmd(req *api.ChatRequest, messageID string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithCancel(context.Background())
		m.cancelMgr.set(cancel)
		defer cancel()

		var terminal tea.Msg

		err := m.client.ChatStream(ctx, req, func(ev api.StreamEvent) {
			switch ev.Type {
			case api.EventContent:
				m.send(StreamTokenMsg{MessageID: messageID, Token: ev.Content})
			case api.EventSources:
				m.send(StreamSourcesMsg{MessageID: messageID, Sources: session.ToCitations(ev.Sources)})
			case api.EventDone:
				terminal = StreamCompleteMsg{MessageID: messageID, Meta: session.ToAnswerMeta(ev.Done)}
			case api.EventError:
				terminal = StreamErrorMsg{MessageID: messageID, Err: errors.New(ev.Err)}
			}
		})

		if err != nil {
			if errors.Is(err, context.Canceled) {
				return StreamCancelledMsg{MessageID: messageID}
			}
			return StreamErrorMsg{MessageID: messageID, Err: err}
		}
		return terminal
	}
}

// healthCheckCmd probes the backend once at startup.
func (m *Model) healthCheckCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := m.client.Health(ctx)
		return HealthCheckMsg{Reachable: err == nil, Err: err}
	}
}

// saveCmd persists the conversation.
func (m *Model) saveCmd() tea.Cmd {
	conv := m.conversation
	store := m.store
	return func() tea.Msg {
		if store == nil || conv.IsEmpty() {
			return ConversationSavedMsg{ID: conv.ID}
		}
		return ConversationSavedMsg{ID: conv.ID, Err: store.Save(conv)}
	}
}

// =============================================================================
// UPDATE
// =============================================================================

// Update handles all Bubble Tea messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		m.activity.Touch()
		return m.handleKey(msg)

	case ActivityTickMsg:
		return m.handleActivityTick()

	case StreamTokenMsg:
		if msg.MessageID != m.streamingMsgID {
			return m, nil
		}
		m.streamingBuffer.Write(msg.Token)
		return m, nil

	case StreamSourcesMsg:
		if msg.MessageID != m.streamingMsgID {
			return m, nil
		}
		if turn := m.conversation.Last(); turn != nil {
			turn.SetSources(msg.Sources)
		}
		return m, nil

	case StreamTickMsg:
		if m.state != StateStreaming {
			return m, nil
		}
		if content, ok := m.streamingBuffer.Flush(); ok {
			m.conversation.AppendToLast(content)
			m.refreshViewport(true)
		}
		return m, streamTickCmd()

	case StreamCompleteMsg:
		if msg.MessageID != m.streamingMsgID {
			return m, nil
		}
		m.drainBuffer()
		if turn := m.conversation.Last(); turn != nil {
			meta := msg.Meta
			turn.Meta = &meta
		}
		m.conversation.FinalizeLast()
		m.settleStream(StateReady, "")
		if m.cfg.Chat.AutoSave {
			return m, m.saveCmd()
		}
		return m, nil

	case StreamErrorMsg:
		if msg.MessageID != m.streamingMsgID {
			return m, nil
		}
		m.drainBuffer()
		if turn := m.conversation.Last(); turn != nil {
			turn.Failed = true
		}
		m.conversation.FinalizeLast()
		m.lastError = msg.Err
		m.settleStream(StateError, "")
		return m, nil

	case StreamCancelledMsg:
		if msg.MessageID != m.streamingMsgID {
			return m, nil
		}
		// Partial content survives cancellation.
		m.drainBuffer()
		if turn := m.conversation.Last(); turn != nil {
			turn.Cancelled = true
		}
		m.conversation.FinalizeLast()
		m.settleStream(StateReady, "answer cancelled")
		return m, nil

	case ConversationSavedMsg:
		if msg.Err != nil {
			m.statusMsg = "save failed: " + msg.Err.Error()
		} else {
			m.statusMsg = "conversation saved"
		}
		return m, nil

	case HealthCheckMsg:
		m.backendDown = !msg.Reachable
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// handleResize recalculates component dimensions.
func (m *Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height

	chromeHeight := headerHeight + inputHeight + statusHeight
	vpHeight := msg.Height - chromeHeight
	if vpHeight < 1 {
		vpHeight = 1
	}

	if !m.ready {
		m.viewport = newViewport(msg.Width, vpHeight)
		m.ready = true
	} else {
		m.viewport.Width = msg.Width
		m.viewport.Height = vpHeight
	}
	m.input.Width = msg.Width - 4
	m.refreshViewport(false)
	return m, nil
}

// handleKey routes keyboard input.
// activityTickInterval is how often the idle/auto-save timers are checked.
const activityTickInterval = 15 * time.Second

// activityTickCmd schedules the next activity check.
func activityTickCmd() tea.Cmd {
	return tea.Tick(activityTickInterval, func(t time.Time) tea.Msg {
		return ActivityTickMsg{Time: t}
	})
}

// handleActivityTick runs the idle and auto-save timers. The manager's
// callbacks set fields on the model, so this must stay in the update loop.
func (m *Model) handleActivityTick() (tea.Model, tea.Cmd) {
	if m.state == StateStreaming {
		m.activity.Touch()
	}
	m.activity.Check()

	if m.idleTimedOut {
		return m, tea.Quit
	}
	var cmd tea.Cmd
	if m.wantAutoSave {
		m.wantAutoSave = false
		if m.cfg.Chat.AutoSave {
			cmd = m.saveCmd()
		}
	}
	return m, tea.Batch(cmd, activityTickCmd())
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keyMap.Quit):
		m.cancelMgr.cancel()
		m.activity.Stop()
		return m, tea.Quit

	case key.Matches(msg, m.keyMap.Cancel):
		if m.state == StateStreaming {
			// Idempotent: the context cancellation settles the stream.
			m.cancelMgr.cancel()
		} else if m.state == StateError {
			m.lastError = nil
			m.state = StateReady
		}
		return m, nil

	case key.Matches(msg, m.keyMap.Submit):
		return m.handleSubmit()

	case key.Matches(msg, m.keyMap.Save):
		return m, m.saveCmd()

	case key.Matches(msg, m.keyMap.Clear):
		if m.state != StateStreaming {
			m.conversation.Clear()
			m.statusMsg = "conversation cleared"
			m.refreshViewport(false)
		}
		return m, nil

	case key.Matches(msg, m.keyMap.Sources):
		m.cfg.UI.ShowSources = !m.cfg.UI.ShowSources
		m.refreshViewport(false)
		return m, nil

	case key.Matches(msg, m.keyMap.PageUp), key.Matches(msg, m.keyMap.PageDown),
		key.Matches(msg, m.keyMap.Up), key.Matches(msg, m.keyMap.Down):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// handleSubmit starts a new question if one is not already in flight.
func (m *Model) handleSubmit() (tea.Model, tea.Cmd) {
	if m.state == StateStreaming {
		return m, nil
	}

	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}
	m.input.Reset()

	m.conversation.AddUserMessage(text)
	turn := m.conversation.AddAssistantMessage()
	req := session.BuildRequest(m.conversation, m.cfg.Chat.HistoryWindow, m.cfg.Chat.TopK)

	m.state = StateStreaming
	m.streamingMsgID = turn.ID
	m.streamStart = time.Now()
	m.lastError = nil
	m.statusMsg = ""
	m.streamingBuffer.Reset()
	m.refreshViewport(true)

	return m, tea.Batch(m.streamCmd(req, turn.ID), streamTickCmd())
}

// drainBuffer flushes any remaining deltas into the conversation.
func (m *Model) drainBuffer() {
	if content, ok := m.streamingBuffer.ForceFlush(); ok {
		m.conversation.AppendToLast(content)
	}
}

// settleStream resets streaming bookkeeping after a terminal outcome.
func (m *Model) settleStream(state ViewState, status string) {
	m.cancelMgr.cancel()
	m.state = state
	m.streamingMsgID = ""
	m.statusMsg = status
	m.refreshViewport(true)
}
