// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
package chat

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/clausedesk/clausedesk-tui/internal/api"
	"github.com/clausedesk/clausedesk-tui/internal/config"
	"github.com/clausedesk/clausedesk-tui/internal/model"
	"github.com/clausedesk/clausedesk-tui/internal/session"
	"github.com/clausedesk/clausedesk-tui/internal/storage"
	"github.com/clausedesk/clausedesk-tui/internal/ui/styles"
)

// =============================================================================
// CHAT STATE
// =============================================================================

// ViewState represents the current state of the chat view.
type ViewState int

const (
	StateReady     ViewState = iota // Ready for input
	StateStreaming                  // Receiving a streaming answer
	StateError                      // Showing an error
)

// =============================================================================
// CHAT MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat view.
//
// The update loop owns the conversation: stream events arrive as Bubble
// Tea messages and are applied here, never from the streaming goroutine.
type Model struct {
	// State
	state ViewState

	// Styling
	theme *styles.Theme

	// Dimensions
	width  int
	height int
	ready  bool

	// Conversation and backend
	conversation *model.Conversation
	client       *api.Client
	store        *storage.Store
	cfg          *config.Config

	// Current streaming message
	streamingMsgID string
	streamStart    time.Time

	// Cancellation for the in-flight stream
	cancelMgr *cancelManager

	// Streaming optimization
	streamingBuffer *StreamingBuffer

	// UI components
	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	// Key bindings
	keyMap KeyMap

	// Error and status display
	lastError error
	statusMsg string

	// Backend reachability (from the startup health probe)
	backendDown bool

	// Activity tracking for idle warnings and periodic auto-save
	activity     *session.Manager
	wantAutoSave bool
	idleTimedOut bool

	// send delivers messages from the streaming goroutine into the
	// Bubble Tea loop. Wired to tea.Program.Send after program creation.
	send func(tea.Msg)
}

// New creates the chat model.
func New(client *api.Client, conv *model.Conversation, store *storage.Store, cfg *config.Config) *Model {
	input := textinput.New()
	input.Placeholder = "Ask about your contracts..."
	input.Prompt = "> "
	input.CharLimit = 4000
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	theme := styles.NewTheme(cfg.UI.Theme)
	sp.Style = theme.Spinner

	if conv == nil {
		conv = model.NewConversation()
	}

	m := &Model{
		state:           StateReady,
		theme:           theme,
		conversation:    conv,
		client:          client,
		store:           store,
		cfg:             cfg,
		cancelMgr:       newCancelManager(),
		streamingBuffer: NewStreamingBuffer(),
		input:           input,
		spinner:         sp,
		keyMap:          DefaultKeyMap(),
		activity:        session.NewManager(),
		send:            func(tea.Msg) {},
	}

	// Checked from the activity tick inside Update, so plain field
	// writes are safe here.
	m.activity.OnWarning = func(remaining time.Duration) {
		m.statusMsg = fmt.Sprintf("idle, session ends in %s", remaining.Round(time.Second))
	}
	m.activity.OnAutoSave = func() { m.wantAutoSave = true }
	m.activity.OnTimeout = func() { m.idleTimedOut = true }
	return m
}

// SetSender wires the program's Send function so the streaming goroutine
// can deliver messages into the update loop.
func (m *Model) SetSender(send func(tea.Msg)) {
	if send != nil {
		m.send = send
	}
}

// Init starts the cursor blink, spinner, and backend health probe.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		m.healthCheckCmd(),
		activityTickCmd(),
	)
}

// Conversation returns the conversation being displayed.
func (m *Model) Conversation() *model.Conversation {
	return m.conversation
}

// IsStreaming reports whether an answer is currently arriving.
func (m *Model) IsStreaming() bool {
	return m.state == StateStreaming
}
