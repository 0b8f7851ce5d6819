// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// manager.go - Session activity tracking for the TUI.
//
// Tracks user activity for idle warnings and periodic auto-save of the
// active conversation. The TUI drives Check from a timer tick.
package session

import (
	"sync"
	"time"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultIdleTimeout ends the session after this much inactivity.
	DefaultIdleTimeout = 30 * time.Minute

	// DefaultWarningBefore is how long before timeout the warning fires.
	DefaultWarningBefore = 2 * time.Minute

	// DefaultAutoSaveInterval is the period between auto-saves.
	DefaultAutoSaveInterval = 60 * time.Second
)

// =============================================================================
// MANAGER
// =============================================================================

// Manager tracks session activity and fires idle/auto-save callbacks.
type Manager struct {
	mu           sync.Mutex
	lastActivity time.Time
	lastAutoSave time.Time
	warned       bool
	stopped      bool

	idleTimeout      time.Duration
	warningBefore    time.Duration
	autoSaveInterval time.Duration

	// Callbacks are invoked from Check, outside the manager's lock.
	OnTimeout  func()
	OnWarning  func(remaining time.Duration)
	OnAutoSave func()
}

// NewManager creates a manager with default intervals.
func NewManager() *Manager {
	now := time.Now()
	return &Manager{
		lastActivity:     now,
		lastAutoSave:     now,
		idleTimeout:      DefaultIdleTimeout,
		warningBefore:    DefaultWarningBefore,
		autoSaveInterval: DefaultAutoSaveInterval,
	}
}

// WithIdleTimeout overrides the idle timeout. d <= 0 disables it.
func (m *Manager) WithIdleTimeout(d time.Duration) *Manager {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.idleTimeout = d
	return m
}

// WithAutoSaveInterval overrides the auto-save period. d <= 0 disables it.
func (m *Manager) WithAutoSaveInterval(d time.Duration) *Manager {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autoSaveInterval = d
	return m
}

// Touch records user activity, resetting the idle countdown.
func (m *Manager) Touch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastActivity = time.Now()
	m.warned = false
}

// Stop disables further callbacks.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
}

// IdleFor returns the time since the last recorded activity.
func (m *Manager) IdleFor() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return time.Since(m.lastActivity)
}

// Check evaluates timers and fires any due callbacks. Call it from a
// periodic tick. Callbacks run outside the lock so they may call back
// into the manager.
func (m *Manager) Check() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}

	now := time.Now()
	idle := now.Sub(m.lastActivity)

	var fireTimeout, fireAutoSave bool
	var fireWarning time.Duration

	if m.idleTimeout > 0 {
		if idle >= m.idleTimeout {
			fireTimeout = true
			m.stopped = true
		} else if !m.warned && idle >= m.idleTimeout-m.warningBefore {
			m.warned = true
			fireWarning = m.idleTimeout - idle
		}
	}

	if !fireTimeout && m.autoSaveInterval > 0 && now.Sub(m.lastAutoSave) >= m.autoSaveInterval {
		m.lastAutoSave = now
		fireAutoSave = true
	}

	onTimeout, onWarning, onAutoSave := m.OnTimeout, m.OnWarning, m.OnAutoSave
	m.mu.Unlock()

	if fireTimeout && onTimeout != nil {
		onTimeout()
	}
	if fireWarning > 0 && onWarning != nil {
		onWarning(fireWarning)
	}
	if fireAutoSave && onAutoSave != nil {
		onAutoSave()
	}
}
