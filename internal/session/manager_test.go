// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"testing"
	"time"
)

func TestManagerTimeoutFiresOnce(t *testing.T) {
	m := NewManager().WithIdleTimeout(10 * time.Millisecond).WithAutoSaveInterval(0)

	timeouts := 0
	m.OnTimeout = func() { timeouts++ }

	time.Sleep(20 * time.Millisecond)
	m.Check()
	m.Check()
	m.Check()

	if timeouts != 1 {
		t.Errorf("timeout fired %d times, want 1", timeouts)
	}
}

func TestManagerTouchResetsIdle(t *testing.T) {
	m := NewManager().WithIdleTimeout(50 * time.Millisecond).WithAutoSaveInterval(0)

	fired := false
	m.OnTimeout = func() { fired = true }

	time.Sleep(30 * time.Millisecond)
	m.Touch()
	time.Sleep(30 * time.Millisecond)
	m.Check()

	if fired {
		t.Error("timeout fired despite activity inside the window")
	}
	if m.IdleFor() >= 50*time.Millisecond {
		t.Errorf("idle time %v not reset by Touch", m.IdleFor())
	}
}

func TestManagerAutoSave(t *testing.T) {
	m := NewManager().WithIdleTimeout(0).WithAutoSaveInterval(10 * time.Millisecond)

	saves := 0
	m.OnAutoSave = func() { saves++ }

	time.Sleep(15 * time.Millisecond)
	m.Check()
	if saves != 1 {
		t.Fatalf("saves = %d after first interval, want 1", saves)
	}

	// Interval restarts after each save.
	m.Check()
	if saves != 1 {
		t.Errorf("saves = %d immediately after save, want still 1", saves)
	}

	time.Sleep(15 * time.Millisecond)
	m.Check()
	if saves != 2 {
		t.Errorf("saves = %d after second interval, want 2", saves)
	}
}

func TestManagerStop(t *testing.T) {
	m := NewManager().WithIdleTimeout(5 * time.Millisecond).WithAutoSaveInterval(0)
	fired := false
	m.OnTimeout = func() { fired = true }

	m.Stop()
	time.Sleep(10 * time.Millisecond)
	m.Check()

	if fired {
		t.Error("stopped manager fired a callback")
	}
}
