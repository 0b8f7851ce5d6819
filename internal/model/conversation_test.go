// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"fmt"
	"strings"
	"testing"
)

func TestConversationTitleFromFirstUserMessage(t *testing.T) {
	conv := NewConversation()
	if conv.Title != "New conversation" {
		t.Errorf("initial title = %q", conv.Title)
	}

	conv.AddUserMessage("What does the indemnification clause cover?")
	if conv.Title != "What does the indemnification clause cover?" {
		t.Errorf("title = %q", conv.Title)
	}

	// Title stays fixed after more messages
	conv.AddAssistantMessage()
	conv.AddUserMessage("And the termination clause?")
	if conv.Title != "What does the indemnification clause cover?" {
		t.Errorf("title changed to %q", conv.Title)
	}
}

func TestConversationTitleTruncation(t *testing.T) {
	conv := NewConversation()
	long := strings.Repeat("contract ", 20)
	conv.AddUserMessage(long)

	runes := []rune(conv.Title)
	if len(runes) > TitlePreviewLength+3 {
		t.Errorf("title length %d exceeds preview limit", len(runes))
	}
	if !strings.HasSuffix(conv.Title, "...") {
		t.Errorf("long title should be ellipsized: %q", conv.Title)
	}
}

func TestAppendToLastTargetsTrailingAssistant(t *testing.T) {
	conv := NewConversation()
	conv.AddUserMessage("question")
	msg := conv.AddAssistantMessage()

	conv.AppendToLast("part one ")
	conv.AppendToLast("part two")

	if got := msg.GetDisplayContent(); got != "part one part two" {
		t.Errorf("content = %q", got)
	}

	conv.FinalizeLast()
	if msg.IsStreaming {
		t.Error("trailing message should be finalized")
	}

	// Deltas with no streaming assistant trailing are dropped
	conv.AddUserMessage("another question")
	conv.AppendToLast("stray delta")
	if conv.Last().Content != "another question" {
		t.Errorf("stray delta corrupted user message: %q", conv.Last().Content)
	}
}

func TestWindowBounds(t *testing.T) {
	conv := NewConversation()
	for i := 0; i < 30; i++ {
		conv.AddUserMessage(fmt.Sprintf("message %d", i))
	}

	win := conv.Window(10)
	if len(win) != 10 {
		t.Fatalf("window size = %d, want 10", len(win))
	}
	if win[len(win)-1].Content != "message 29" {
		t.Errorf("window should end at the trailing message, got %q", win[len(win)-1].Content)
	}
	if win[0].Content != "message 20" {
		t.Errorf("window start = %q, want message 20", win[0].Content)
	}

	// Zero or negative means no bound
	if len(conv.Window(0)) != 30 {
		t.Error("Window(0) should return all messages")
	}
	// Window larger than the conversation returns everything
	if len(conv.Window(100)) != 30 {
		t.Error("oversized window should return all messages")
	}
}

func TestPruneKeepsAlternation(t *testing.T) {
	conv := NewConversation()
	for i := 0; i < MaxMessages/2+10; i++ {
		conv.AddUserMessage("q")
		m := conv.AddAssistantMessage()
		m.AppendDelta("a")
		m.FinalizeStream()
	}
	// Pruning happens on AddUserMessage; force one more turn.
	conv.AddUserMessage("q")

	if len(conv.Messages) > MaxMessages {
		t.Errorf("message count %d exceeds max %d", len(conv.Messages), MaxMessages)
	}
	if conv.Messages[0].Role != RoleUser {
		t.Errorf("pruning broke alternation, first role = %q", conv.Messages[0].Role)
	}
}

func TestClear(t *testing.T) {
	conv := NewConversation()
	conv.AddUserMessage("hello")
	conv.RemoteID = "srv-123"
	conv.Clear()

	if !conv.IsEmpty() {
		t.Error("conversation should be empty after Clear")
	}
	if conv.RemoteID != "" {
		t.Error("remote id should reset on Clear")
	}
	if conv.ID == "" {
		t.Error("conversation identity should survive Clear")
	}
}
