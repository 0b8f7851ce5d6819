// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import "testing"

func TestNewThemeModes(t *testing.T) {
	dark := NewTheme("dark")
	if !dark.IsDark {
		t.Error("dark mode should set IsDark")
	}

	light := NewTheme("light")
	if light.IsDark {
		t.Error("light mode should clear IsDark")
	}

	// auto must not panic regardless of terminal detection
	_ = NewTheme("auto")
}

func TestConfidenceColorBands(t *testing.T) {
	if ConfidenceColor("high") != Emerald {
		t.Error("high confidence should be emerald")
	}
	if ConfidenceColor("medium") != Amber {
		t.Error("medium confidence should be amber")
	}
	if ConfidenceColor("low") != Rose {
		t.Error("low confidence should be rose")
	}
	if ConfidenceColor("banana") != Rose {
		t.Error("unknown labels should render as low confidence")
	}
}

func TestThemeStylesInitialized(t *testing.T) {
	theme := NewTheme("dark")

	if !theme.HeaderTitle.GetBold() {
		t.Error("header title should be bold")
	}
	if !theme.ErrorStyle.GetBold() {
		t.Error("error style should be bold")
	}
	if theme.UserText.GetPaddingLeft() == 0 {
		t.Error("user text should be indented")
	}
}
