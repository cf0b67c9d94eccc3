// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small string helpers shared across the client.
package util

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// titleLabel is the prefix some models insist on adding to a derived
// title despite the prompt.
const titleLabel = "title:"

// trailingPunct is the set of punctuation stripped from title ends.
const trailingPunct = ",.;:!?"

// TruncateRunes truncates s to at most max runes, appending "..." when
// truncation occurred.
func TruncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}

// TruncateWidth truncates s to at most max terminal cells, accounting
// for wide characters.
func TruncateWidth(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= max {
		return s
	}
	return runewidth.Truncate(s, max, "…")
}

// WordCount returns the number of whitespace-separated words in s.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

// CleanTitle normalizes a model-derived chat title: trims whitespace,
// drops a leading "title:" label in any casing, and strips trailing
// punctuation. Applied after every fragment, so it must be stable under
// repeated application.
func CleanTitle(s string) string {
	out := strings.TrimSpace(s)
	if len(out) >= len(titleLabel) && strings.EqualFold(out[:len(titleLabel)], titleLabel) {
		out = strings.TrimSpace(out[len(titleLabel):])
	}
	out = strings.TrimRight(out, trailingPunct)
	return strings.TrimSpace(out)
}
