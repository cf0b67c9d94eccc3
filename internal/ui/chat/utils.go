// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"time"
)

// =============================================================================
// TOASTS
// =============================================================================

// toastTTL is how long a notification stays on screen.
const toastTTL = 4 * time.Second

type toast struct {
	text    string
	expires time.Time
}

func (m *Model) pushToast(text string) {
	if text == "" {
		return
	}
	m.toasts = append(m.toasts, toast{text: text, expires: time.Now().Add(toastTTL)})
}

// drainToasts moves queued notifier messages into the toast list.
func (m *Model) drainToasts() {
	if m.recorder == nil {
		return
	}
	for _, text := range m.recorder.Drain() {
		m.pushToast(text)
	}
}

// expireToasts drops notifications past their display window.
func (m *Model) expireToasts() {
	now := time.Now()
	kept := m.toasts[:0]
	for _, t := range m.toasts {
		if t.expires.After(now) {
			kept = append(kept, t)
		}
	}
	m.toasts = kept
}

// =============================================================================
// FORMATTING
// =============================================================================

// formatCost renders a dollar amount for the status bar. Sub-cent values
// keep four decimals so early-session costs do not display as $0.00.
func formatCost(cost float64) string {
	if cost < 0.01 {
		return fmt.Sprintf("$%.4f", cost)
	}
	return fmt.Sprintf("$%.2f", cost)
}

// formatTokens renders a token count compactly (1234 -> "1.2k").
func formatTokens(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("%.1fk", float64(n)/1000)
}
