// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/lagoon-tui/internal/engine"
	"github.com/jeranaias/lagoon-tui/internal/model"
)

// =============================================================================
// MESSAGES
// =============================================================================

// TickMsg drives the periodic refresh loop. The submission engine mutates
// the session store from its own goroutines, so the view re-reads a store
// snapshot on every tick instead of receiving per-fragment messages.
type TickMsg time.Time

// SubmitFinishedMsg is emitted when a submission returns. Stream-level
// failures surface through the notifier as toasts; Err carries only
// local precondition errors such as an empty message or a failed chat
// creation.
type SubmitFinishedMsg struct {
	Err error
}

// ToastMsg adds a transient notification to the bottom of the screen.
type ToastMsg struct {
	Text string
}

// =============================================================================
// COMMANDS
// =============================================================================

// refreshRate is the store polling cadence. 30fps keeps streaming text
// smooth without re-rendering on every fragment.
const refreshRate = time.Second / 30

func tickCmd() tea.Cmd {
	return tea.Tick(refreshRate, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// submitCmd runs a submission to completion. Submit blocks until the
// stream reaches a terminal event, which is fine inside a tea.Cmd: it
// runs on its own goroutine while ticks keep the view fresh.
func submitCmd(eng *engine.Engine, text string) tea.Cmd {
	return func() tea.Msg {
		err := eng.Submit(context.Background(), model.NewUserMessage(text))
		if errors.Is(err, engine.ErrEmptyMessage) {
			err = nil
		}
		return SubmitFinishedMsg{Err: err}
	}
}

// regenerateCmd re-runs the exchange that produced the given assistant
// message.
func regenerateCmd(eng *engine.Engine, messageID string) tea.Cmd {
	return func() tea.Msg {
		err := eng.RegenerateAssistantMessage(context.Background(), messageID)
		if errors.Is(err, engine.ErrMessageNotFound) || errors.Is(err, engine.ErrNoActiveChat) {
			err = nil
		}
		return SubmitFinishedMsg{Err: err}
	}
}
