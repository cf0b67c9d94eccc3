// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"
)

// =============================================================================
// CHAT TYPE
// =============================================================================

// Chat holds one conversation thread, its messages, and its accounting
// totals.
//
// The token and cost totals are monotonically non-decreasing. They are
// folded in once per completed stream by the submission engine's
// finalize step and never change during fragment application.
type Chat struct {
	// Identity
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title,omitempty"`
	Order     int       `json:"order"`
	CreatedAt time.Time `json:"created_at"`

	// Persona is an optional character label applied as a system prompt.
	Persona string `json:"persona,omitempty"`

	// Messages, ordered oldest first.
	Messages []Message `json:"messages"`

	// Accounting totals
	PromptTokensUsed     int     `json:"prompt_tokens_used"`
	CompletionTokensUsed int     `json:"completion_tokens_used"`
	CostIncurred         float64 `json:"cost_incurred"`
}

// NewChat creates a chat with the given server-assigned identity.
func NewChat(id, userID string, order int, createdAt time.Time) Chat {
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return Chat{
		ID:        id,
		UserID:    userID,
		Order:     order,
		CreatedAt: createdAt,
		Messages:  make([]Message, 0),
	}
}

// =============================================================================
// MESSAGE ACCESS
// =============================================================================

// Message returns a pointer to the message with the given ID, or nil.
// The pointer aliases the chat's message slice; callers mutating through
// it must hold the store's update lock.
func (c *Chat) Message(id string) *Message {
	for i := range c.Messages {
		if c.Messages[i].ID == id {
			return &c.Messages[i]
		}
	}
	return nil
}

// MessageIndex returns the index of the message with the given ID,
// or -1 if not present.
func (c *Chat) MessageIndex(id string) int {
	for i := range c.Messages {
		if c.Messages[i].ID == id {
			return i
		}
	}
	return -1
}

// LastMessage returns a pointer to the most recent message, or nil.
func (c *Chat) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return &c.Messages[len(c.Messages)-1]
}

// LoadingMessage returns a pointer to the message currently streaming,
// or nil if none is loading.
func (c *Chat) LoadingMessage() *Message {
	for i := range c.Messages {
		if c.Messages[i].Loading {
			return &c.Messages[i]
		}
	}
	return nil
}

// MessageCount returns the number of messages.
func (c *Chat) MessageCount() int {
	return len(c.Messages)
}

// IsEmpty returns true if there are no messages.
func (c *Chat) IsEmpty() bool {
	return len(c.Messages) == 0
}

// WordCount returns the cumulative word count across all messages.
// Used by the title deriver's trigger threshold.
func (c *Chat) WordCount() int {
	total := 0
	for i := range c.Messages {
		total += c.Messages[i].WordCount()
	}
	return total
}

// =============================================================================
// TITLE
// =============================================================================

// DisplayTitle returns the chat title or a default.
func (c *Chat) DisplayTitle() string {
	if c.Title != "" {
		return c.Title
	}
	return "New Chat"
}

// =============================================================================
// COPYING
// =============================================================================

// Clone creates a deep copy of the chat.
func (c *Chat) Clone() Chat {
	clone := *c
	clone.Messages = make([]Message, len(c.Messages))
	copy(clone.Messages, c.Messages)
	return clone
}
