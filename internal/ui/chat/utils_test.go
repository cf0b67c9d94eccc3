// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/lagoon-tui/internal/model"
	"github.com/jeranaias/lagoon-tui/internal/store"
)

func TestFormatCost(t *testing.T) {
	assert.Equal(t, "$0.0042", formatCost(0.0042))
	assert.Equal(t, "$0.0000", formatCost(0))
	assert.Equal(t, "$0.25", formatCost(0.25))
	assert.Equal(t, "$12.50", formatCost(12.5))
}

func TestFormatTokens(t *testing.T) {
	assert.Equal(t, "0", formatTokens(0))
	assert.Equal(t, "999", formatTokens(999))
	assert.Equal(t, "1.0k", formatTokens(1000))
	assert.Equal(t, "12.3k", formatTokens(12345))
}

func TestToastExpiry(t *testing.T) {
	var m Model
	m.pushToast("boom")
	require.Len(t, m.toasts, 1)

	// Still within the display window.
	m.expireToasts()
	assert.Len(t, m.toasts, 1)

	m.toasts[0].expires = time.Now().Add(-time.Second)
	m.expireToasts()
	assert.Empty(t, m.toasts)
}

func TestPushToastIgnoresEmpty(t *testing.T) {
	var m Model
	m.pushToast("")
	assert.Empty(t, m.toasts)
}

func TestActiveChatLookup(t *testing.T) {
	st := store.New()
	st.AddChat(model.NewChat("c1", "u1", 1, time.Now()))

	snapshot := st.Get()
	chat := snapshot.ActiveChat()
	require.NotNil(t, chat)
	assert.Equal(t, "c1", chat.ID)

	snapshot.ActiveChatID = ""
	assert.Nil(t, snapshot.ActiveChat())
}
