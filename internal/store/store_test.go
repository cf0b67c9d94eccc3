// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/lagoon-tui/internal/model"
)

func TestGetReturnsIsolatedSnapshot(t *testing.T) {
	s := New()
	chat := model.NewChat("c1", "u1", 1, time.Now())
	s.AddChat(chat)
	s.PushMessage("c1", model.NewUserMessage("hello"))

	snapshot := s.Get()
	// Mutating the snapshot must not leak into the store.
	snapshot.Chats[0].Messages[0].Content = "mutated"
	snapshot.Chats[0].Title = "mutated"

	fresh := s.Get()
	assert.Equal(t, "hello", fresh.Chats[0].Messages[0].Content)
	assert.Empty(t, fresh.Chats[0].Title)
}

func TestUpdateIsAtomic(t *testing.T) {
	s := New()
	s.AddChat(model.NewChat("c1", "u1", 1, time.Now()))

	// Concurrent increments through Update never lose writes.
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Update(func(st *State) {
				st.Chat("c1").PromptTokensUsed++
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, s.Get().Chats[0].PromptTokensUsed)
}

func TestAddChatActivates(t *testing.T) {
	s := New()
	s.AddChat(model.NewChat("c1", "u1", 1, time.Now()))
	s.AddChat(model.NewChat("c2", "u1", 2, time.Now()))

	assert.Equal(t, "c2", s.Get().ActiveChatID)
}

func TestDeleteChatClearsActiveSelection(t *testing.T) {
	s := New()
	s.AddChat(model.NewChat("c1", "u1", 1, time.Now()))
	s.DeleteChat("c1")

	state := s.Get()
	assert.Empty(t, state.Chats)
	assert.Empty(t, state.ActiveChatID)
}

func TestDeleteChatKeepsOtherSelection(t *testing.T) {
	s := New()
	s.AddChat(model.NewChat("c1", "u1", 1, time.Now()))
	s.AddChat(model.NewChat("c2", "u1", 2, time.Now()))
	s.DeleteChat("c1")

	state := s.Get()
	require.Len(t, state.Chats, 1)
	assert.Equal(t, "c2", state.ActiveChatID)
}

func TestMessageActions(t *testing.T) {
	s := New()
	s.AddChat(model.NewChat("c1", "u1", 1, time.Now()))

	msg := model.NewUserMessage("one")
	s.PushMessage("c1", msg)

	msg.Content = "edited"
	s.UpdateMessage("c1", msg)
	assert.Equal(t, "edited", s.Get().Chats[0].Messages[0].Content)

	s.DeleteMessage("c1", msg.ID)
	assert.Empty(t, s.Get().Chats[0].Messages)
}

func TestPushMessageUnknownChatIsNoOp(t *testing.T) {
	s := New()
	s.PushMessage("missing", model.NewUserMessage("x"))
	assert.Empty(t, s.Get().Chats)
}

func TestSetSettingsDoesNotAffectSnapshots(t *testing.T) {
	s := New()
	before := s.Get().Settings

	changed := before
	changed.Model = "gpt-4"
	s.SetSettings(changed)

	// The earlier snapshot still holds its original value.
	assert.Equal(t, model.DefaultModel, before.Model)
	assert.Equal(t, "gpt-4", s.Get().Settings.Model)
}

func TestStateChatHelpers(t *testing.T) {
	s := New()
	s.AddChat(model.NewChat("c1", "u1", 1, time.Now()))

	// Callable directly on the unaddressable snapshot Get returns.
	require.NotNil(t, s.Get().Chat("c1"))
	require.NotNil(t, s.Get().ActiveChat())
	assert.Nil(t, s.Get().Chat("missing"))

	s.Update(func(st *State) {
		assert.NotNil(t, st.Chat("c1"))
		assert.Nil(t, st.Chat("missing"))
		assert.NotNil(t, st.ActiveChat())
	})

	s.SetActiveChat("")
	s.Update(func(st *State) {
		assert.Nil(t, st.ActiveChat())
	})
}
