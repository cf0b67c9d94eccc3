// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"github.com/jeranaias/lagoon-tui/internal/model"
)

// Convenience mutators wrapping Update. Each is a single atomic
// transition; none of them touch token or cost totals, which belong to
// the submission engine's finalize step alone.

// =============================================================================
// CHAT ACTIONS
// =============================================================================

// AddChat registers a chat and makes it active.
func (s *Store) AddChat(chat model.Chat) {
	s.Update(func(st *State) {
		st.Chats = append(st.Chats, chat)
		st.ActiveChatID = chat.ID
	})
}

// DeleteChat removes a chat by ID. The active selection is cleared when
// it pointed at the removed chat.
func (s *Store) DeleteChat(id string) {
	s.Update(func(st *State) {
		kept := st.Chats[:0]
		for i := range st.Chats {
			if st.Chats[i].ID != id {
				kept = append(kept, st.Chats[i])
			}
		}
		st.Chats = kept
		if st.ActiveChatID == id {
			st.ActiveChatID = ""
		}
	})
}

// ClearChats removes all chats and the active selection.
func (s *Store) ClearChats() {
	s.Update(func(st *State) {
		st.Chats = make([]model.Chat, 0)
		st.ActiveChatID = ""
	})
}

// SetActiveChat selects the chat receiving submissions.
func (s *Store) SetActiveChat(id string) {
	s.Update(func(st *State) {
		st.ActiveChatID = id
	})
}

// SetChatTitle sets a chat's display title.
func (s *Store) SetChatTitle(chatID, title string) {
	s.Update(func(st *State) {
		if c := st.Chat(chatID); c != nil {
			c.Title = title
		}
	})
}

// SetPersona sets the persona label on the active chat.
func (s *Store) SetPersona(name string) {
	s.Update(func(st *State) {
		if c := st.ActiveChat(); c != nil {
			c.Persona = name
		}
	})
}

// =============================================================================
// MESSAGE ACTIONS
// =============================================================================

// PushMessage appends a message to the given chat.
func (s *Store) PushMessage(chatID string, msg model.Message) {
	s.Update(func(st *State) {
		if c := st.Chat(chatID); c != nil {
			c.Messages = append(c.Messages, msg)
		}
	})
}

// UpdateMessage replaces a message in place, matched by ID.
func (s *Store) UpdateMessage(chatID string, msg model.Message) {
	s.Update(func(st *State) {
		c := st.Chat(chatID)
		if c == nil {
			return
		}
		if i := c.MessageIndex(msg.ID); i >= 0 {
			c.Messages[i] = msg
		}
	})
}

// DeleteMessage removes a message by ID.
func (s *Store) DeleteMessage(chatID, msgID string) {
	s.Update(func(st *State) {
		c := st.Chat(chatID)
		if c == nil {
			return
		}
		if i := c.MessageIndex(msgID); i >= 0 {
			c.Messages = append(c.Messages[:i], c.Messages[i+1:]...)
		}
	})
}

// =============================================================================
// SETTINGS AND CREDENTIALS
// =============================================================================

// SetAPIKey stores the completion API credential.
func (s *Store) SetAPIKey(key string) {
	s.Update(func(st *State) {
		st.APIKey = key
	})
}

// SetUserID stores the owning user identity.
func (s *Store) SetUserID(id string) {
	s.Update(func(st *State) {
		st.UserID = id
	})
}

// SetSettings replaces the live settings form. In-flight submissions
// keep the snapshot they captured at call start.
func (s *Store) SetSettings(settings model.Settings) {
	s.Update(func(st *State) {
		st.Settings = settings
	})
}
