// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store holds the in-memory chat state behind an atomic
// snapshot/update pair.
//
// All mutation goes through Update, which applies a transition function
// under the store lock as one atomic step. Get returns a deep copy, so
// readers hold immutable snapshots: a component must never mutate state
// obtained from Get and must instead re-read inside Update, which keeps
// resumed operations from overwriting concurrent changes with stale
// data.
package store

import (
	"sync"

	"github.com/jeranaias/lagoon-tui/internal/model"
)

// =============================================================================
// API STATE
// =============================================================================

// APIState tracks whether a completion request is in flight.
type APIState string

const (
	APIStateIdle    APIState = "idle"
	APIStateLoading APIState = "loading"
)

// =============================================================================
// STATE
// =============================================================================

// State is the complete mutable state of the client.
type State struct {
	// Chats, ordered by server-assigned order.
	Chats []model.Chat

	// ActiveChatID selects the chat receiving submissions ("" = none).
	ActiveChatID string

	// Identity and credentials.
	UserID string
	APIKey string

	// APIState is loading while a primary completion streams.
	APIState APIState

	// StreamHandle identifies the single cancellable stream currently
	// tracked ("" = none). Fragment callbacks carry their originating
	// handle and are dropped when it no longer matches, so a superseded
	// or aborted stream can never write into the state.
	StreamHandle string

	// Speech side channel: text of the in-flight assistant message,
	// accumulated independently of the message content so a TTS
	// consumer can drain it without touching chat history.
	TTSMessageID string
	TTSText      string

	// Settings is the live settings form. Submissions snapshot it once
	// at call start.
	Settings model.Settings
}

// Chat returns a pointer to the chat with the given ID, or nil. The
// value receiver keeps it callable on snapshots straight off Get();
// the pointer still reaches the receiver's chat slice, so mutation
// through it is meaningful only inside an Update transition.
func (st State) Chat(id string) *model.Chat {
	for i := range st.Chats {
		if st.Chats[i].ID == id {
			return &st.Chats[i]
		}
	}
	return nil
}

// ActiveChat returns a pointer to the active chat, or nil. Same
// receiver contract as Chat.
func (st State) ActiveChat() *model.Chat {
	if st.ActiveChatID == "" {
		return nil
	}
	return st.Chat(st.ActiveChatID)
}

// clone creates a deep copy of the state.
func (st *State) clone() State {
	out := *st
	out.Chats = make([]model.Chat, len(st.Chats))
	for i := range st.Chats {
		out.Chats[i] = st.Chats[i].Clone()
	}
	return out
}

// =============================================================================
// STORE
// =============================================================================

// Store is the single source of truth for chat and settings state.
type Store struct {
	mu    sync.Mutex
	state State
}

// New creates a store with default settings and no chats.
func New() *Store {
	return &Store{
		state: State{
			Chats:    make([]model.Chat, 0),
			APIState: APIStateIdle,
			Settings: model.DefaultSettings(),
		},
	}
}

// Get returns a deep-copy snapshot of the current state.
func (s *Store) Get() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Update applies fn to the state as one atomic transition. No partial
// application is ever observable: readers see the state either before
// or after the whole transition. fn must not retain pointers into the
// state beyond the call.
func (s *Store) Update(fn func(st *State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.state)
}
