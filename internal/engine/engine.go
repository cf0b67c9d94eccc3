// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package engine orchestrates message submission: it validates input,
// ensures a server-side chat record exists, appends the user message and
// an assistant placeholder, opens the completion stream, and applies
// fragments and the terminal outcome back to the store.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/jeranaias/lagoon-tui/internal/cloud"
	"github.com/jeranaias/lagoon-tui/internal/model"
	"github.com/jeranaias/lagoon-tui/internal/notify"
	"github.com/jeranaias/lagoon-tui/internal/repo"
	"github.com/jeranaias/lagoon-tui/internal/store"
)

// Error variables for submission failures.
var (
	// ErrEmptyMessage indicates the submitted content was empty or
	// whitespace-only. No state is changed.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrNoUser indicates no user identity is available to create a chat.
	ErrNoUser = errors.New("no user identity")

	// ErrChatCreation indicates the repository service could not create
	// the chat record. No messages were appended.
	ErrChatCreation = errors.New("chat creation failed")

	// ErrNoActiveChat indicates a regenerate was requested with no chat
	// selected.
	ErrNoActiveChat = errors.New("no active chat")

	// ErrMessageNotFound indicates the referenced message does not exist
	// or has no preceding user message to resubmit.
	ErrMessageNotFound = errors.New("message not found")
)

// =============================================================================
// COLLABORATOR INTERFACES
// =============================================================================

// Streamer opens streaming chat completions. *cloud.Client satisfies it.
type Streamer interface {
	StreamCompletion(ctx context.Context, req *cloud.Request) (<-chan cloud.Event, error)
}

// Repository persists chat records and their metadata. *repo.Client
// satisfies it.
type Repository interface {
	CreateChat(ctx context.Context, userID string) (*repo.CreatedChat, error)
	UpdateChatTitle(ctx context.Context, chatID, title string) error
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine coordinates the submission flow between the store, the chat
// repository service, and the completion API. All methods are safe for
// concurrent use; at most one primary completion stream is tracked at a
// time, and submitting while one is in flight cancels it first.
type Engine struct {
	store    *store.Store
	repo     Repository
	llm      Streamer
	notifier notify.Notifier
	cancels  *cancelManager
	wg       sync.WaitGroup
}

// New creates an engine wired to the given collaborators.
func New(st *store.Store, repository Repository, llm Streamer, notifier notify.Notifier) *Engine {
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	return &Engine{
		store:    st,
		repo:     repository,
		llm:      llm,
		notifier: notifier,
		cancels:  newCancelManager(),
	}
}

// Wait blocks until background work (title derivation) has finished.
// Intended for shutdown and tests.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// =============================================================================
// SUBMISSION
// =============================================================================

// Submit sends a user message to the active chat and streams the
// assistant's reply into the store. The call blocks until the stream
// reaches its terminal outcome; fragments become visible to concurrent
// readers as they arrive.
//
// When no chat is active, one is created through the repository service
// first; a creation failure aborts the submission with no local state
// change. Any stream already in flight is cancelled before the new one
// opens.
func (e *Engine) Submit(ctx context.Context, msg model.Message) error {
	if strings.TrimSpace(msg.Content) == "" {
		return ErrEmptyMessage
	}

	snapshot := e.store.Get()
	settings := snapshot.Settings

	chatID := snapshot.ActiveChatID
	if snapshot.Chat(chatID) == nil {
		created, err := e.createChat(ctx, snapshot.UserID)
		if err != nil {
			return err
		}
		chatID = created.ID
	}

	// Single-flight: a new submission supersedes the current stream.
	e.AbortCurrentRequest()

	placeholder := model.NewAssistantPlaceholder()
	e.store.Update(func(st *store.State) {
		c := st.Chat(chatID)
		if c == nil {
			return
		}
		c.Messages = append(c.Messages, msg, placeholder)
	})

	handle := uuid.NewString()
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.cancels.set(handle, cancel)

	e.store.Update(func(st *store.State) {
		st.APIState = store.APIStateLoading
		st.StreamHandle = handle
		st.TTSMessageID = placeholder.ID
		st.TTSText = ""
	})

	req := e.buildRequest(chatID, settings)

	events, err := e.llm.StreamCompletion(streamCtx, req)
	if err != nil {
		e.notifier.Notify(err.Error())
		e.cleanupStream(chatID, placeholder.ID, handle)
		e.cancels.clear(handle)
		return fmt.Errorf("failed to open stream: %w", err)
	}

	for ev := range events {
		switch ev.Kind {
		case cloud.EventFragment:
			e.applyFragment(chatID, placeholder.ID, handle, ev.Fragment)

		case cloud.EventDone:
			finalized := e.finalize(chatID, placeholder.ID, handle, settings.Model, ev.PromptTokens, ev.CompletionTokens)
			e.cancels.clear(handle)
			if finalized && settings.AutoTitle {
				e.wg.Add(1)
				go func() {
					defer e.wg.Done()
					e.deriveTitle(context.Background(), chatID, settings)
				}()
			}

		case cloud.EventError:
			e.notifier.Notify(errorText(ev))
			e.cleanupStream(chatID, placeholder.ID, handle)
			e.cancels.clear(handle)

		case cloud.EventCancelled:
			// AbortCurrentRequest already reset the state; this only
			// covers cancellation arriving through the parent context.
			e.cleanupStream(chatID, placeholder.ID, handle)
			e.cancels.clear(handle)
		}
	}
	return nil
}

// AbortCurrentRequest cancels the in-flight completion stream, if any,
// and resets the loading state synchronously. Loading placeholders are
// finalized immediately: removed when still empty, kept as ordinary
// messages otherwise. Idempotent.
//
// Late fragments from the cancelled stream carry a stale handle and are
// dropped on application.
func (e *Engine) AbortCurrentRequest() {
	e.cancels.cancelCurrent()
	e.store.Update(func(st *store.State) {
		st.APIState = store.APIStateIdle
		st.StreamHandle = ""
		st.TTSMessageID = ""
		st.TTSText = ""
		for ci := range st.Chats {
			c := &st.Chats[ci]
			kept := c.Messages[:0]
			for _, m := range c.Messages {
				if m.Loading && m.Content == "" {
					continue
				}
				m.Loading = false
				kept = append(kept, m)
			}
			c.Messages = kept
		}
	})
}

// RegenerateAssistantMessage discards the given assistant message and
// everything after it, then resubmits the user message that produced it.
func (e *Engine) RegenerateAssistantMessage(ctx context.Context, messageID string) error {
	snapshot := e.store.Get()
	chat := snapshot.ActiveChat()
	if chat == nil {
		return ErrNoActiveChat
	}

	idx := chat.MessageIndex(messageID)
	if idx < 0 {
		return ErrMessageNotFound
	}

	prevIdx := idx - 1
	for prevIdx >= 0 && chat.Messages[prevIdx].Role != model.RoleUser {
		prevIdx--
	}
	if prevIdx < 0 {
		return ErrMessageNotFound
	}
	prev := chat.Messages[prevIdx]

	// Truncate from the originating user message; Submit re-appends it.
	e.store.Update(func(st *store.State) {
		c := st.Chat(chat.ID)
		if c == nil {
			return
		}
		if i := c.MessageIndex(prev.ID); i >= 0 {
			c.Messages = c.Messages[:i]
		}
	})

	return e.Submit(ctx, prev)
}

// =============================================================================
// CHAT CREATION
// =============================================================================

// createChat asks the repository service for a new chat record and
// registers it locally as the active chat.
func (e *Engine) createChat(ctx context.Context, userID string) (*repo.CreatedChat, error) {
	if userID == "" {
		return nil, ErrNoUser
	}

	created, err := e.repo.CreateChat(ctx, userID)
	if err != nil {
		e.notifier.Notify("could not create chat: " + err.Error())
		return nil, fmt.Errorf("%w: %v", ErrChatCreation, err)
	}

	chat := model.NewChat(created.ID, created.UserID, created.Order, created.CreatedAt)
	chat.Title = created.Title
	e.store.AddChat(chat)
	return created, nil
}

// =============================================================================
// REQUEST ASSEMBLY
// =============================================================================

// buildRequest assembles the completion request from the chat's current
// history. Loading placeholders and empty messages are excluded; the
// persona, when set, is prepended as a system message.
func (e *Engine) buildRequest(chatID string, settings model.Settings) *cloud.Request {
	snapshot := e.store.Get()
	chat := snapshot.Chat(chatID)
	if chat == nil {
		return &cloud.Request{Model: settings.Model}
	}

	persona := chat.Persona
	if persona == "" {
		persona = settings.Persona
	}

	msgs := make([]cloud.ChatMessage, 0, len(chat.Messages)+1)
	if persona != "" {
		msgs = append(msgs, cloud.NewSystemMessage("You are "+persona+". Stay in character no matter what."))
	}
	for _, m := range chat.Messages {
		if m.Loading || m.Content == "" {
			continue
		}
		msgs = append(msgs, cloud.ChatMessage{Role: m.Role.String(), Content: m.Content})
	}

	return &cloud.Request{
		Model:            settings.Model,
		Messages:         msgs,
		Temperature:      settings.Temperature,
		TopP:             settings.TopP,
		PresencePenalty:  settings.PresencePenalty,
		FrequencyPenalty: settings.FrequencyPenalty,
		MaxTokens:        settings.MaxTokens,
	}
}

// =============================================================================
// STATE TRANSITIONS
// =============================================================================

// applyFragment appends one fragment to the placeholder message and the
// speech accumulator. The whole append is a single transition keyed on
// the stream handle: fragments from a superseded stream are dropped.
func (e *Engine) applyFragment(chatID, msgID, handle, fragment string) {
	e.store.Update(func(st *store.State) {
		if st.StreamHandle != handle {
			return
		}
		c := st.Chat(chatID)
		if c == nil {
			return
		}
		m := c.Message(msgID)
		if m == nil {
			return
		}
		m.Content += fragment
		if st.TTSMessageID == msgID {
			st.TTSText += fragment
		}
	})
}

// finalize marks the stream's message complete and folds the usage pair
// into the chat's totals, all in one transition. Returns false when the
// handle is stale and nothing was applied.
func (e *Engine) finalize(chatID, msgID, handle, modelID string, promptTokens, completionTokens int) bool {
	applied := false
	e.store.Update(func(st *store.State) {
		if st.StreamHandle != handle {
			return
		}
		c := st.Chat(chatID)
		if c == nil {
			return
		}
		if m := c.Message(msgID); m != nil {
			m.Loading = false
		}
		foldUsage(c, modelID, promptTokens, completionTokens)
		st.APIState = store.APIStateIdle
		st.StreamHandle = ""
		st.TTSMessageID = ""
		applied = true
	})
	return applied
}

// cleanupStream resets the loading state after a failed or cancelled
// stream. The global flags are only touched when the handle is still
// current; the placeholder is finalized regardless, removed when empty.
func (e *Engine) cleanupStream(chatID, msgID, handle string) {
	e.store.Update(func(st *store.State) {
		if st.StreamHandle == handle {
			st.APIState = store.APIStateIdle
			st.StreamHandle = ""
			st.TTSMessageID = ""
		}
		c := st.Chat(chatID)
		if c == nil {
			return
		}
		i := c.MessageIndex(msgID)
		if i < 0 || !c.Messages[i].Loading {
			return
		}
		if c.Messages[i].Content == "" {
			c.Messages = append(c.Messages[:i], c.Messages[i+1:]...)
		} else {
			c.Messages[i].Loading = false
		}
	})
}

// applyUsage folds a usage pair into the chat's totals outside the
// handle-keyed finalize path. Used by title derivation, which has no
// tracked handle.
func (e *Engine) applyUsage(chatID, modelID string, promptTokens, completionTokens int) {
	e.store.Update(func(st *store.State) {
		if c := st.Chat(chatID); c != nil {
			foldUsage(c, modelID, promptTokens, completionTokens)
		}
	})
}

// foldUsage adds one completed call's tokens and cost to the chat.
// Totals only ever grow.
func foldUsage(c *model.Chat, modelID string, promptTokens, completionTokens int) {
	info := model.GetModelInfo(modelID)
	c.PromptTokensUsed += promptTokens
	c.CompletionTokensUsed += completionTokens
	c.CostIncurred += float64(promptTokens)/1000.0*info.CostPer1kTokens.Prompt +
		float64(completionTokens)/1000.0*info.CostPer1kTokens.Completion
}

// errorText picks the most useful user-facing text from an error event.
func errorText(ev cloud.Event) string {
	if ev.Body != "" {
		if msg := cloud.HumanMessage(ev.Body); msg != "" {
			return msg
		}
	}
	if ev.Err != nil {
		return ev.Err.Error()
	}
	return fmt.Sprintf("completion request failed (HTTP %d)", ev.Status)
}
