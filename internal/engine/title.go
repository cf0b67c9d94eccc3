// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"log"
	"strings"

	"github.com/jeranaias/lagoon-tui/internal/cloud"
	"github.com/jeranaias/lagoon-tui/internal/model"
	"github.com/jeranaias/lagoon-tui/internal/store"
	"github.com/jeranaias/lagoon-tui/internal/util"
)

// Title derivation thresholds. Both must be met before a title request
// is spent on a conversation.
const (
	titleMinMessages = 2
	titleMinWords    = 4
)

// titlePrompt instructs the model to summarize the conversation.
const titlePrompt = "Describe the following conversation snippet in 3 words or less."

// =============================================================================
// TITLE DERIVATION
// =============================================================================

// deriveTitle streams a short summary of the conversation into the
// chat's title, then persists it to the repository service best-effort.
// Runs after a successful submission; a no-op when the chat already has
// a title or is below the trigger thresholds.
//
// The stream registers no cancellation handle: title derivation is
// background work the user never aborts directly, and a failure here
// must not disturb the conversation, so errors are logged, not surfaced.
func (e *Engine) deriveTitle(ctx context.Context, chatID string, settings model.Settings) {
	snapshot := e.store.Get()
	chat := snapshot.Chat(chatID)
	if chat == nil {
		return
	}
	if chat.Title != "" || chat.MessageCount() < titleMinMessages || chat.WordCount() < titleMinWords {
		return
	}

	req := &cloud.Request{
		Model:       settings.Model,
		Messages:    titleMessages(chat),
		Temperature: settings.Temperature,
	}

	events, err := e.llm.StreamCompletion(ctx, req)
	if err != nil {
		log.Printf("title derivation: failed to open stream: %v", err)
		return
	}

	for ev := range events {
		switch ev.Kind {
		case cloud.EventFragment:
			e.store.Update(func(st *store.State) {
				if c := st.Chat(chatID); c != nil {
					c.Title = util.CleanTitle(c.Title + ev.Fragment)
				}
			})

		case cloud.EventDone:
			e.applyUsage(chatID, settings.Model, ev.PromptTokens, ev.CompletionTokens)
			e.persistTitle(ctx, chatID)

		case cloud.EventError:
			log.Printf("title derivation failed: %s", errorText(ev))

		case cloud.EventCancelled:
			return
		}
	}
}

// titleMessages builds the summary request: the instruction with the
// conversation body inline as a system message, followed by the
// conversation itself minus its opening message.
func titleMessages(chat *model.Chat) []cloud.ChatMessage {
	var body strings.Builder
	body.WriteString(titlePrompt)
	body.WriteString("\n>>>\nHello\n")
	for _, m := range tail(chat.Messages) {
		if m.Loading || m.Content == "" {
			continue
		}
		body.WriteString(m.Content)
		body.WriteString("\n")
	}
	body.WriteString(">>>")

	msgs := []cloud.ChatMessage{cloud.NewSystemMessage(body.String())}
	for _, m := range tail(chat.Messages) {
		if m.Loading || m.Content == "" {
			continue
		}
		msgs = append(msgs, cloud.ChatMessage{Role: m.Role.String(), Content: m.Content})
	}
	return msgs
}

// tail returns all messages after the first.
func tail(msgs []model.Message) []model.Message {
	if len(msgs) <= 1 {
		return nil
	}
	return msgs[1:]
}

// persistTitle pushes the derived title to the repository service.
// Best-effort: the local title stands even when persistence fails.
func (e *Engine) persistTitle(ctx context.Context, chatID string) {
	snapshot := e.store.Get()
	chat := snapshot.Chat(chatID)
	if chat == nil || chat.Title == "" {
		return
	}
	if err := e.repo.UpdateChatTitle(ctx, chatID, chat.Title); err != nil {
		log.Printf("title derivation: failed to persist title: %v", err)
	}
}
