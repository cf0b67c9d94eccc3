// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/lagoon-tui/internal/cloud"
	"github.com/jeranaias/lagoon-tui/internal/model"
	"github.com/jeranaias/lagoon-tui/internal/notify"
	"github.com/jeranaias/lagoon-tui/internal/repo"
	"github.com/jeranaias/lagoon-tui/internal/store"
)

// =============================================================================
// FAKES
// =============================================================================

// scriptedStream is one pre-planned streamer response: either an open
// error or a sequence of events to deliver.
type scriptedStream struct {
	events []cloud.Event
	err    error
}

// fakeStreamer replays scripted streams in order and records every
// request it receives.
type fakeStreamer struct {
	mu       sync.Mutex
	scripts  []scriptedStream
	requests []*cloud.Request
}

func (f *fakeStreamer) StreamCompletion(ctx context.Context, req *cloud.Request) (<-chan cloud.Event, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	script := scriptedStream{events: []cloud.Event{{Kind: cloud.EventDone}}}
	if len(f.scripts) > 0 {
		script = f.scripts[0]
		f.scripts = f.scripts[1:]
	}
	f.mu.Unlock()

	if script.err != nil {
		return nil, script.err
	}

	ch := make(chan cloud.Event, len(script.events)+1)
	go func() {
		defer close(ch)
		for _, ev := range script.events {
			select {
			case <-ctx.Done():
				ch <- cloud.Event{Kind: cloud.EventCancelled, Err: ctx.Err()}
				return
			case ch <- ev:
			}
		}
	}()
	return ch, nil
}

func (f *fakeStreamer) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeStreamer) request(i int) *cloud.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[i]
}

// fakeRepo hands out sequential chat IDs and records persisted titles.
type fakeRepo struct {
	mu        sync.Mutex
	created   int
	createErr error
	titleErr  error
	titles    map[string]string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{titles: make(map[string]string)}
}

func (f *fakeRepo) CreateChat(ctx context.Context, userID string) (*repo.CreatedChat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created++
	return &repo.CreatedChat{
		ID:        fmt.Sprintf("chat-%d", f.created),
		UserID:    userID,
		Order:     f.created,
		CreatedAt: time.Now(),
	}, nil
}

func (f *fakeRepo) UpdateChatTitle(ctx context.Context, chatID, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.titleErr != nil {
		return f.titleErr
	}
	f.titles[chatID] = title
	return nil
}

func (f *fakeRepo) title(chatID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.titles[chatID]
}

// =============================================================================
// HELPERS
// =============================================================================

func newTestEngine(scripts ...scriptedStream) (*Engine, *store.Store, *fakeStreamer, *fakeRepo, *notify.Recorder) {
	st := store.New()
	st.SetUserID("user-1")
	settings := model.DefaultSettings()
	settings.Model = "gpt-4-turbo" // $0.01 / $0.03 per 1k
	settings.AutoTitle = false
	st.SetSettings(settings)

	streamer := &fakeStreamer{scripts: scripts}
	repository := newFakeRepo()
	recorder := notify.NewRecorder()
	return New(st, repository, streamer, recorder), st, streamer, repository, recorder
}

func seedChat(st *store.Store) string {
	chat := model.NewChat("chat-seeded", "user-1", 1, time.Now())
	st.AddChat(chat)
	return chat.ID
}

func fragment(text string) cloud.Event {
	return cloud.Event{Kind: cloud.EventFragment, Fragment: text}
}

func done(promptTokens, completionTokens int) cloud.Event {
	return cloud.Event{Kind: cloud.EventDone, PromptTokens: promptTokens, CompletionTokens: completionTokens}
}

// =============================================================================
// SUBMISSION
// =============================================================================

func TestSubmitAppendsUserAndAssistant(t *testing.T) {
	eng, st, streamer, _, _ := newTestEngine(scriptedStream{
		events: []cloud.Event{fragment("Hel"), fragment("lo"), done(100, 50)},
	})
	chatID := seedChat(st)

	err := eng.Submit(context.Background(), model.NewUserMessage("Hi there"))
	require.NoError(t, err)

	state := st.Get()
	chat := state.Chat(chatID)
	require.NotNil(t, chat)
	require.Len(t, chat.Messages, 2)

	assert.Equal(t, model.RoleUser, chat.Messages[0].Role)
	assert.Equal(t, "Hi there", chat.Messages[0].Content)
	assert.Equal(t, model.RoleAssistant, chat.Messages[1].Role)
	assert.Equal(t, "Hello", chat.Messages[1].Content)
	assert.False(t, chat.Messages[1].Loading)

	assert.Equal(t, 100, chat.PromptTokensUsed)
	assert.Equal(t, 50, chat.CompletionTokensUsed)
	assert.InDelta(t, 100.0/1000*0.01+50.0/1000*0.03, chat.CostIncurred, 1e-9)

	assert.Equal(t, store.APIStateIdle, state.APIState)
	assert.Empty(t, state.StreamHandle)
	assert.Equal(t, "Hello", state.TTSText)

	require.Equal(t, 1, streamer.requestCount())
	req := streamer.request(0)
	assert.Equal(t, "gpt-4-turbo", req.Model)
	require.Len(t, req.Messages, 1) // placeholder excluded from history
	assert.Equal(t, "Hi there", req.Messages[0].Content)
}

func TestSubmitEmptyMessageIsNoOp(t *testing.T) {
	eng, st, streamer, _, _ := newTestEngine()
	chatID := seedChat(st)

	err := eng.Submit(context.Background(), model.NewUserMessage("   \n\t"))
	require.ErrorIs(t, err, ErrEmptyMessage)

	state := st.Get()
	assert.Empty(t, state.Chat(chatID).Messages)
	assert.Equal(t, 0, streamer.requestCount())
}

func TestSubmitCreatesChatWhenNoneActive(t *testing.T) {
	eng, st, _, repository, _ := newTestEngine(scriptedStream{
		events: []cloud.Event{fragment("hi"), done(1, 1)},
	})

	err := eng.Submit(context.Background(), model.NewUserMessage("first message"))
	require.NoError(t, err)

	state := st.Get()
	require.Len(t, state.Chats, 1)
	assert.Equal(t, "chat-1", state.ActiveChatID)
	assert.Equal(t, "chat-1", state.Chats[0].ID)
	assert.Equal(t, "user-1", state.Chats[0].UserID)
	assert.Len(t, state.Chats[0].Messages, 2)
	assert.Equal(t, 1, repository.created)
}

func TestSubmitChatCreationFailure(t *testing.T) {
	eng, st, streamer, repository, recorder := newTestEngine()
	repository.createErr = errors.New("service unavailable")

	err := eng.Submit(context.Background(), model.NewUserMessage("hello"))
	require.ErrorIs(t, err, ErrChatCreation)

	state := st.Get()
	assert.Empty(t, state.Chats)
	assert.Equal(t, 0, streamer.requestCount())
	assert.Equal(t, 1, recorder.Len())
}

func TestSubmitWithoutUserIdentity(t *testing.T) {
	eng, st, _, _, _ := newTestEngine()
	st.SetUserID("")

	err := eng.Submit(context.Background(), model.NewUserMessage("hello"))
	require.ErrorIs(t, err, ErrNoUser)
	assert.Empty(t, st.Get().Chats)
}

func TestSubmitOpenStreamFailure(t *testing.T) {
	eng, st, _, _, recorder := newTestEngine(scriptedStream{err: cloud.ErrNotConfigured})
	chatID := seedChat(st)

	err := eng.Submit(context.Background(), model.NewUserMessage("hello"))
	require.Error(t, err)

	state := st.Get()
	chat := state.Chat(chatID)
	// User message kept, empty placeholder removed.
	require.Len(t, chat.Messages, 1)
	assert.Equal(t, model.RoleUser, chat.Messages[0].Role)
	assert.Equal(t, store.APIStateIdle, state.APIState)
	assert.Empty(t, state.StreamHandle)
	assert.Equal(t, 1, recorder.Len())
}

// =============================================================================
// ERROR EVENTS
// =============================================================================

func TestSubmitErrorEventNotifiesAndRemovesPlaceholder(t *testing.T) {
	body := `{"error":{"message":"Rate limit exceeded","code":"rate_limit_exceeded"}}`
	eng, st, _, _, recorder := newTestEngine(scriptedStream{
		events: []cloud.Event{{Kind: cloud.EventError, Status: 429, Body: body}},
	})
	chatID := seedChat(st)

	err := eng.Submit(context.Background(), model.NewUserMessage("hello"))
	require.NoError(t, err)

	state := st.Get()
	chat := state.Chat(chatID)
	require.Len(t, chat.Messages, 1)
	assert.Equal(t, model.RoleUser, chat.Messages[0].Role)
	assert.Equal(t, store.APIStateIdle, state.APIState)

	msgs := recorder.Drain()
	require.Len(t, msgs, 1)
	assert.Equal(t, "Rate limit exceeded", msgs[0])

	// Nothing was accounted for a failed stream.
	assert.Equal(t, 0, chat.PromptTokensUsed)
	assert.Zero(t, chat.CostIncurred)
}

func TestSubmitErrorAfterFragmentsKeepsPartialText(t *testing.T) {
	eng, st, _, _, _ := newTestEngine(scriptedStream{
		events: []cloud.Event{
			fragment("partial ans"),
			{Kind: cloud.EventError, Status: 500, Body: "internal error"},
		},
	})
	chatID := seedChat(st)

	err := eng.Submit(context.Background(), model.NewUserMessage("hello"))
	require.NoError(t, err)

	chat := st.Get().Chat(chatID)
	require.Len(t, chat.Messages, 2)
	assert.Equal(t, "partial ans", chat.Messages[1].Content)
	assert.False(t, chat.Messages[1].Loading)
}

// =============================================================================
// ABORT
// =============================================================================

func TestAbortFinalizesLoadingPlaceholders(t *testing.T) {
	eng, st, _, _, _ := newTestEngine()
	chatID := seedChat(st)

	empty := model.NewAssistantPlaceholder()
	partial := model.NewAssistantPlaceholder()
	partial.Content = "half a thou"
	st.Update(func(s *store.State) {
		c := s.Chat(chatID)
		c.Messages = append(c.Messages, model.NewUserMessage("q"), empty)
		s.APIState = store.APIStateLoading
		s.StreamHandle = "handle-1"
	})

	eng.AbortCurrentRequest()

	state := st.Get()
	chat := state.Chat(chatID)
	require.Len(t, chat.Messages, 1) // empty placeholder removed
	assert.Equal(t, store.APIStateIdle, state.APIState)
	assert.Empty(t, state.StreamHandle)

	// A placeholder with partial content survives as a plain message.
	st.Update(func(s *store.State) {
		c := s.Chat(chatID)
		c.Messages = append(c.Messages, partial)
		s.APIState = store.APIStateLoading
		s.StreamHandle = "handle-2"
	})
	eng.AbortCurrentRequest()

	chat = st.Get().Chat(chatID)
	require.Len(t, chat.Messages, 2)
	assert.Equal(t, "half a thou", chat.Messages[1].Content)
	assert.False(t, chat.Messages[1].Loading)
}

func TestAbortIsIdempotent(t *testing.T) {
	eng, st, _, _, _ := newTestEngine()
	seedChat(st)

	eng.AbortCurrentRequest()
	before := st.Get()
	eng.AbortCurrentRequest()
	after := st.Get()

	assert.Equal(t, before.APIState, after.APIState)
	assert.Equal(t, before.StreamHandle, after.StreamHandle)
	assert.Equal(t, len(before.Chats[0].Messages), len(after.Chats[0].Messages))
}

func TestAbortClearsSpeechAccumulator(t *testing.T) {
	eng, st, _, _, _ := newTestEngine()
	chatID := seedChat(st)

	placeholder := model.NewAssistantPlaceholder()
	st.Update(func(s *store.State) {
		c := s.Chat(chatID)
		c.Messages = append(c.Messages, model.NewUserMessage("q"), placeholder)
		s.APIState = store.APIStateLoading
		s.StreamHandle = "handle-1"
		s.TTSMessageID = placeholder.ID
		s.TTSText = "half spoken"
	})

	eng.AbortCurrentRequest()

	state := st.Get()
	assert.Empty(t, state.TTSMessageID)
	assert.Empty(t, state.TTSText)
}

func TestStaleFragmentIsDropped(t *testing.T) {
	eng, st, _, _, _ := newTestEngine()
	chatID := seedChat(st)

	placeholder := model.NewAssistantPlaceholder()
	st.Update(func(s *store.State) {
		c := s.Chat(chatID)
		c.Messages = append(c.Messages, placeholder)
		s.StreamHandle = "current"
		s.TTSMessageID = placeholder.ID
	})

	eng.applyFragment(chatID, placeholder.ID, "stale", "dropped")
	assert.Empty(t, st.Get().Chat(chatID).Messages[0].Content)

	eng.applyFragment(chatID, placeholder.ID, "current", "kept")
	state := st.Get()
	assert.Equal(t, "kept", state.Chat(chatID).Messages[0].Content)
	assert.Equal(t, "kept", state.TTSText)
}

// =============================================================================
// REGENERATE
// =============================================================================

func TestRegenerateAssistantMessage(t *testing.T) {
	eng, st, streamer, _, _ := newTestEngine(scriptedStream{
		events: []cloud.Event{fragment("second answer"), done(10, 5)},
	})
	chatID := seedChat(st)

	question := model.NewUserMessage("what is a vaporetto")
	answer := model.NewMessage(model.RoleAssistant, "first answer")
	st.Update(func(s *store.State) {
		c := s.Chat(chatID)
		c.Messages = append(c.Messages, question, answer)
	})

	err := eng.RegenerateAssistantMessage(context.Background(), answer.ID)
	require.NoError(t, err)

	chat := st.Get().Chat(chatID)
	require.Len(t, chat.Messages, 2)
	assert.Equal(t, "what is a vaporetto", chat.Messages[0].Content)
	assert.Equal(t, "second answer", chat.Messages[1].Content)

	// The resubmitted history contains the question exactly once.
	require.Equal(t, 1, streamer.requestCount())
	req := streamer.request(0)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "what is a vaporetto", req.Messages[0].Content)
}

func TestRegenerateUnknownMessage(t *testing.T) {
	eng, st, _, _, _ := newTestEngine()
	seedChat(st)

	err := eng.RegenerateAssistantMessage(context.Background(), "nope")
	require.ErrorIs(t, err, ErrMessageNotFound)
}

func TestRegenerateWithoutActiveChat(t *testing.T) {
	eng, _, _, _, _ := newTestEngine()

	err := eng.RegenerateAssistantMessage(context.Background(), "any")
	require.ErrorIs(t, err, ErrNoActiveChat)
}

// =============================================================================
// PERSONA
// =============================================================================

func TestSubmitPrependsPersonaSystemMessage(t *testing.T) {
	eng, st, streamer, _, _ := newTestEngine(scriptedStream{
		events: []cloud.Event{fragment("arr"), done(1, 1)},
	})
	seedChat(st)
	st.SetPersona("a pirate")

	err := eng.Submit(context.Background(), model.NewUserMessage("ahoy"))
	require.NoError(t, err)

	req := streamer.request(0)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Contains(t, req.Messages[0].Content, "a pirate")
	assert.Equal(t, "ahoy", req.Messages[1].Content)
}

// =============================================================================
// COST ACCOUNTING
// =============================================================================

func TestCostAccumulatesAcrossSubmissions(t *testing.T) {
	eng, st, _, _, _ := newTestEngine(
		scriptedStream{events: []cloud.Event{fragment("a"), done(100, 50)}},
		scriptedStream{events: []cloud.Event{fragment("b"), done(200, 100)}},
	)
	chatID := seedChat(st)

	require.NoError(t, eng.Submit(context.Background(), model.NewUserMessage("one")))
	require.NoError(t, eng.Submit(context.Background(), model.NewUserMessage("two")))

	chat := st.Get().Chat(chatID)
	assert.Equal(t, 300, chat.PromptTokensUsed)
	assert.Equal(t, 150, chat.CompletionTokensUsed)
	expected := 300.0/1000*0.01 + 150.0/1000*0.03
	assert.InDelta(t, expected, chat.CostIncurred, 1e-9)
}
