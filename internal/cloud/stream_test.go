// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sseHandler writes the given SSE events and closes the stream.
func sseHandler(chunks ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, chunk := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", chunk)
			flusher.Flush()
		}
	}
}

func newStreamingClient(url string) *Client {
	return NewClient("test-key").WithBaseURL(url)
}

func collect(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var out []Event
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func TestStreamCompletionDeliversFragmentsInOrder(t *testing.T) {
	ts := httptest.NewServer(sseHandler(
		`{"choices":[{"delta":{"content":"Hel"}}]}`,
		`{"choices":[{"delta":{"content":"lo"}}]}`,
		`{"choices":[],"usage":{"prompt_tokens":10,"completion_tokens":2,"total_tokens":12}}`,
		`[DONE]`,
	))
	defer ts.Close()

	client := newStreamingClient(ts.URL)
	events, err := client.StreamCompletion(context.Background(), &Request{
		Model:    "gpt-4o-mini",
		Messages: []ChatMessage{NewUserMessage("hi")},
	})
	require.NoError(t, err)

	got := collect(t, events)
	require.Len(t, got, 3)
	assert.Equal(t, EventFragment, got[0].Kind)
	assert.Equal(t, "Hel", got[0].Fragment)
	assert.Equal(t, "lo", got[1].Fragment)

	terminal := got[2]
	assert.Equal(t, EventDone, terminal.Kind)
	assert.Equal(t, 10, terminal.PromptTokens)
	assert.Equal(t, 2, terminal.CompletionTokens)
}

func TestStreamCompletionEstimatesUsageWithoutUsageChunk(t *testing.T) {
	ts := httptest.NewServer(sseHandler(
		`{"choices":[{"delta":{"content":"12345678"}}]}`,
		`[DONE]`,
	))
	defer ts.Close()

	client := newStreamingClient(ts.URL)
	events, err := client.StreamCompletion(context.Background(), &Request{
		Messages: []ChatMessage{NewUserMessage("abcd")},
	})
	require.NoError(t, err)

	got := collect(t, events)
	terminal := got[len(got)-1]
	require.Equal(t, EventDone, terminal.Kind)
	// ~4 chars per token, rounded up.
	assert.Equal(t, 1, terminal.PromptTokens)
	assert.Equal(t, 2, terminal.CompletionTokens)
}

func TestStreamCompletionErrorStatus(t *testing.T) {
	body := `{"error":{"message":"Rate limit exceeded","code":"rate_limit_exceeded"}}`
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(body))
	}))
	defer ts.Close()

	client := newStreamingClient(ts.URL)
	events, err := client.StreamCompletion(context.Background(), &Request{
		Messages: []ChatMessage{NewUserMessage("hi")},
	})
	require.NoError(t, err)

	got := collect(t, events)
	require.Len(t, got, 1)
	assert.Equal(t, EventError, got[0].Kind)
	assert.Equal(t, http.StatusTooManyRequests, got[0].Status)
	assert.Equal(t, body, got[0].Body)
	assert.ErrorIs(t, got[0].Err, ErrRateLimited)
}

func TestStreamCompletionCancellation(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\n\n")
		flusher.Flush()
		<-release
	}))
	defer ts.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	client := newStreamingClient(ts.URL)
	events, err := client.StreamCompletion(ctx, &Request{
		Messages: []ChatMessage{NewUserMessage("hi")},
	})
	require.NoError(t, err)

	// First fragment arrives, then we cancel.
	first := <-events
	assert.Equal(t, EventFragment, first.Kind)
	cancel()

	var terminal Event
	for ev := range events {
		terminal = ev
	}
	assert.Equal(t, EventCancelled, terminal.Kind)
}

func TestStreamCompletionRequiresAPIKey(t *testing.T) {
	client := NewClient("")
	_, err := client.StreamCompletion(context.Background(), &Request{})
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestStreamCompletionSkipsMalformedChunks(t *testing.T) {
	ts := httptest.NewServer(sseHandler(
		`not json at all`,
		`{"choices":[{"delta":{"content":"ok"}}]}`,
		`[DONE]`,
	))
	defer ts.Close()

	client := newStreamingClient(ts.URL)
	events, err := client.StreamCompletion(context.Background(), &Request{
		Messages: []ChatMessage{NewUserMessage("hi")},
	})
	require.NoError(t, err)

	got := collect(t, events)
	require.Len(t, got, 2)
	assert.Equal(t, "ok", got[0].Fragment)
	assert.Equal(t, EventDone, got[1].Kind)
}

func TestStreamAccumulate(t *testing.T) {
	ts := httptest.NewServer(sseHandler(
		`{"choices":[{"delta":{"content":"Hel"}}]}`,
		`{"choices":[{"delta":{"content":"lo"}}]}`,
		`[DONE]`,
	))
	defer ts.Close()

	client := newStreamingClient(ts.URL)
	text, err := client.StreamAccumulate(context.Background(), &Request{
		Messages: []ChatMessage{NewUserMessage("hi")},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello", text)
}

func TestSSEReader(t *testing.T) {
	input := "data: first\n\ndata: part1\ndata: part2\n\n: comment\nevent: ping\n\ndata: last\n"
	reader := NewSSEReader(strings.NewReader(input))

	ev, err := reader.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, "first", string(ev))

	ev, err = reader.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, "part1\npart2", string(ev))

	// Event with no data lines is skipped; EOF flushes the final payload.
	ev, err = reader.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, "last", string(ev))
}

func TestHumanMessage(t *testing.T) {
	assert.Equal(t, "Rate limit exceeded",
		HumanMessage(`{"error":{"message":"Rate limit exceeded"}}`))
	assert.Equal(t, "plain text", HumanMessage("plain text"))
}

func TestStreamCompletionDoesNotBlockForever(t *testing.T) {
	ts := httptest.NewServer(sseHandler(`[DONE]`))
	defer ts.Close()

	client := newStreamingClient(ts.URL)
	events, err := client.StreamCompletion(context.Background(), &Request{
		Messages: []ChatMessage{NewUserMessage("hi")},
	})
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, EventDone, ev.Kind)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for terminal event")
	}
}
