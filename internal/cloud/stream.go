// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// MaxChunkSize is the maximum allowed size for a single SSE chunk (64KB).
const MaxChunkSize = 64 * 1024

// =============================================================================
// STREAM EVENTS
// =============================================================================

// EventKind discriminates the variants of a stream event.
type EventKind int

const (
	// EventFragment carries one incremental piece of response text.
	EventFragment EventKind = iota

	// EventDone is the successful terminal event with the usage pair.
	EventDone

	// EventError is the failure terminal event with status and raw body.
	EventError

	// EventCancelled is the terminal event emitted when the stream's
	// context was cancelled. Cancellation is a first-class outcome, not
	// a missing one: consumers always observe exactly one terminal
	// event per stream.
	EventCancelled
)

// Event is one element of a completion stream. Fragments arrive in
// strict server order, zero or more times, followed by exactly one
// terminal event (Done, Error, or Cancelled). This layer never drops,
// merges, or reorders fragments.
type Event struct {
	Kind EventKind

	// Fragment text (EventFragment).
	Fragment string

	// Usage pair (EventDone).
	PromptTokens     int
	CompletionTokens int

	// Failure detail (EventError).
	Status int
	Body   string
	Err    error
}

// streamChunk represents a single chunk of the SSE response.
type streamChunk struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
			Role    string `json:"role,omitempty"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *Usage `json:"usage,omitempty"`
}

// content returns the content from the first choice's delta.
func (c *streamChunk) content() string {
	if len(c.Choices) > 0 {
		return c.Choices[0].Delta.Content
	}
	return ""
}

// =============================================================================
// SSE READER
// =============================================================================

// SSEReader parses Server-Sent Events from a stream.
type SSEReader struct {
	reader *bufio.Reader
}

// NewSSEReader creates a new SSE reader from an io.Reader.
func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{
		reader: bufio.NewReader(r),
	}
}

// ReadEvent reads the next SSE event and returns its data payload.
// Returns io.EOF when the stream ends.
func (s *SSEReader) ReadEvent() ([]byte, error) {
	var dataLines [][]byte
	total := 0

	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				if len(dataLines) > 0 {
					return bytes.Join(dataLines, []byte("\n")), nil
				}
				return nil, io.EOF
			}
			return nil, err
		}

		line = bytes.TrimRight(line, "\r\n")

		// Empty line signals end of event
		if len(line) == 0 {
			if len(dataLines) > 0 {
				return bytes.Join(dataLines, []byte("\n")), nil
			}
			continue
		}

		if bytes.HasPrefix(line, []byte("data:")) {
			data := bytes.TrimSpace(line[5:])
			total += len(data)
			if total > MaxChunkSize {
				return nil, fmt.Errorf("chunk too large: %d bytes", total)
			}
			dataLines = append(dataLines, data)
		}
		// Ignore other fields (event:, id:, retry:, comments starting with :)
	}
}

// =============================================================================
// STREAMING COMPLETION
// =============================================================================

// StreamCompletion opens a streaming chat completion request and
// returns a channel of events. The channel carries zero or more
// fragments in arrival order followed by exactly one terminal event,
// then closes. Cancelling ctx produces EventCancelled.
//
// The returned error covers only local preconditions (missing API key,
// unmarshalable request); transport and API failures arrive on the
// channel as EventError so every opened stream has a terminal outcome.
func (c *Client) StreamCompletion(ctx context.Context, req *Request) (<-chan Event, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	// Ensure streaming and the final usage chunk are enabled.
	req.Stream = true
	if req.StreamOptions == nil {
		req.StreamOptions = &StreamOptions{IncludeUsage: true}
	}
	if req.Model == "" {
		req.Model = c.model
	}

	bodyBytes, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	events := make(chan Event, 64)

	go func() {
		defer close(events)
		c.runStream(ctx, req, bodyBytes, events)
	}()

	return events, nil
}

// runStream performs the HTTP exchange and pumps events until a
// terminal outcome. Exactly one terminal event is sent.
func (c *Client) runStream(ctx context.Context, req *Request, body []byte, events chan<- Event) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		events <- Event{Kind: EventError, Err: fmt.Errorf("failed to create request: %w", err)}
		return
	}

	c.setHeaders(httpReq)
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")

	resp, err := sharedStreamingClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			events <- Event{Kind: EventCancelled, Err: ctxErr}
			return
		}
		events <- Event{Kind: EventError, Err: fmt.Errorf("request failed: %w", err)}
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
		events <- Event{
			Kind:   EventError,
			Status: resp.StatusCode,
			Body:   string(errBody),
			Err:    c.handleErrorResponse(resp.StatusCode, errBody),
		}
		return
	}

	reader := NewSSEReader(resp.Body)
	var usage *Usage
	completionChars := 0

	for {
		select {
		case <-ctx.Done():
			events <- Event{Kind: EventCancelled, Err: ctx.Err()}
			return
		default:
		}

		data, err := reader.ReadEvent()
		if err != nil {
			if err == io.EOF {
				events <- c.doneEvent(req, usage, completionChars)
				return
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				events <- Event{Kind: EventCancelled, Err: ctxErr}
				return
			}
			events <- Event{Kind: EventError, Err: fmt.Errorf("read error: %w", err)}
			return
		}

		if bytes.Equal(data, []byte("[DONE]")) {
			events <- c.doneEvent(req, usage, completionChars)
			return
		}

		var chunk streamChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			// Skip malformed chunks rather than aborting the stream.
			continue
		}

		if chunk.Usage != nil {
			usage = chunk.Usage
		}

		if content := chunk.content(); content != "" {
			completionChars += len(content)
			select {
			case events <- Event{Kind: EventFragment, Fragment: content}:
			case <-ctx.Done():
				events <- Event{Kind: EventCancelled, Err: ctx.Err()}
				return
			}
		}
	}
}

// doneEvent builds the successful terminal event. When the server sent
// no usage chunk, token counts fall back to the ~4 chars/token estimate
// so accounting never silently drops a call.
func (c *Client) doneEvent(req *Request, usage *Usage, completionChars int) Event {
	if usage != nil {
		return Event{
			Kind:             EventDone,
			PromptTokens:     usage.PromptTokens,
			CompletionTokens: usage.CompletionTokens,
		}
	}

	promptChars := 0
	for _, m := range req.Messages {
		promptChars += len(m.Content)
	}
	return Event{
		Kind:             EventDone,
		PromptTokens:     (promptChars + 3) / 4,
		CompletionTokens: (completionChars + 3) / 4,
	}
}

// =============================================================================
// ACCUMULATED RESPONSE
// =============================================================================

// StreamAccumulate performs a streaming completion but returns the full
// response at the end. Useful where streaming is wanted for cancellation
// but the caller needs the complete text.
func (c *Client) StreamAccumulate(ctx context.Context, req *Request) (string, error) {
	events, err := c.StreamCompletion(ctx, req)
	if err != nil {
		return "", err
	}

	var sb bytes.Buffer
	for ev := range events {
		switch ev.Kind {
		case EventFragment:
			sb.WriteString(ev.Fragment)
		case EventDone:
			return sb.String(), nil
		case EventError:
			return sb.String(), ev.Err
		case EventCancelled:
			return sb.String(), ev.Err
		}
	}
	return sb.String(), errors.New("stream closed without terminal event")
}
