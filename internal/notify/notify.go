// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package notify defines the one-way user notification sink consumed on
// stream failures.
package notify

import (
	"log"
	"sync"
)

// Notifier is a one-way "show error message" sink.
type Notifier interface {
	Notify(message string)
}

// =============================================================================
// IMPLEMENTATIONS
// =============================================================================

// LogNotifier writes notifications to the standard logger.
type LogNotifier struct{}

// Notify implements Notifier.
func (LogNotifier) Notify(message string) {
	log.Printf("NOTIFY: %s", message)
}

// Recorder buffers notifications for later draining. The TUI drains it
// on its render tick; tests drain it to assert on notifications.
type Recorder struct {
	mu       sync.Mutex
	messages []string
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Notify implements Notifier.
func (r *Recorder) Notify(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
}

// Drain returns all buffered notifications and clears the buffer.
func (r *Recorder) Drain() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.messages
	r.messages = nil
	return out
}

// Len returns the number of buffered notifications.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}
