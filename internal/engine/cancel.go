// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"sync"
)

// =============================================================================
// CANCEL HANDLE MANAGEMENT (THREAD-SAFE)
// =============================================================================

// cancelManager pairs the single tracked cancellation handle with its
// context cancel function. The store records only the handle string;
// the function lives here so state snapshots stay plain data.
type cancelManager struct {
	mu     sync.Mutex
	handle string
	cancel context.CancelFunc
}

// newCancelManager creates a new cancelManager.
func newCancelManager() *cancelManager {
	return &cancelManager{}
}

// set registers a new handle and cancel function. Any previous function
// is invoked first so superseded contexts are never leaked.
func (cm *cancelManager) set(handle string, fn context.CancelFunc) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.cancel != nil {
		cm.cancel()
	}
	cm.handle = handle
	cm.cancel = fn
}

// cancelCurrent invokes and clears the stored cancel function.
// Safe to call multiple times or with nothing registered.
func (cm *cancelManager) cancelCurrent() {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.cancel != nil {
		cm.cancel()
		cm.cancel = nil
	}
	cm.handle = ""
}

// clear releases the registration for the given handle. The cancel
// function is still invoked so the finished stream's context is freed.
// A mismatched handle is left untouched: a newer stream owns the slot.
func (cm *cancelManager) clear(handle string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.handle != handle {
		return
	}
	if cm.cancel != nil {
		cm.cancel()
		cm.cancel = nil
	}
	cm.handle = ""
}
