// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *ChatStore {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "chats.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCreateChatAssignsIdentityAndOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.CreateChat(ctx, "user-1")
	require.NoError(t, err)
	second, err := store.CreateChat(ctx, "user-1")
	require.NoError(t, err)

	assert.NotEmpty(t, first.ID)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 1, first.Order)
	assert.Equal(t, 2, second.Order)
	assert.False(t, first.CreatedAt.IsZero())
}

func TestCreateChatOrderIsPerUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateChat(ctx, "user-a")
	require.NoError(t, err)
	other, err := store.CreateChat(ctx, "user-b")
	require.NoError(t, err)

	assert.Equal(t, 1, other.Order)
}

func TestCreateChatRequiresUser(t *testing.T) {
	store := newTestStore(t)

	_, err := store.CreateChat(context.Background(), "")
	require.ErrorIs(t, err, ErrNoUser)
}

func TestGetChat(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.CreateChat(ctx, "user-1")
	require.NoError(t, err)

	got, err := store.GetChat(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "user-1", got.UserID)

	_, err = store.GetChat(ctx, "missing")
	require.ErrorIs(t, err, ErrChatNotFound)
}

func TestUpdateTitle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.CreateChat(ctx, "user-1")
	require.NoError(t, err)

	require.NoError(t, store.UpdateTitle(ctx, created.ID, "Venice Boats"))

	got, err := store.GetChat(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Venice Boats", got.Title)

	require.ErrorIs(t, store.UpdateTitle(ctx, "missing", "x"), ErrChatNotFound)
}

func TestListChats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := store.CreateChat(ctx, "user-1")
		require.NoError(t, err)
	}
	_, err := store.CreateChat(ctx, "user-2")
	require.NoError(t, err)

	chats, err := store.ListChats(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, chats, 3)
	for i, chat := range chats {
		assert.Equal(t, i+1, chat.Order)
	}
}

func TestDeleteChat(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.CreateChat(ctx, "user-1")
	require.NoError(t, err)

	require.NoError(t, store.DeleteChat(ctx, created.ID))
	_, err = store.GetChat(ctx, created.ID)
	require.ErrorIs(t, err, ErrChatNotFound)

	require.ErrorIs(t, store.DeleteChat(ctx, created.ID), ErrChatNotFound)
}
