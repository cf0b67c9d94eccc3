// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides the chat record store backing the repository
// service daemon.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrChatNotFound indicates the chat record does not exist.
	ErrChatNotFound = errors.New("chat not found")

	// ErrNoUser indicates the caller supplied no user identity.
	ErrNoUser = errors.New("user id is required")
)

// =============================================================================
// CHAT RECORD
// =============================================================================

// ChatRecord is one persisted chat row. The server owns identity and
// ordering: IDs are generated here and Order is assigned per user,
// monotonically increasing.
type ChatRecord struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Order     int       `json:"order"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// schema creates the chat table.
const schema = `
CREATE TABLE IF NOT EXISTS chats (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	ord        INTEGER NOT NULL,
	title      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chats_user ON chats(user_id, ord);
`

// =============================================================================
// CHAT STORE
// =============================================================================

// ChatStore persists chat records in SQLite.
type ChatStore struct {
	db *sql.DB
}

// Open opens (or creates) the chat database at the given path.
func Open(path string) (*ChatStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite supports one writer at a time; keep the pool at one
	// connection so order assignment stays serialized.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &ChatStore{db: db}, nil
}

// Close closes the database.
func (s *ChatStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// OPERATIONS
// =============================================================================

// CreateChat inserts a new chat row for the user. The ID is generated
// and the order is the next value in the user's sequence; both happen
// in one transaction so concurrent creates never collide.
func (s *ChatStore) CreateChat(ctx context.Context, userID string) (*ChatRecord, error) {
	if userID == "" {
		return nil, ErrNoUser
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var next int
	row := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(ord), 0) + 1 FROM chats WHERE user_id = ?", userID)
	if err := row.Scan(&next); err != nil {
		return nil, fmt.Errorf("failed to assign order: %w", err)
	}

	record := &ChatRecord{
		ID:        uuid.NewString(),
		UserID:    userID,
		Order:     next,
		CreatedAt: time.Now().UTC(),
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO chats (id, user_id, ord, title, created_at) VALUES (?, ?, ?, ?, ?)",
		record.ID, record.UserID, record.Order, record.Title, record.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert chat: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return record, nil
}

// GetChat returns a chat row by ID.
func (s *ChatStore) GetChat(ctx context.Context, id string) (*ChatRecord, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, user_id, ord, title, created_at FROM chats WHERE id = ?", id)

	var record ChatRecord
	err := row.Scan(&record.ID, &record.UserID, &record.Order, &record.Title, &record.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read chat: %w", err)
	}
	return &record, nil
}

// ListChats returns the user's chats in order.
func (s *ChatStore) ListChats(ctx context.Context, userID string) ([]ChatRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, user_id, ord, title, created_at FROM chats WHERE user_id = ? ORDER BY ord", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	defer rows.Close()

	var records []ChatRecord
	for rows.Next() {
		var record ChatRecord
		if err := rows.Scan(&record.ID, &record.UserID, &record.Order, &record.Title, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// UpdateTitle sets a chat's title.
func (s *ChatStore) UpdateTitle(ctx context.Context, id, title string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE chats SET title = ? WHERE id = ?", title, id)
	if err != nil {
		return fmt.Errorf("failed to update title: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update: %w", err)
	}
	if n == 0 {
		return ErrChatNotFound
	}
	return nil
}

// DeleteChat removes a chat row.
func (s *ChatStore) DeleteChat(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM chats WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete chat: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete: %w", err)
	}
	if n == 0 {
		return ErrChatNotFound
	}
	return nil
}
