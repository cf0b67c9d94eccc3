// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package repo implements the HTTP client for the chat repository
// service, which owns chat records server-side and assigns their
// identity and order.
package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout is the default timeout for repository requests.
const DefaultTimeout = 15 * time.Second

// maxBodySize limits how much of a response body is read.
const maxBodySize = 1 * 1024 * 1024

// Error variables for common repository errors.
var (
	// ErrUnauthorized indicates the service rejected the caller's identity.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrChatNotFound indicates the chat record does not exist.
	ErrChatNotFound = errors.New("chat not found")
)

// ServiceError represents a non-success response from the repository
// service.
type ServiceError struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	return fmt.Sprintf("chat repository error (HTTP %d): %s", e.Status, e.Message)
}

// CreatedChat is the record returned by the create-chat call.
type CreatedChat struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Order     int       `json:"order"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// createChatRequest is the create-chat request body.
type createChatRequest struct {
	UserID string `json:"user_id"`
}

// updateChatRequest is the metadata-update request body.
type updateChatRequest struct {
	Title string `json:"title"`
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the chat repository service.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a repository client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// WithToken sets the bearer token sent with each request.
func (c *Client) WithToken(token string) *Client {
	c.token = token
	return c
}

// WithTimeout sets the request timeout.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	c.httpClient.Timeout = timeout
	return c
}

// =============================================================================
// OPERATIONS
// =============================================================================

// CreateChat persists one new chat row for the user and returns the
// server-assigned identity, order, and creation timestamp.
//
// The call is not idempotent: one call per logical "new chat" intent.
func (c *Client) CreateChat(ctx context.Context, userID string) (*CreatedChat, error) {
	if userID == "" {
		return nil, ErrUnauthorized
	}

	body, err := json.Marshal(createChatRequest{UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chats", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, c.handleErrorResponse(resp.StatusCode, respBody)
	}

	var created CreatedChat
	if err := json.Unmarshal(respBody, &created); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if created.ID == "" {
		return nil, &ServiceError{Status: resp.StatusCode, Message: "response carried no chat id"}
	}

	return &created, nil
}

// UpdateChatTitle persists a chat's title.
func (c *Client) UpdateChatTitle(ctx context.Context, chatID, title string) error {
	body, err := json.Marshal(updateChatRequest{Title: title})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.baseURL+"/v1/chats/"+chatID, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		return c.handleErrorResponse(resp.StatusCode, respBody)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// setHeaders sets the required headers for repository requests.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "lagoon/0.1.0")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// handleErrorResponse converts HTTP error responses to typed errors.
func (c *Client) handleErrorResponse(statusCode int, body []byte) error {
	message := strings.TrimSpace(string(body))

	var parsed struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != "" {
		message = parsed.Error
	}

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrUnauthorized, message)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrChatNotFound, message)
	default:
		return &ServiceError{Status: statusCode, Message: message}
	}
}
