// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/jeranaias/lagoon-tui/internal/storage"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultPort is the default port for the repository service.
	DefaultPort = 8787

	// MaxRequestBodySize caps request bodies (1MB).
	MaxRequestBodySize = 1 * 1024 * 1024

	// MaxTitleLength caps persisted titles.
	MaxTitleLength = 200

	// Version is the service version.
	Version = "0.1.0"
)

// =============================================================================
// SERVER
// =============================================================================

// Server is the chat repository HTTP service.
//
// Endpoints:
//   - POST   /v1/chats      - create a chat record
//   - GET    /v1/chats      - list a user's chats (?user_id=)
//   - PATCH  /v1/chats/{id} - update chat metadata (title)
//   - DELETE /v1/chats/{id} - delete a chat record
//   - GET    /health        - health check
type Server struct {
	port    int
	chats   *storage.ChatStore
	auth    *AuthConfig
	limiter *RateLimiter
	server  *http.Server
}

// New creates a server backed by the given chat store.
func New(chats *storage.ChatStore, port int) *Server {
	if port == 0 {
		port = DefaultPort
	}
	return &Server{
		port:    port,
		chats:   chats,
		auth:    &AuthConfig{},
		limiter: NewRateLimiter(20, 40),
	}
}

// WithAuth enables bearer token authentication.
func (s *Server) WithAuth(token string) *Server {
	s.auth = &AuthConfig{Enabled: true, BearerToken: token}
	return s
}

// Handler builds the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/v1/chats", s.handleChats)
	mux.HandleFunc("/v1/chats/", s.handleChatByID)

	chain := Chain(
		RecoveryMiddleware(),
		LoggingMiddleware(log.Default()),
		RateLimitMiddleware(s.limiter),
		AuthMiddleware(s.auth),
	)
	return chain(mux)
}

// Start begins serving. Blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	log.Printf("chat repository service listening on :%d", s.port)
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// =============================================================================
// HANDLERS
// =============================================================================

// createChatRequest is the create-chat request body.
type createChatRequest struct {
	UserID string `json:"user_id"`
}

// updateChatRequest is the metadata-update request body.
type updateChatRequest struct {
	Title string `json:"title"`
}

// handleHealth answers the health check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": Version,
	})
}

// handleChats routes collection-level requests.
func (s *Server) handleChats(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createChat(w, r)
	case http.MethodGet:
		s.listChats(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleChatByID routes requests addressing a single chat.
func (s *Server) handleChatByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/chats/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.getChat(w, r, id)
	case http.MethodPatch:
		s.updateChat(w, r, id)
	case http.MethodDelete:
		s.deleteChat(w, r, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// createChat persists a new chat row and returns it. The server assigns
// identity, order, and creation time.
func (s *Server) createChat(w http.ResponseWriter, r *http.Request) {
	var req createChatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	record, err := s.chats.CreateChat(r.Context(), req.UserID)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

// listChats returns a user's chats in order.
func (s *Server) listChats(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	records, err := s.chats.ListChats(r.Context(), userID)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	if records == nil {
		records = []storage.ChatRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// getChat returns a single chat row.
func (s *Server) getChat(w http.ResponseWriter, r *http.Request, id string) {
	record, err := s.chats.GetChat(r.Context(), id)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// updateChat sets a chat's title.
func (s *Server) updateChat(w http.ResponseWriter, r *http.Request, id string) {
	var req updateChatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Title) > MaxTitleLength {
		writeError(w, http.StatusBadRequest, "title too long")
		return
	}

	if err := s.chats.UpdateTitle(r.Context(), id, req.Title); err != nil {
		writeStorageError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// deleteChat removes a chat row.
func (s *Server) deleteChat(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.chats.DeleteChat(r.Context(), id); err != nil {
		writeStorageError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

// decodeBody reads and decodes a JSON request body, answering the
// request itself on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to write response: %v", err)
	}
}

// writeError writes a JSON error response in the shape clients parse.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeStorageError maps storage errors to HTTP responses.
func writeStorageError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrChatNotFound):
		writeError(w, http.StatusNotFound, "chat not found")
	case errors.Is(err, storage.ErrNoUser):
		writeError(w, http.StatusBadRequest, "user id is required")
	default:
		log.Printf("storage error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
