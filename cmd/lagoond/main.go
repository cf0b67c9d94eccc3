// lagoond - the lagoon chat repository service.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jeranaias/lagoon-tui/internal/config"
	"github.com/jeranaias/lagoon-tui/internal/server"
	"github.com/jeranaias/lagoon-tui/internal/storage"
)

func main() {
	var (
		port   = flag.Int("port", server.DefaultPort, "port to listen on")
		dbPath = flag.String("db", "", "path to the chats database (default ~/.lagoon/chats.db)")
		token  = flag.String("token", os.Getenv("LAGOON_REPO_TOKEN"), "bearer token required on every request (empty disables auth)")
	)
	flag.Parse()

	if err := run(*port, *dbPath, *token); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(port int, dbPath, token string) error {
	if dbPath == "" {
		dir, err := config.Dir()
		if err != nil {
			return fmt.Errorf("resolving data directory: %w", err)
		}
		dbPath = filepath.Join(dir, "chats.db")
	}

	chats, err := storage.Open(dbPath)
	if err != nil {
		return fmt.Errorf("opening chat store: %w", err)
	}
	defer chats.Close()

	srv := server.New(chats, port)
	if token != "" {
		srv = srv.WithAuth(token)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Println("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
