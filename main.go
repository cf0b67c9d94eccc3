// lagoon TUI - A terminal chat client with streaming completions.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/jeranaias/lagoon-tui/internal/cloud"
	"github.com/jeranaias/lagoon-tui/internal/config"
	"github.com/jeranaias/lagoon-tui/internal/engine"
	"github.com/jeranaias/lagoon-tui/internal/notify"
	"github.com/jeranaias/lagoon-tui/internal/repo"
	"github.com/jeranaias/lagoon-tui/internal/store"
	"github.com/jeranaias/lagoon-tui/internal/ui/chat"
	"github.com/jeranaias/lagoon-tui/internal/ui/styles"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	var (
		showVersion = flag.Bool("version", false, "print version and exit")
		configPath  = flag.String("config", "", "path to config file (default ~/.lagoon/config.toml)")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("lagoon %s (%s, built %s)\n", Version, GitCommit, BuildDate)
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, path, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// First run gets a generated user identity, persisted for next time.
	if cfg.User.ID == "" {
		cfg.User.ID = uuid.NewString()
		if err := config.Save(cfg); err != nil {
			log.Printf("could not persist generated user id: %v", err)
		}
	}

	st := store.New()
	st.SetUserID(cfg.User.ID)
	st.SetAPIKey(cfg.API.Key)
	st.SetSettings(cfg.ToSettings())

	llm := cloud.NewClient(cfg.API.Key).WithTimeout(2 * time.Minute)
	if cfg.API.BaseURL != "" {
		llm = llm.WithBaseURL(cfg.API.BaseURL)
	}
	if cfg.API.Model != "" {
		llm.SetModel(cfg.API.Model)
	}

	repoClient := repo.NewClient(cfg.Repository.URL)
	if cfg.Repository.Token != "" {
		repoClient = repoClient.WithToken(cfg.Repository.Token)
	}

	recorder := notify.NewRecorder()
	eng := engine.New(st, repoClient, llm, recorder)

	// Hot-reload settings when the config file changes on disk.
	watcher, err := config.Watch(path, func(next *config.Config) {
		st.SetAPIKey(next.API.Key)
		st.SetSettings(next.ToSettings())
	})
	if err != nil {
		log.Printf("config watcher disabled: %v", err)
	} else {
		defer watcher.Close()
	}

	view := chat.New(st, eng, recorder, styles.NewTheme(), chat.Options{
		ShowCost:   cfg.UI.ShowCost,
		ShowTokens: cfg.UI.ShowTokens,
		Markdown:   cfg.UI.Markdown,
	})

	program := tea.NewProgram(view, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("running TUI: %w", err)
	}

	// Let in-flight title derivations land before exit.
	eng.Wait()
	return nil
}

// loadConfig resolves the config path and loads it, returning both so
// the watcher can track the same file.
func loadConfig(explicit string) (*config.Config, string, error) {
	if explicit != "" {
		cfg, err := config.LoadFromPath(explicit)
		return cfg, explicit, err
	}

	path, err := config.Path()
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load()
	return cfg, path, err
}
