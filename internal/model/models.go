// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "sort"

// =============================================================================
// MODEL REGISTRY
// =============================================================================

// Pricing holds per-1000-token prices in dollars.
type Pricing struct {
	Prompt     float64 `json:"prompt"`
	Completion float64 `json:"completion"`
}

// Info describes a completion model known to the client.
type Info struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	ContextSize     int     `json:"context_length"`
	CostPer1kTokens Pricing `json:"cost_per_1k_tokens"`
}

// DefaultModel is used when the configuration names no model.
const DefaultModel = "gpt-4o-mini"

// knownModels is the built-in registry. Prices are dollars per 1k
// tokens; unknown models fall back to the default model's pricing so
// accounting never silently stops.
var knownModels = map[string]Info{
	"gpt-4o": {
		ID:              "gpt-4o",
		Name:            "GPT-4o",
		ContextSize:     128000,
		CostPer1kTokens: Pricing{Prompt: 0.005, Completion: 0.015},
	},
	"gpt-4o-mini": {
		ID:              "gpt-4o-mini",
		Name:            "GPT-4o mini",
		ContextSize:     128000,
		CostPer1kTokens: Pricing{Prompt: 0.00015, Completion: 0.0006},
	},
	"gpt-4-turbo": {
		ID:              "gpt-4-turbo",
		Name:            "GPT-4 Turbo",
		ContextSize:     128000,
		CostPer1kTokens: Pricing{Prompt: 0.01, Completion: 0.03},
	},
	"gpt-4": {
		ID:              "gpt-4",
		Name:            "GPT-4",
		ContextSize:     8192,
		CostPer1kTokens: Pricing{Prompt: 0.03, Completion: 0.06},
	},
	"gpt-3.5-turbo": {
		ID:              "gpt-3.5-turbo",
		Name:            "GPT-3.5 Turbo",
		ContextSize:     16385,
		CostPer1kTokens: Pricing{Prompt: 0.0005, Completion: 0.0015},
	},
}

// GetModelInfo returns registry information for the given model ID.
// Unknown IDs return an entry carrying the default model's pricing.
func GetModelInfo(id string) Info {
	if info, ok := knownModels[id]; ok {
		return info
	}
	fallback := knownModels[DefaultModel]
	fallback.ID = id
	fallback.Name = id
	return fallback
}

// IsKnownModel reports whether the model ID is in the registry.
func IsKnownModel(id string) bool {
	_, ok := knownModels[id]
	return ok
}

// KnownModels returns the registered model IDs in sorted order.
func KnownModels() []string {
	ids := make([]string, 0, len(knownModels))
	for id := range knownModels {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// =============================================================================
// SETTINGS SNAPSHOT
// =============================================================================

// Settings is the configuration snapshot captured once per submission.
// It is a value type: later edits to the live configuration must not
// affect a call already in flight.
type Settings struct {
	Model            string  `json:"model"`
	Temperature      float64 `json:"temperature"`
	TopP             float64 `json:"top_p"`
	PresencePenalty  float64 `json:"presence_penalty"`
	FrequencyPenalty float64 `json:"frequency_penalty"`
	MaxTokens        int     `json:"max_tokens"`
	AutoTitle        bool    `json:"auto_title"`
	Persona          string  `json:"persona"`
}

// DefaultSettings returns the settings used before any configuration
// is loaded.
func DefaultSettings() Settings {
	return Settings{
		Model:       DefaultModel,
		Temperature: 1.0,
		TopP:        1.0,
		AutoTitle:   true,
	}
}
