// SPDX-License-Identifier: AGPL-3.0-only
package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/howyoungchen/deepRolePlay-sub000/internal/config"
	"github.com/howyoungchen/deepRolePlay-sub000/internal/model"
)

// ChatProvider abstracts a chat-completion backend so the agent loop can work
// with any LLM provider. Tool calls ride in-band inside the assistant text;
// providers never see native function-calling fields.
type ChatProvider interface {
	// CreateCompletion sends one request and blocks until the backend
	// returns the complete assistant text.
	CreateCompletion(ctx context.Context, cfg model.RunConfig, messages []model.Message) (string, error)

	// StreamCompletion sends one request and emits the assistant text in
	// ordered fragments as they arrive. It returns the concatenation of all
	// emitted fragments. On error the returned text holds whatever arrived
	// before the failure.
	StreamCompletion(ctx context.Context, cfg model.RunConfig, messages []model.Message, emit func(fragment string)) (string, error)
}

// NewChatProvider builds the appropriate ChatProvider based on cfg.Agent.Provider.
func NewChatProvider(cfg *config.Config) (ChatProvider, error) {
	provider := strings.ToLower(cfg.Agent.Provider)
	switch provider {
	case "anthropic":
		apiKey := cfg.Agent.AnthropicAPIKey
		if apiKey == "" {
			apiKey = cfg.Agent.APIKey
		}
		if apiKey == "" {
			return nil, fmt.Errorf("Anthropic API key is not set in configuration")
		}
		return NewAnthropicProvider(apiKey), nil
	default: // "openai" or empty
		apiKey := cfg.Agent.OpenAIAPIKey
		if apiKey == "" {
			apiKey = cfg.Agent.APIKey
		}
		if apiKey == "" {
			return nil, fmt.Errorf("OpenAI API key is not set in configuration")
		}
		return NewOpenAIProvider(apiKey, cfg.Agent.BaseURL), nil
	}
}
