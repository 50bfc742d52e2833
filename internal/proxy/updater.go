// SPDX-License-Identifier: AGPL-3.0-only
package proxy

import (
	"context"
	"fmt"
	"strings"

	"github.com/howyoungchen/deepRolePlay-sub000/internal/agent"
	"github.com/howyoungchen/deepRolePlay-sub000/internal/config"
	"github.com/howyoungchen/deepRolePlay-sub000/internal/logging"
	"github.com/howyoungchen/deepRolePlay-sub000/internal/model"
	"github.com/howyoungchen/deepRolePlay-sub000/internal/prompt"
	"github.com/howyoungchen/deepRolePlay-sub000/internal/scenario"
	"github.com/howyoungchen/deepRolePlay-sub000/internal/tools"
	"github.com/howyoungchen/deepRolePlay-sub000/internal/transcript"
)

const updateSystemPrompt = `You are the scenario manager for a long-running
roleplay conversation. You maintain structured world-state tables that record
characters, locations, items and ongoing events. Compare the latest story
development against the current tables and bring the tables up to date with
the table tools. Use re_search to recover details from earlier conversation
history when the latest development alone is not enough. Make the smallest set
of edits that keeps the tables accurate. When the tables already reflect the
story, finish without calling any tool.`

const updateUserTemplate = `Current scenario tables:
%s

Latest story development:
%s

Update the scenario tables to reflect the latest development.`

// Updater runs the scenario-update agent over an incoming conversation. Each
// request gets its own registry clone so the history search tool can close
// over that request's messages without touching the shared static set.
type Updater struct {
	provider  agent.ChatProvider
	store     *scenario.Store
	static    *tools.Registry
	cfg       config.AgentConfig
	persister *transcript.Persister
	logger    *logging.Logger
}

// NewUpdater builds an Updater. The static registry holds the tools shared by
// all requests (scenario table tools, thinking tool, imported MCP tools).
func NewUpdater(cfg config.AgentConfig, provider agent.ChatProvider, store *scenario.Store, static *tools.Registry, persister *transcript.Persister, logger *logging.Logger) *Updater {
	return &Updater{
		provider:  provider,
		store:     store,
		static:    static,
		cfg:       cfg,
		persister: persister,
		logger:    logger,
	}
}

// Update runs one agent pass over the conversation and applies whatever table
// edits the agent decides on. It returns an error only for setup and context
// failures; backend errors end the run as a normal terminal outcome.
func (u *Updater) Update(ctx context.Context, history []model.Message) error {
	reg := u.static.Clone()
	if err := tools.RegisterSearchTool(reg, func() string { return historyText(history) }); err != nil {
		return fmt.Errorf("registering history search: %w", err)
	}

	snapshot, err := u.store.Snapshot()
	if err != nil {
		return fmt.Errorf("reading scenario: %w", err)
	}
	userInput := fmt.Sprintf(updateUserTemplate, snapshot, latestAssistantMessage(history))
	seed := prompt.Seed(updateSystemPrompt, userInput, reg)

	runner := agent.NewRunner(u.provider, reg, u.runConfig(), u.persister, u.logger)
	_, outcome, err := runner.Run(ctx, seed, nil)
	if err != nil {
		return err
	}
	u.logger.Infof("scenario update finished: %s", outcome)
	return nil
}

func (u *Updater) runConfig() model.RunConfig {
	return model.RunConfig{
		Model:            u.cfg.Model,
		Temperature:      u.cfg.Temperature,
		TopP:             u.cfg.TopP,
		FrequencyPenalty: u.cfg.FrequencyPenalty,
		PresencePenalty:  u.cfg.PresencePenalty,
		MaxTokens:        u.cfg.MaxTokens,
		MaxIterations:    u.cfg.MaxIterations,
		Stream:           u.cfg.Stream,
	}
}

// historyText renders the conversation as the search corpus for re_search.
func historyText(history []model.Message) string {
	var b strings.Builder
	for _, m := range history {
		if m.Role != model.RoleUser && m.Role != model.RoleAssistant {
			continue
		}
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}

// latestAssistantMessage returns the content of the newest assistant message,
// which carries the story development the tables must catch up with.
func latestAssistantMessage(history []model.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == model.RoleAssistant {
			return history[i].Content
		}
	}
	return ""
}
