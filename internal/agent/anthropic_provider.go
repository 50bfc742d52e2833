// SPDX-License-Identifier: AGPL-3.0-only
package agent

import (
	"context"
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/howyoungchen/deepRolePlay-sub000/internal/model"
)

const defaultAnthropicMaxTokens = 4096

// AnthropicProvider implements ChatProvider using the Anthropic SDK.
type AnthropicProvider struct {
	client *anthropic.Client
}

// NewAnthropicProvider creates a new Anthropic-backed ChatProvider.
func NewAnthropicProvider(apiKey string) *AnthropicProvider {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicProvider{client: &client}
}

func (p *AnthropicProvider) CreateCompletion(ctx context.Context, cfg model.RunConfig, messages []model.Message) (string, error) {
	params := buildAnthropicParams(cfg, messages)

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", err
	}

	var content string
	for _, block := range resp.Content {
		if block.Type == "text" {
			if content != "" {
				content += "\n"
			}
			content += block.AsText().Text
		}
	}
	return content, nil
}

func (p *AnthropicProvider) StreamCompletion(ctx context.Context, cfg model.RunConfig, messages []model.Message, emit func(fragment string)) (string, error) {
	params := buildAnthropicParams(cfg, messages)

	stream := p.client.Messages.NewStreaming(ctx, params)
	var full string
	for stream.Next() {
		event := stream.Current()
		switch eventVariant := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			switch deltaVariant := eventVariant.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if deltaVariant.Text != "" {
					full += deltaVariant.Text
					emit(deltaVariant.Text)
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return full, err
	}
	return full, nil
}

func buildAnthropicParams(cfg model.RunConfig, messages []model.Message) anthropic.MessageNewParams {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	systemMsg, rest := splitSystemMessage(messages)
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(cfg.Model),
		Messages:    toAnthropicMessages(rest),
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(cfg.Temperature),
	}
	if cfg.TopP > 0 {
		params.TopP = anthropic.Float(cfg.TopP)
	}
	if systemMsg != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: systemMsg},
		}
	}
	return params
}

// splitSystemMessage extracts the leading system message, which Anthropic
// takes as a top-level parameter rather than a conversation turn.
func splitSystemMessage(messages []model.Message) (string, []model.Message) {
	if len(messages) > 0 && messages[0].Role == model.RoleSystem {
		return messages[0].Content, messages[1:]
	}
	return "", messages
}

// toAnthropicMessages converts provider-agnostic messages to Anthropic SDK
// message params.
//
// Anthropic's API requires:
//   - Only "user" and "assistant" roles (no "tool" role)
//   - Tool results are sent as user messages with ToolResultBlockParam content
//   - Assistant messages with tool calls use ToolUseBlockParam content
func toAnthropicMessages(messages []model.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case model.RoleUser:
			out = append(out, anthropic.NewUserMessage(
				anthropic.NewTextBlock(m.Content),
			))
		case model.RoleTool:
			out = append(out, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false),
			))
		case model.RoleAssistant:
			blocks := make([]anthropic.ContentBlockParamUnion, 0)
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						ID:    tc.ID,
						Name:  tc.Name,
						Input: json.RawMessage(encodeArguments(tc.Arguments)),
					},
				})
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		}
	}
	return out
}
