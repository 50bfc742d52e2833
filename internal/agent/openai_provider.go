// SPDX-License-Identifier: AGPL-3.0-only
package agent

import (
	"context"
	"encoding/json"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/howyoungchen/deepRolePlay-sub000/internal/model"
)

// OpenAIProvider implements ChatProvider using the OpenAI SDK.
// It supports any OpenAI-compatible endpoint (OpenAI, Ollama, vLLM, Groq, etc.)
// via a configurable base URL.
type OpenAIProvider struct {
	client *openai.Client
}

// NewOpenAIProvider creates a new OpenAI-backed ChatProvider.
// If baseURL is non-empty it overrides the default API endpoint, which allows
// pointing at any OpenAI-compatible server.
func NewOpenAIProvider(apiKey string, baseURL string) *OpenAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return &OpenAIProvider{client: &client}
}

func (p *OpenAIProvider) CreateCompletion(ctx context.Context, cfg model.RunConfig, messages []model.Message) (string, error) {
	params := buildOpenAIParams(cfg, messages)

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *OpenAIProvider) StreamCompletion(ctx context.Context, cfg model.RunConfig, messages []model.Message, emit func(fragment string)) (string, error) {
	params := buildOpenAIParams(cfg, messages)

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	var full string
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			full += delta
			emit(delta)
		}
	}
	if err := stream.Err(); err != nil {
		return full, err
	}
	return full, nil
}

func buildOpenAIParams(cfg model.RunConfig, messages []model.Message) openai.ChatCompletionNewParams {
	oaiMsgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		oaiMsgs = append(oaiMsgs, toOpenAIMessage(m))
	}

	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(cfg.Model),
		Messages:    oaiMsgs,
		Temperature: openai.Float(cfg.Temperature),
	}
	if cfg.TopP > 0 {
		params.TopP = openai.Float(cfg.TopP)
	}
	if cfg.FrequencyPenalty != 0 {
		params.FrequencyPenalty = openai.Float(cfg.FrequencyPenalty)
	}
	if cfg.PresencePenalty != 0 {
		params.PresencePenalty = openai.Float(cfg.PresencePenalty)
	}
	if cfg.MaxTokens > 0 {
		params.MaxTokens = openai.Int(cfg.MaxTokens)
	}
	return params
}

// toOpenAIMessage converts a provider-agnostic Message to an OpenAI SDK message
// union. Tool-call annotations recovered from in-band blocks are replayed as
// native tool_calls so OpenAI-compatible backends accept the tool messages
// that follow them.
func toOpenAIMessage(m model.Message) openai.ChatCompletionMessageParamUnion {
	switch m.Role {
	case model.RoleSystem:
		return openai.SystemMessage(m.Content)
	case model.RoleTool:
		return openai.ToolMessage(m.Content, m.ToolCallID)
	case model.RoleUser:
		return openai.UserMessage(m.Content)
	default: // assistant
		asst := openai.ChatCompletionAssistantMessageParam{}
		if m.Content != "" {
			asst.Content.OfString = openai.String(m.Content)
		}
		if len(m.ToolCalls) > 0 {
			asst.ToolCalls = make([]openai.ChatCompletionMessageToolCallParam, len(m.ToolCalls))
			for i, tc := range m.ToolCalls {
				asst.ToolCalls[i] = openai.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: encodeArguments(tc.Arguments),
					},
				}
			}
		}
		return openai.ChatCompletionMessageParamUnion{OfAssistant: &asst}
	}
}

// encodeArguments renders a call's argument map as the JSON string the wire
// formats expect.
func encodeArguments(args map[string]any) string {
	if args == nil {
		return "{}"
	}
	out, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(out)
}
