// Package openai implements reasoner.Client on the OpenAI chat completions API.
package openai

import (
	"context"
	"encoding/json"
	"fmt"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/clearway/claimflow/message"
)

// Config holds OpenAI reasoner configuration.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int64
	Temperature float64
}

// DefaultConfig returns default OpenAI configuration.
func DefaultConfig() *Config {
	return &Config{
		Model:       "gpt-4o-mini",
		MaxTokens:   2000,
		Temperature: 0.2,
	}
}

// WithAPIKey set api key.
func (cfg *Config) WithAPIKey(apiKey string) *Config {
	cfg.APIKey = apiKey
	return cfg
}

// WithBaseURL set BaseURL.
func (cfg *Config) WithBaseURL(url string) *Config {
	cfg.BaseURL = url
	return cfg
}

// WithModel set model.
func (cfg *Config) WithModel(model string) *Config {
	cfg.Model = model
	return cfg
}

// Client calls the OpenAI chat completions API.
type Client struct {
	config *Config
	client openaisdk.Client
}

// New creates an OpenAI-backed reasoner client.
func New(config *Config) *Client {
	if config.Model == "" {
		config.Model = "gpt-4o-mini"
	}

	options := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}

	return &Client{
		config: config,
		client: openaisdk.NewClient(options...),
	}
}

// Generate sends the conversation and tool schemas to the model and decodes
// the assistant reply, including any tool calls.
func (c *Client) Generate(ctx context.Context, messages []*message.Message, tools []map[string]any) (*message.Message, error) {
	params := openaisdk.ChatCompletionNewParams{
		Messages: encodeMessages(messages),
		Model:    shared.ChatModel(c.config.Model),
	}
	if c.config.Temperature > 0 {
		params.Temperature = openaisdk.Float(c.config.Temperature)
	}
	if c.config.MaxTokens > 0 {
		params.MaxCompletionTokens = openaisdk.Int(c.config.MaxTokens)
	}
	if len(tools) > 0 {
		encoded, err := encodeTools(tools)
		if err != nil {
			return nil, err
		}
		params.Tools = encoded
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai API error: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices")
	}

	choice := completion.Choices[0]
	reply := message.New(message.RoleAssistant, choice.Message.Content)
	if len(choice.Message.ToolCalls) > 0 {
		calls := make([]message.ToolCall, 0, len(choice.Message.ToolCalls))
		for _, tc := range choice.Message.ToolCalls {
			var args map[string]any
			if tc.Function.Arguments != "" {
				if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
					return nil, fmt.Errorf("failed to parse tool arguments for %s: %w", tc.Function.Name, err)
				}
			}
			calls = append(calls, message.ToolCall{
				ID:   tc.ID,
				Name: tc.Function.Name,
				Args: args,
			})
		}
		reply.ToolCalls = calls
	}
	return reply, nil
}

func encodeMessages(messages []*message.Message) []openaisdk.ChatCompletionMessageParamUnion {
	out := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case message.RoleSystem:
			out = append(out, openaisdk.SystemMessage(msg.Content))
		case message.RoleUser:
			out = append(out, openaisdk.UserMessage(msg.Content))
		case message.RoleAssistant:
			assistant := openaisdk.AssistantMessage(msg.Content)
			if len(msg.ToolCalls) > 0 && assistant.OfAssistant != nil {
				assistant.OfAssistant.ToolCalls = encodeToolCalls(msg.ToolCalls)
			}
			out = append(out, assistant)
		case message.RoleTool:
			out = append(out, openaisdk.ToolMessage(msg.Content, msg.ToolID))
		}
	}
	return out
}

func encodeToolCalls(calls []message.ToolCall) []openaisdk.ChatCompletionMessageToolCallUnionParam {
	params := make([]openaisdk.ChatCompletionMessageToolCallUnionParam, 0, len(calls))
	for _, tc := range calls {
		args := tc.Args
		if args == nil {
			args = make(map[string]any)
		}
		raw, err := json.Marshal(args)
		if err != nil {
			continue
		}
		params = append(params, openaisdk.ChatCompletionMessageToolCallUnionParam{
			OfFunction: &openaisdk.ChatCompletionMessageFunctionToolCallParam{
				ID: tc.ID,
				Function: openaisdk.ChatCompletionMessageFunctionToolCallFunctionParam{
					Name:      tc.Name,
					Arguments: string(raw),
				},
			},
		})
	}
	return params
}

// encodeTools converts function-call schemas into typed tool params.
func encodeTools(tools []map[string]any) ([]openaisdk.ChatCompletionToolUnionParam, error) {
	out := make([]openaisdk.ChatCompletionToolUnionParam, 0, len(tools))
	for _, schema := range tools {
		fn, ok := schema["function"].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("tool schema missing function block")
		}
		name, _ := fn["name"].(string)
		if name == "" {
			return nil, fmt.Errorf("tool schema missing function name")
		}
		def := shared.FunctionDefinitionParam{Name: name}
		if desc, ok := fn["description"].(string); ok {
			def.Description = openaisdk.String(desc)
		}
		if params, ok := fn["parameters"].(map[string]any); ok {
			def.Parameters = shared.FunctionParameters(params)
		}
		out = append(out, openaisdk.ChatCompletionFunctionTool(def))
	}
	return out, nil
}
