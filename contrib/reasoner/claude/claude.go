// Package claude implements reasoner.Client on the Anthropic messages API.
package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"

	"github.com/clearway/claimflow/message"
)

// Config holds Claude reasoner configuration.
type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int64
	Temperature float64
}

// DefaultConfig returns default Claude configuration.
func DefaultConfig(apiKey, baseURL string) *Config {
	return &Config{
		APIKey:      apiKey,
		BaseURL:     baseURL,
		Model:       "claude-3-5-sonnet-20241022",
		MaxTokens:   4096,
		Temperature: 0.2,
	}
}

// Client calls the Anthropic messages API.
type Client struct {
	config *Config
	client anthropic.Client
}

// New creates a Claude-backed reasoner client.
func New(config *Config) *Client {
	if config.Model == "" {
		config.Model = "claude-3-5-sonnet-20241022"
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 4096
	}

	options := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}

	return &Client{
		config: config,
		client: anthropic.NewClient(options...),
	}
}

// Generate sends the conversation and tool schemas to Claude and decodes the
// reply, collecting tool_use blocks as tool calls.
func (c *Client) Generate(ctx context.Context, messages []*message.Message, tools []map[string]any) (*message.Message, error) {
	var systemPrompts []string
	conversation := make([]anthropic.MessageParam, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case message.RoleSystem:
			systemPrompts = append(systemPrompts, msg.Content)
		case message.RoleUser:
			conversation = append(conversation,
				anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case message.RoleAssistant:
			conversation = append(conversation, encodeAssistant(msg))
		case message.RoleTool:
			conversation = append(conversation,
				anthropic.NewUserMessage(anthropic.NewToolResultBlock(msg.ToolID, msg.Content, false)))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.config.Model),
		Messages:  conversation,
		MaxTokens: c.config.MaxTokens,
	}
	if len(systemPrompts) > 0 {
		params.System = []anthropic.TextBlockParam{
			{Text: strings.Join(systemPrompts, "\n")},
		}
	}
	if c.config.Temperature > 0 {
		params.Temperature = param.NewOpt(c.config.Temperature)
	}
	if len(tools) > 0 {
		encoded, err := encodeTools(tools)
		if err != nil {
			return nil, err
		}
		params.Tools = encoded
	}

	apiMessage, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("claude API error: %w", err)
	}

	var responseText string
	toolCalls := make([]message.ToolCall, 0)
	for _, content := range apiMessage.Content {
		switch content.Type {
		case "text":
			responseText += content.Text
		case "tool_use":
			var args map[string]any
			if err := json.Unmarshal(content.Input, &args); err != nil {
				return nil, fmt.Errorf("failed to parse tool input for %s: %w", content.Name, err)
			}
			toolCalls = append(toolCalls, message.ToolCall{
				ID:   content.ID,
				Name: content.Name,
				Args: args,
			})
		}
	}

	reply := message.New(message.RoleAssistant, responseText)
	if len(toolCalls) > 0 {
		reply.ToolCalls = toolCalls
	}
	return reply, nil
}

func encodeAssistant(msg *message.Message) anthropic.MessageParam {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, 1+len(msg.ToolCalls))
	if msg.Content != "" {
		blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
	}
	for _, tc := range msg.ToolCalls {
		args := tc.Args
		if args == nil {
			args = make(map[string]any)
		}
		blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, args, tc.Name))
	}
	if len(blocks) == 0 {
		blocks = append(blocks, anthropic.NewTextBlock(""))
	}
	return anthropic.NewAssistantMessage(blocks...)
}

// encodeTools converts function-call schemas into Anthropic tool params.
func encodeTools(tools []map[string]any) ([]anthropic.ToolUnionParam, error) {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, schema := range tools {
		fn, ok := schema["function"].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("tool schema missing function block")
		}
		name, _ := fn["name"].(string)
		if name == "" {
			return nil, fmt.Errorf("tool schema missing function name")
		}

		tp := anthropic.ToolParam{Name: name}
		if desc, ok := fn["description"].(string); ok {
			tp.Description = param.NewOpt(desc)
		}
		if params, ok := fn["parameters"].(map[string]any); ok {
			if props, ok := params["properties"]; ok {
				tp.InputSchema.Properties = props
			}
			if req, ok := params["required"].([]string); ok {
				tp.InputSchema.Required = req
			} else if reqAny, ok := params["required"].([]any); ok {
				required := make([]string, 0, len(reqAny))
				for _, r := range reqAny {
					if s, ok := r.(string); ok {
						required = append(required, s)
					}
				}
				tp.InputSchema.Required = required
			}
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &tp})
	}
	return out, nil
}
