// Package message models the conversation exchanged with the reasoning
// engine during an orchestration run.
package message

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the sender of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a tool invocation requested by the reasoning engine.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// Message is a single conversation turn. Tool responses carry the ToolID of
// the call they answer.
type Message struct {
	ID        string     `json:"id"`
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	ToolID    string     `json:"tool_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// New creates a message with the given role and content.
func New(role Role, content string) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

// NewToolCall creates an assistant message carrying tool calls.
func NewToolCall(calls []ToolCall) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Role:      RoleAssistant,
		ToolCalls: calls,
		CreatedAt: time.Now().UTC(),
	}
}

// NewToolResponse creates a tool response message for the given call ID.
func NewToolResponse(toolID, content string) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Role:      RoleTool,
		Content:   content,
		ToolID:    toolID,
		CreatedAt: time.Now().UTC(),
	}
}
