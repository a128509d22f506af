// Package reasoner is the boundary to the reasoning engine. Everything
// non-deterministic the engine produces — which tool to call next, the final
// decision — is decoded here, defensively, with explicit fallbacks.
package reasoner

import (
	"context"

	"github.com/clearway/claimflow/message"
)

// Client generates one reasoning turn from the conversation so far. Tools are
// passed in OpenAI function-call schema form; when the engine wants a tool it
// answers with tool calls, otherwise with plain content.
type Client interface {
	Generate(ctx context.Context, messages []*message.Message, tools []map[string]any) (*message.Message, error)
}

// ActionKind discriminates the next-action variant.
type ActionKind string

const (
	ActionInvoke    ActionKind = "invoke"
	ActionTerminate ActionKind = "terminate"
)

// NextAction is the decoded instruction for the orchestration loop: invoke a
// named tool with arguments, or stop gathering evidence.
type NextAction struct {
	Kind   ActionKind
	Tool   string
	CallID string
	Args   map[string]any
	// Reason records why a terminate was chosen; useful in audit logs when
	// the fallback path produced it.
	Reason string
}

// DecodeNextAction turns a reasoning response into a NextAction. Anything that
// is not a recognizable tool invocation terminates the loop: a missing
// message, plain content with no tool calls, or a call to a tool the
// registry does not know. Only the first tool call is honored — the loop is
// strictly sequential.
func DecodeNextAction(msg *message.Message, known func(name string) bool) NextAction {
	if msg == nil {
		return NextAction{Kind: ActionTerminate, Reason: "empty reasoning response"}
	}
	if len(msg.ToolCalls) == 0 {
		return NextAction{Kind: ActionTerminate, Reason: "reasoning engine chose to stop"}
	}

	call := msg.ToolCalls[0]
	if call.Name == "" || (known != nil && !known(call.Name)) {
		return NextAction{
			Kind:   ActionTerminate,
			Tool:   call.Name,
			Reason: "unknown tool requested: " + call.Name,
		}
	}

	args := call.Args
	if args == nil {
		args = map[string]any{}
	}
	return NextAction{Kind: ActionInvoke, Tool: call.Name, CallID: call.ID, Args: args}
}
