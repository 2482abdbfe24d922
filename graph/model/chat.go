// Package model defines the provider-neutral chat model interface used by
// graph nodes, plus helpers for transcripts and structured output.
package model

import "context"

// ChatModel is implemented by every LLM provider adapter.
//
// Chat sends the conversation and optional tool definitions and returns
// either text, tool calls, or both. Implementations must honor ctx
// cancellation and be safe for concurrent use.
type ChatModel interface {
	Chat(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error)
}

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one entry of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`

	// Name optionally identifies the speaker, e.g. "expert" for answers in
	// an interview.
	Name string `json:"name,omitempty"`

	// ToolCalls holds the calls requested by an assistant message.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID links a tool result message to the call it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// System returns a system message.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User returns a user (human) message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// Assistant returns an assistant (AI) message.
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// NamedAssistant returns an assistant message attributed to name.
func NamedAssistant(name, content string) Message {
	return Message{Role: RoleAssistant, Content: content, Name: name}
}

// ToolResult returns the message carrying a tool's output back to the model.
func ToolResult(callID, name, content string) Message {
	return Message{Role: RoleTool, Content: content, Name: name, ToolCallID: callID}
}

// ToolSpec describes a tool the model may call. Schema is a JSON Schema
// object describing the arguments.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Schema      map[string]any `json:"schema,omitempty"`
}

// ChatOut is the model response.
type ChatOut struct {
	Text      string     `json:"text"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Usage     Usage      `json:"usage"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// Usage reports token consumption of one call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Last returns the last message, or the zero Message for an empty slice.
func Last(messages []Message) Message {
	if len(messages) == 0 {
		return Message{}
	}
	return messages[len(messages)-1]
}
