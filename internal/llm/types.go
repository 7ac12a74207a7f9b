// Package llm provides a provider-agnostic client for the blocking completion
// calls the agent stages make, a typed failure taxonomy, and retry with
// exponential backoff. The production backend is gollm; tests substitute
// scripted clients.
package llm

import (
	"context"
	"encoding/json"
)

// Role tags a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one role-tagged entry in a conversation history.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolCall is a model-requested tool invocation.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolDef describes a tool made available to the model. Parameters is a
// JSON-schema-shaped map.
type ToolDef struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// Request is one completion call: the fixed system instruction, the
// conversation so far, and the tools the caller permits.
type Request struct {
	System   string
	Messages []Message
	Tools    []ToolDef
}

// Usage reports token consumption for one call. Backends that do not expose
// usage estimate it from text length.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Response is the model's reply: either final text, or one or more tool
// calls (with any remaining text preserved).
type Response struct {
	Text      string
	ToolCalls []ToolCall
	Model     string
	Provider  string
	Usage     Usage
}

// Client is the narrow interface the agent stages consume. Generate blocks
// until the model replies or the context ends.
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}
