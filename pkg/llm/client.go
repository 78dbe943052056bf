// Package llm provides the provider-agnostic client abstraction the engine
// talks to. Concrete provider implementations live outside this module;
// provider-specific retry and backoff are the client's responsibility, not the
// engine's.
package llm

import (
	"context"
)

// Client is the interface the node executor drives. Both calls block until the
// provider responds or ctx is cancelled.
type Client interface {
	// InvokeWithTools sends the conversation with tool definitions bound.
	// The response may contain tool-call requests for the caller to execute.
	InvokeWithTools(ctx context.Context, req ToolRequest) (*ToolResponse, error)

	// InvokeStructured sends the conversation constrained to a JSON output
	// schema and returns the raw response text for validation by the caller.
	// No tools are bound.
	InvokeStructured(ctx context.Context, req StructuredRequest) (*StructuredResponse, error)
}

// Role identifies the sender of a message.
type Role string

const (
	// RoleSystem is a system instruction message.
	RoleSystem Role = "system"
	// RoleUser is a message from the workflow (resolved prompt, corrections).
	RoleUser Role = "user"
	// RoleAssistant is a model response, possibly carrying tool calls.
	RoleAssistant Role = "assistant"
	// RoleTool is a tool result fed back into the conversation.
	RoleTool Role = "tool"
)

// Message represents a single message in a conversation.
type Message struct {
	// Role indicates who sent this message.
	Role Role `json:"role"`

	// Content is the text content of the message.
	Content string `json:"content"`

	// ToolCalls contains tool invocations requested by the assistant.
	// Only valid when Role is RoleAssistant.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID links this message to a specific tool call.
	// Only valid when Role is RoleTool.
	ToolCallID string `json:"tool_call_id,omitempty"`

	// Name identifies the tool that produced this result.
	// Only valid when Role is RoleTool.
	Name string `json:"name,omitempty"`

	// IsError marks a tool result that carries an error observation.
	IsError bool `json:"is_error,omitempty"`
}

// ToolCall is a single tool invocation requested by the model.
type ToolCall struct {
	// ID correlates the call with its result message.
	ID string `json:"id"`

	// Name is the registered tool name.
	Name string `json:"name"`

	// Arguments are the call arguments as decoded JSON.
	Arguments map[string]interface{} `json:"arguments"`
}

// ToolDef describes a tool the model may call.
type ToolDef struct {
	// Name is the registered tool name.
	Name string `json:"name"`

	// Description explains what the tool does.
	Description string `json:"description"`

	// Parameters is a JSON Schema object describing the arguments.
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

// Settings carries the provider/model selection and sampling parameters for a
// call. Per-node overrides are resolved before the request is built.
type Settings struct {
	Provider    string   `json:"provider,omitempty"`
	Model       string   `json:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
}

// ToolRequest is the input to InvokeWithTools.
type ToolRequest struct {
	Messages []Message
	Tools    []ToolDef
	Settings Settings
}

// ToolResponse is the model's reply to a tool-enabled invocation.
type ToolResponse struct {
	// Message is the assistant message, possibly carrying tool calls.
	Message Message

	// Usage captures token consumption for this call.
	Usage Usage
}

// StructuredRequest is the input to InvokeStructured.
type StructuredRequest struct {
	Messages []Message

	// Schema is the JSON Schema the response must conform to. Providers that
	// support native structured output may enforce it; others rely on the
	// prompt instructions the engine appends.
	Schema map[string]interface{}

	Settings Settings
}

// StructuredResponse is the raw reply to a structured invocation. The engine
// validates Raw against the node's output schema; the client does not.
type StructuredResponse struct {
	Raw   string
	Usage Usage
}

// Usage captures token consumption metrics from the provider.
type Usage struct {
	// InputTokens is the number of tokens in the input/prompt.
	InputTokens int `json:"input_tokens"`

	// OutputTokens is the number of tokens in the generated output.
	OutputTokens int `json:"output_tokens"`
}

// Total returns the sum of input and output tokens.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// Add accumulates another usage into this one.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}
