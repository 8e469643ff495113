// Package agent provides LLM providers and the tool-calling agent
// runner that fronts one MCP bridge as a dispatch handler.
package agent

import "encoding/json"

// Message represents one message in a model conversation.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall represents a tool invocation requested by the model.
type ToolCall struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name"`
	Parameters map[string]interface{} `json:"parameters"`
}

// ToolDefinition describes one tool offered to the model.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// TokenUsage tracks token consumption for one call.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// AuthProfile carries provider credentials and endpoint settings.
// Always passed explicitly into constructors, never read from ambient
// state.
type AuthProfile struct {
	Provider string `json:"provider"` // "openai", "anthropic"
	APIKey   string `json:"api_key"`
	BaseURL  string `json:"base_url,omitempty"`
}

// Request contains the parameters for one model call.
type Request struct {
	Model        string
	Messages     []Message
	Tools        []ToolDefinition
	Temperature  float64
	MaxTokens    int
	SystemPrompt string
}

// Response contains the model's reply.
type Response struct {
	Content   string
	ToolCalls []ToolCall
	Usage     *TokenUsage
}
