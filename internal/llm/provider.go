package llm

import (
	"context"
	"encoding/json"
	"fmt"
)

// ChatMessage is one turn in a chat completion conversation.
type ChatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolCall is a model-requested tool invocation.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // raw JSON object
}

// ToolDef describes a callable tool exposed to the model.
type ToolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"` // JSON schema
}

// ChatRequest is a provider-agnostic chat completion request.
type ChatRequest struct {
	Model       string
	Messages    []ChatMessage
	Tools       []ToolDef
	JSONMode    bool // force a strict JSON object response
	Temperature *float64
	MaxTokens   int
}

// ChatResponse is the model's reply plus token accounting.
type ChatResponse struct {
	Content      string
	ToolCalls    []ToolCall
	InputTokens  int64
	OutputTokens int64
}

// ModelInfo contains metadata about an available model.
type ModelInfo struct {
	Name            string
	Provider        string
	MaxTokens       int
	CostPer1KInput  float64
	CostPer1KOutput float64
}

// Provider abstracts the chat-completion backend.
type Provider interface {
	// Chat performs one chat completion, optionally with bound tools.
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
	// Generate is a single-prompt convenience wrapper over Chat.
	Generate(ctx context.Context, prompt string, model string) (string, error)
	// GetModelInfo returns metadata for a configured model.
	GetModelInfo(model string) (ModelInfo, error)
	// CalculateCost prices a call from configured per-1K token rates.
	CalculateCost(inputTokens, outputTokens int64, model string) float64
}

// ErrNoChoices is returned when the backend replies without any completion.
var ErrNoChoices = fmt.Errorf("llm: response contained no choices")
