package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/stockpilot/stockpilot/config"
)

// OpenAIProvider implements Provider over the OpenAI chat completions API.
type OpenAIProvider struct {
	cfg    config.LLMConfig
	models map[string]ModelInfo
	client *http.Client
}

// NewOpenAIProvider creates a provider from the llm config section.
func NewOpenAIProvider(cfg config.LLMConfig) *OpenAIProvider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 45 * time.Second
	}
	p := &OpenAIProvider{
		cfg:    cfg,
		models: make(map[string]ModelInfo),
		client: &http.Client{Timeout: timeout},
	}
	for key, m := range cfg.Models {
		p.models[key] = ModelInfo{
			Name:            m.Name,
			Provider:        "openai",
			MaxTokens:       m.MaxTokens,
			CostPer1KInput:  m.CostPer1KInput,
			CostPer1KOutput: m.CostPer1KOutput,
		}
	}
	return p
}

type oaToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type oaMessage struct {
	Role       string       `json:"role"`
	Content    string       `json:"content"`
	ToolCalls  []oaToolCall `json:"tool_calls,omitempty"`
	ToolCallID string       `json:"tool_call_id,omitempty"`
	Name       string       `json:"name,omitempty"`
}

type oaTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		Parameters  json.RawMessage `json:"parameters"`
	} `json:"function"`
}

type oaRequest struct {
	Model          string      `json:"model"`
	Messages       []oaMessage `json:"messages"`
	Tools          []oaTool    `json:"tools,omitempty"`
	Temperature    *float64    `json:"temperature,omitempty"`
	MaxTokens      int         `json:"max_tokens,omitempty"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format,omitempty"`
}

type oaResponse struct {
	Choices []struct {
		Message oaMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Chat performs one chat completion against /chat/completions.
func (p *OpenAIProvider) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	apiKey := p.cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return ChatResponse{}, fmt.Errorf("openai: API key not configured")
	}

	m, ok := p.cfg.Models[req.Model]
	if !ok {
		return ChatResponse{}, fmt.Errorf("openai: model %s not configured", req.Model)
	}
	apiModel := m.APIName
	if apiModel == "" {
		apiModel = m.Name
	}

	out := oaRequest{Model: apiModel}
	for _, msg := range req.Messages {
		om := oaMessage{
			Role:       msg.Role,
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
			Name:       msg.Name,
		}
		for _, tc := range msg.ToolCalls {
			otc := oaToolCall{ID: tc.ID, Type: "function"}
			otc.Function.Name = tc.Name
			otc.Function.Arguments = tc.Arguments
			om.ToolCalls = append(om.ToolCalls, otc)
		}
		out.Messages = append(out.Messages, om)
	}
	for _, t := range req.Tools {
		ot := oaTool{Type: "function"}
		ot.Function.Name = t.Name
		ot.Function.Description = t.Description
		ot.Function.Parameters = t.Parameters
		out.Tools = append(out.Tools, ot)
	}
	if req.Temperature != nil {
		out.Temperature = req.Temperature
	} else if m.Temperature > 0 {
		t := m.Temperature
		out.Temperature = &t
	}
	if req.MaxTokens > 0 {
		out.MaxTokens = req.MaxTokens
	} else if m.MaxTokens > 0 {
		out.MaxTokens = m.MaxTokens
	}
	if req.JSONMode {
		out.ResponseFormat = &struct {
			Type string `json:"type"`
		}{Type: "json_object"}
	}

	body, err := json.Marshal(out)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("marshal: %w", err)
	}

	baseURL := p.cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/chat/completions", bytes.NewBuffer(body))
	if err != nil {
		return ChatResponse{}, fmt.Errorf("request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return ChatResponse{}, fmt.Errorf("openai: status %d: %s", resp.StatusCode, string(b))
	}

	var parsed oaResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return ChatResponse{}, fmt.Errorf("decode: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return ChatResponse{}, ErrNoChoices
	}

	choice := parsed.Choices[0].Message
	result := ChatResponse{
		Content:      choice.Content,
		InputTokens:  int64(parsed.Usage.PromptTokens),
		OutputTokens: int64(parsed.Usage.CompletionTokens),
	}
	for _, tc := range choice.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return result, nil
}

// Generate runs a single-prompt completion without tools.
func (p *OpenAIProvider) Generate(ctx context.Context, prompt string, model string) (string, error) {
	resp, err := p.Chat(ctx, ChatRequest{
		Model:    model,
		Messages: []ChatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// GetModelInfo returns metadata for a configured model.
func (p *OpenAIProvider) GetModelInfo(model string) (ModelInfo, error) {
	info, ok := p.models[model]
	if !ok {
		return ModelInfo{}, fmt.Errorf("model not found: %s", model)
	}
	return info, nil
}

// CalculateCost prices a call from the configured per-1K token rates.
func (p *OpenAIProvider) CalculateCost(inputTokens, outputTokens int64, model string) float64 {
	info, err := p.GetModelInfo(model)
	if err != nil {
		return 0.0
	}
	inputCost := float64(inputTokens) / 1000.0 * info.CostPer1KInput
	outputCost := float64(outputTokens) / 1000.0 * info.CostPer1KOutput
	return inputCost + outputCost
}
