package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stockpilot/stockpilot/internal/cache"
	"github.com/stockpilot/stockpilot/internal/llm"
	"github.com/stockpilot/stockpilot/internal/tools"
)

// scriptedProvider replays a fixed sequence of chat responses.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []llm.ChatResponse
	errs      []error
	requests  []llm.ChatRequest
}

func (p *scriptedProvider) Chat(_ context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := len(p.requests)
	p.requests = append(p.requests, req)
	if i >= len(p.responses) {
		return llm.ChatResponse{}, fmt.Errorf("scripted provider exhausted at call %d", i)
	}
	if i < len(p.errs) && p.errs[i] != nil {
		return llm.ChatResponse{}, p.errs[i]
	}
	return p.responses[i], nil
}

func (p *scriptedProvider) Generate(ctx context.Context, prompt, model string) (string, error) {
	resp, err := p.Chat(ctx, llm.ChatRequest{Model: model, Messages: []llm.ChatMessage{{Role: "user", Content: prompt}}})
	return resp.Content, err
}

func (p *scriptedProvider) GetModelInfo(model string) (llm.ModelInfo, error) {
	return llm.ModelInfo{Name: model}, nil
}

func (p *scriptedProvider) CalculateCost(in, out int64, _ string) float64 {
	return float64(in+out) * 0.00001
}

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

func jsonResponse(content string) llm.ChatResponse {
	return llm.ChatResponse{Content: content, InputTokens: 10, OutputTokens: 5}
}

func toolCallResponse(calls ...llm.ToolCall) llm.ChatResponse {
	return llm.ChatResponse{ToolCalls: calls, InputTokens: 10, OutputTokens: 5}
}

// fakeTool is a canned Tool for exercising the invoker without HTTP.
type fakeTool struct {
	name    string
	payload map[string]interface{}
	err     error

	mu    sync.Mutex
	calls int
}

func (f *fakeTool) Name() string { return f.name }

func (f *fakeTool) Def() llm.ToolDef {
	return llm.ToolDef{Name: f.name, Description: "test tool", Parameters: []byte(`{"type":"object"}`)}
}

func (f *fakeTool) CacheKey(args map[string]interface{}) string {
	sym, _ := args["symbol"].(string)
	return f.name + ":" + sym
}

func (f *fakeTool) TTL() time.Duration { return time.Minute }

func (f *fakeTool) Call(_ context.Context, _ map[string]interface{}) (map[string]interface{}, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.payload, nil
}

func (f *fakeTool) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestInvoker(ts ...tools.Tool) *tools.Invoker {
	return tools.NewInvoker(ts, cache.NewMemoryCache(), tools.DefaultRetryPolicy(time.Millisecond), nil)
}
