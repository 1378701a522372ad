package workflow

import (
	"context"
	"testing"

	"github.com/stockpilot/stockpilot/internal/llm"
	"github.com/stockpilot/stockpilot/internal/tools"
)

func TestWorkerTextTurn(t *testing.T) {
	p := &scriptedProvider{responses: []llm.ChatResponse{
		{Content: "NVDA is the symbol you want.", InputTokens: 10, OutputTokens: 5},
	}}
	w := NewWorkerAgent(MarketResearcher, "market", "instr", nil, newTestInvoker(), p, "fast")
	state := NewState([]Message{{Role: "user", Content: "which symbol?"}})

	result, err := w.Run(context.Background(), state)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Message == "" {
		t.Fatalf("text turn should carry the message")
	}
	if state.AgentCalls != 1 {
		t.Fatalf("AgentCalls = %d, want 1", state.AgentCalls)
	}
	if state.Next != Supervisor {
		t.Fatalf("worker must hand control back to the supervisor, got %s", state.Next)
	}
	if len(state.Data) != 0 {
		t.Fatalf("text turn must not touch data, got %v", state.Data)
	}
	last := state.Messages[len(state.Messages)-1]
	if last.Role != "assistant" {
		t.Fatalf("text turn should append an assistant message")
	}
}

func TestWorkerToolTurnMergesNamespace(t *testing.T) {
	quote := &fakeTool{name: "stock_quote", payload: map[string]interface{}{"price": 230.5}}
	rsi := &fakeTool{name: "technical_indicator", payload: map[string]interface{}{"value": 28.5}}
	p := &scriptedProvider{responses: []llm.ChatResponse{
		toolCallResponse(
			llm.ToolCall{ID: "1", Name: "stock_quote", Arguments: `{"symbol":"NVDA"}`},
			llm.ToolCall{ID: "2", Name: "technical_indicator", Arguments: `{"symbol":"NVDA","indicator":"rsi"}`},
		),
	}}
	w := NewWorkerAgent(TechnicalAnalyst, "technical", "instr",
		[]string{"stock_quote", "technical_indicator"}, newTestInvoker(quote, rsi), p, "fast")
	state := NewState(nil)

	result, err := w.Run(context.Background(), state)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	ns := state.Data["technical"]
	if len(ns) != 2 {
		t.Fatalf("expected both tool results in namespace, got %v", ns)
	}
	got, ok := ns["stock_quote"].(map[string]interface{})
	if !ok || got["price"] != 230.5 {
		t.Fatalf("unexpected quote payload %v", ns["stock_quote"])
	}
	if len(result.ToolsUsed) != 2 {
		t.Fatalf("tools used = %v", result.ToolsUsed)
	}
	if state.AgentCalls != 1 || state.Next != Supervisor {
		t.Fatalf("turn contract violated: calls=%d next=%s", state.AgentCalls, state.Next)
	}
}

func TestWorkerToolFailureIsIsolated(t *testing.T) {
	quote := &fakeTool{name: "stock_quote", payload: map[string]interface{}{"price": 99.0}}
	limited := &fakeTool{name: "technical_indicator", err: &tools.StatusError{StatusCode: 429, Body: "slow down"}}
	p := &scriptedProvider{responses: []llm.ChatResponse{
		toolCallResponse(
			llm.ToolCall{ID: "1", Name: "stock_quote", Arguments: `{"symbol":"AMD"}`},
			llm.ToolCall{ID: "2", Name: "technical_indicator", Arguments: `{"symbol":"AMD","indicator":"rsi"}`},
		),
	}}
	w := NewWorkerAgent(TechnicalAnalyst, "technical", "instr",
		[]string{"stock_quote", "technical_indicator"}, newTestInvoker(quote, limited), p, "fast")
	state := NewState(nil)

	if _, err := w.Run(context.Background(), state); err != nil {
		t.Fatalf("tool failure must not fail the turn: %v", err)
	}
	ns := state.Data["technical"]
	good, ok := ns["stock_quote"].(map[string]interface{})
	if !ok || good["price"] != 99.0 {
		t.Fatalf("healthy tool result lost: %v", ns)
	}
	bad, ok := ns["technical_indicator"].(map[string]interface{})
	if !ok {
		t.Fatalf("failed tool missing from namespace: %v", ns)
	}
	if _, ok := bad["error"].(string); !ok {
		t.Fatalf("rate-limit exhaustion should become an error payload, got %v", bad)
	}
	// Exhaustion means exactly the retry budget was spent.
	if limited.callCount() != 3 {
		t.Fatalf("rate-limited tool called %d times, want 3", limited.callCount())
	}
}

func TestWorkerDuplicateToolNamesKeepBothResults(t *testing.T) {
	rsi := &fakeTool{name: "technical_indicator", payload: map[string]interface{}{"value": 1.0}}
	p := &scriptedProvider{responses: []llm.ChatResponse{
		toolCallResponse(
			llm.ToolCall{ID: "1", Name: "technical_indicator", Arguments: `{"symbol":"NVDA","indicator":"rsi"}`},
			llm.ToolCall{ID: "2", Name: "technical_indicator", Arguments: `{"symbol":"NVDA","indicator":"macd"}`},
		),
	}}
	w := NewWorkerAgent(TechnicalAnalyst, "technical", "instr",
		[]string{"technical_indicator"}, newTestInvoker(rsi), p, "fast")
	state := NewState(nil)

	if _, err := w.Run(context.Background(), state); err != nil {
		t.Fatalf("run: %v", err)
	}
	ns := state.Data["technical"]
	if len(ns) != 2 {
		t.Fatalf("both calls should be kept, got %v", ns)
	}
	if _, ok := ns["technical_indicator#2"]; !ok {
		t.Fatalf("second call should get an ordinal key, got %v", ns)
	}
}

func TestWorkerLLMErrorFailsTurn(t *testing.T) {
	p := &scriptedProvider{} // empty script: the chat call errors
	w := NewWorkerAgent(SentimentAnalyst, "sentiment", "instr", nil, newTestInvoker(), p, "fast")
	state := NewState(nil)
	if _, err := w.Run(context.Background(), state); err == nil {
		t.Fatalf("model failure must fail the worker turn")
	}
	if state.AgentCalls != 0 {
		t.Fatalf("failed turn must not consume the budget")
	}
}
