package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/stockpilot/stockpilot/internal/cache"
	"github.com/stockpilot/stockpilot/internal/llm"
	"github.com/stockpilot/stockpilot/internal/tools"
	"github.com/stockpilot/stockpilot/internal/workflow"
)

// scriptedProvider replays a fixed sequence of chat responses.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []llm.ChatResponse
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
	return p.responses[i], nil
}

func (p *scriptedProvider) Generate(ctx context.Context, prompt, model string) (string, error) {
	resp, err := p.Chat(ctx, llm.ChatRequest{Model: model, Messages: []llm.ChatMessage{{Role: "user", Content: prompt}}})
	return resp.Content, err
}

func (p *scriptedProvider) GetModelInfo(model string) (llm.ModelInfo, error) {
	return llm.ModelInfo{Name: model}, nil
}

func (p *scriptedProvider) CalculateCost(in, out int64, _ string) float64 { return 0 }

func (p *scriptedProvider) request(i int) llm.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests[i]
}

func newTestDriver(p *scriptedProvider) *workflow.Driver {
	inv := tools.NewInvoker(nil, cache.NewMemoryCache(), tools.DefaultRetryPolicy(time.Millisecond), nil)
	return workflow.NewDriver(
		workflow.NewSupervisorAgent(p, "fast", 3),
		workflow.NewStandardWorkers(inv, p, "fast"),
		workflow.NewSynthesizerAgent(p, "fast"),
		nil,
	)
}

func newTestServer(h *AdvisorHandler) *httptest.Server {
	e := echo.New()
	e.HideBanner = true
	h.Register(e.Group("/api/advisor"))
	return httptest.NewServer(e)
}

func postStream(t *testing.T, url string, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url+"/api/advisor/stream", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	return resp
}

func readFrames(t *testing.T, resp *http.Response) []workflow.Event {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var events []workflow.Event
	for _, frame := range strings.Split(string(body), "\n\n") {
		frame = strings.TrimSpace(frame)
		if frame == "" {
			continue
		}
		if !strings.HasPrefix(frame, "data: ") {
			t.Fatalf("malformed frame %q", frame)
		}
		var ev workflow.Event
		if err := json.Unmarshal([]byte(strings.TrimPrefix(frame, "data: ")), &ev); err != nil {
			t.Fatalf("unmarshal frame: %v", err)
		}
		events = append(events, ev)
	}
	return events
}

func TestStreamHappyPath(t *testing.T) {
	p := &scriptedProvider{responses: []llm.ChatResponse{
		{Content: `{"next": "TechnicalAnalyst", "reasoning": "check the chart"}`},
		{Content: "looks oversold"},
		{Content: `{"next": "FinalResponse", "reasoning": "done"}`},
		{Content: "NVDA looks oversold on the daily chart."},
	}}
	srv := newTestServer(&AdvisorHandler{Driver: newTestDriver(p), HistoryLimit: 6, StreamEnabled: true})
	defer srv.Close()

	resp := postStream(t, srv.URL, `{"messages": [{"role": "user", "content": "Is NVDA oversold?"}]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("content type = %q", ct)
	}
	if resp.Header.Get("X-Accel-Buffering") != "no" {
		t.Fatalf("proxy buffering must be disabled")
	}

	events := readFrames(t, resp)
	if len(events) < 2 {
		t.Fatalf("expected multiple events, got %d", len(events))
	}
	terminals := 0
	for i, ev := range events {
		if ev.Type == workflow.EventFinal || ev.Type == workflow.EventError {
			terminals++
			if i != len(events)-1 {
				t.Fatalf("terminal frame not last")
			}
		}
	}
	if terminals != 1 {
		t.Fatalf("expected exactly one terminal frame, got %d", terminals)
	}
	final := events[len(events)-1]
	if final.Type != workflow.EventFinal || !strings.Contains(final.Message, "oversold") {
		t.Fatalf("unexpected terminal frame: %+v", final)
	}
}

func TestStreamTruncatesHistory(t *testing.T) {
	p := &scriptedProvider{responses: []llm.ChatResponse{
		{Content: `{"next": "FinalResponse", "reasoning": "answer now"}`},
		{Content: "the answer"},
	}}
	srv := newTestServer(&AdvisorHandler{Driver: newTestDriver(p), HistoryLimit: 6, StreamEnabled: true})
	defer srv.Close()

	var msgs []string
	for i := 0; i < 10; i++ {
		msgs = append(msgs, fmt.Sprintf(`{"role": "user", "content": "m%d"}`, i))
	}
	resp := postStream(t, srv.URL, `{"messages": [`+strings.Join(msgs, ",")+`]}`)
	readFrames(t, resp)

	// Supervisor request = system + history + progress summary.
	first := p.request(0)
	history := len(first.Messages) - 2
	if history != 6 {
		t.Fatalf("supervisor saw %d history messages, want 6", history)
	}
	if first.Messages[1].Content != "m4" {
		t.Fatalf("truncation kept the wrong window: %q", first.Messages[1].Content)
	}
}

func TestStreamErrorEventOnInvalidRoute(t *testing.T) {
	p := &scriptedProvider{responses: []llm.ChatResponse{
		{Content: `{"next": "Oracle", "reasoning": "hallucinated"}`},
	}}
	srv := newTestServer(&AdvisorHandler{Driver: newTestDriver(p), HistoryLimit: 6, StreamEnabled: true})
	defer srv.Close()

	resp := postStream(t, srv.URL, `{"messages": [{"role": "user", "content": "hi"}]}`)
	events := readFrames(t, resp)
	if len(events) != 1 {
		t.Fatalf("expected only the terminal error frame, got %d", len(events))
	}
	if events[0].Type != workflow.EventError {
		t.Fatalf("expected error frame, got %+v", events[0])
	}
}

func TestStreamRejectsEmptyBody(t *testing.T) {
	srv := newTestServer(&AdvisorHandler{Driver: newTestDriver(&scriptedProvider{}), HistoryLimit: 6, StreamEnabled: true})
	defer srv.Close()

	resp := postStream(t, srv.URL, `{"messages": []}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}

	resp2 := postStream(t, srv.URL, `{"messages": [{"role": "", "content": "x"}]}`)
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for missing role", resp2.StatusCode)
	}
}

func TestStreamDisabled(t *testing.T) {
	srv := newTestServer(&AdvisorHandler{Driver: newTestDriver(&scriptedProvider{}), HistoryLimit: 6, StreamEnabled: false})
	defer srv.Close()

	resp := postStream(t, srv.URL, `{"messages": [{"role": "user", "content": "hi"}]}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
}

func TestListRunsWithoutStore(t *testing.T) {
	srv := newTestServer(&AdvisorHandler{Driver: newTestDriver(&scriptedProvider{}), HistoryLimit: 6, StreamEnabled: true})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/advisor/runs")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
}
