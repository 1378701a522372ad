package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/stockpilot/stockpilot/internal/llm"
	"github.com/stockpilot/stockpilot/internal/tools"
)

// Usage is token and cost accounting for one model call.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	Cost         float64
}

func (u *Usage) add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.Cost += other.Cost
}

// WorkerResult reports what one worker turn did.
type WorkerResult struct {
	ToolsUsed []string
	Message   string // set when the turn produced text instead of tool calls
	Usage     Usage
}

// WorkerAgent is one specialist: a name, an owned data namespace, a system
// instruction and a bound tool set. All three analysts are instances of it.
type WorkerAgent struct {
	name        Participant
	namespace   string
	instruction string
	toolNames   []string
	invoker     *tools.Invoker
	provider    llm.Provider
	model       string
	timeout     time.Duration
	logger      *log.Logger
}

func NewWorkerAgent(name Participant, namespace, instruction string, toolNames []string, invoker *tools.Invoker, provider llm.Provider, model string) *WorkerAgent {
	return &WorkerAgent{
		name:        name,
		namespace:   namespace,
		instruction: instruction,
		toolNames:   toolNames,
		invoker:     invoker,
		provider:    provider,
		model:       model,
		logger:      log.New(log.Writer(), "["+string(name)+"] ", log.LstdFlags),
	}
}

func (w *WorkerAgent) Name() Participant { return w.name }
func (w *WorkerAgent) Namespace() string { return w.namespace }

// WithTimeout caps one worker turn. Zero disables the deadline.
func (w *WorkerAgent) WithTimeout(d time.Duration) *WorkerAgent {
	w.timeout = d
	return w
}

// Run executes one worker turn: a single model call with the bound tools.
// Tool calls fan out concurrently; each result (or absorbed failure) lands
// under the worker's namespace keyed by tool name. The turn always counts
// against the agent budget and always hands control back to the supervisor.
func (w *WorkerAgent) Run(ctx context.Context, state *State) (WorkerResult, error) {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}
	msgs := []llm.ChatMessage{{Role: "system", Content: w.instruction}}
	for _, m := range state.Messages {
		msgs = append(msgs, llm.ChatMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := w.provider.Chat(ctx, llm.ChatRequest{
		Model:    w.model,
		Messages: msgs,
		Tools:    w.invoker.Defs(w.toolNames),
	})
	if err != nil {
		return WorkerResult{}, fmt.Errorf("%s: %w", w.name, err)
	}

	result := WorkerResult{
		Usage: Usage{
			InputTokens:  resp.InputTokens,
			OutputTokens: resp.OutputTokens,
			Cost:         w.provider.CalculateCost(resp.InputTokens, resp.OutputTokens, w.model),
		},
	}

	defer func() {
		state.AgentCalls++
		state.Next = Supervisor
	}()

	if len(resp.ToolCalls) == 0 {
		result.Message = resp.Content
		state.Append("assistant", fmt.Sprintf("[%s] %s", w.name, resp.Content))
		return result, nil
	}

	merged := w.executeToolCalls(ctx, resp.ToolCalls)
	state.MergeData(w.namespace, merged)
	for name := range merged {
		result.ToolsUsed = append(result.ToolsUsed, name)
	}
	sort.Strings(result.ToolsUsed)
	w.logger.Printf("gathered %d tool results into %q", len(merged), w.namespace)
	return result, nil
}

// executeToolCalls fans the model's tool calls out concurrently and merges
// the results keyed by tool name. A repeated tool name gets an ordinal
// suffix so no result is lost. Failures never fail the turn: invoker-level
// hard errors arrive already absorbed, and rate-limit exhaustion is
// converted to an error payload here.
func (w *WorkerAgent) executeToolCalls(ctx context.Context, calls []llm.ToolCall) map[string]interface{} {
	keys := make([]string, len(calls))
	seen := make(map[string]int, len(calls))
	for i, tc := range calls {
		key := tc.Name
		if n := seen[tc.Name]; n > 0 {
			key = fmt.Sprintf("%s#%d", tc.Name, n+1)
		}
		seen[tc.Name]++
		keys[i] = key
	}

	results := make([]map[string]interface{}, len(calls))
	var wg sync.WaitGroup
	for i, tc := range calls {
		wg.Add(1)
		go func(i int, tc llm.ToolCall) {
			defer wg.Done()
			results[i] = w.invokeOne(ctx, tc)
		}(i, tc)
	}
	wg.Wait()

	merged := make(map[string]interface{}, len(calls))
	for i, key := range keys {
		merged[key] = results[i]
	}
	return merged
}

func (w *WorkerAgent) invokeOne(ctx context.Context, tc llm.ToolCall) map[string]interface{} {
	var args map[string]interface{}
	if tc.Arguments != "" {
		if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
			return map[string]interface{}{"error": fmt.Sprintf("malformed tool arguments: %v", err)}
		}
	}
	payload, err := w.invoker.Invoke(ctx, tc.Name, args)
	if err != nil {
		w.logger.Printf("tool %s failed: %v", tc.Name, err)
		return map[string]interface{}{"error": err.Error()}
	}
	return payload
}
