package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/stockpilot/stockpilot/internal/llm"
)

// ErrRateLimited is returned when a backend keeps answering 429 after the
// retry budget is spent. Workers convert it to an error payload.
var ErrRateLimited = errors.New("tools: rate limited after retries")

// ErrUnknownTool is returned for tool names the registry does not hold.
var ErrUnknownTool = errors.New("tools: unknown tool")

// RetryPolicy is the single policy applied to every tool call.
type RetryPolicy struct {
	MaxAttempts          int
	Backoff              time.Duration
	RetryableStatusCodes map[int]bool
}

// DefaultRetryPolicy retries 429 up to 3 total attempts with a fixed delay.
func DefaultRetryPolicy(backoff time.Duration) RetryPolicy {
	if backoff == 0 {
		backoff = 2 * time.Second
	}
	return RetryPolicy{
		MaxAttempts:          3,
		Backoff:              backoff,
		RetryableStatusCodes: map[int]bool{429: true},
	}
}

func (p RetryPolicy) retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return p.RetryableStatusCodes[se.StatusCode]
	}
	return false
}

// Metrics receives per-call observations. Implemented by the telemetry
// package; a nil Metrics disables recording.
type Metrics interface {
	RecordToolCall(tool, outcome string, duration time.Duration)
}

// Invoker executes tools with read-through caching and bounded retry.
type Invoker struct {
	registry map[string]Tool
	cache    Cache
	retry    RetryPolicy
	metrics  Metrics
	logger   *log.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// Cache is the subset of the cache backend the invoker needs.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// NewInvoker builds an invoker over the given tools.
func NewInvoker(ts []Tool, c Cache, retry RetryPolicy, metrics Metrics) *Invoker {
	reg := make(map[string]Tool, len(ts))
	for _, t := range ts {
		reg[t.Name()] = t
	}
	return &Invoker{
		registry: reg,
		cache:    c,
		retry:    retry,
		metrics:  metrics,
		logger:   log.New(log.Writer(), "[Invoker] ", log.LstdFlags),
		sleep:    ctxSleep,
	}
}

// Tool returns a registered tool by name.
func (inv *Invoker) Tool(name string) (Tool, bool) {
	t, ok := inv.registry[name]
	return t, ok
}

// Defs returns the model-facing definitions for the named tools, in the
// order given. Unregistered names are skipped.
func (inv *Invoker) Defs(names []string) []llm.ToolDef {
	var out []llm.ToolDef
	for _, n := range names {
		if t, ok := inv.registry[n]; ok {
			out = append(out, t.Def())
		}
	}
	return out
}

// Invoke runs one tool call. Successful results are cached per the tool's
// TTL; identical calls within the TTL never reach the backend again.
//
// Failure handling:
//   - retryable statuses (429) retry up to MaxAttempts with a fixed delay,
//     then return ErrRateLimited
//   - any other failure is absorbed into an {"error": msg} payload
func (inv *Invoker) Invoke(ctx context.Context, name string, args map[string]interface{}) (map[string]interface{}, error) {
	start := time.Now()
	t, ok := inv.registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	key := t.CacheKey(args)
	if cached, err := inv.cache.Get(ctx, key); err == nil {
		var payload map[string]interface{}
		if err := json.Unmarshal(cached, &payload); err == nil {
			inv.record(name, "hit", start)
			return payload, nil
		}
		// Corrupt entry, fall through to the backend.
	}

	var payload map[string]interface{}
	var err error
	for attempt := 1; ; attempt++ {
		payload, err = t.Call(ctx, args)
		if err == nil {
			break
		}
		if !inv.retry.retryable(err) {
			inv.logger.Printf("tool %s failed: %v", name, err)
			inv.record(name, "error", start)
			return map[string]interface{}{"error": err.Error()}, nil
		}
		if attempt >= inv.retry.MaxAttempts {
			inv.record(name, "rate_limited", start)
			return nil, fmt.Errorf("%w: %s", ErrRateLimited, name)
		}
		inv.logger.Printf("tool %s rate limited, retrying (%d/%d)", name, attempt, inv.retry.MaxAttempts)
		inv.record(name, "retry", start)
		if err := inv.sleep(ctx, inv.retry.Backoff); err != nil {
			return nil, err
		}
	}

	if b, merr := json.Marshal(payload); merr == nil {
		if serr := inv.cache.Set(ctx, key, b, t.TTL()); serr != nil {
			inv.logger.Printf("cache set %s: %v", key, serr)
		}
	}
	inv.record(name, "miss", start)
	return payload, nil
}

func (inv *Invoker) record(tool, outcome string, start time.Time) {
	if inv.metrics != nil {
		inv.metrics.RecordToolCall(tool, outcome, time.Since(start))
	}
}

func ctxSleep(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
