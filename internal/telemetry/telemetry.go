// Package telemetry records prometheus metrics and run cost accounting.
package telemetry

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Telemetry implements the observation hooks the workflow driver and the
// tool invoker call into.
type Telemetry struct {
	runsTotal     *prometheus.CounterVec
	runDuration   prometheus.Histogram
	agentTurns    *prometheus.CounterVec
	toolCalls     *prometheus.CounterVec
	toolDuration  *prometheus.HistogramVec
	llmTokens     *prometheus.CounterVec
	llmCostDollar prometheus.Counter

	mu        sync.Mutex
	totalCost float64
	runCount  int64
}

// New registers the metric set on the given registerer. Pass
// prometheus.DefaultRegisterer in production.
func New(reg prometheus.Registerer) *Telemetry {
	factory := promauto.With(reg)
	return &Telemetry{
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stockpilot_runs_total",
			Help: "Advisory runs by outcome.",
		}, []string{"outcome"}),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "stockpilot_run_duration_seconds",
			Help:    "End-to-end advisory run duration.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		agentTurns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stockpilot_agent_turns_total",
			Help: "Worker agent turns by agent.",
		}, []string{"agent"}),
		toolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stockpilot_tool_calls_total",
			Help: "Tool invocations by tool and outcome (hit, miss, retry, error, rate_limited).",
		}, []string{"tool", "outcome"}),
		toolDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stockpilot_tool_call_duration_seconds",
			Help:    "Tool invocation duration by tool.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"tool"}),
		llmTokens: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stockpilot_llm_tokens_total",
			Help: "LLM tokens by direction.",
		}, []string{"direction"}),
		llmCostDollar: factory.NewCounter(prometheus.CounterOpts{
			Name: "stockpilot_llm_cost_dollars_total",
			Help: "Estimated LLM spend in dollars.",
		}),
	}
}

// RecordRun counts a finished run.
func (t *Telemetry) RecordRun(outcome string, duration time.Duration) {
	t.runsTotal.WithLabelValues(outcome).Inc()
	t.runDuration.Observe(duration.Seconds())
	t.mu.Lock()
	t.runCount++
	t.mu.Unlock()
}

// RecordAgentTurn counts one worker turn.
func (t *Telemetry) RecordAgentTurn(agent string) {
	t.agentTurns.WithLabelValues(agent).Inc()
}

// RecordToolCall counts one tool invocation.
func (t *Telemetry) RecordToolCall(tool, outcome string, duration time.Duration) {
	t.toolCalls.WithLabelValues(tool, outcome).Inc()
	t.toolDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordLLMUsage accumulates token counts and spend.
func (t *Telemetry) RecordLLMUsage(inputTokens, outputTokens int64, cost float64) {
	t.llmTokens.WithLabelValues("input").Add(float64(inputTokens))
	t.llmTokens.WithLabelValues("output").Add(float64(outputTokens))
	t.llmCostDollar.Add(cost)
	t.mu.Lock()
	t.totalCost += cost
	t.mu.Unlock()
}

// TotalCost returns the accumulated spend since startup.
func (t *Telemetry) TotalCost() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totalCost
}

// RunCount returns the number of finished runs since startup.
func (t *Telemetry) RunCount() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.runCount
}
