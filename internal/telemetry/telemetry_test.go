package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordRunAndCost(t *testing.T) {
	reg := prometheus.NewRegistry()
	tel := New(reg)

	tel.RecordRun("completed", 2*time.Second)
	tel.RecordRun("failed", time.Second)
	tel.RecordLLMUsage(1000, 500, 0.25)
	tel.RecordLLMUsage(200, 100, 0.5)

	if got := tel.RunCount(); got != 2 {
		t.Fatalf("RunCount = %d, want 2", got)
	}
	if got := tel.TotalCost(); got != 0.75 {
		t.Fatalf("TotalCost = %f, want 0.75", got)
	}
	if got := testutil.ToFloat64(tel.runsTotal.WithLabelValues("completed")); got != 1 {
		t.Fatalf("completed runs = %f, want 1", got)
	}
	if got := testutil.ToFloat64(tel.llmTokens.WithLabelValues("input")); got != 1200 {
		t.Fatalf("input tokens = %f, want 1200", got)
	}
}

func TestRecordToolCall(t *testing.T) {
	reg := prometheus.NewRegistry()
	tel := New(reg)

	tel.RecordToolCall("stock_quote", "miss", 50*time.Millisecond)
	tel.RecordToolCall("stock_quote", "hit", time.Millisecond)
	tel.RecordToolCall("stock_quote", "hit", time.Millisecond)

	if got := testutil.ToFloat64(tel.toolCalls.WithLabelValues("stock_quote", "hit")); got != 2 {
		t.Fatalf("hits = %f, want 2", got)
	}
	if got := testutil.ToFloat64(tel.toolCalls.WithLabelValues("stock_quote", "miss")); got != 1 {
		t.Fatalf("misses = %f, want 1", got)
	}
}
