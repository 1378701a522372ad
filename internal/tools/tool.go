// Package tools implements the external data tools the worker agents call,
// plus the invoker that adds caching and retry on top of them.
package tools

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/stockpilot/stockpilot/internal/llm"
)

// Tool is one callable external data source.
type Tool interface {
	// Name is the identifier the model uses to request the tool.
	Name() string
	// Def describes the tool to the model.
	Def() llm.ToolDef
	// CacheKey derives the cache key for a call from its arguments.
	CacheKey(args map[string]interface{}) string
	// TTL is how long a successful result stays cached.
	TTL() time.Duration
	// Call performs the underlying request. Non-2xx backends surface as
	// *StatusError so the invoker can apply its retry policy.
	Call(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error)
}

// normalizeSymbol canonicalizes a ticker for cache keys and backends.
func normalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// stringArg extracts a string argument, tolerating absent keys.
func stringArg(args map[string]interface{}, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

// cacheKey joins key parts with ':', lowercasing qualifiers.
func cacheKey(parts ...string) string {
	return strings.Join(parts, ":")
}

func schema(properties map[string]interface{}, required ...string) json.RawMessage {
	s := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	b, _ := json.Marshal(s)
	return b
}
