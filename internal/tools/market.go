package tools

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/stockpilot/stockpilot/config"
	"github.com/stockpilot/stockpilot/internal/llm"
)

// StockQuoteTool fetches a current price quote for a ticker.
type StockQuoteTool struct {
	cfg  config.MarketDataConfig
	http *HTTPClient
	ttl  time.Duration
}

func NewStockQuoteTool(cfg config.MarketDataConfig, client *HTTPClient, ttl time.Duration) *StockQuoteTool {
	return &StockQuoteTool{cfg: cfg, http: client, ttl: ttl}
}

func (t *StockQuoteTool) Name() string { return "stock_quote" }

func (t *StockQuoteTool) Def() llm.ToolDef {
	return llm.ToolDef{
		Name:        t.Name(),
		Description: "Get the latest price quote for a stock symbol: price, change, volume.",
		Parameters: schema(map[string]interface{}{
			"symbol": map[string]interface{}{"type": "string", "description": "Ticker symbol, e.g. AAPL"},
		}, "symbol"),
	}
}

func (t *StockQuoteTool) CacheKey(args map[string]interface{}) string {
	return cacheKey(t.Name(), normalizeSymbol(stringArg(args, "symbol")))
}

func (t *StockQuoteTool) TTL() time.Duration { return t.ttl }

func (t *StockQuoteTool) Call(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	symbol := normalizeSymbol(stringArg(args, "symbol"))
	if symbol == "" {
		return nil, fmt.Errorf("stock_quote: missing symbol")
	}
	u := fmt.Sprintf("%s/quote?symbol=%s", strings.TrimRight(t.cfg.BaseURL, "/"), url.QueryEscape(symbol))
	var payload map[string]interface{}
	if err := t.http.DoJSON(ctx, "GET", u, authHeader(t.cfg.APIKey), nil, &payload); err != nil {
		return nil, err
	}
	payload["symbol"] = symbol
	return payload, nil
}

// TechnicalIndicatorTool computes a named indicator (RSI, MACD, SMA...) for
// a ticker. The indicator name is the cache key qualifier.
type TechnicalIndicatorTool struct {
	cfg  config.MarketDataConfig
	http *HTTPClient
	ttl  time.Duration
}

func NewTechnicalIndicatorTool(cfg config.MarketDataConfig, client *HTTPClient, ttl time.Duration) *TechnicalIndicatorTool {
	return &TechnicalIndicatorTool{cfg: cfg, http: client, ttl: ttl}
}

func (t *TechnicalIndicatorTool) Name() string { return "technical_indicator" }

func (t *TechnicalIndicatorTool) Def() llm.ToolDef {
	return llm.ToolDef{
		Name:        t.Name(),
		Description: "Compute a technical indicator (rsi, macd, sma, ema) for a stock symbol.",
		Parameters: schema(map[string]interface{}{
			"symbol":    map[string]interface{}{"type": "string", "description": "Ticker symbol"},
			"indicator": map[string]interface{}{"type": "string", "description": "Indicator name: rsi, macd, sma, ema"},
		}, "symbol", "indicator"),
	}
}

func (t *TechnicalIndicatorTool) CacheKey(args map[string]interface{}) string {
	return cacheKey(t.Name(),
		normalizeSymbol(stringArg(args, "symbol")),
		strings.ToLower(strings.TrimSpace(stringArg(args, "indicator"))))
}

func (t *TechnicalIndicatorTool) TTL() time.Duration { return t.ttl }

func (t *TechnicalIndicatorTool) Call(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	symbol := normalizeSymbol(stringArg(args, "symbol"))
	indicator := strings.ToLower(strings.TrimSpace(stringArg(args, "indicator")))
	if symbol == "" || indicator == "" {
		return nil, fmt.Errorf("technical_indicator: missing symbol or indicator")
	}
	u := fmt.Sprintf("%s/indicator?symbol=%s&type=%s",
		strings.TrimRight(t.cfg.BaseURL, "/"), url.QueryEscape(symbol), url.QueryEscape(indicator))
	var payload map[string]interface{}
	if err := t.http.DoJSON(ctx, "GET", u, authHeader(t.cfg.APIKey), nil, &payload); err != nil {
		return nil, err
	}
	payload["symbol"] = symbol
	payload["indicator"] = indicator
	return payload, nil
}

func authHeader(apiKey string) map[string]string {
	if apiKey == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + apiKey}
}
