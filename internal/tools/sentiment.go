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

// MarketSentimentTool fetches aggregated investor sentiment for a ticker.
type MarketSentimentTool struct {
	cfg  config.SentimentConfig
	http *HTTPClient
	ttl  time.Duration
}

func NewMarketSentimentTool(cfg config.SentimentConfig, client *HTTPClient, ttl time.Duration) *MarketSentimentTool {
	return &MarketSentimentTool{cfg: cfg, http: client, ttl: ttl}
}

func (t *MarketSentimentTool) Name() string { return "market_sentiment" }

func (t *MarketSentimentTool) Def() llm.ToolDef {
	return llm.ToolDef{
		Name:        t.Name(),
		Description: "Get aggregated market sentiment (bullish/bearish score) for a stock symbol.",
		Parameters: schema(map[string]interface{}{
			"symbol": map[string]interface{}{"type": "string", "description": "Ticker symbol"},
		}, "symbol"),
	}
}

func (t *MarketSentimentTool) CacheKey(args map[string]interface{}) string {
	return cacheKey(t.Name(), normalizeSymbol(stringArg(args, "symbol")))
}

func (t *MarketSentimentTool) TTL() time.Duration { return t.ttl }

func (t *MarketSentimentTool) Call(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	symbol := normalizeSymbol(stringArg(args, "symbol"))
	if symbol == "" {
		return nil, fmt.Errorf("market_sentiment: missing symbol")
	}
	u := fmt.Sprintf("%s/sentiment?symbol=%s", strings.TrimRight(t.cfg.BaseURL, "/"), url.QueryEscape(symbol))
	var payload map[string]interface{}
	if err := t.http.DoJSON(ctx, "GET", u, authHeader(t.cfg.APIKey), nil, &payload); err != nil {
		return nil, err
	}
	payload["symbol"] = symbol
	return payload, nil
}

// NewsHeadlinesTool fetches recent news headlines for a ticker.
type NewsHeadlinesTool struct {
	cfg  config.SentimentConfig
	http *HTTPClient
	ttl  time.Duration
}

func NewNewsHeadlinesTool(cfg config.SentimentConfig, client *HTTPClient, ttl time.Duration) *NewsHeadlinesTool {
	return &NewsHeadlinesTool{cfg: cfg, http: client, ttl: ttl}
}

func (t *NewsHeadlinesTool) Name() string { return "news_headlines" }

func (t *NewsHeadlinesTool) Def() llm.ToolDef {
	return llm.ToolDef{
		Name:        t.Name(),
		Description: "Get recent news headlines for a stock symbol.",
		Parameters: schema(map[string]interface{}{
			"symbol": map[string]interface{}{"type": "string", "description": "Ticker symbol"},
		}, "symbol"),
	}
}

func (t *NewsHeadlinesTool) CacheKey(args map[string]interface{}) string {
	return cacheKey(t.Name(), normalizeSymbol(stringArg(args, "symbol")))
}

func (t *NewsHeadlinesTool) TTL() time.Duration { return t.ttl }

func (t *NewsHeadlinesTool) Call(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	symbol := normalizeSymbol(stringArg(args, "symbol"))
	if symbol == "" {
		return nil, fmt.Errorf("news_headlines: missing symbol")
	}
	u := fmt.Sprintf("%s/news?symbol=%s", strings.TrimRight(t.cfg.BaseURL, "/"), url.QueryEscape(symbol))
	var resp struct {
		Articles []struct {
			Title       string `json:"title"`
			Source      string `json:"source"`
			URL         string `json:"url"`
			PublishedAt string `json:"published_at"`
		} `json:"articles"`
	}
	if err := t.http.DoJSON(ctx, "GET", u, authHeader(t.cfg.APIKey), nil, &resp); err != nil {
		return nil, err
	}
	headlines := make([]interface{}, 0, len(resp.Articles))
	for _, a := range resp.Articles {
		headlines = append(headlines, map[string]interface{}{
			"title":        a.Title,
			"source":       a.Source,
			"url":          a.URL,
			"published_at": a.PublishedAt,
		})
	}
	return map[string]interface{}{
		"symbol":    symbol,
		"headlines": headlines,
		"count":     len(headlines),
	}, nil
}
