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

// WebSearchTool performs a general web search. Brave is preferred when a key
// is configured; serper.dev is the fallback backend.
type WebSearchTool struct {
	cfg  config.SearchConfig
	http *HTTPClient
	ttl  time.Duration
}

func NewWebSearchTool(cfg config.SearchConfig, client *HTTPClient, ttl time.Duration) *WebSearchTool {
	return &WebSearchTool{cfg: cfg, http: client, ttl: ttl}
}

func (t *WebSearchTool) Name() string { return "web_search" }

func (t *WebSearchTool) Def() llm.ToolDef {
	return llm.ToolDef{
		Name:        t.Name(),
		Description: "Search the web for market news, company filings and analyst commentary.",
		Parameters: schema(map[string]interface{}{
			"query": map[string]interface{}{"type": "string", "description": "Search query"},
		}, "query"),
	}
}

func (t *WebSearchTool) CacheKey(args map[string]interface{}) string {
	q := strings.ToLower(strings.Join(strings.Fields(stringArg(args, "query")), " "))
	return cacheKey(t.Name(), q)
}

func (t *WebSearchTool) TTL() time.Duration { return t.ttl }

func (t *WebSearchTool) Call(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	query := strings.TrimSpace(stringArg(args, "query"))
	if query == "" {
		return nil, fmt.Errorf("web_search: missing query")
	}
	if t.cfg.BraveAPIKey != "" {
		return t.searchBrave(ctx, query)
	}
	if t.cfg.SerperAPIKey != "" {
		return t.searchSerper(ctx, query)
	}
	return nil, fmt.Errorf("web_search: no search provider configured")
}

func (t *WebSearchTool) searchBrave(ctx context.Context, query string) (map[string]interface{}, error) {
	var resp struct {
		Web struct {
			Results []struct{ Title, URL, Description string } `json:"results"`
		} `json:"web"`
	}
	headers := map[string]string{"X-Subscription-Token": t.cfg.BraveAPIKey}
	u := fmt.Sprintf("https://api.search.brave.com/res/v1/web/search?q=%s&count=%d",
		url.QueryEscape(query), max1(t.cfg.MaxResults, 10))
	if err := t.http.DoJSON(ctx, "GET", u, headers, nil, &resp); err != nil {
		return nil, err
	}
	results := make([]interface{}, 0, len(resp.Web.Results))
	for _, r := range resp.Web.Results {
		results = append(results, map[string]interface{}{
			"title": r.Title, "url": r.URL, "snippet": r.Description,
		})
	}
	return map[string]interface{}{"query": query, "results": results}, nil
}

func (t *WebSearchTool) searchSerper(ctx context.Context, query string) (map[string]interface{}, error) {
	var resp struct {
		Organic []struct{ Title, Link, Snippet string } `json:"organic"`
	}
	headers := map[string]string{"X-API-KEY": t.cfg.SerperAPIKey}
	body := map[string]any{"q": query, "num": max1(t.cfg.MaxResults, 10)}
	if err := t.http.DoJSON(ctx, "POST", "https://google.serper.dev/search", headers, body, &resp); err != nil {
		return nil, err
	}
	results := make([]interface{}, 0, len(resp.Organic))
	for _, r := range resp.Organic {
		results = append(results, map[string]interface{}{
			"title": r.Title, "url": r.Link, "snippet": r.Snippet,
		})
	}
	return map[string]interface{}{"query": query, "results": results}, nil
}

// SymbolLookupTool resolves a company name or partial ticker to listings.
// Listings change rarely, so results cache for a day.
type SymbolLookupTool struct {
	cfg  config.MarketDataConfig
	http *HTTPClient
	ttl  time.Duration
}

func NewSymbolLookupTool(cfg config.MarketDataConfig, client *HTTPClient, ttl time.Duration) *SymbolLookupTool {
	return &SymbolLookupTool{cfg: cfg, http: client, ttl: ttl}
}

func (t *SymbolLookupTool) Name() string { return "symbol_lookup" }

func (t *SymbolLookupTool) Def() llm.ToolDef {
	return llm.ToolDef{
		Name:        t.Name(),
		Description: "Resolve a company name or partial ticker to exchange listings.",
		Parameters: schema(map[string]interface{}{
			"query": map[string]interface{}{"type": "string", "description": "Company name or partial ticker"},
		}, "query"),
	}
}

func (t *SymbolLookupTool) CacheKey(args map[string]interface{}) string {
	q := strings.ToLower(strings.Join(strings.Fields(stringArg(args, "query")), " "))
	return cacheKey(t.Name(), q)
}

func (t *SymbolLookupTool) TTL() time.Duration { return t.ttl }

func (t *SymbolLookupTool) Call(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	query := strings.TrimSpace(stringArg(args, "query"))
	if query == "" {
		return nil, fmt.Errorf("symbol_lookup: missing query")
	}
	u := fmt.Sprintf("%s/search?q=%s", strings.TrimRight(t.cfg.BaseURL, "/"), url.QueryEscape(query))
	var resp struct {
		Matches []struct {
			Symbol   string `json:"symbol"`
			Name     string `json:"name"`
			Exchange string `json:"exchange"`
			Currency string `json:"currency"`
		} `json:"matches"`
	}
	if err := t.http.DoJSON(ctx, "GET", u, authHeader(t.cfg.APIKey), nil, &resp); err != nil {
		return nil, err
	}
	matches := make([]interface{}, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		matches = append(matches, map[string]interface{}{
			"symbol": m.Symbol, "name": m.Name, "exchange": m.Exchange, "currency": m.Currency,
		})
	}
	return map[string]interface{}{"query": query, "matches": matches}, nil
}

func max1(a, def int) int {
	if a > 0 {
		return a
	}
	return def
}
