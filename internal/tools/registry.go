package tools

import (
	"time"

	"github.com/stockpilot/stockpilot/config"
)

// NewToolset builds every tool from the tools config section over one
// shared HTTP client.
func NewToolset(cfg config.ToolsConfig) []Tool {
	client := NewHTTPClient(15 * time.Second)
	quoteTTL := cfg.QuoteTTL
	if quoteTTL == 0 {
		quoteTTL = 5 * time.Minute
	}
	listingTTL := cfg.ListingTTL
	if listingTTL == 0 {
		listingTTL = 24 * time.Hour
	}
	return []Tool{
		NewStockQuoteTool(cfg.MarketData, client, quoteTTL),
		NewTechnicalIndicatorTool(cfg.MarketData, client, quoteTTL),
		NewMarketSentimentTool(cfg.Sentiment, client, quoteTTL),
		NewNewsHeadlinesTool(cfg.Sentiment, client, quoteTTL),
		NewWebSearchTool(cfg.Search, client, quoteTTL),
		NewSymbolLookupTool(cfg.MarketData, client, listingTTL),
	}
}
