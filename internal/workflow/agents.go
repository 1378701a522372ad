package workflow

import (
	"github.com/stockpilot/stockpilot/internal/llm"
	"github.com/stockpilot/stockpilot/internal/tools"
)

const technicalInstruction = `You are a technical analyst on a stock advisory team.
Use your tools to gather price quotes and technical indicators (RSI, MACD,
moving averages) for the symbols under discussion. Prefer tools over prose;
only answer in text when the question needs no market data.`

const sentimentInstruction = `You are a sentiment analyst on a stock advisory team.
Use your tools to gather investor sentiment scores and recent news headlines
for the symbols under discussion. Prefer tools over prose; only answer in
text when the question needs no sentiment data.`

const researchInstruction = `You are a market researcher on a stock advisory team.
Use your tools to search the web for company background and market context,
and to resolve company names to ticker symbols. Prefer tools over prose;
only answer in text when the question needs no outside research.`

// NewStandardWorkers builds the three specialist analysts over a shared
// invoker and model.
func NewStandardWorkers(invoker *tools.Invoker, provider llm.Provider, model string) []*WorkerAgent {
	return []*WorkerAgent{
		NewWorkerAgent(TechnicalAnalyst, "technical", technicalInstruction,
			[]string{"stock_quote", "technical_indicator"}, invoker, provider, model),
		NewWorkerAgent(SentimentAnalyst, "sentiment", sentimentInstruction,
			[]string{"market_sentiment", "news_headlines"}, invoker, provider, model),
		NewWorkerAgent(MarketResearcher, "market", researchInstruction,
			[]string{"web_search", "symbol_lookup"}, invoker, provider, model),
	}
}
