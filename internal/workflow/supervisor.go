package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/stockpilot/stockpilot/internal/llm"
)

const supervisorSystemPrompt = `You are the supervisor of a stock advisory team.
Given the conversation and the research gathered so far, decide who acts next:
- TechnicalAnalyst: price action, quotes, technical indicators (RSI, MACD, moving averages)
- SentimentAnalyst: investor sentiment, news coverage tone
- MarketResearcher: company background, symbol lookup, broader market context
- FinalResponse: enough research is gathered, produce the answer now

Do not route to an analyst whose namespace already holds the data the
question needs. Respond with a JSON object: {"next": "<participant>", "reasoning": "<one sentence>"}.`

// SupervisorAgent routes each turn of a run.
type SupervisorAgent struct {
	provider llm.Provider
	model    string
	maxCalls int
	logger   *log.Logger
}

// Decision is one routing step.
type Decision struct {
	Next      Participant
	Reasoning string
}

func NewSupervisorAgent(provider llm.Provider, model string, maxCalls int) *SupervisorAgent {
	if maxCalls <= 0 {
		maxCalls = 3
	}
	return &SupervisorAgent{
		provider: provider,
		model:    model,
		maxCalls: maxCalls,
		logger:   log.New(log.Writer(), "[Supervisor] ", log.LstdFlags),
	}
}

// Decide picks the next participant. Once the agent-call budget is spent the
// run is forced to FinalResponse without consulting the model.
func (s *SupervisorAgent) Decide(ctx context.Context, state *State) (Decision, error) {
	if state.AgentCalls >= s.maxCalls {
		s.logger.Printf("agent call budget spent (%d), forcing final response", state.AgentCalls)
		return Decision{
			Next:      FinalResponse,
			Reasoning: "research budget exhausted, synthesizing the answer",
		}, nil
	}

	msgs := []llm.ChatMessage{{Role: "system", Content: supervisorSystemPrompt}}
	for _, m := range state.Messages {
		msgs = append(msgs, llm.ChatMessage{Role: m.Role, Content: m.Content})
	}
	msgs = append(msgs, llm.ChatMessage{Role: "user", Content: s.describeProgress(state)})

	resp, err := s.provider.Chat(ctx, llm.ChatRequest{
		Model:    s.model,
		Messages: msgs,
		JSONMode: true,
	})
	if err != nil {
		return Decision{}, fmt.Errorf("supervisor: %w", err)
	}

	var parsed struct {
		Next      string `json:"next"`
		Reasoning string `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(resp.Content), &parsed); err != nil {
		return Decision{}, fmt.Errorf("supervisor: malformed routing response: %w", err)
	}
	next, err := ParseParticipant(parsed.Next)
	if err != nil {
		return Decision{}, fmt.Errorf("supervisor: %w", err)
	}
	if next == Supervisor || next == End {
		return Decision{}, fmt.Errorf("supervisor: %w", &ErrInvalidRoute{Got: parsed.Next})
	}
	return Decision{Next: next, Reasoning: parsed.Reasoning}, nil
}

// describeProgress summarizes accumulated research so the model routes on
// what is already known, not just the raw conversation.
func (s *SupervisorAgent) describeProgress(state *State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Agent calls used: %d of %d.\n", state.AgentCalls, s.maxCalls)
	if len(state.Data) == 0 {
		b.WriteString("No research gathered yet.\n")
	} else {
		b.WriteString("Research gathered so far:\n")
		namespaces := make([]string, 0, len(state.Data))
		for ns := range state.Data {
			namespaces = append(namespaces, ns)
		}
		sort.Strings(namespaces)
		for _, ns := range namespaces {
			keys := make([]string, 0, len(state.Data[ns]))
			for k := range state.Data[ns] {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(&b, "- %s: %s\n", ns, strings.Join(keys, ", "))
		}
	}
	b.WriteString("Who should act next?")
	return b.String()
}
