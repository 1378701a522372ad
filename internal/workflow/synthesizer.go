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

const synthesizerSystemPrompt = `You are a stock advisory assistant producing the final answer.
Use the conversation and every piece of research provided. Be concrete: cite
the numbers the analysts gathered. If some research failed, answer from what
is available and say what is missing. Do not invent data.`

// SynthesizerAgent produces the single final answer from the full history
// and every accumulated data namespace. It never calls tools.
type SynthesizerAgent struct {
	provider llm.Provider
	model    string
	logger   *log.Logger
}

func NewSynthesizerAgent(provider llm.Provider, model string) *SynthesizerAgent {
	return &SynthesizerAgent{
		provider: provider,
		model:    model,
		logger:   log.New(log.Writer(), "[Synthesizer] ", log.LstdFlags),
	}
}

// Run synthesizes the final message and routes the run to End.
func (s *SynthesizerAgent) Run(ctx context.Context, state *State) (string, Usage, error) {
	msgs := []llm.ChatMessage{{Role: "system", Content: synthesizerSystemPrompt}}
	for _, m := range state.Messages {
		msgs = append(msgs, llm.ChatMessage{Role: m.Role, Content: m.Content})
	}
	msgs = append(msgs, llm.ChatMessage{Role: "user", Content: renderResearch(state)})

	resp, err := s.provider.Chat(ctx, llm.ChatRequest{
		Model:    s.model,
		Messages: msgs,
	})
	if err != nil {
		return "", Usage{}, fmt.Errorf("synthesizer: %w", err)
	}
	if strings.TrimSpace(resp.Content) == "" {
		return "", Usage{}, fmt.Errorf("synthesizer: empty completion")
	}

	usage := Usage{
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
		Cost:         s.provider.CalculateCost(resp.InputTokens, resp.OutputTokens, s.model),
	}
	state.Append("assistant", resp.Content)
	state.Next = End
	return resp.Content, usage, nil
}

// renderResearch serializes every namespace into the prompt. Nothing the
// workers gathered is dropped.
func renderResearch(state *State) string {
	if len(state.Data) == 0 {
		return "No research was gathered. Answer from the conversation alone."
	}
	var b strings.Builder
	b.WriteString("Research gathered by the analyst team:\n")
	namespaces := make([]string, 0, len(state.Data))
	for ns := range state.Data {
		namespaces = append(namespaces, ns)
	}
	sort.Strings(namespaces)
	for _, ns := range namespaces {
		blob, err := json.MarshalIndent(state.Data[ns], "", "  ")
		if err != nil {
			blob = []byte(fmt.Sprintf("%v", state.Data[ns]))
		}
		fmt.Fprintf(&b, "\n## %s\n%s\n", ns, blob)
	}
	b.WriteString("\nProduce the final advisory answer now.")
	return b.String()
}
