// Package workflow implements the supervisor/worker advisory loop: routing,
// specialist agents, synthesis and the event stream a run produces.
package workflow

import (
	"fmt"
)

// Participant identifies who acts next in a run.
type Participant string

const (
	Supervisor       Participant = "Supervisor"
	TechnicalAnalyst Participant = "TechnicalAnalyst"
	SentimentAnalyst Participant = "SentimentAnalyst"
	MarketResearcher Participant = "MarketResearcher"
	FinalResponse    Participant = "FinalResponse"
	End              Participant = "End"
)

// ErrInvalidRoute is returned when the routing model names a participant
// outside the enum. Out-of-enum output is a model failure, never coerced.
type ErrInvalidRoute struct {
	Got string
}

func (e *ErrInvalidRoute) Error() string {
	return fmt.Sprintf("workflow: invalid route %q", e.Got)
}

// ParseParticipant validates a routing target against the enum.
func ParseParticipant(s string) (Participant, error) {
	switch Participant(s) {
	case Supervisor, TechnicalAnalyst, SentimentAnalyst, MarketResearcher, FinalResponse, End:
		return Participant(s), nil
	}
	return "", &ErrInvalidRoute{Got: s}
}

// Workers lists the routable specialist agents.
func Workers() []Participant {
	return []Participant{TechnicalAnalyst, SentimentAnalyst, MarketResearcher}
}

// Message is one turn of conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// State is the shared blackboard of one advisory run. History is
// append-only, Data accumulates by namespace merge, Next is overwritten by
// whoever acted last, AgentCalls only ever grows.
type State struct {
	Messages   []Message
	Next       Participant
	Data       map[string]map[string]interface{}
	AgentCalls int
}

// NewState starts a run from client history, routed to the supervisor.
func NewState(history []Message) *State {
	msgs := make([]Message, len(history))
	copy(msgs, history)
	return &State{
		Messages: msgs,
		Next:     Supervisor,
		Data:     make(map[string]map[string]interface{}),
	}
}

// Append adds a message to the history.
func (s *State) Append(role, content string) {
	s.Messages = append(s.Messages, Message{Role: role, Content: content})
}

// MergeData merges values into the given namespace. Existing keys in the
// namespace are overwritten by the agent that owns it; other namespaces are
// never touched.
func (s *State) MergeData(namespace string, values map[string]interface{}) {
	ns, ok := s.Data[namespace]
	if !ok {
		ns = make(map[string]interface{}, len(values))
		s.Data[namespace] = ns
	}
	for k, v := range values {
		ns[k] = v
	}
}

// Namespace returns a copy of one namespace's data.
func (s *State) Namespace(namespace string) map[string]interface{} {
	ns, ok := s.Data[namespace]
	if !ok {
		return nil
	}
	out := make(map[string]interface{}, len(ns))
	for k, v := range ns {
		out[k] = v
	}
	return out
}

// TruncateHistory keeps only the most recent limit messages.
func TruncateHistory(msgs []Message, limit int) []Message {
	if limit <= 0 || len(msgs) <= limit {
		return msgs
	}
	return msgs[len(msgs)-limit:]
}
