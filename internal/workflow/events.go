package workflow

import "time"

// EventType classifies stream events.
type EventType string

const (
	EventAgent EventType = "agent" // a participant started or finished a turn
	EventFinal EventType = "final" // terminal: the synthesized answer
	EventError EventType = "error" // terminal: the run failed
)

// Event is one frame of a run's progress stream. A run emits zero or more
// agent events followed by exactly one final or error event.
type Event struct {
	Type      EventType              `json:"type"`
	Agent     string                 `json:"agent,omitempty"`
	Status    string                 `json:"status,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func agentEvent(agent Participant, status, message string, data map[string]interface{}) Event {
	return Event{
		Type:      EventAgent,
		Agent:     string(agent),
		Status:    status,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

func finalEvent(message string, data map[string]interface{}) Event {
	return Event{
		Type:      EventFinal,
		Agent:     string(FinalResponse),
		Status:    "completed",
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

func errorEvent(err error) Event {
	return Event{
		Type:      EventError,
		Status:    "failed",
		Message:   err.Error(),
		Timestamp: time.Now().UTC(),
	}
}
