package workflow

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Recorder receives run-level observations. Implemented by the telemetry
// package; nil disables recording.
type Recorder interface {
	RecordRun(outcome string, duration time.Duration)
	RecordAgentTurn(agent string)
	RecordLLMUsage(inputTokens, outputTokens int64, cost float64)
}

// Driver owns the run loop. It walks the state machine one participant at a
// time and publishes progress as a lazily produced, single-consumption event
// stream.
type Driver struct {
	supervisor  *SupervisorAgent
	workers     map[Participant]*WorkerAgent
	synthesizer *SynthesizerAgent
	recorder    Recorder
	logger      *log.Logger
}

func NewDriver(supervisor *SupervisorAgent, workers []*WorkerAgent, synthesizer *SynthesizerAgent, recorder Recorder) *Driver {
	wm := make(map[Participant]*WorkerAgent, len(workers))
	for _, w := range workers {
		wm[w.Name()] = w
	}
	return &Driver{
		supervisor:  supervisor,
		workers:     wm,
		synthesizer: synthesizer,
		recorder:    recorder,
		logger:      log.New(log.Writer(), "[Driver] ", log.LstdFlags),
	}
}

// Run starts one advisory run over the given history and returns its event
// stream. The channel is closed after exactly one terminal (final or error)
// event. Cancelling ctx detaches the consumer and stops the run.
func (d *Driver) Run(ctx context.Context, history []Message) <-chan Event {
	ch := make(chan Event)
	go func() {
		defer close(ch)
		d.run(ctx, history, ch)
	}()
	return ch
}

func (d *Driver) run(ctx context.Context, history []Message, ch chan<- Event) {
	start := time.Now()
	tracer := otel.Tracer("stockpilot/workflow")
	ctx, span := tracer.Start(ctx, "workflow.run", trace.WithAttributes(
		attribute.Int("history_len", len(history)),
	))
	defer span.End()

	state := NewState(history)
	var usage Usage
	var agentsUsed []string

	for {
		switch state.Next {
		case Supervisor:
			decision, err := d.supervisor.Decide(ctx, state)
			if err != nil {
				d.fail(ctx, ch, start, err)
				return
			}
			state.Next = decision.Next
			state.Append("assistant", fmt.Sprintf("[Supervisor] routing to %s: %s", decision.Next, decision.Reasoning))
			if !d.emit(ctx, ch, agentEvent(Supervisor, "routing", decision.Reasoning, map[string]interface{}{
				"next": string(decision.Next),
			})) {
				return
			}

		case TechnicalAnalyst, SentimentAnalyst, MarketResearcher:
			worker := d.workers[state.Next]
			if worker == nil {
				d.fail(ctx, ch, start, fmt.Errorf("workflow: no worker registered for %s", state.Next))
				return
			}
			if !d.emit(ctx, ch, agentEvent(worker.Name(), "running", "", nil)) {
				return
			}
			result, err := worker.Run(ctx, state)
			if err != nil {
				d.fail(ctx, ch, start, err)
				return
			}
			usage.add(result.Usage)
			agentsUsed = append(agentsUsed, string(worker.Name()))
			if d.recorder != nil {
				d.recorder.RecordAgentTurn(string(worker.Name()))
				d.recorder.RecordLLMUsage(result.Usage.InputTokens, result.Usage.OutputTokens, result.Usage.Cost)
			}
			if !d.emit(ctx, ch, agentEvent(worker.Name(), "completed", result.Message, map[string]interface{}{
				"namespace":  worker.Namespace(),
				"tools_used": result.ToolsUsed,
			})) {
				return
			}

		case FinalResponse:
			answer, synthUsage, err := d.synthesizer.Run(ctx, state)
			if err != nil {
				d.fail(ctx, ch, start, err)
				return
			}
			usage.add(synthUsage)
			if d.recorder != nil {
				d.recorder.RecordLLMUsage(synthUsage.InputTokens, synthUsage.OutputTokens, synthUsage.Cost)
				d.recorder.RecordRun("completed", time.Since(start))
			}
			d.emit(ctx, ch, finalEvent(answer, map[string]interface{}{
				"agents_used":   agentsUsed,
				"agent_calls":   state.AgentCalls,
				"input_tokens":  usage.InputTokens,
				"output_tokens": usage.OutputTokens,
				"cost":          usage.Cost,
				"duration_ms":   time.Since(start).Milliseconds(),
			}))
			return

		case End:
			// Reached only if a participant set End without synthesis.
			return

		default:
			d.fail(ctx, ch, start, &ErrInvalidRoute{Got: string(state.Next)})
			return
		}
	}
}

// emit delivers one event, giving up when the consumer detaches.
func (d *Driver) emit(ctx context.Context, ch chan<- Event, ev Event) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		d.logger.Printf("consumer detached: %v", ctx.Err())
		return false
	}
}

func (d *Driver) fail(ctx context.Context, ch chan<- Event, start time.Time, err error) {
	d.logger.Printf("run failed: %v", err)
	if d.recorder != nil {
		d.recorder.RecordRun("failed", time.Since(start))
	}
	d.emit(ctx, ch, errorEvent(err))
}
