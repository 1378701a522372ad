package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/stockpilot/stockpilot/internal/store"
	"github.com/stockpilot/stockpilot/internal/workflow"
)

var advisorTracer = otel.Tracer("stockpilot/server")

// AdvisorHandler serves the streaming advisory endpoint and run history.
type AdvisorHandler struct {
	Driver         *workflow.Driver
	Store          *store.RunStore // nil disables run history
	HistoryLimit   int
	StreamEnabled  bool
	RequestTimeout time.Duration // caps one run; zero means no deadline

	logger *log.Logger
}

func (h *AdvisorHandler) Register(g *echo.Group) {
	h.logger = log.New(log.Writer(), "[Advisor] ", log.LstdFlags)
	g.POST("/stream", h.stream)
	g.GET("/runs", h.listRuns)
}

type adviseRequest struct {
	Messages []workflow.Message `json:"messages"`
}

// stream runs the advisory workflow and streams its events via Server-Sent
// Events. The stream carries zero or more agent frames and exactly one
// terminal final or error frame.
func (h *AdvisorHandler) stream(c echo.Context) error {
	if !h.StreamEnabled {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "advisor stream disabled")
	}
	req := c.Request()
	ctx := req.Context()
	if h.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.RequestTimeout)
		defer cancel()
	}
	ctx, span := advisorTracer.Start(ctx, "AdvisorHandler.stream")
	defer span.End()
	c.SetRequest(req.WithContext(ctx))

	var body adviseRequest
	if err := c.Bind(&body); err != nil {
		span.SetStatus(codes.Error, "malformed body")
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if len(body.Messages) == 0 {
		span.SetStatus(codes.Error, "messages required")
		return echo.NewHTTPError(http.StatusBadRequest, "messages required")
	}
	for _, m := range body.Messages {
		if strings.TrimSpace(m.Content) == "" || strings.TrimSpace(m.Role) == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "every message needs a role and content")
		}
	}

	// Only the most recent window of the conversation feeds the run.
	history := workflow.TruncateHistory(body.Messages, h.HistoryLimit)
	span.SetAttributes(
		attribute.Int("history_len", len(history)),
		attribute.Int("request_len", len(body.Messages)),
	)

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.Header().Set("X-Accel-Buffering", "no")
	resp.WriteHeader(http.StatusOK)
	flusher, ok := resp.Writer.(http.Flusher)
	if !ok {
		span.SetStatus(codes.Error, "streaming unsupported")
		return echo.NewHTTPError(http.StatusServiceUnavailable, "streaming unsupported")
	}

	start := time.Now()
	var finalEv *workflow.Event
	for ev := range h.Driver.Run(ctx, history) {
		data, err := json.Marshal(ev)
		if err != nil {
			span.RecordError(err)
			continue
		}
		if _, err := resp.Write([]byte("data: " + string(data) + "\n\n")); err != nil {
			span.RecordError(err)
			return nil // client went away; the driver stops via ctx
		}
		flusher.Flush()
		if ev.Type == workflow.EventFinal {
			cp := ev
			finalEv = &cp
		}
	}

	if finalEv != nil {
		h.persistRun(history, *finalEv, time.Since(start))
	}
	return nil
}

// persistRun saves a completed run best-effort; failures only log.
func (h *AdvisorHandler) persistRun(history []workflow.Message, final workflow.Event, elapsed time.Duration) {
	if h.Store == nil {
		return
	}
	rec := store.RunRecord{
		ID:         uuid.NewString(),
		Question:   lastUserMessage(history),
		Answer:     final.Message,
		DurationMS: elapsed.Milliseconds(),
	}
	if agents, ok := final.Data["agents_used"].([]string); ok {
		rec.AgentsUsed = agents
	}
	if calls, ok := final.Data["agent_calls"].(int); ok {
		rec.AgentCalls = calls
	}
	if v, ok := final.Data["input_tokens"].(int64); ok {
		rec.InputTokens = v
	}
	if v, ok := final.Data["output_tokens"].(int64); ok {
		rec.OutputTokens = v
	}
	if v, ok := final.Data["cost"].(float64); ok {
		rec.Cost = v
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.Store.SaveRun(ctx, rec); err != nil {
		h.logger.Printf("persist run: %v", err)
	}
}

func lastUserMessage(history []workflow.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == "user" {
			return history[i].Content
		}
	}
	if len(history) > 0 {
		return history[len(history)-1].Content
	}
	return ""
}

// listRuns returns recent completed runs, newest first.
func (h *AdvisorHandler) listRuns(c echo.Context) error {
	if h.Store == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "run history disabled")
	}
	limit := 20
	if val := strings.TrimSpace(c.QueryParam("limit")); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			limit = n
		}
	}
	runs, err := h.Store.ListRuns(c.Request().Context(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if runs == nil {
		runs = []store.RunRecord{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"runs": runs})
}
