// Package server exposes the advisory workflow over HTTP.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	glog "github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stockpilot/stockpilot/config"
	"github.com/stockpilot/stockpilot/internal/cache"
	"github.com/stockpilot/stockpilot/internal/llm"
	"github.com/stockpilot/stockpilot/internal/store"
	"github.com/stockpilot/stockpilot/internal/telemetry"
	"github.com/stockpilot/stockpilot/internal/tools"
	"github.com/stockpilot/stockpilot/internal/workflow"
)

// Run wires the whole service together and serves until the listener fails.
func Run(cfg *config.Config) error {
	e := echo.New()
	e.HideBanner = true
	e.Debug = cfg.General.Debug
	switch cfg.General.LogLevel {
	case "debug":
		e.Logger.SetLevel(glog.DEBUG)
	case "warn":
		e.Logger.SetLevel(glog.WARN)
	case "error":
		e.Logger.SetLevel(glog.ERROR)
	default:
		e.Logger.SetLevel(glog.INFO)
	}
	e.Use(middleware.Recover())

	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	var tele *telemetry.Telemetry
	if cfg.Telemetry.Enabled {
		tele = telemetry.New(prometheus.DefaultRegisterer)
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}

	// Shared dependencies (top-level DI)
	ctx := context.Background()
	var toolCache cache.Cache
	switch cfg.Cache.Backend {
	case "redis":
		rc := cache.NewRedisCache(cfg.Cache.Redis)
		if err := rc.Ping(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		toolCache = rc
	default:
		toolCache = cache.NewMemoryCache()
	}

	var toolMetrics tools.Metrics
	if tele != nil {
		toolMetrics = tele
	}
	retry := tools.DefaultRetryPolicy(cfg.Tools.Retry.Backoff)
	if cfg.Tools.Retry.MaxAttempts > 0 {
		retry.MaxAttempts = cfg.Tools.Retry.MaxAttempts
	}
	invoker := tools.NewInvoker(tools.NewToolset(cfg.Tools), toolCache, retry, toolMetrics)

	provider := llm.NewOpenAIProvider(cfg.LLM)
	workers := workflow.NewStandardWorkers(invoker, provider, cfg.ModelFor("workers"))
	for _, w := range workers {
		w.WithTimeout(cfg.Workflow.WorkerTimeout)
	}
	driver := workflow.NewDriver(
		workflow.NewSupervisorAgent(provider, cfg.ModelFor("routing"), cfg.Workflow.MaxAgentCalls),
		workers,
		workflow.NewSynthesizerAgent(provider, cfg.ModelFor("synthesis")),
		recorderOrNil(tele),
	)

	// Run history is optional: without postgres the advisor still works.
	var runStore *store.RunStore
	if cfg.Storage.Postgres.DSN() != "" {
		st, err := store.Open(ctx, cfg.Storage.Postgres)
		if err != nil {
			return err
		}
		runStore = st
	} else {
		baseLogger.Printf("postgres not configured, run history disabled")
	}

	h := &AdvisorHandler{
		Driver:         driver,
		Store:          runStore,
		HistoryLimit:   cfg.Workflow.HistoryLimit,
		StreamEnabled:  cfg.Server.StreamEnabled,
		RequestTimeout: cfg.Server.RequestTimeout,
	}
	h.Register(e.Group("/api/advisor"))

	return e.Start(cfg.Server.Address)
}

func recorderOrNil(tele *telemetry.Telemetry) workflow.Recorder {
	if tele == nil {
		return nil
	}
	return tele
}
