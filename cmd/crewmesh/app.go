package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/hupe1980/crewmesh/config"
	"github.com/hupe1980/crewmesh/core"
	"github.com/hupe1980/crewmesh/engine"
	"github.com/hupe1980/crewmesh/logging"
	"github.com/hupe1980/crewmesh/mcp"
	"github.com/hupe1980/crewmesh/memory"
	"github.com/hupe1980/crewmesh/metrics"
	"github.com/hupe1980/crewmesh/stream"
	"github.com/hupe1980/crewmesh/tool"
	"github.com/hupe1980/crewmesh/tool/websearch"
	"github.com/hupe1980/crewmesh/tracing"
)

// app holds the process wide components built from configuration.
type app struct {
	cfg     *config.Config
	logger  logging.Logger
	engine  *engine.Engine
	mcp     *mcp.Manager
	tracer  *sdktrace.TracerProvider
	metrics *http.Server
}

func loadConfig(g *Globals) (*config.Config, error) {
	cfg, err := config.Load(func(o *config.LoadOptions) {
		o.ConfigFile = g.Config
		o.EnvFiles = g.EnvFile
	})
	if err != nil {
		return nil, err
	}
	if g.Mode != "" {
		cfg.Run.Mode = g.Mode
	}
	if g.Durability != "" {
		cfg.Run.Durability = g.Durability
	}
	if g.Mandatory {
		cfg.Run.DurabilityMandatory = true
	}
	if g.Agents {
		cfg.Run.StreamAgents = true
	}
	if g.LogLevel != "" {
		cfg.Log.Level = g.LogLevel
	}
	return cfg, cfg.Validate()
}

func newApp(ctx context.Context, g *Globals) (*app, error) {
	cfg, err := loadConfig(g)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: cfg.NewLogger()}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	if ep := cfg.Telemetry.OTLPEndpoint; ep != "" {
		tp, err := tracing.Init(ctx, tracing.Config{
			ServiceName:    cfg.Telemetry.ServiceName,
			ExportEndpoint: ep,
			Insecure:       cfg.Telemetry.OTLPInsecure,
		})
		if err != nil {
			return nil, fmt.Errorf("init tracing: %w", err)
		}
		a.tracer = tp
	}

	collector := metrics.NewCollector()
	if addr := cfg.Telemetry.MetricsAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		a.metrics = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("metrics.server.failed", "addr", addr, "error", err.Error())
			}
		}()
	}

	llm, err := cfg.NewModel()
	if err != nil {
		return nil, err
	}

	registry, err := tool.NewRegistry(websearch.NewTool(cfg.NewSearchClient()))
	if err != nil {
		return nil, err
	}

	mode := cfg.Mode()
	var remote []tool.Tool
	if mode == core.ModeMCP || mode == core.ModeMemory {
		mcpCfg, err := cfg.LoadMCP()
		if err != nil {
			return nil, err
		}
		a.mcp, err = mcp.Connect(ctx, mcpCfg, func(o *mcp.Options) {
			o.ClientName = "crewmesh"
			o.ClientVersion = version
			o.FailFast = cfg.MCP.FailFast
			o.Logger = a.logger
		})
		if err != nil {
			return nil, err
		}
		remote = a.mcp.Tools()
	}

	var store memory.Store
	if mode == core.ModeMemory {
		store, err = cfg.OpenMemory(ctx, a.logger)
		switch {
		case err == nil:
		case errors.Is(err, core.ErrStoreUnavailable) && !cfg.Run.DurabilityMandatory:
			a.logger.Warn("memory.degraded", "durability", cfg.Run.Durability, "error", err.Error())
			store = nil
		default:
			return nil, err
		}
	}

	a.engine, err = engine.New(llm, func(o *engine.Options) {
		o.Config.MaxConcurrentRuns = cfg.Engine.MaxConcurrentRuns
		o.Config.StepBudget = cfg.Run.StepBudget
		o.Config.Run = engine.RunConfig{
			Mode:                mode,
			Durability:          cfg.Durability(),
			DurabilityMandatory: cfg.Run.DurabilityMandatory,
			RecursionLimit:      cfg.Run.RecursionLimit,
			Namespace:           cfg.Namespace(),
			RecallTopK:          cfg.Run.RecallTopK,
			StreamAgents:        cfg.Run.StreamAgents,
		}
		o.Tools = registry
		o.RemoteTools = remote
		o.Memory = store
		o.Metrics = collector
		o.Logger = a.logger
	})
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return nil, err
	}

	ok = true
	return a, nil
}

// Close releases everything newApp acquired.
func (a *app) Close() {
	if a.engine != nil {
		if err := a.engine.Close(); err != nil {
			a.logger.Warn("engine.close.failed", "error", err.Error())
		}
	}
	if a.mcp != nil {
		if err := a.mcp.Close(); err != nil {
			a.logger.Warn("mcp.close.failed", "error", err.Error())
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if a.metrics != nil {
		_ = a.metrics.Shutdown(ctx)
	}
	if a.tracer != nil {
		_ = a.tracer.Shutdown(ctx)
	}
}

func (a *app) invoke(ctx context.Context, history []core.Message) (string, <-chan stream.Event, error) {
	return a.engine.Invoke(ctx, history)
}
