// Package metrics exposes Prometheus collectors for runs, dispatch steps,
// tool calls and memory operations. A nil *Collector is valid and records
// nothing, so components accept one optionally.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hupe1980/crewmesh/core"
	"github.com/hupe1980/crewmesh/memory"
)

// Collector groups every crewmesh metric.
type Collector struct {
	registry *prometheus.Registry

	runsTotal     *prometheus.CounterVec
	runDuration   prometheus.Histogram
	activeRuns    prometheus.Gauge
	dispatchTotal *prometheus.CounterVec
	toolCalls     *prometheus.CounterVec
	toolDuration  *prometheus.HistogramVec
	memoryOps     *prometheus.CounterVec
}

// NewCollector creates a collector on its own registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crewmesh_runs_total",
				Help: "Supervisor runs by terminal status.",
			},
			[]string{"status"}, // completed | failed | cancelled
		),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "crewmesh_run_duration_seconds",
			Help:    "Wall time of supervisor runs.",
			Buckets: prometheus.DefBuckets,
		}),
		activeRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crewmesh_active_runs",
			Help: "Runs currently executing.",
		}),
		dispatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crewmesh_dispatch_total",
				Help: "Supervisor dispatch steps by target kind and name.",
			},
			[]string{"kind", "target"}, // agent | tool
		),
		toolCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crewmesh_tool_calls_total",
				Help: "Tool calls by tool and status.",
			},
			[]string{"tool", "status"},
		),
		toolDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crewmesh_tool_duration_seconds",
				Help:    "Tool call latency.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool"},
		),
		memoryOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crewmesh_memory_operations_total",
				Help: "Memory store operations by operation and outcome.",
			},
			[]string{"op", "outcome"}, // ok | not_found | unavailable | error
		),
	}
	c.registry.MustRegister(
		c.runsTotal, c.runDuration, c.activeRuns,
		c.dispatchTotal, c.toolCalls, c.toolDuration, c.memoryOps,
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RunStarted marks a run as active.
func (c *Collector) RunStarted() {
	if c == nil {
		return
	}
	c.activeRuns.Inc()
}

// RunFinished records the outcome of a run.
func (c *Collector) RunFinished(err error, d time.Duration) {
	if c == nil {
		return
	}
	c.activeRuns.Dec()
	c.runDuration.Observe(d.Seconds())
	c.runsTotal.WithLabelValues(RunStatus(err)).Inc()
}

// Dispatch records one supervisor dispatch step.
func (c *Collector) Dispatch(kind, target string) {
	if c == nil {
		return
	}
	c.dispatchTotal.WithLabelValues(kind, target).Inc()
}

// ToolCall records one tool execution.
func (c *Collector) ToolCall(name string, status core.ToolStatus, d time.Duration) {
	if c == nil {
		return
	}
	c.toolCalls.WithLabelValues(name, string(status)).Inc()
	c.toolDuration.WithLabelValues(name).Observe(d.Seconds())
}

// MemoryOp records one store operation.
func (c *Collector) MemoryOp(op string, err error) {
	if c == nil {
		return
	}
	c.memoryOps.WithLabelValues(op, memoryOutcome(err)).Inc()
}

// RunStatus maps a run error to its status label.
func RunStatus(err error) string {
	switch {
	case err == nil:
		return "completed"
	case errors.Is(err, context.Canceled), errors.Is(err, core.ErrStreamDisconnected):
		return "cancelled"
	default:
		return "failed"
	}
}

func memoryOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, core.ErrNotFound):
		return "not_found"
	case errors.Is(err, core.ErrStoreUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}

// InstrumentStore wraps store so every operation is counted.
func InstrumentStore(store memory.Store, c *Collector) memory.Store {
	if c == nil {
		return store
	}
	return &instrumentedStore{Store: store, c: c}
}

type instrumentedStore struct {
	memory.Store
	c *Collector
}

func (s *instrumentedStore) Write(ctx context.Context, ns core.Namespace, content string) (string, error) {
	id, err := s.Store.Write(ctx, ns, content)
	s.c.MemoryOp("write", err)
	return id, err
}

func (s *instrumentedStore) Search(ctx context.Context, ns core.Namespace, query string, topK int) ([]core.MemoryRecord, error) {
	recs, err := s.Store.Search(ctx, ns, query, topK)
	s.c.MemoryOp("search", err)
	return recs, err
}

func (s *instrumentedStore) Exact(ctx context.Context, ns core.Namespace) ([]core.MemoryRecord, error) {
	recs, err := s.Store.Exact(ctx, ns)
	s.c.MemoryOp("exact", err)
	return recs, err
}

func (s *instrumentedStore) Get(ctx context.Context, ns core.Namespace, id string) (core.MemoryRecord, error) {
	rec, err := s.Store.Get(ctx, ns, id)
	s.c.MemoryOp("get", err)
	return rec, err
}
