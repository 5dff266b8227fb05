package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/crewmesh/agent"
	"github.com/hupe1980/crewmesh/core"
	"github.com/hupe1980/crewmesh/flow"
	"github.com/hupe1980/crewmesh/logging"
	"github.com/hupe1980/crewmesh/memory"
	"github.com/hupe1980/crewmesh/metrics"
	"github.com/hupe1980/crewmesh/model"
	"github.com/hupe1980/crewmesh/stream"
	"github.com/hupe1980/crewmesh/supervisor"
	"github.com/hupe1980/crewmesh/tool"
	"github.com/hupe1980/crewmesh/tool/websearch"
)

// ErrClosed is returned by Invoke after Close.
var ErrClosed = errors.New("engine closed")

// RunConfig selects the capabilities and limits of one run.
type RunConfig struct {
	Mode                core.Mode
	Durability          core.Durability
	DurabilityMandatory bool
	// RecursionLimit bounds dispatch steps per run.
	RecursionLimit int
	Namespace      core.Namespace
	RecallTopK     int
	// StreamAgents streams agent text as chunks authored by the agent. Those
	// chunks are not part of the turn's answer.
	StreamAgents bool
}

// Config defines tuning parameters for the Engine.
type Config struct {
	// MaxConcurrentRuns limits the number of runs executing at once. Invoke
	// blocks until a slot frees up or its context ends. 0 means unlimited.
	MaxConcurrentRuns int

	// StepBudget is applied to roster agents that do not set their own.
	StepBudget int

	// Run holds the defaults for every run; Invoke may override them.
	Run RunConfig
}

// DefaultConfig provides the default engine configuration.
var DefaultConfig = Config{
	MaxConcurrentRuns: 10,
	StepBudget:        agent.DefaultStepBudget,
	Run: RunConfig{
		Mode:           core.ModePlain,
		Durability:     core.DurabilityVolatile,
		RecursionLimit: 50,
		Namespace:      core.NewNamespace("memories", "user_name"),
		RecallTopK:     supervisor.DefaultRecallTopK,
	},
}

// Options configures an Engine.
type Options struct {
	// Config contains operational parameters. Defaults to DefaultConfig.
	Config Config

	// Roster is the fixed agent set. Defaults to the research roster bound to
	// the web search tool.
	Roster *agent.Roster

	// Tools holds the tools agents may use.
	Tools *tool.Registry

	// RemoteTools are MCP tools offered to the supervisor in mcp and memory mode.
	RemoteTools []tool.Tool

	// Memory is the store bound to memory mode runs. The engine closes it.
	Memory memory.Store

	// AgentModel drives the agents. Defaults to the supervisor model.
	AgentModel model.Model

	// Instructions overrides the supervisor prompt template.
	Instructions string

	// Now is the clock behind the time tool and the date in agent prompts.
	Now func() time.Time

	// Metrics is optional.
	Metrics *metrics.Collector

	// Callbacks are optional lifecycle hooks.
	Callbacks *CallbackManager

	// Logger defaults to a NoOpLogger.
	Logger logging.Logger
}

// Engine runs conversation turns against a fixed roster and owns the shared
// resources of those runs.
type Engine struct {
	llm       model.Model
	roster    *agent.Roster
	opts      Options
	executor  *flow.ToolExecutor
	sem       chan struct{}
	logger    logging.Logger
	callbacks *CallbackManager

	mu     sync.Mutex
	active map[string]context.CancelFunc
	wg     sync.WaitGroup
	closed bool
}

// New creates an Engine around the supervisor model llm.
func New(llm model.Model, optFns ...func(o *Options)) (*Engine, error) {
	if llm == nil {
		return nil, fmt.Errorf("engine: model is nil")
	}

	opts := Options{
		Config: DefaultConfig,
		Now:    time.Now,
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Memory != nil {
		opts.Memory = metrics.InstrumentStore(opts.Memory, opts.Metrics)
	}

	roster := opts.Roster
	if roster == nil {
		var err error
		if roster, err = agent.NewRoster(agent.DefaultDefinitions(websearch.ToolName)...); err != nil {
			return nil, err
		}
	}
	roster, err := withStepBudget(roster, opts.Config.StepBudget)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		llm:       llm,
		roster:    roster,
		opts:      opts,
		logger:    opts.Logger,
		callbacks: opts.Callbacks,
		active:    make(map[string]context.CancelFunc),
		executor: flow.NewToolExecutor(func(o *flow.ToolExecutorOptions) {
			o.Metrics = opts.Metrics
		}),
	}
	if n := opts.Config.MaxConcurrentRuns; n > 0 {
		e.sem = make(chan struct{}, n)
	}

	// fail fast on a roster whose tools are missing from the registry
	if _, err := e.newSupervisor(opts.Config.Run); err != nil {
		return nil, err
	}

	return e, nil
}

func withStepBudget(roster *agent.Roster, budget int) (*agent.Roster, error) {
	if budget <= 0 {
		return roster, nil
	}
	defs := roster.Definitions()
	for i := range defs {
		if defs[i].StepBudget == 0 {
			defs[i].StepBudget = budget
		}
	}
	return agent.NewRoster(defs...)
}

// Roster returns the agents runs dispatch to.
func (e *Engine) Roster() *agent.Roster { return e.roster }

// Memory returns the bound store, if any.
func (e *Engine) Memory() memory.Store { return e.opts.Memory }

func (e *Engine) newSupervisor(rc RunConfig) (*supervisor.Supervisor, error) {
	var store memory.Store
	if rc.Mode == core.ModeMemory {
		store = e.opts.Memory
	}
	return supervisor.New(e.llm, e.roster, e.opts.Tools, func(o *supervisor.Options) {
		o.Mode = rc.Mode
		o.Tools = supervisor.LocalTools(rc.Mode, e.opts.Now, e.opts.RemoteTools)
		o.Memory = store
		o.DurabilityMandatory = rc.DurabilityMandatory
		if rc.RecallTopK > 0 {
			o.RecallTopK = rc.RecallTopK
		}
		if e.opts.Instructions != "" {
			o.Instructions = e.opts.Instructions
		}
		o.AgentModel = e.opts.AgentModel
		o.Executor = e.executor
		o.Metrics = e.opts.Metrics
		o.StreamAgents = rc.StreamAgents
	})
}

// Tools lists the tools the supervisor sees for the default run config.
func (e *Engine) Tools() ([]string, error) {
	sup, err := e.newSupervisor(e.opts.Config.Run)
	if err != nil {
		return nil, err
	}
	return sup.ToolNames(), nil
}

// Invoke starts a run over history and returns its id and event stream. The
// stream ends with a turn-complete or an error event, or without a terminal
// event when ctx is cancelled.
func (e *Engine) Invoke(
	ctx context.Context,
	history []core.Message,
	optFns ...func(rc *RunConfig),
) (string, <-chan stream.Event, error) {
	rcfg := e.opts.Config.Run
	for _, fn := range optFns {
		fn(&rcfg)
	}
	if rcfg.Mode == core.ModeMemory && e.opts.Memory == nil && rcfg.DurabilityMandatory {
		return "", nil, fmt.Errorf("memory mode requires a store: %w", core.ErrStoreUnavailable)
	}

	sup, err := e.newSupervisor(rcfg)
	if err != nil {
		return "", nil, err
	}

	runID := uuid.NewString()

	if err := e.acquire(ctx); err != nil {
		return "", nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		cancel()
		e.release()
		return "", nil, ErrClosed
	}
	e.active[runID] = cancel
	e.wg.Add(1)
	e.mu.Unlock()

	cbCtx := &CallbackContext{RunID: runID, History: history}
	if err := e.callbacks.ExecuteCallbacks(ctx, CallbackBeforeRun, cbCtx); err != nil {
		e.finish(runID, cancel)
		return "", nil, err
	}

	e.opts.Metrics.RunStarted()
	e.logger.Info("engine.run.start", "run_id", runID, "mode", rcfg.Mode, "history", len(history))

	produce := func(ctx context.Context, notices chan<- core.Notice) (core.Message, error) {
		rc := core.NewRunContext(ctx, runID, notices, func(o *core.RunOptions) {
			o.RecursionLimit = rcfg.RecursionLimit
			o.Durability = rcfg.Durability
			o.Namespace = rcfg.Namespace
			o.Logger = e.logger
			o.Now = e.opts.Now
		})
		return sup.Run(rc, history)
	}

	events := stream.Start(runCtx, runID, produce, func(o *stream.Options) { o.Logger = e.logger })
	out := make(chan stream.Event)

	go func() {
		defer close(out)
		defer e.finish(runID, cancel)

		start := time.Now()
		var runErr error
		terminal := false

		connected := true
		for ev := range events {
			if !connected {
				continue
			}
			if err := e.callbacks.ExecuteCallbacks(runCtx, CallbackOnEvent, &CallbackContext{RunID: runID, History: history, Event: &ev}); err != nil {
				e.logger.Warn("engine.callback.failed", "run_id", runID, "error", err.Error())
			}

			switch ev.Kind {
			case stream.KindTurnComplete:
				terminal = true
				if err := e.callbacks.ExecuteCallbacks(runCtx, CallbackAfterRun, &CallbackContext{RunID: runID, History: history, Event: &ev}); err != nil {
					e.logger.Warn("engine.callback.failed", "run_id", runID, "error", err.Error())
				}
			case stream.KindError:
				terminal = true
				runErr = ev.Err
			}

			select {
			case <-runCtx.Done():
				connected = false
			case out <- ev:
			}
		}

		if !terminal || !connected {
			runErr = fmt.Errorf("%w: %w", core.ErrStreamDisconnected, context.Cause(runCtx))
			e.logger.Warn("engine.run.cancelled", "run_id", runID)
		}
		if runErr != nil {
			_ = e.callbacks.ExecuteCallbacks(context.WithoutCancel(ctx), CallbackOnError, &CallbackContext{RunID: runID, History: history, Err: runErr})
			e.logger.Error("engine.run.failed", "run_id", runID, "error", runErr.Error())
		} else {
			e.logger.Info("engine.run.complete", "run_id", runID, "duration_ms", time.Since(start).Milliseconds())
		}
		e.opts.Metrics.RunFinished(runErr, time.Since(start))
	}()

	return runID, out, nil
}

// InvokeSync runs history to completion and returns the finished turn along
// with every event of the run.
func (e *Engine) InvokeSync(
	ctx context.Context,
	history []core.Message,
	optFns ...func(rc *RunConfig),
) (string, *stream.Turn, []stream.Event, error) {
	runID, events, err := e.Invoke(ctx, history, optFns...)
	if err != nil {
		return "", nil, nil, err
	}

	var (
		all  []stream.Event
		turn *stream.Turn
		fail error
	)
	for ev := range events {
		all = append(all, ev)
		switch ev.Kind {
		case stream.KindTurnComplete:
			turn = ev.Turn
		case stream.KindError:
			fail = ev.Err
		}
	}

	switch {
	case fail != nil:
		return runID, nil, all, fail
	case turn == nil:
		if err := ctx.Err(); err != nil {
			return runID, nil, all, fmt.Errorf("%w: %w", core.ErrStreamDisconnected, err)
		}
		return runID, nil, all, core.ErrStreamDisconnected
	default:
		return runID, turn, all, nil
	}
}

// Cancel stops an active run.
func (e *Engine) Cancel(runID string) error {
	e.mu.Lock()
	cancel, exists := e.active[runID]
	e.mu.Unlock()

	if !exists {
		return fmt.Errorf("run %s not found", runID)
	}

	e.logger.Info("engine.run.cancel", "run_id", runID)
	cancel()
	return nil
}

// ActiveRuns returns the ids of running turns.
func (e *Engine) ActiveRuns() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := make([]string, 0, len(e.active))
	for id := range e.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close cancels every active run, waits for them to stop and closes the
// memory store.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	for _, cancel := range e.active {
		cancel()
	}
	e.mu.Unlock()

	e.wg.Wait()

	if e.opts.Memory != nil {
		return e.opts.Memory.Close()
	}
	return nil
}

func (e *Engine) acquire(ctx context.Context) error {
	if e.sem == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case e.sem <- struct{}{}:
		return nil
	}
}

func (e *Engine) release() {
	if e.sem != nil {
		<-e.sem
	}
}

func (e *Engine) finish(runID string, cancel context.CancelFunc) {
	cancel()
	e.mu.Lock()
	delete(e.active, runID)
	e.mu.Unlock()
	e.release()
	e.wg.Done()
}
