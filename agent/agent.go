package agent

import (
	"errors"
	"fmt"

	"github.com/hupe1980/crewmesh/core"
	"github.com/hupe1980/crewmesh/flow"
	"github.com/hupe1980/crewmesh/model"
	"github.com/hupe1980/crewmesh/tool"
	"github.com/hupe1980/crewmesh/tracing"
)

// Options configure an Agent.
type Options struct {
	// Executor runs tool calls. Defaults to a plain sequential executor.
	Executor *flow.ToolExecutor

	// Stream forwards the agent's text deltas as text-chunk notices authored
	// by the agent.
	Stream bool
}

// Agent executes one roster definition: a bounded loop of model calls and
// sequential tool executions restricted to the definition's tool subset.
type Agent struct {
	def      Definition
	llm      model.Model
	tools    *tool.Registry
	executor *flow.ToolExecutor
	stream   bool
}

// New binds def to a model. The agent sees the shared tools def.Tools names
// in registry plus its own def.OwnTools. Unknown tool names fail construction.
func New(def Definition, llm model.Model, registry *tool.Registry, optFns ...func(o *Options)) (*Agent, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	if llm == nil {
		return nil, fmt.Errorf("agent %s: model is nil", def.Name)
	}
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Executor == nil {
		opts.Executor = flow.NewToolExecutor()
	}

	shared, err := registry.Subset(def.Tools...)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", def.Name, err)
	}
	tools, err := shared.With(def.OwnTools...)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", def.Name, err)
	}

	return &Agent{
		def:      def.clone(),
		llm:      llm,
		tools:    tools,
		executor: opts.Executor,
		stream:   opts.Stream,
	}, nil
}

// Name returns the agent name.
func (a *Agent) Name() string { return a.def.Name }

// Definition returns a copy of the agent definition.
func (a *Agent) Definition() Definition { return a.def.clone() }

// Tools returns the tool names visible to the agent.
func (a *Agent) Tools() []string { return a.tools.Names() }

// Run works on task until the model answers without tool calls and returns
// that answer. When the step budget is exhausted it returns the last
// assistant message together with core.ErrStepBudgetExceeded.
func (a *Agent) Run(runCtx *core.RunContext, task string) (msg core.Message, err error) {
	spanCtx, span := tracing.StartAgentSpan(runCtx.Context, a.def.Name)
	defer func() { tracing.End(span, err) }()

	rc := runCtx.WithAgent(a.def.Name).WithContext(spanCtx)
	rc.LogInfo("agent.run.start", "agent", a.def.Name, "run_id", rc.RunID, "budget", a.def.Budget())

	instructions, err := a.def.Instructions.Resolve(rc)
	if err != nil {
		return core.NewAssistantMessage(a.def.Name, ""), fmt.Errorf("agent %s: instructions: %w", a.def.Name, err)
	}

	messages := []core.Message{core.NewUserMessage(task)}
	limiter := core.NewStepLimiter(a.def.Budget())
	last := core.NewAssistantMessage(a.def.Name, "")

	for {
		if err := limiter.Increment(core.ErrStepBudgetExceeded); err != nil {
			rc.LogWarn("agent.step_budget_exceeded", "agent", a.def.Name, "steps", limiter.Count())
			return last, fmt.Errorf("agent %s: %w", a.def.Name, err)
		}
		rc.LogDebug("agent.step", "agent", a.def.Name, "step", limiter.Count())

		resp, err := flow.Generate(rc, a.llm, model.Request{
			Instructions: instructions,
			Messages:     messages,
			Tools:        a.tools.Definitions(),
		}, a.stream)
		if err != nil {
			return last, fmt.Errorf("agent %s: generate: %w", a.def.Name, err)
		}

		reply := core.NewAssistantMessage(a.def.Name, resp.Text, resp.ToolCalls...)
		messages = append(messages, reply)
		if resp.Text != "" || len(resp.ToolCalls) == 0 {
			last = reply
		}

		if len(resp.ToolCalls) == 0 {
			rc.LogInfo("agent.run.complete", "agent", a.def.Name, "steps", limiter.Count())
			return reply, nil
		}

		results, err := a.executor.ExecuteAll(rc, a.tools, resp.ToolCalls)
		if err != nil {
			return last, err
		}
		for _, res := range results {
			messages = append(messages, core.NewToolMessage(res))
		}
	}
}

// IsDegraded reports whether err still leaves a usable partial answer.
func IsDegraded(err error) bool { return errors.Is(err, core.ErrStepBudgetExceeded) }
