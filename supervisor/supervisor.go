package supervisor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/crewmesh/agent"
	"github.com/hupe1980/crewmesh/core"
	"github.com/hupe1980/crewmesh/flow"
	"github.com/hupe1980/crewmesh/memory"
	"github.com/hupe1980/crewmesh/metrics"
	"github.com/hupe1980/crewmesh/model"
	"github.com/hupe1980/crewmesh/tool"
	"github.com/hupe1980/crewmesh/tracing"
)

// DefaultRecallTopK is the number of facts recalled before the first selection.
const DefaultRecallTopK = 5

const paragraphBreak = "\n\n"

// Options configure a Supervisor.
type Options struct {
	// Mode is recorded on spans and logs. Tool selection per mode is done by
	// the caller through Tools and Memory.
	Mode core.Mode

	// Tools the supervisor may call directly besides the handoff tools.
	Tools []tool.Tool

	// Memory enables recall and the memory tools when set.
	Memory memory.Store

	// DurabilityMandatory fails the run instead of degrading when the memory
	// store is unreachable.
	DurabilityMandatory bool

	// RecallTopK bounds the recalled facts. Defaults to DefaultRecallTopK.
	RecallTopK int

	// Instructions is a text/template rendered with .roster, .tools and
	// .memory. Defaults to DefaultInstructions.
	Instructions string

	// AgentModel drives the agents. Defaults to the supervisor model.
	AgentModel model.Model

	// Executor runs tool calls for the supervisor and every agent.
	Executor *flow.ToolExecutor

	// Metrics is optional.
	Metrics *metrics.Collector

	// StreamAgents forwards agent text deltas as text chunks authored by the
	// agent. They are not part of the supervisor's answer.
	StreamAgents bool
}

// Supervisor routes one conversation turn across the roster.
type Supervisor struct {
	llm      model.Model
	roster   *agent.Roster
	agents   map[string]*agent.Agent
	tools    *tool.Registry
	memTools []tool.Tool
	local    []string
	opts     Options
}

// New builds the agents of roster on top of registry and binds one handoff
// tool per agent next to the local tools.
func New(llm model.Model, roster *agent.Roster, registry *tool.Registry, optFns ...func(o *Options)) (*Supervisor, error) {
	if llm == nil {
		return nil, fmt.Errorf("supervisor: model is nil")
	}
	if roster == nil {
		return nil, fmt.Errorf("supervisor: roster is nil")
	}

	opts := Options{
		Mode:         core.ModePlain,
		RecallTopK:   DefaultRecallTopK,
		Instructions: DefaultInstructions,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.AgentModel == nil {
		opts.AgentModel = llm
	}
	if opts.Executor == nil {
		opts.Executor = flow.NewToolExecutor(func(o *flow.ToolExecutorOptions) { o.Metrics = opts.Metrics })
	}

	s := &Supervisor{
		llm:    llm,
		roster: roster,
		agents: make(map[string]*agent.Agent),
		opts:   opts,
	}

	var handoffs []tool.Tool
	for _, def := range roster.Definitions() {
		a, err := agent.New(def, opts.AgentModel, registry, func(o *agent.Options) {
			o.Executor = opts.Executor
			o.Stream = opts.StreamAgents
		})
		if err != nil {
			return nil, err
		}
		s.agents[def.Name] = a
		handoffs = append(handoffs, tool.NewHandoffTool(def.Name, def.Description))
	}

	tools, err := tool.NewRegistry(handoffs...)
	if err != nil {
		return nil, err
	}
	if err := tools.Register(opts.Tools...); err != nil {
		return nil, fmt.Errorf("supervisor: %w", err)
	}
	s.tools = tools
	for _, t := range opts.Tools {
		s.local = append(s.local, t.Name())
	}

	if opts.Memory != nil {
		s.memTools = memoryTools(opts.Memory)
		if _, err := tools.With(s.memTools...); err != nil {
			return nil, fmt.Errorf("supervisor: %w", err)
		}
	}

	return s, nil
}

// Roster returns the dispatchable agents.
func (s *Supervisor) Roster() *agent.Roster { return s.roster }

// ToolNames lists the tools visible to the supervisor model when memory is
// available.
func (s *Supervisor) ToolNames() []string {
	names := s.tools.Names()
	for _, t := range s.memTools {
		names = append(names, t.Name())
	}
	return names
}

// Run executes one turn over history and returns the supervisor's final
// answer. A reply's text is held until the reply is accepted for dispatch or
// as the answer; text of a rejected reply is dropped. The answer's content is
// exactly the supervisor text streamed through the run's notices.
func (s *Supervisor) Run(runCtx *core.RunContext, history []core.Message) (final core.Message, err error) {
	spanCtx, span := tracing.StartRunSpan(runCtx.Context, runCtx.RunID, string(s.opts.Mode))
	defer func() { tracing.End(span, err) }()

	rc := runCtx.WithAgent(agent.SupervisorName).WithContext(spanCtx)
	rc.LogInfo("supervisor.run.start", "run_id", rc.RunID, "mode", s.opts.Mode, "agents", s.roster.Names())

	messages := core.CloneMessages(history)
	tools := s.tools
	memoryOn := s.opts.Memory != nil

	if memoryOn {
		note, err := s.recall(rc, messages)
		switch {
		case err == nil:
			if note != "" {
				messages = append(messages, core.NewSystemMessage(note))
			}
			if tools, err = s.tools.With(s.memTools...); err != nil {
				return core.Message{}, err
			}
		case errors.Is(err, core.ErrStoreUnavailable) && !s.opts.DurabilityMandatory:
			rc.LogWarn("memory.degraded", "run_id", rc.RunID, "durability", rc.Durability, "error", err.Error())
			memoryOn = false
		default:
			rc.LogError("supervisor.recall.failed", "run_id", rc.RunID, "error", err.Error())
			return core.Message{}, err
		}
	}

	instructions, err := agent.NewInstructionFromTemplate(
		s.opts.Instructions,
		instructionData(s.roster, s.local, memoryOn),
	).Resolve(rc)
	if err != nil {
		return core.Message{}, fmt.Errorf("supervisor: instructions: %w", err)
	}

	// shown is the supervisor text released to the stream so far. It becomes
	// the final answer, so the streamed text and the answer never disagree.
	var shown strings.Builder
	reprompted := false
	for {
		resp, held, err := flow.GenerateHeld(rc, s.llm, model.Request{
			Instructions: instructions,
			Messages:     messages,
			Tools:        tools.Definitions(),
		})
		if err != nil {
			return core.Message{}, fmt.Errorf("supervisor: generate: %w", err)
		}

		sel, err := selectTarget(resp, tools)
		if err != nil {
			if reprompted {
				rc.LogError("supervisor.dispatch.failed", "run_id", rc.RunID, "error", err.Error())
				return core.Message{}, fmt.Errorf("%w: %w", core.ErrDispatchFailure, err)
			}
			rc.LogWarn("supervisor.select.ambiguous", "run_id", rc.RunID, "error", err.Error(), "dropped_text", len(held.Text()))
			reprompted = true
			messages = append(messages, core.NewSystemMessage(correctiveNote))
			continue
		}
		reprompted = false

		if err := s.release(rc, &shown, held); err != nil {
			return core.Message{}, err
		}

		if sel.final {
			rc.LogInfo("supervisor.run.complete", "run_id", rc.RunID, "steps", rc.RecursionCount())
			return core.NewAssistantMessage(agent.SupervisorName, shown.String()), nil
		}

		rc.LogDebug("supervisor.select", "kind", sel.kind(), "target", sel.target())

		if err := rc.Dispatch(); err != nil {
			rc.LogError("supervisor.recursion_exceeded", "run_id", rc.RunID, "steps", rc.RecursionCount())
			return core.Message{}, err
		}

		messages = append(messages, core.NewAssistantMessage(agent.SupervisorName, resp.Text, sel.call))

		res, err := s.dispatch(rc, tools, sel)
		if err != nil {
			return core.Message{}, err
		}
		messages = append(messages, core.NewToolMessage(res))
	}
}

// release streams the text of an accepted reply. Replies after the first are
// separated by a blank line.
func (s *Supervisor) release(rc *core.RunContext, shown *strings.Builder, held flow.Held) error {
	if held.Empty() {
		return nil
	}
	if shown.Len() > 0 && !strings.HasSuffix(shown.String(), "\n") {
		if err := rc.Notify(core.Notice{Kind: core.NoticeTextChunk, Text: paragraphBreak}); err != nil {
			return err
		}
		shown.WriteString(paragraphBreak)
	}
	if err := held.Release(rc); err != nil {
		return err
	}
	shown.WriteString(held.Text())
	return nil
}

func (s *Supervisor) dispatch(rc *core.RunContext, tools *tool.Registry, sel selection) (res core.ToolResult, err error) {
	step := rc.RecursionCount()
	s.opts.Metrics.Dispatch(sel.kind(), sel.target())

	spanCtx, span := tracing.StartDispatchSpan(rc.Context, step, sel.kind(), sel.target())
	defer func() { tracing.End(span, err) }()
	rc = rc.WithContext(spanCtx)

	rc.LogInfo("supervisor.dispatch", "run_id", rc.RunID, "step", step, "kind", sel.kind(), "target", sel.target())

	if sel.handoff == nil {
		return s.opts.Executor.Execute(rc, tools, sel.call)
	}
	return s.handoff(rc, sel.call, *sel.handoff)
}

// handoff runs one agent to completion. The agent's answer becomes the
// result of the handoff call; a step budget overrun is a degraded error
// result rather than a run failure.
func (s *Supervisor) handoff(rc *core.RunContext, call core.ToolCall, h tool.Handoff) (core.ToolResult, error) {
	a, ok := s.agents[h.Agent]
	if !ok {
		return core.ToolResult{}, fmt.Errorf("%w: agent %q not in roster", core.ErrDispatchFailure, h.Agent)
	}

	if err := rc.Notify(core.Notice{
		Kind:     core.NoticeHandoff,
		CallID:   call.ID,
		ToolName: call.Name,
		Target:   h.Agent,
		Input:    string(call.Arguments),
	}); err != nil {
		return core.ToolResult{}, err
	}

	msg, err := a.Run(rc, h.Task)

	res := core.ToolResult{
		ToolCallID: call.ID,
		Name:       call.Name,
		Output:     msg.Content,
		Status:     core.ToolStatusOK,
	}
	if err != nil {
		if !agent.IsDegraded(err) {
			return core.ToolResult{}, err
		}
		rc.LogWarn("supervisor.agent.degraded", "agent", h.Agent, "error", err.Error())
		res.Status = core.ToolStatusError
		res.Output = degradedOutput(msg.Content, err)
	}

	if err := rc.Notify(core.Notice{
		Kind:     core.NoticeHandoffReturn,
		Author:   h.Agent,
		CallID:   call.ID,
		ToolName: tool.TransferBackToolName,
		Target:   h.Agent,
		Output:   res.Output,
		Status:   res.Status,
	}); err != nil {
		return core.ToolResult{}, err
	}

	return res, nil
}

func degradedOutput(partial string, err error) string {
	out := "Error [STEP_BUDGET_EXCEEDED]: " + err.Error()
	if strings.TrimSpace(partial) != "" {
		out += "\nPartial result:\n" + partial
	}
	return out
}

// recall searches the run's namespace with the latest user turn and renders
// the hits as a system note.
func (s *Supervisor) recall(rc *core.RunContext, messages []core.Message) (string, error) {
	query := core.LastUserContent(messages)
	if strings.TrimSpace(query) == "" {
		return "", nil
	}

	recs, err := s.opts.Memory.Search(rc.Context, rc.Namespace, query, s.opts.RecallTopK)
	if err != nil {
		return "", err
	}
	rc.LogInfo("supervisor.recall", "namespace", rc.Namespace.String(), "records", len(recs))
	if len(recs) == 0 {
		return "", nil
	}

	var b strings.Builder
	b.WriteString("Facts recalled from memory:\n")
	for _, r := range recs {
		fmt.Fprintf(&b, "- %s\n", r.Content)
	}
	return b.String(), nil
}
