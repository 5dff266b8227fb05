package tool

import (
	"fmt"
	"strings"

	"github.com/hupe1980/crewmesh/core"
	"github.com/hupe1980/crewmesh/internal/util"
)

const (
	handoffPrefix = "transfer_to_"

	// TransferBackToolName labels the return of control from an agent.
	TransferBackToolName = "transfer_back_to_supervisor"
)

// HandoffToolName returns the handoff tool name for an agent.
func HandoffToolName(agent string) string { return handoffPrefix + agent }

// Handoff is the validated request produced by a handoff tool.
type Handoff struct {
	Agent string `json:"agent"`
	Task  string `json:"task"`
}

type handoffArgs struct {
	Task string `json:"task" description:"Self-contained description of what the agent should do"`
}

// HandoffTool requests transfer of a sub-task to one agent. The supervisor
// recognises it and runs the agent instead of treating the result as output.
type HandoffTool struct {
	agent       string
	description string
}

// NewHandoffTool constructs the handoff tool for agent.
func NewHandoffTool(agent, agentDescription string) *HandoffTool {
	return &HandoffTool{agent: agent, description: agentDescription}
}

// Agent returns the target agent name.
func (t *HandoffTool) Agent() string { return t.agent }

func (t *HandoffTool) Name() string { return HandoffToolName(t.agent) }

func (t *HandoffTool) Description() string {
	desc := fmt.Sprintf("Transfer a sub-task to the %s agent.", t.agent)
	if t.description != "" {
		desc += " " + t.description
	}
	return desc
}

func (t *HandoffTool) Parameters() map[string]any { return util.CreateSchema(handoffArgs{}) }

// Call validates the arguments and returns a Handoff.
func (t *HandoffTool) Call(_ *core.ToolContext, args map[string]any) (any, error) {
	h, err := t.Parse(args)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// Parse extracts the task argument.
func (t *HandoffTool) Parse(args map[string]any) (Handoff, error) {
	raw, ok := args["task"]
	if !ok {
		return Handoff{}, NewToolError(t.Name(), "missing required field 'task'", CodeValidation)
	}
	task, ok := raw.(string)
	if !ok || strings.TrimSpace(task) == "" {
		return Handoff{}, NewToolError(t.Name(), "field 'task' must be a non-empty string", CodeValidation)
	}
	return Handoff{Agent: t.agent, Task: task}, nil
}
