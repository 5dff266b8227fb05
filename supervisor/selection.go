package supervisor

import (
	"fmt"
	"strings"

	"github.com/hupe1980/crewmesh/core"
	"github.com/hupe1980/crewmesh/model"
	"github.com/hupe1980/crewmesh/tool"
)

// selection is the outcome of one SELECTING step.
type selection struct {
	final   bool
	call    core.ToolCall
	handoff *tool.Handoff
}

func (s selection) kind() string {
	if s.handoff != nil {
		return "agent"
	}
	return "tool"
}

func (s selection) target() string {
	if s.handoff != nil {
		return s.handoff.Agent
	}
	return s.call.Name
}

// selectTarget classifies a supervisor reply. Exactly one call to a known tool
// dispatches, text without calls finalizes, everything else is ambiguous.
func selectTarget(resp model.Response, tools *tool.Registry) (selection, error) {
	switch n := len(resp.ToolCalls); {
	case n == 0 && strings.TrimSpace(resp.Text) == "":
		return selection{}, fmt.Errorf("%w: empty reply", core.ErrSelectionAmbiguous)
	case n == 0:
		return selection{final: true}, nil
	case n > 1:
		return selection{}, fmt.Errorf("%w: %d tool calls in one reply", core.ErrSelectionAmbiguous, n)
	}

	call := resp.ToolCalls[0]
	t, ok := tools.Get(call.Name)
	if !ok {
		return selection{}, fmt.Errorf("%w: unknown target %q", core.ErrSelectionAmbiguous, call.Name)
	}

	h, ok := t.(*tool.HandoffTool)
	if !ok {
		return selection{call: call}, nil
	}

	args, err := call.ArgumentMap()
	if err != nil {
		return selection{}, fmt.Errorf("%w: %s arguments: %v", core.ErrSelectionAmbiguous, call.Name, err)
	}
	handoff, err := h.Parse(args)
	if err != nil {
		return selection{}, fmt.Errorf("%w: %v", core.ErrSelectionAmbiguous, err)
	}
	return selection{call: call, handoff: &handoff}, nil
}
