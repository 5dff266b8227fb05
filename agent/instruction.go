package agent

import (
	"strings"
	"time"

	"github.com/hupe1980/crewmesh/core"
	"github.com/hupe1980/crewmesh/internal/util"
)

// Instruction is the system prompt of an agent. It is resolved once per run,
// so templates and functions can draw on the run (namespace, clock, agent).
type Instruction struct {
	text string
	data func(*core.RunContext) map[string]any
	fn   func(*core.RunContext) (string, error)
}

// NewInstructionFromText returns an instruction used verbatim.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromTemplate returns a text/template instruction. data
// supplies the template values; nil means RunData.
func NewInstructionFromTemplate(text string, data func(*core.RunContext) map[string]any) Instruction {
	if data == nil {
		data = RunData
	}
	return Instruction{text: text, data: data}
}

// NewInstructionFromFunc returns an instruction computed by f.
func NewInstructionFromFunc(f func(*core.RunContext) (string, error)) Instruction {
	return Instruction{fn: f}
}

// IsZero reports whether the instruction yields no text.
func (i Instruction) IsZero() bool {
	return i.fn == nil && strings.TrimSpace(i.text) == ""
}

// Resolve renders the instruction for rc.
func (i Instruction) Resolve(rc *core.RunContext) (string, error) {
	switch {
	case i.fn != nil:
		return i.fn(rc)
	case i.data != nil:
		return util.RenderTemplate(i.text, i.data(rc))
	default:
		return i.text, nil
	}
}

// RunData exposes the run to instruction templates as .agent, .run_id,
// .namespace, .date (YYYY-MM-DD) and .time (RFC3339).
func RunData(rc *core.RunContext) map[string]any {
	now := rc.Now()
	return map[string]any{
		"agent":     rc.Agent,
		"run_id":    rc.RunID,
		"namespace": rc.Namespace.Key(),
		"date":      now.Format(time.DateOnly),
		"time":      now.Format(time.RFC3339),
	}
}
