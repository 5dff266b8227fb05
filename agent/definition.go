package agent

import (
	"fmt"
	"regexp"

	"github.com/hupe1980/crewmesh/tool"
)

// DefaultStepBudget bounds the model calls of one agent run.
const DefaultStepBudget = 10

var namePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Definition is the immutable description of a roster member.
type Definition struct {
	Name         string
	Description  string
	Instructions Instruction
	// Tools names shared tools from the registry the agent is built on.
	Tools []string
	// OwnTools are bound to this agent only. Their names may repeat tool
	// names of other agents.
	OwnTools   []tool.Tool
	StepBudget int
}

// Validate checks the definition.
func (d Definition) Validate() error {
	if !namePattern.MatchString(d.Name) {
		return fmt.Errorf("agent name %q must be snake_case", d.Name)
	}
	if d.Name == SupervisorName {
		return fmt.Errorf("agent name %q is reserved", d.Name)
	}
	if d.Instructions.IsZero() {
		return fmt.Errorf("agent %s has no instructions", d.Name)
	}
	if d.StepBudget < 0 {
		return fmt.Errorf("agent %s has a negative step budget", d.Name)
	}
	seen := make(map[string]struct{}, len(d.Tools)+len(d.OwnTools))
	names := append([]string(nil), d.Tools...)
	for _, t := range d.OwnTools {
		if t == nil {
			return fmt.Errorf("agent %s binds a nil tool", d.Name)
		}
		names = append(names, t.Name())
	}
	for _, t := range names {
		if _, dup := seen[t]; dup {
			return fmt.Errorf("agent %s lists tool %q twice", d.Name, t)
		}
		seen[t] = struct{}{}
	}
	return nil
}

// Budget returns the effective step budget.
func (d Definition) Budget() int {
	if d.StepBudget == 0 {
		return DefaultStepBudget
	}
	return d.StepBudget
}

func (d Definition) clone() Definition {
	d.Tools = append([]string(nil), d.Tools...)
	d.OwnTools = append([]tool.Tool(nil), d.OwnTools...)
	return d
}
