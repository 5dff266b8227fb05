package agent

import (
	"fmt"
	"strings"
)

// SupervisorName is the author name of supervisor messages.
const SupervisorName = "supervisor"

// Names of the default roster members.
const (
	SearchPlannerName = "search_planner"
	WebSearcherName   = "web_searcher"
	ReportWriterName  = "report_writer"
)

// Roster is the fixed, validated set of agents a supervisor can dispatch to.
// It is read-only after construction.
type Roster struct {
	defs   []Definition
	byName map[string]int
}

// NewRoster validates defs and rejects duplicate names.
func NewRoster(defs ...Definition) (*Roster, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("roster is empty")
	}
	r := &Roster{byName: make(map[string]int, len(defs))}
	for _, d := range defs {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.byName[d.Name]; dup {
			return nil, fmt.Errorf("duplicate agent %q", d.Name)
		}
		r.byName[d.Name] = len(r.defs)
		r.defs = append(r.defs, d.clone())
	}
	return r, nil
}

const dateLine = "Today's date is {{.date}}. "

// DefaultDefinitions returns the research roster: a planner, a web searcher
// bound to searchTool and a report writer. Their instructions carry the
// run's date.
func DefaultDefinitions(searchTool string) []Definition {
	return []Definition{
		{
			Name:        SearchPlannerName,
			Description: "Plans how to gather information with web search in order to write a report on a given theme.",
			Instructions: NewInstructionFromTemplate(dateLine+
				"Your task is to plan how to collect information with web search in order to write a report on the given theme. "+
				"Think step by step about searches that cover the theme from several perspectives.", nil),
		},
		{
			Name:        WebSearcherName,
			Description: "Searches the web for the information described in a query.",
			Instructions: NewInstructionFromTemplate(dateLine+
				"Your task is to collect the information given as a query by using web search. Report what you found with sources.", nil),
			Tools: []string{searchTool},
		},
		{
			Name:        ReportWriterName,
			Description: "Summarises the information gathered so far into a report.",
			Instructions: NewInstructionFromTemplate(dateLine+
				"You compile the information you are given into a report. "+
				"The report must contain an abstract, prior context, current information and future developments.", nil),
		},
	}
}

// Get returns the definition registered under name.
func (r *Roster) Get(name string) (Definition, bool) {
	i, ok := r.byName[name]
	if !ok {
		return Definition{}, false
	}
	return r.defs[i].clone(), true
}

// Names returns agent names in roster order.
func (r *Roster) Names() []string {
	names := make([]string, len(r.defs))
	for i, d := range r.defs {
		names[i] = d.Name
	}
	return names
}

// Definitions returns copies of every definition in roster order.
func (r *Roster) Definitions() []Definition {
	out := make([]Definition, len(r.defs))
	for i, d := range r.defs {
		out[i] = d.clone()
	}
	return out
}

// Describe renders the numbered roster used in supervisor instructions.
func (r *Roster) Describe() string {
	var b strings.Builder
	for i, d := range r.defs {
		fmt.Fprintf(&b, "%d. %s: %s\n", i+1, d.Name, d.Description)
	}
	return b.String()
}
