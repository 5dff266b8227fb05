package supervisor

import (
	"strings"

	"github.com/hupe1980/crewmesh/agent"
	"github.com/hupe1980/crewmesh/core"
)

// DefaultInstructions is the supervisor prompt template. It is rendered with
// the roster description, the local tool names and the memory flag.
const DefaultInstructions = `You are a supervisor managing the following agents:
{{.roster}}
Hand a sub-task to exactly one agent at a time with its transfer_to_<agent> tool and wait for the result before deciding the next step.
Never call agents in parallel and never issue more than one tool call per reply.
Do not perform any of the work yourself; agents do the work.
{{- if .tools}}
You may call these tools directly: {{.tools}}.
{{- end}}
{{- if .memory}}
Store facts about the user that are worth remembering with manage_memory and look up earlier facts with search_memory.
{{- end}}
When the request is fully handled, reply to the user with the final answer and no tool calls.`

const correctiveNote = "Your previous reply could not be dispatched. Reply with exactly one tool call naming one of the available tools, or with the final answer as plain text and no tool calls."

func instructionData(roster *agent.Roster, localTools []string, memoryOn bool) func(*core.RunContext) map[string]any {
	return func(*core.RunContext) map[string]any {
		return map[string]any{
			"roster": roster.Describe(),
			"tools":  strings.Join(localTools, ", "),
			"memory": memoryOn,
		}
	}
}
