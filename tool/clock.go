package tool

import (
	"time"

	"github.com/hupe1980/crewmesh/core"
)

// CurrentTimeToolName is the name of the time lookup tool.
const CurrentTimeToolName = "get_current_time"

// NewCurrentTimeTool returns a tool reporting the current time as
// {"current_time": RFC3339}. now defaults to time.Now.
func NewCurrentTimeTool(now func() time.Time) *FunctionTool {
	if now == nil {
		now = time.Now
	}
	return NewFunctionTool(
		CurrentTimeToolName,
		"Get the current date and time. Use this whenever the answer depends on today's date or the current time.",
		map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		func(_ *core.ToolContext, _ map[string]any) (any, error) {
			return map[string]string{"current_time": now().Format(time.RFC3339)}, nil
		},
	)
}
