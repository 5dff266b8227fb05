package testutil

import (
	"encoding/json"
	"fmt"

	"github.com/hupe1980/crewmesh/core"
	"github.com/hupe1980/crewmesh/model"
)

// Call builds a tool call with JSON encoded args. id may be empty; the
// scripted model assigns one.
func Call(id, name string, args map[string]any) core.ToolCall {
	if args == nil {
		args = map[string]any{}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		panic(fmt.Sprintf("testutil: marshal args: %v", err))
	}
	return core.ToolCall{ID: id, Name: name, Arguments: raw}
}

// Handoff builds a transfer_to_<agent> call.
func Handoff(id, agent, task string) core.ToolCall {
	return Call(id, "transfer_to_"+agent, map[string]any{"task": task})
}

// Text is a scripted turn answering with text only.
func Text(text string) model.Turn { return model.Turn{Text: text} }

// Calls is a scripted turn issuing tool calls.
func Calls(calls ...core.ToolCall) model.Turn { return model.Turn{ToolCalls: calls} }
