package anthropic

import (
	"testing"

	"github.com/hupe1980/crewmesh/core"
	"github.com/hupe1980/crewmesh/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ model.Model = (*Model)(nil)

func TestBuildMessagesGroupsToolResults(t *testing.T) {
	history := []core.Message{
		core.NewSystemMessage("recalled facts"),
		core.NewUserMessage("plan a report"),
		core.NewAssistantMessage("supervisor", "", core.ToolCall{ID: "c1", Name: "transfer_to_search_planner", Arguments: []byte(`{"task":"plan"}`)}),
		core.NewToolMessage(core.ToolResult{ToolCallID: "c1", Name: "transfer_to_search_planner", Output: "1. search", Status: core.ToolStatusOK}),
		core.NewAssistantMessage("supervisor", "done"),
	}

	msgs := buildMessages(history)
	require.Len(t, msgs, 4)
	assert.Equal(t, "user", string(msgs[0].Role))
	assert.Equal(t, "assistant", string(msgs[1].Role))
	assert.Equal(t, "user", string(msgs[2].Role))
	assert.Equal(t, "assistant", string(msgs[3].Role))

	system := systemBlocks(model.Request{Instructions: "manage", Messages: history})
	require.Len(t, system, 2)
	assert.Equal(t, "manage", system[0].Text)
}

func TestRequiredFields(t *testing.T) {
	assert.Equal(t, []string{"a"}, requiredFields([]string{"a"}))
	assert.Equal(t, []string{"a", "b"}, requiredFields([]any{"a", 1, "b"}))
	assert.Nil(t, requiredFields(nil))
}

func TestBuildTools(t *testing.T) {
	tools := buildTools([]model.ToolDefinition{model.NewToolDefinition("search_memory", "Search", map[string]any{
		"type":       "object",
		"properties": map[string]any{"query": map[string]any{"type": "string"}},
		"required":   []string{"query"},
	})})
	require.Len(t, tools, 1)
	require.NotNil(t, tools[0].OfTool)
	assert.Equal(t, "search_memory", tools[0].OfTool.Name)
	assert.Equal(t, []string{"query"}, tools[0].OfTool.InputSchema.Required)
}
