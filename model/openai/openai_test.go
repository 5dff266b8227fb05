package openai

import (
	"encoding/json"
	"testing"

	"github.com/hupe1980/crewmesh/core"
	"github.com/hupe1980/crewmesh/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ model.Model = (*Model)(nil)

func TestBuildMessages(t *testing.T) {
	req := model.Request{
		Instructions: "You manage agents.",
		Messages: []core.Message{
			core.NewUserMessage("what time is it?"),
			core.NewAssistantMessage("supervisor", "", core.ToolCall{ID: "c1", Name: "get_current_time"}),
			core.NewToolMessage(core.ToolResult{ToolCallID: "c1", Name: "get_current_time", Output: `{"current_time":"2025-05-19T12:34:56Z"}`, Status: core.ToolStatusOK}),
			core.NewAssistantMessage("supervisor", "It is 12:34."),
		},
	}

	msgs := buildMessages(req)
	require.Len(t, msgs, 5)
	assert.NotNil(t, msgs[0].OfSystem)
	assert.NotNil(t, msgs[1].OfUser)
	require.NotNil(t, msgs[2].OfAssistant)
	require.Len(t, msgs[2].OfAssistant.ToolCalls, 1)
	assert.Equal(t, "{}", msgs[2].OfAssistant.ToolCalls[0].Function.Arguments)
	require.NotNil(t, msgs[3].OfTool)
	assert.Equal(t, "c1", msgs[3].OfTool.ToolCallID)
	assert.NotNil(t, msgs[4].OfAssistant)
}

func TestFlattenToolCallsOrdersByIndex(t *testing.T) {
	calls := flattenToolCalls(map[int64]*aggCall{
		1: {id: "b", name: "second", args: `{"x":1}`},
		0: {id: "a", name: "first"},
	})
	require.Len(t, calls, 2)
	assert.Equal(t, "first", calls[0].Name)
	assert.Equal(t, json.RawMessage("{}"), calls[0].Arguments)
	assert.Equal(t, "second", calls[1].Name)
	assert.Nil(t, flattenToolCalls(nil))
}

func TestBuildParamsDisablesParallelToolCalls(t *testing.T) {
	m := NewModel(func(o *Options) { o.APIKey = "test" })
	params := m.buildParams(model.Request{Tools: []model.ToolDefinition{
		model.NewToolDefinition("transfer_to_web_searcher", "hand off", map[string]any{"type": "object"}),
	}}, nil)

	require.Len(t, params.Tools, 1)
	assert.Equal(t, "transfer_to_web_searcher", params.Tools[0].Function.Name)
	assert.True(t, params.ParallelToolCalls.Valid())
	assert.Equal(t, "openai", m.Info().Provider)
}
