package model

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/hupe1980/crewmesh/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ Model = (*ScriptedModel)(nil)

func TestScriptedModel_StreamsThenFinal(t *testing.T) {
	m := NewScriptedModel(Turn{Text: "It is Monday today"})

	var chunks []string
	respCh, errCh := m.Generate(context.Background(), Request{Stream: true, Messages: []core.Message{core.NewUserMessage("day?")}})
	resp, err := Collect(context.Background(), respCh, errCh, func(s string) error {
		chunks = append(chunks, s)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, "It is Monday today", resp.Text)
	assert.Equal(t, resp.Text, strings.Join(chunks, ""))
	assert.Len(t, chunks, 4)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, 1, m.Calls())
}

func TestScriptedModel_ToolCallsGetIDs(t *testing.T) {
	m := NewScriptedModel(Turn{ToolCalls: []core.ToolCall{{Name: "get_current_time", Arguments: json.RawMessage(`{}`)}}})

	respCh, errCh := m.Generate(context.Background(), Request{})
	resp, err := Collect(context.Background(), respCh, errCh, nil)
	require.NoError(t, err)

	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "call_1", resp.ToolCalls[0].ID)
	assert.Equal(t, "tool_calls", resp.FinishReason)
}

func TestScriptedModel_ExhaustedAndResponder(t *testing.T) {
	m := NewScriptedModel()
	respCh, errCh := m.Generate(context.Background(), Request{})
	_, err := Collect(context.Background(), respCh, errCh, nil)
	require.Error(t, err)

	m.WithResponder(func(req Request) Turn { return Turn{Text: "fallback"} })
	respCh, errCh = m.Generate(context.Background(), Request{})
	resp, err := Collect(context.Background(), respCh, errCh, nil)
	require.NoError(t, err)
	assert.Equal(t, "fallback", resp.Text)
	assert.Len(t, m.Requests(), 2)
}

func TestCollect_PropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	m := NewScriptedModel(Turn{Err: boom})
	respCh, errCh := m.Generate(context.Background(), Request{})
	_, err := Collect(context.Background(), respCh, errCh, nil)
	assert.ErrorIs(t, err, boom)
}

func TestCollect_ChunkCallbackError(t *testing.T) {
	m := NewScriptedModel(Turn{Text: "a b c"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := errors.New("consumer gone")
	respCh, errCh := m.Generate(ctx, Request{Stream: true})
	_, err := Collect(ctx, respCh, errCh, func(string) error { return stop })
	assert.ErrorIs(t, err, stop)
}

func TestNewToolDefinition(t *testing.T) {
	def := NewToolDefinition("search_memory", "Search memories", map[string]any{"type": "object"})
	assert.Equal(t, "function", def.Type)
	assert.Equal(t, "search_memory", def.Function.Name)
}
