package tool

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/crewmesh/core"
	"github.com/hupe1980/crewmesh/internal/util"
	"github.com/hupe1980/crewmesh/memory"
)

// Interface compliance (compile-time assertions)
var (
	_ Tool = (*FunctionTool)(nil)
	_ Tool = (*HandoffTool)(nil)
)

// -------------------- Schema & Validation Tests --------------------

type sampleSchema struct {
	A string `json:"a" description:"Field A"`
	B *int   `json:"b" description:"Optional pointer field"`
	C int    `json:"c,omitempty" description:"Omit empty field"`
}

func TestCreateSchema(t *testing.T) {
	schema := util.CreateSchema(sampleSchema{})
	props, ok := schema["properties"].(map[string]any)
	assert.True(t, ok)
	assert.Contains(t, props, "a")
	assert.Contains(t, props, "b")
	assert.Contains(t, props, "c")
	req, _ := schema["required"].([]string)
	assert.ElementsMatch(t, []string{"a"}, req)
}

func TestValidateParameters(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"x": map[string]any{"type": "integer"},
		},
		// Use []any to mirror possible JSON decoded schema shape
		"required": []any{"x"},
	}

	err := util.ValidateParameters(map[string]any{"x": 5}, schema)
	assert.NoError(t, err)

	err = util.ValidateParameters(map[string]any{}, schema)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "x", vErr.Field)

	err = util.ValidateParameters(map[string]any{"x": "not-int"}, schema)
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Message, "expected type integer")
}

func TestValidateParameters_StringRequiredAndEnum(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"topic": map[string]any{"type": "string", "enum": []string{"general", "news"}},
		},
		"required": []string{"topic"},
	}

	assert.NoError(t, util.ValidateParameters(map[string]any{"topic": "news"}, schema))

	var vErr *ValidationError
	require.ErrorAs(t, util.ValidateParameters(map[string]any{}, schema), &vErr)
	assert.Equal(t, "topic", vErr.Field)

	require.ErrorAs(t, util.ValidateParameters(map[string]any{"topic": "sports"}, schema), &vErr)
	assert.Contains(t, vErr.Message, "one of")
}

// -------------------- FunctionTool Tests --------------------

func newToolContext(callID string) *core.ToolContext {
	rc := core.NewRunContext(context.Background(), "run-1", nil, func(o *core.RunOptions) {
		o.Namespace = core.NewNamespace("memories", "user_name")
	})
	return core.NewToolContext(rc.WithAgent("supervisor"), callID)
}

func TestFunctionTool_Success(t *testing.T) {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
			"b": map[string]any{"type": "number"},
		},
		"required": []string{"a", "b"},
	}

	sumTool := NewFunctionTool("sum", "Add numbers", params, func(_ *core.ToolContext, args map[string]any) (any, error) {
		a := args["a"].(float64)
		b := args["b"].(float64)
		return a + b, nil
	})

	result, err := sumTool.Call(newToolContext("fc1"), map[string]any{"a": 2.0, "b": 3.0})
	assert.NoError(t, err)
	assert.Equal(t, 5.0, result)
}

func TestFunctionTool_ValidationError(t *testing.T) {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
		},
		"required": []string{"a"},
	}
	tTool := NewFunctionTool("test", "Test", params, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return 0, nil
	})
	_, err := tTool.Call(newToolContext("fc2"), map[string]any{})

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeValidation, toolErr.Code)
	assert.ErrorIs(t, err, core.ErrToolExecution)
}

func TestFunctionTool_ExecutionError(t *testing.T) {
	params := map[string]any{"type": "object", "properties": map[string]any{}}
	execTool := NewFunctionTool("fail", "Fails", params, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return nil, errors.New("boom")
	})
	_, err := execTool.Call(newToolContext("fc3"), map[string]any{})

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeExecution, toolErr.Code)
	assert.Equal(t, "boom", toolErr.Message)
}

func TestFunctionTool_ForwardsToolError(t *testing.T) {
	params := map[string]any{"type": "object", "properties": map[string]any{}}
	execTool := NewFunctionTool("lookup", "Looks up", params, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return nil, NewToolError("lookup", "no such key", CodeNotFound)
	})
	_, err := execTool.Call(newToolContext("fc4"), map[string]any{})

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeNotFound, toolErr.Code)
}

// -------------------- Registry Tests --------------------

func TestRegistry(t *testing.T) {
	clock := NewCurrentTimeTool(nil)
	handoff := NewHandoffTool("web_searcher", "Searches the web.")

	r, err := NewRegistry(clock, handoff)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []string{CurrentTimeToolName, "transfer_to_web_searcher"}, r.Names())

	assert.Error(t, r.Register(NewCurrentTimeTool(nil)))

	sub, err := r.Subset(CurrentTimeToolName)
	require.NoError(t, err)
	_, ok := sub.Get("transfer_to_web_searcher")
	assert.False(t, ok)

	_, err = r.Subset("tavily_search", "nope")
	assert.ErrorContains(t, err, "nope")

	defs := r.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "function", defs[0].Type)
	assert.Equal(t, CurrentTimeToolName, defs[0].Function.Name)

	ext, err := sub.With(handoff)
	require.NoError(t, err)
	assert.Equal(t, 2, ext.Len())
	assert.Equal(t, 1, sub.Len())
}

func TestRegistry_NilIsEmpty(t *testing.T) {
	var r *Registry
	assert.Equal(t, 0, r.Len())
	_, ok := r.Get("x")
	assert.False(t, ok)
	assert.Empty(t, r.Definitions())
}

// -------------------- Builtin Tools --------------------

func TestCurrentTimeTool(t *testing.T) {
	fixed := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	clock := NewCurrentTimeTool(func() time.Time { return fixed })

	res, err := clock.Call(newToolContext("c1"), map[string]any{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"current_time":"2025-03-14T09:26:53Z"}`, FormatOutput(res))
}

func TestMemoryTools(t *testing.T) {
	store := memory.NewVolatileStore()
	manage := NewManageMemoryTool(store)
	search := NewSearchMemoryTool(store)
	tc := newToolContext("m1")

	out, err := manage.Call(tc, map[string]any{"content": "My name is Tanaka"})
	require.NoError(t, err)
	assert.Contains(t, out, "created memory")

	recs, err := store.Exact(context.Background(), core.NewNamespace("memories", "user_name"))
	require.NoError(t, err)
	require.Len(t, recs, 1)

	res, err := search.Call(tc, map[string]any{"query": "name", "limit": 3.0})
	require.NoError(t, err)

	var hits []map[string]any
	require.NoError(t, json.Unmarshal([]byte(FormatOutput(res)), &hits))
	require.Len(t, hits, 1)
	assert.Equal(t, "My name is Tanaka", hits[0]["content"])

	_, err = manage.Call(tc, map[string]any{"content": "  "})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeValidation, toolErr.Code)
}

func TestMemoryTools_NamespaceOverride(t *testing.T) {
	store := memory.NewVolatileStore()
	override := core.NewNamespace("memories", "other")
	manage := NewManageMemoryTool(store, func(o *MemoryToolOptions) { o.Namespace = override })

	_, err := manage.Call(newToolContext("m2"), map[string]any{"content": "fact"})
	require.NoError(t, err)

	recs, err := store.Exact(context.Background(), override)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestMemoryTools_StoreUnavailable(t *testing.T) {
	store := memory.NewVolatileStore()
	require.NoError(t, store.Close())

	_, err := NewSearchMemoryTool(store).Call(newToolContext("m3"), map[string]any{"query": "x"})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeExecution, toolErr.Code)
}

func TestHandoffTool(t *testing.T) {
	h := NewHandoffTool("report_writer", "Writes reports.")
	assert.Equal(t, "transfer_to_report_writer", h.Name())
	assert.Contains(t, h.Description(), "report_writer")

	res, err := h.Call(newToolContext("h1"), map[string]any{"task": "write it"})
	require.NoError(t, err)
	assert.Equal(t, Handoff{Agent: "report_writer", Task: "write it"}, res)

	_, err = h.Parse(map[string]any{"task": ""})
	assert.ErrorIs(t, err, core.ErrToolExecution)
	_, err = h.Parse(map[string]any{})
	assert.Error(t, err)
}

// -------------------- ToolError Formatting --------------------

func TestToolErrorFormatting(t *testing.T) {
	err := NewToolError("demo", "something failed", "E123")
	assert.Contains(t, err.Error(), "E123")
	assert.Contains(t, err.Error(), "demo")
}

func TestFormatOutput(t *testing.T) {
	assert.Equal(t, "", FormatOutput(nil))
	assert.Equal(t, "plain", FormatOutput("plain"))
	assert.Equal(t, `{"a":1}`, FormatOutput(map[string]int{"a": 1}))
}

type lookupArgs struct {
	City  string `json:"city" description:"City name"`
	Limit int    `json:"limit,omitempty"`
}

func TestTypedFunctionTool(t *testing.T) {
	var got lookupArgs
	lookup := NewTypedFunctionTool("lookup", "Look up a city", func(_ *core.ToolContext, args lookupArgs) (any, error) {
		got = args
		return "ok", nil
	})

	props := lookup.Parameters()["properties"].(map[string]any)
	assert.Contains(t, props, "city")
	assert.Equal(t, "integer", props["limit"].(map[string]any)["type"])
	assert.Equal(t, []string{"city"}, lookup.Parameters()["required"])

	_, err := lookup.Call(newToolContext("t1"), map[string]any{"city": "Berlin", "limit": 2.0})
	require.NoError(t, err)
	assert.Equal(t, lookupArgs{City: "Berlin", Limit: 2}, got)

	_, err = lookup.Call(newToolContext("t2"), map[string]any{"limit": 2.0})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeValidation, toolErr.Code)
}

func TestBuiltinToolSchemasFromStructs(t *testing.T) {
	store := memory.NewVolatileStore()

	assert.Equal(t, []string{"content"}, NewManageMemoryTool(store).Parameters()["required"])
	assert.Equal(t, []string{"query"}, NewSearchMemoryTool(store).Parameters()["required"])

	handoff := NewHandoffTool("web_searcher", "").Parameters()
	assert.Equal(t, []string{"task"}, handoff["required"])
	task := handoff["properties"].(map[string]any)["task"].(map[string]any)
	assert.Equal(t, "string", task["type"])
}
