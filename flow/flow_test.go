package flow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/crewmesh/core"
	"github.com/hupe1980/crewmesh/internal/testutil"
	"github.com/hupe1980/crewmesh/metrics"
	"github.com/hupe1980/crewmesh/model"
	"github.com/hupe1980/crewmesh/tool"
)

func newRegistry(t *testing.T) *tool.Registry {
	t.Helper()
	params := map[string]any{"type": "object", "properties": map[string]any{}}
	r, err := tool.NewRegistry(
		tool.NewFunctionTool("ok", "succeeds", params, func(_ *core.ToolContext, _ map[string]any) (any, error) {
			return map[string]string{"status": "fine"}, nil
		}),
		tool.NewFunctionTool("fail", "fails", params, func(_ *core.ToolContext, _ map[string]any) (any, error) {
			return nil, errors.New("boom")
		}),
		tool.NewFunctionTool("panic", "panics", params, func(_ *core.ToolContext, _ map[string]any) (any, error) {
			panic("kaboom")
		}),
	)
	require.NoError(t, err)
	return r
}

func TestToolExecutor_PairsEveryCall(t *testing.T) {
	exec := NewToolExecutor(func(o *ToolExecutorOptions) { o.Metrics = metrics.NewCollector() })
	calls := []core.ToolCall{
		testutil.Call("c1", "ok", nil),
		testutil.Call("c2", "fail", nil),
		testutil.Call("c3", "panic", nil),
		testutil.Call("c4", "missing", nil),
		{ID: "c5", Name: "ok", Arguments: []byte(`{not json`)},
	}

	rec := testutil.NewNoticeRecorder()
	results, err := exec.ExecuteAll(rec.RunContext(context.Background()).WithAgent("web_searcher"), newRegistry(t), calls)
	notices := rec.Close()
	require.NoError(t, err)

	require.Len(t, results, len(calls))
	for i, res := range results {
		assert.Equal(t, calls[i].ID, res.ToolCallID)
		assert.Equal(t, calls[i].Name, res.Name)
	}
	assert.True(t, results[0].OK())
	assert.JSONEq(t, `{"status":"fine"}`, results[0].Output)
	assert.Equal(t, "Error [EXECUTION_ERROR]: boom", results[1].Output)
	assert.Contains(t, results[2].Output, "PANIC")
	assert.Contains(t, results[3].Output, "NOT_FOUND")
	assert.Contains(t, results[4].Output, "VALIDATION_ERROR")

	// strictly alternating started / finished, one outstanding at most
	require.Len(t, notices, 2*len(calls))
	for i := 0; i < len(notices); i += 2 {
		assert.Equal(t, core.NoticeToolStarted, notices[i].Kind)
		assert.Equal(t, core.NoticeToolFinished, notices[i+1].Kind)
		assert.Equal(t, notices[i].CallID, notices[i+1].CallID)
		assert.Equal(t, "web_searcher", notices[i].Author)
	}
	assert.Equal(t, "{}", notices[0].Input)
}

func TestToolExecutor_CancelledDiscardsResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	params := map[string]any{"type": "object", "properties": map[string]any{}}
	reg, err := tool.NewRegistry(tool.NewFunctionTool("slow", "cancels the run", params,
		func(_ *core.ToolContext, _ map[string]any) (any, error) {
			cancel()
			return "late", nil
		}))
	require.NoError(t, err)

	rec := testutil.NewNoticeRecorder()
	_, err = NewToolExecutor().Execute(rec.RunContext(ctx), reg, testutil.Call("c1", "slow", nil))
	notices := rec.Close()

	require.ErrorIs(t, err, core.ErrStreamDisconnected)
	require.Len(t, notices, 1)
	assert.Equal(t, core.NoticeToolStarted, notices[0].Kind)
}

func TestGenerate_StreamsChunks(t *testing.T) {
	llm := model.NewScriptedModel(testutil.Text("The answer is 42."))

	rec := testutil.NewNoticeRecorder()
	resp, err := Generate(rec.RunContext(context.Background()).WithAgent("supervisor"), llm, model.Request{}, true)
	notices := rec.Close()
	require.NoError(t, err)

	var b strings.Builder
	for _, n := range notices {
		assert.Equal(t, core.NoticeTextChunk, n.Kind)
		assert.Equal(t, "supervisor", n.Author)
		b.WriteString(n.Text)
	}
	assert.Greater(t, len(notices), 1)
	assert.Equal(t, resp.Text, b.String())
	assert.True(t, llm.Requests()[0].Stream)
}

// bufferedModel ignores the stream flag and only returns a final response.
type bufferedModel struct{ text string }

func (m bufferedModel) Generate(_ context.Context, _ model.Request) (<-chan model.Response, <-chan error) {
	respCh := make(chan model.Response, 1)
	errCh := make(chan error)
	respCh <- model.Response{Text: m.text, FinishReason: "stop"}
	close(respCh)
	close(errCh)
	return respCh, errCh
}

func (m bufferedModel) Info() model.Info { return model.Info{Name: "buffered"} }

func TestGenerate_NonStreamingProviderEmitsOneChunk(t *testing.T) {
	rec := testutil.NewNoticeRecorder()
	resp, err := Generate(rec.RunContext(context.Background()), bufferedModel{text: "whole answer"}, model.Request{}, true)
	notices := rec.Close()
	require.NoError(t, err)

	require.Len(t, notices, 1)
	assert.Equal(t, "whole answer", notices[0].Text)
	assert.Equal(t, "whole answer", resp.Text)
}

func TestGenerate_Silent(t *testing.T) {
	rec := testutil.NewNoticeRecorder()
	resp, err := Generate(rec.RunContext(context.Background()), model.NewScriptedModel(testutil.Text("quiet")), model.Request{}, false)
	notices := rec.Close()
	require.NoError(t, err)
	assert.Equal(t, "quiet", resp.Text)
	assert.Empty(t, notices)
}
