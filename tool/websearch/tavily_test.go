package websearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/crewmesh/core"
	"github.com/hupe1980/crewmesh/tool"
)

func newServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Search(t *testing.T) {
	var got searchRequest
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Bearer tvly-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"query":"go generics","results":[
			{"title":"a","url":"https://a","content":"A","score":0.9},
			{"title":"b","url":"https://b","content":"B","score":0.8},
			{"title":"c","url":"https://c","content":"C","score":0.7}
		]}`))
	})

	c := NewClient(func(o *Options) {
		o.BaseURL = srv.URL
		o.APIKey = "tvly-test"
		o.MaxResults = 2
		o.RequestsPerSecond = 0
	})

	resp, err := c.Search(context.Background(), "go generics")
	require.NoError(t, err)
	assert.Equal(t, "go generics", got.Query)
	assert.Equal(t, 2, got.MaxResults)
	assert.Equal(t, "general", got.Topic)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "https://a", resp.Results[0].URL)
}

func TestClient_SearchError(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":{"error":"invalid key"}}`))
	})

	c := NewClient(func(o *Options) {
		o.BaseURL = srv.URL
		o.RetryCount = 0
	})

	_, err := c.Search(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestTool(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"query":"q","results":[{"title":"t","url":"https://t","content":"c","score":1}]}`))
	})
	searchTool := NewTool(NewClient(func(o *Options) { o.BaseURL = srv.URL }))
	assert.Equal(t, ToolName, searchTool.Name())

	rc := core.NewRunContext(context.Background(), "run", nil)
	tc := core.NewToolContext(rc.WithAgent("web_searcher"), "call-1")

	res, err := searchTool.Call(tc, map[string]any{"query": "q"})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"title":"t","url":"https://t","content":"c","score":1}]`, tool.FormatOutput(res))

	_, err = searchTool.Call(tc, map[string]any{})
	var toolErr *tool.ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, tool.CodeValidation, toolErr.Code)
}

func TestClient_RespectsCancellation(t *testing.T) {
	c := NewClient(func(o *Options) { o.BaseURL = "http://127.0.0.1:1" })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Search(ctx, "q")
	assert.Error(t, err)
}
