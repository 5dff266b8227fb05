// Package websearch provides the tavily_search tool used by the web_searcher
// agent.
package websearch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/hupe1980/crewmesh/core"
	"github.com/hupe1980/crewmesh/tool"
)

// ToolName is the registered name of the search tool.
const ToolName = "tavily_search"

// Options configure the Tavily client.
type Options struct {
	APIKey      string
	BaseURL     string
	MaxResults  int
	Topic       string // general | news
	SearchDepth string // basic | advanced
	Timeout     time.Duration
	RetryCount  int
	// RequestsPerSecond throttles outgoing searches (0 disables throttling).
	RequestsPerSecond float64
	Burst             int
}

// Result is one search hit.
type Result struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Response is the decoded Tavily search response.
type Response struct {
	Query   string   `json:"query"`
	Answer  string   `json:"answer,omitempty"`
	Results []Result `json:"results"`
}

type searchRequest struct {
	Query       string `json:"query"`
	MaxResults  int    `json:"max_results"`
	Topic       string `json:"topic"`
	SearchDepth string `json:"search_depth"`
}

type apiError struct {
	Detail any `json:"detail"`
}

// Client calls the Tavily search API.
type Client struct {
	http    *resty.Client
	opts    Options
	limiter *rate.Limiter
}

// NewClient creates a client with max 5 results and the general topic.
func NewClient(optFns ...func(o *Options)) *Client {
	opts := Options{
		BaseURL:           "https://api.tavily.com",
		MaxResults:        5,
		Topic:             "general",
		SearchDepth:       "basic",
		Timeout:           30 * time.Second,
		RetryCount:        2,
		RequestsPerSecond: 2,
		Burst:             1,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(3 * time.Second).
		SetHeader("Content-Type", "application/json")
	if opts.APIKey != "" {
		client.SetAuthToken(opts.APIKey)
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	return &Client{http: client, opts: opts, limiter: limiter}
}

// Search runs one query.
func (c *Client) Search(ctx context.Context, query string) (*Response, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query is empty")
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	var (
		result Response
		apiErr apiError
	)
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(searchRequest{
			Query:       query,
			MaxResults:  c.opts.MaxResults,
			Topic:       c.opts.Topic,
			SearchDepth: c.opts.SearchDepth,
		}).
		SetResult(&result).
		SetError(&apiErr).
		Post("/search")
	if err != nil {
		return nil, fmt.Errorf("tavily search: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("tavily search: status %d: %v", resp.StatusCode(), apiErr.Detail)
	}
	if len(result.Results) > c.opts.MaxResults {
		result.Results = result.Results[:c.opts.MaxResults]
	}
	return &result, nil
}

type searchArgs struct {
	Query string `json:"query" description:"The search query"`
}

// NewTool exposes the client as the tavily_search tool.
func NewTool(client *Client) *tool.FunctionTool {
	return tool.NewTypedFunctionTool(
		ToolName,
		"Search the web for current information. Returns titles, URLs and content snippets of the most relevant pages.",
		func(tc *core.ToolContext, args searchArgs) (any, error) {
			if strings.TrimSpace(args.Query) == "" {
				return nil, tool.NewToolError(ToolName, "query must not be empty", tool.CodeValidation)
			}
			tc.LogDebug("websearch.query", "query", args.Query)
			resp, err := client.Search(tc.Context(), args.Query)
			if err != nil {
				return nil, err
			}
			return resp.Results, nil
		},
	)
}
