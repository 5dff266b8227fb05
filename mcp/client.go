package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/crewmesh/core"
	"github.com/hupe1980/crewmesh/logging"
	"github.com/hupe1980/crewmesh/tool"
)

// Options configure discovery.
type Options struct {
	// ClientName and ClientVersion identify this process to servers.
	ClientName    string
	ClientVersion string
	// FailFast aborts discovery when any server fails. Otherwise failing
	// servers are logged and skipped.
	FailFast bool
	// Logger receives discovery diagnostics.
	Logger logging.Logger
}

// Manager owns the sessions to every configured server and the remote tools
// discovered on them.
type Manager struct {
	opts   Options
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*mcpsdk.ClientSession
	tools    []tool.Tool
	failures map[string]error
}

// Connect opens one session per configured server concurrently and lists
// their tools. ctx bounds discovery only; sessions stay open until Close.
func Connect(ctx context.Context, cfg Config, optFns ...func(o *Options)) (*Manager, error) {
	opts := Options{
		ClientName:    "crewmesh",
		ClientVersion: "dev",
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	lifetime, cancel := context.WithCancel(context.Background())
	m := &Manager{
		opts:     opts,
		cancel:   cancel,
		sessions: make(map[string]*mcpsdk.ClientSession),
		failures: make(map[string]error),
	}

	names := cfg.Names()
	discovered := make([][]tool.Tool, len(names))

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		g.Go(func() error {
			tools, err := m.connectServer(gctx, lifetime, name, cfg.Servers[name])
			if err != nil {
				if opts.FailFast {
					return fmt.Errorf("mcp server %q: %w", name, err)
				}
				opts.Logger.Warn("mcp.server.unavailable", "server", name, "error", err)
				m.mu.Lock()
				m.failures[name] = err
				m.mu.Unlock()
				return nil
			}
			discovered[i] = tools
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		_ = m.Close()
		return nil, err
	}

	seen := make(map[string]string)
	for i, tools := range discovered {
		for _, t := range tools {
			if owner, dup := seen[t.Name()]; dup {
				opts.Logger.Warn("mcp.tool.duplicate", "tool", t.Name(), "server", names[i], "kept", owner)
				continue
			}
			seen[t.Name()] = names[i]
			m.tools = append(m.tools, t)
		}
	}

	opts.Logger.Info("mcp.discovered", "servers", len(names), "tools", len(m.tools), "failed", len(m.failures))

	return m, nil
}

func (m *Manager) connectServer(ctx, lifetime context.Context, name string, cfg ServerConfig) ([]tool.Tool, error) {
	transport, err := transportBuilder(lifetime, cfg)
	if err != nil {
		return nil, fmt.Errorf("build transport: %w", err)
	}

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: m.opts.ClientName, Version: m.opts.ClientVersion}, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	m.mu.Lock()
	m.sessions[name] = session
	m.mu.Unlock()

	var tools []tool.Tool
	for t, err := range session.Tools(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("list tools: %w", err)
		}
		schema, err := schemaMap(t.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("tool %q schema: %w", t.Name, err)
		}
		tools = append(tools, &RemoteTool{
			server:      name,
			name:        t.Name,
			description: t.Description,
			parameters:  schema,
			session:     session,
		})
	}
	return tools, nil
}

// Tools returns the discovered remote tools.
func (m *Manager) Tools() []tool.Tool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]tool.Tool(nil), m.tools...)
}

// Failures returns the servers skipped during discovery.
func (m *Manager) Failures() map[string]error {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]error, len(m.failures))
	for k, v := range m.failures {
		out[k] = v
	}
	return out
}

// Close terminates every session and stdio subprocess.
func (m *Manager) Close() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = map[string]*mcpsdk.ClientSession{}
	m.mu.Unlock()

	var errs []error
	for name, s := range sessions {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	m.cancel()
	return errors.Join(errs...)
}

// toolCaller is the subset of *mcpsdk.ClientSession used by RemoteTool.
type toolCaller interface {
	CallTool(ctx context.Context, params *mcpsdk.CallToolParams) (*mcpsdk.CallToolResult, error)
}

// RemoteTool forwards calls to a tool hosted on an MCP server.
type RemoteTool struct {
	server      string
	name        string
	description string
	parameters  map[string]any
	session     toolCaller
}

// Server returns the name of the hosting server.
func (t *RemoteTool) Server() string { return t.server }

func (t *RemoteTool) Name() string { return t.name }

func (t *RemoteTool) Description() string { return t.description }

func (t *RemoteTool) Parameters() map[string]any { return t.parameters }

// Call invokes the remote tool. Tool-level failures reported by the server
// become EXECUTION_ERROR tool errors.
func (t *RemoteTool) Call(tc *core.ToolContext, args map[string]any) (any, error) {
	tc.LogDebug("mcp.tool.call", "server", t.server, "tool", t.name, "call_id", tc.CallID())

	res, err := t.session.CallTool(tc.Context(), &mcpsdk.CallToolParams{Name: t.name, Arguments: args})
	if err != nil {
		return nil, &tool.ToolError{Tool: t.name, Message: err.Error(), Code: tool.CodeExecution}
	}
	text := resultText(res)
	if res.IsError {
		return nil, &tool.ToolError{Tool: t.name, Message: text, Code: tool.CodeExecution}
	}
	return text, nil
}

func resultText(res *mcpsdk.CallToolResult) string {
	if res == nil {
		return ""
	}
	parts := make([]string, 0, len(res.Content))
	for _, c := range res.Content {
		switch v := c.(type) {
		case *mcpsdk.TextContent:
			parts = append(parts, v.Text)
		default:
			if b, err := json.Marshal(v); err == nil {
				parts = append(parts, string(b))
			}
		}
	}
	return strings.Join(parts, "\n")
}

func schemaMap(schema any) (map[string]any, error) {
	switch s := schema.(type) {
	case nil:
		return map[string]any{"type": "object", "properties": map[string]any{}}, nil
	case map[string]any:
		return s, nil
	}
	b, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
