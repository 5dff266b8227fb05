package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/crewmesh/core"
	"github.com/hupe1980/crewmesh/engine"
	"github.com/hupe1980/crewmesh/internal/testutil"
	"github.com/hupe1980/crewmesh/model"
	"github.com/hupe1980/crewmesh/stream"
	"github.com/hupe1980/crewmesh/tool"
	"github.com/hupe1980/crewmesh/tool/websearch"
)

func parse(t *testing.T, args ...string) (*CLI, *kong.Context) {
	t.Helper()
	var cli CLI
	parser, err := kong.New(&cli, kong.Name("crewmesh"), kongVars(), kong.Exit(func(int) { t.Fatal("unexpected exit") }))
	require.NoError(t, err)
	kctx, err := parser.Parse(args)
	require.NoError(t, err)
	return &cli, kctx
}

func TestCLI_Parse(t *testing.T) {
	cli, kctx := parse(t, "--mode", "memory", "--durability", "durable", "--mandatory", "ask", "what", "time", "is", "it")
	assert.True(t, strings.HasPrefix(kctx.Command(), "ask"))
	assert.Equal(t, "memory", cli.Mode)
	assert.Equal(t, "durable", cli.Durability)
	assert.True(t, cli.Mandatory)
	assert.Equal(t, []string{"what", "time", "is", "it"}, cli.Ask.Question)
	assert.Equal(t, []string{".env"}, cli.EnvFile)
	assert.False(t, cli.Agents)

	cli, _ = parse(t, "--stream-agents", "ask", "hi")
	assert.True(t, cli.Agents)
}

func TestCLI_ChatShowsToolsByDefault(t *testing.T) {
	cli, _ := parse(t)
	assert.True(t, cli.Chat.ShowTools)

	cli, _ = parse(t, "chat", "--no-show-tools")
	assert.False(t, cli.Chat.ShowTools)
}

func TestLoadConfig_FlagsOverride(t *testing.T) {
	t.Setenv("CREWMESH_RUN_MODE", "tools")

	cfg, err := loadConfig(&Globals{EnvFile: []string{"does-not-exist.env"}})
	require.NoError(t, err)
	assert.Equal(t, core.ModeTools, cfg.Mode())

	cfg, err = loadConfig(&Globals{EnvFile: []string{"does-not-exist.env"}, Mode: "memory", Mandatory: true, LogLevel: "debug"})
	require.NoError(t, err)
	assert.Equal(t, core.ModeMemory, cfg.Mode())
	assert.True(t, cfg.Run.DurabilityMandatory)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.False(t, cfg.Run.StreamAgents)

	cfg, err = loadConfig(&Globals{EnvFile: []string{"does-not-exist.env"}, Agents: true})
	require.NoError(t, err)
	assert.True(t, cfg.Run.StreamAgents)

	_, err = loadConfig(&Globals{EnvFile: []string{"does-not-exist.env"}, Mode: "telepathy"})
	require.Error(t, err)
}

func newTestEngine(t *testing.T, llm model.Model, mode core.Mode) *engine.Engine {
	t.Helper()
	registry, err := tool.NewRegistry(websearch.NewTool(websearch.NewClient()))
	require.NoError(t, err)
	e, err := engine.New(llm, func(o *engine.Options) {
		o.Tools = registry
		o.Config.Run.Mode = mode
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestConversation_KeepsHistoryAcrossTurns(t *testing.T) {
	llm := model.NewScriptedModel(
		testutil.Calls(testutil.Call("", tool.CurrentTimeToolName, nil)),
		testutil.Text("It is morning."),
		testutil.Text("Still morning."),
	)
	e := newTestEngine(t, llm, core.ModeTools)

	var out bytes.Buffer
	conv := &conversation{
		run: func(ctx context.Context, h []core.Message) (string, <-chan stream.Event, error) {
			return e.Invoke(ctx, h)
		},
		out:       &out,
		showTools: true,
	}

	require.NoError(t, conv.turn(context.Background(), "What time is it?"))
	require.Len(t, conv.history, 2)
	assert.Equal(t, core.RoleUser, conv.history[0].Role)
	assert.Equal(t, "It is morning.", conv.history[1].Content)

	require.NoError(t, conv.turn(context.Background(), "And now?"))
	require.Len(t, conv.history, 4)
	assert.Equal(t, "Still morning.", conv.history[3].Content)

	text := out.String()
	assert.Contains(t, text, "Start using the tool: "+tool.CurrentTimeToolName)
	assert.Contains(t, text, "Finish using the tool: "+tool.CurrentTimeToolName)
	assert.Contains(t, text, "It is morning.")

	// The second run saw the whole conversation.
	reqs := llm.Requests()
	last := reqs[len(reqs)-1]
	var users []string
	for _, m := range last.Messages {
		if m.Role == core.RoleUser {
			users = append(users, m.Content)
		}
	}
	assert.Equal(t, []string{"What time is it?", "And now?"}, users)
}

func TestConversation_RunErrorLeavesHistory(t *testing.T) {
	boom := errors.New("boom")
	conv := &conversation{
		run: func(ctx context.Context, h []core.Message) (string, <-chan stream.Event, error) {
			ch := make(chan stream.Event, 1)
			ch <- stream.Event{Kind: stream.KindError, Err: boom}
			close(ch)
			return "run-1", ch, nil
		},
		out: &bytes.Buffer{},
	}

	err := conv.turn(context.Background(), "hello")
	require.ErrorIs(t, err, boom)
	assert.Empty(t, conv.history)
}

func TestConversation_NoTerminalEvent(t *testing.T) {
	conv := &conversation{
		run: func(ctx context.Context, h []core.Message) (string, <-chan stream.Event, error) {
			ch := make(chan stream.Event)
			close(ch)
			return "run-1", ch, nil
		},
		out: &bytes.Buffer{},
	}

	err := conv.turn(context.Background(), "hello")
	require.ErrorIs(t, err, core.ErrStreamDisconnected)
}

func TestChatLoop(t *testing.T) {
	llm := model.NewScriptedModel(testutil.Text("Hi there."))
	e := newTestEngine(t, llm, core.ModePlain)

	var out bytes.Buffer
	conv := &conversation{
		run: func(ctx context.Context, h []core.Message) (string, <-chan stream.Event, error) {
			return e.Invoke(ctx, h)
		},
		out: &out,
	}

	in := strings.NewReader("\nhello\nexit\nnever sent\n")
	require.NoError(t, chatLoop(context.Background(), in, &out, conv))
	assert.Contains(t, out.String(), "Hi there.")
	assert.Len(t, conv.history, 2)
	assert.Equal(t, 1, llm.Calls())
}

func TestPrintTools(t *testing.T) {
	var out bytes.Buffer
	printTools(&out, core.ModeMCP, []string{"transfer_to_researcher", "search_docs"}, map[string]error{
		"weather": errors.New("connection refused"),
	})

	text := out.String()
	assert.Contains(t, text, "mode: mcp")
	assert.Contains(t, text, "  search_docs\n")
	assert.Contains(t, text, "unavailable mcp servers:\n  weather: connection refused\n")
}
