package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/hupe1980/crewmesh/agent"
	"github.com/hupe1980/crewmesh/core"
	"github.com/hupe1980/crewmesh/stream"
)

var (
	promptStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	toolStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// conversation owns the caller-side history. The engine is stateless between
// runs, so each turn re-sends everything said so far.
type conversation struct {
	run       func(ctx context.Context, history []core.Message) (string, <-chan stream.Event, error)
	out       io.Writer
	showTools bool
	history   []core.Message
}

// turn sends one user input and renders the stream. The history only grows
// when the run completes.
func (c *conversation) turn(ctx context.Context, input string) error {
	history := append(core.CloneMessages(c.history), core.NewUserMessage(input))

	_, events, err := c.run(ctx, history)
	if err != nil {
		return err
	}

	var (
		final   *stream.Turn
		runErr  error
		printed bool
	)
	for ev := range events {
		switch ev.Kind {
		case stream.KindTextChunk:
			if ev.Author != "" && ev.Author != agent.SupervisorName {
				fmt.Fprint(c.out, dimStyle.Render(ev.Text))
			} else {
				fmt.Fprint(c.out, ev.Text)
			}
			printed = true
		case stream.KindToolStarted:
			if c.showTools {
				c.newline(&printed)
				fmt.Fprintln(c.out, toolStyle.Render(strings.TrimRight(ev.Tool.StartMarkdown(), "\n")))
			}
		case stream.KindToolFinished:
			if c.showTools {
				c.newline(&printed)
				fmt.Fprintln(c.out, toolStyle.Render(strings.TrimRight(ev.Tool.FinishMarkdown(), "\n")))
			}
		case stream.KindTurnComplete:
			final = ev.Turn
		case stream.KindError:
			runErr = ev.Err
		}
	}
	c.newline(&printed)

	switch {
	case runErr != nil:
		return runErr
	case final == nil:
		if err := ctx.Err(); err != nil {
			return err
		}
		return core.ErrStreamDisconnected
	}

	c.history = append(history, final.Message)
	return nil
}

func (c *conversation) newline(printed *bool) {
	if *printed {
		fmt.Fprintln(c.out)
		*printed = false
	}
}

// Run starts the interactive loop.
func (c *ChatCmd) Run(ctx context.Context, g *Globals) error {
	a, err := newApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.Close()

	conv := &conversation{run: a.invoke, out: os.Stdout, showTools: c.ShowTools}
	fmt.Fprintln(os.Stdout, dimStyle.Render(fmt.Sprintf("crewmesh %s (mode %s). Type \"exit\" to quit.", version, a.cfg.Mode())))
	return chatLoop(ctx, os.Stdin, os.Stdout, conv)
}

func chatLoop(ctx context.Context, in io.Reader, out io.Writer, conv *conversation) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Fprint(out, promptStyle.Render("you> "))
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		input := strings.TrimSpace(scanner.Text())
		switch input {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		if err := conv.turn(ctx, input); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			fmt.Fprintln(out, errorStyle.Render("error: "+err.Error()))
		}
	}
}

// Run answers one question.
func (c *AskCmd) Run(ctx context.Context, g *Globals) error {
	a, err := newApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.Close()

	conv := &conversation{run: a.invoke, out: os.Stdout, showTools: c.ShowTools}
	return conv.turn(ctx, strings.Join(c.Question, " "))
}

// Run prints the supervisor tools and any MCP servers that failed to connect.
func (c *ToolsCmd) Run(ctx context.Context, g *Globals) error {
	a, err := newApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.Close()

	names, err := a.engine.Tools()
	if err != nil {
		return err
	}
	var failures map[string]error
	if a.mcp != nil {
		failures = a.mcp.Failures()
	}
	printTools(os.Stdout, a.cfg.Mode(), names, failures)
	return nil
}

func printTools(w io.Writer, mode core.Mode, names []string, failures map[string]error) {
	fmt.Fprintf(w, "mode: %s\n", mode)
	for _, n := range names {
		fmt.Fprintf(w, "  %s\n", n)
	}
	if len(failures) == 0 {
		return
	}
	servers := make([]string, 0, len(failures))
	for s := range failures {
		servers = append(servers, s)
	}
	sort.Strings(servers)
	fmt.Fprintln(w, "unavailable mcp servers:")
	for _, s := range servers {
		fmt.Fprintf(w, "  %s: %v\n", s, failures[s])
	}
}

// Run opens the durable store, which creates its schema.
func (c *ProvisionCmd) Run(ctx context.Context, g *Globals) error {
	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}
	cfg.Run.Durability = string(core.DurabilityDurable)
	logger := cfg.NewLogger()

	store, err := cfg.OpenMemory(ctx, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	fmt.Fprintf(os.Stdout, "durable memory ready (%s)\n", cfg.Memory.Backend)
	return nil
}

// Run prints the version.
func (c *VersionCmd) Run() error {
	fmt.Println("crewmesh", version)
	return nil
}
