package model

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/crewmesh/core"
)

// Turn is one scripted model reply.
type Turn struct {
	Text      string
	ToolCalls []core.ToolCall
	Err       error
}

// ScriptedModel replays a fixed sequence of turns. It is deterministic and
// safe for concurrent use, which makes it the default model in tests and
// offline demos. When the script is exhausted the optional responder is
// consulted; without one, Generate fails.
type ScriptedModel struct {
	mu        sync.Mutex
	info      Info
	turns     []Turn
	responder func(req Request) Turn
	requests  []Request
	callSeq   int
}

// NewScriptedModel constructs a ScriptedModel replaying turns in order.
func NewScriptedModel(turns ...Turn) *ScriptedModel {
	return &ScriptedModel{
		info:  Info{Name: "scripted", Provider: "local", SupportsTools: true},
		turns: turns,
	}
}

// WithResponder sets a fallback used once the scripted turns run out.
func (m *ScriptedModel) WithResponder(fn func(req Request) Turn) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responder = fn
	return m
}

// Requests returns a copy of every request received so far.
func (m *ScriptedModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Calls returns the number of Generate invocations.
func (m *ScriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func (m *ScriptedModel) next(req Request) (Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)

	var turn Turn
	switch {
	case len(m.turns) > 0:
		turn = m.turns[0]
		m.turns = m.turns[1:]
	case m.responder != nil:
		turn = m.responder(req)
	default:
		return Turn{}, fmt.Errorf("scripted model exhausted after %d calls", len(m.requests)-1)
	}

	calls := make([]core.ToolCall, len(turn.ToolCalls))
	for i, tc := range turn.ToolCalls {
		if tc.ID == "" {
			m.callSeq++
			tc.ID = fmt.Sprintf("call_%d", m.callSeq)
		}
		calls[i] = tc
	}
	turn.ToolCalls = calls

	return turn, nil
}

// Generate implements Model. Streaming requests receive the text split into
// word sized partial chunks before the final response.
func (m *ScriptedModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response)
	errCh := make(chan error, 1)

	go func() {
		defer close(respCh)
		defer close(errCh)

		turn, err := m.next(req)
		if err != nil {
			errCh <- err
			return
		}
		if turn.Err != nil {
			errCh <- turn.Err
			return
		}

		if req.Stream {
			for _, chunk := range splitChunks(turn.Text) {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{Partial: true, Text: chunk}:
				}
			}
		}

		finish := "stop"
		if len(turn.ToolCalls) > 0 {
			finish = "tool_calls"
		}

		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case respCh <- Response{Text: turn.Text, ToolCalls: turn.ToolCalls, FinishReason: finish}:
		}
	}()

	return respCh, errCh
}

// Info implements Model.
func (m *ScriptedModel) Info() Info { return m.info }

// splitChunks splits s after every space so that concatenating the chunks
// yields s again.
func splitChunks(s string) []string {
	var chunks []string
	for s != "" {
		i := strings.IndexByte(s, ' ')
		if i < 0 {
			chunks = append(chunks, s)
			break
		}
		chunks = append(chunks, s[:i+1])
		s = s[i+1:]
	}
	return chunks
}
