package stream

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/crewmesh/core"
	"github.com/hupe1980/crewmesh/logging"
)

// Producer executes a run, publishing its activity on notices. It must stop
// sending once ctx is done and must not close notices.
type Producer func(ctx context.Context, notices chan<- core.Notice) (core.Message, error)

// Options configure Start.
type Options struct {
	Logger logging.Logger
}

// ErrOutOfOrder reports a notice sequence that breaks tool pairing.
var ErrOutOfOrder = errors.New("tool notice out of order")

// Start runs produce on its own goroutine and returns the adapted events.
// The channel is unbuffered and closed after the final turn-complete or error
// event, or once ctx is cancelled.
func Start(ctx context.Context, runID string, produce Producer, optFns ...func(o *Options)) <-chan Event {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	ctx, cancel := context.WithCancel(ctx)
	notices := make(chan core.Notice)
	out := make(chan Event)

	type outcome struct {
		msg core.Message
		err error
	}
	done := make(chan outcome, 1)

	go func() {
		msg, err := produce(ctx, notices)
		close(notices)
		done <- outcome{msg: msg, err: err}
	}()

	go func() {
		defer close(out)
		defer cancel()

		asm := newAssembler(runID)
		connected := true
		for n := range notices {
			if !connected {
				continue
			}
			events, err := asm.translate(n)
			if err != nil {
				opts.Logger.Error("stream.protocol_error", "run_id", runID, "error", err.Error())
				send(ctx, out, Event{Kind: KindError, RunID: runID, Err: err})
				// the producer stops at its next notice
				cancel()
				connected = false
				continue
			}
			for _, ev := range events {
				if !send(ctx, out, ev) {
					opts.Logger.Warn("stream.disconnected", "run_id", runID)
					connected = false
					break
				}
			}
		}

		res := <-done
		if !connected {
			return
		}

		if res.err != nil {
			if ctx.Err() != nil {
				return
			}
			send(ctx, out, Event{Kind: KindError, RunID: runID, Author: res.msg.Name, Err: res.err})
			return
		}

		if asm.open != nil {
			err := fmt.Errorf("%w: %s never finished", ErrOutOfOrder, asm.open.CallID)
			send(ctx, out, Event{Kind: KindError, RunID: runID, Err: err})
			return
		}

		send(ctx, out, Event{Kind: KindTurnComplete, RunID: runID, Author: res.msg.Name, Turn: asm.turn(res.msg)})
	}()

	return out
}

func send(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- ev:
		return true
	}
}

// assembler converts notices to events and accumulates the turn.
type assembler struct {
	runID   string
	chunks  []core.Notice
	records []ToolActivity
	open    *ToolActivity
}

func newAssembler(runID string) *assembler { return &assembler{runID: runID} }

func (a *assembler) translate(n core.Notice) ([]Event, error) {
	switch n.Kind {
	case core.NoticeTextChunk:
		if n.Text == "" {
			return nil, nil
		}
		a.chunks = append(a.chunks, n)
		return []Event{{Kind: KindTextChunk, RunID: a.runID, Author: n.Author, Text: n.Text}}, nil

	case core.NoticeToolStarted:
		started, err := a.start(ToolActivity{CallID: n.CallID, Name: n.ToolName, Author: n.Author, Input: n.Input})
		if err != nil {
			return nil, err
		}
		return []Event{started}, nil

	case core.NoticeToolFinished:
		finished, err := a.finish(n.CallID, n.Output, n.Status)
		if err != nil {
			return nil, err
		}
		return []Event{finished}, nil

	case core.NoticeHandoff:
		return a.pair(
			ToolActivity{CallID: n.CallID, Name: n.ToolName, Author: n.Author, Input: n.Input},
			"Successfully transferred to "+n.Target,
			core.ToolStatusOK,
		)

	case core.NoticeHandoffReturn:
		return a.pair(
			ToolActivity{CallID: n.CallID + "_return", Name: n.ToolName, Author: n.Author},
			n.Output,
			n.Status,
		)

	default:
		return nil, fmt.Errorf("%w: unknown notice kind %s", ErrOutOfOrder, n.Kind)
	}
}

func (a *assembler) start(act ToolActivity) (Event, error) {
	if a.open != nil {
		return Event{}, fmt.Errorf("%w: %s started while %s is outstanding", ErrOutOfOrder, act.CallID, a.open.CallID)
	}
	a.open = &act
	started := act
	return Event{Kind: KindToolStarted, RunID: a.runID, Author: act.Author, Tool: &started}, nil
}

func (a *assembler) finish(callID, output string, status core.ToolStatus) (Event, error) {
	if a.open == nil || a.open.CallID != callID {
		return Event{}, fmt.Errorf("%w: %s finished without matching start", ErrOutOfOrder, callID)
	}
	act := *a.open
	act.Output = output
	act.Status = status
	a.open = nil
	a.records = append(a.records, act)

	finished := act
	return Event{Kind: KindToolFinished, RunID: a.runID, Author: act.Author, Tool: &finished}, nil
}

func (a *assembler) pair(act ToolActivity, output string, status core.ToolStatus) ([]Event, error) {
	started, err := a.start(act)
	if err != nil {
		return nil, err
	}
	finished, err := a.finish(act.CallID, output, status)
	if err != nil {
		return nil, err
	}
	return []Event{started, finished}, nil
}

// turn keeps only the chunks written by the author of msg, so agent chunks
// streamed along the way never leak into the answer text.
func (a *assembler) turn(msg core.Message) *Turn {
	var text strings.Builder
	for _, c := range a.chunks {
		if c.Author == msg.Name || msg.Name == "" {
			text.WriteString(c.Text)
		}
	}
	return &Turn{
		Text:    text.String(),
		Message: msg,
		Tools:   append([]ToolActivity(nil), a.records...),
	}
}
