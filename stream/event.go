package stream

import (
	"fmt"
	"strings"

	"github.com/hupe1980/crewmesh/core"
)

// EventKind classifies caller-facing events.
type EventKind string

const (
	KindTextChunk    EventKind = "text-chunk"
	KindToolStarted  EventKind = "tool-started"
	KindToolFinished EventKind = "tool-finished"
	KindTurnComplete EventKind = "turn-complete"
	KindError        EventKind = "error"
)

// ToolActivity records one tool invocation as seen by the caller.
type ToolActivity struct {
	CallID string          `json:"call_id"`
	Name   string          `json:"name"`
	Author string          `json:"author,omitempty"`
	Input  string          `json:"input,omitempty"`
	Output string          `json:"output,omitempty"`
	Status core.ToolStatus `json:"status,omitempty"`
}

// StartMarkdown renders the start record of the activity.
func (a ToolActivity) StartMarkdown() string {
	return fmt.Sprintf("#### Start using the tool: %s  \nInputs: %s\n", a.Name, a.Input)
}

// FinishMarkdown renders the finish record of the activity.
func (a ToolActivity) FinishMarkdown() string {
	return fmt.Sprintf("#### Finish using the tool: %s  \nOutput: %s\n", a.Name, a.Output)
}

// Turn is the finalized result of a run.
type Turn struct {
	// Text is the answer: the concatenation of the text chunks authored by
	// the supervisor. It equals Message.Content.
	Text string `json:"text"`
	// Message is the final supervisor message to append to the history.
	// Chunks streamed by agents are not part of it.
	Message core.Message `json:"message"`
	// Tools lists the finished tool activities in order.
	Tools []ToolActivity `json:"tools,omitempty"`
}

// ToolMarkdown renders every tool record of the turn.
func (t Turn) ToolMarkdown() string {
	var b strings.Builder
	for _, a := range t.Tools {
		b.WriteString(a.StartMarkdown())
		b.WriteString(a.FinishMarkdown())
	}
	return b.String()
}

// Event is one element of the ordered stream.
type Event struct {
	Kind   EventKind `json:"kind"`
	RunID  string    `json:"run_id"`
	Author string    `json:"author,omitempty"`

	// Text is set for text-chunk events.
	Text string `json:"text,omitempty"`
	// Tool is set for tool-started and tool-finished events.
	Tool *ToolActivity `json:"tool,omitempty"`
	// Turn is set for turn-complete events.
	Turn *Turn `json:"turn,omitempty"`
	// Err is set for error events.
	Err error `json:"-"`
}
