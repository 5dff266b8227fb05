package core

import (
	"encoding/json"
	"strings"
)

// Role identifies the author of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a request to invoke a named tool with a JSON argument payload.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ArgumentMap decodes the argument payload into a generic map. An empty
// payload yields an empty map.
func (tc ToolCall) ArgumentMap() (map[string]any, error) {
	args := map[string]any{}
	if len(tc.Arguments) == 0 || strings.TrimSpace(string(tc.Arguments)) == "" {
		return args, nil
	}
	if err := json.Unmarshal(tc.Arguments, &args); err != nil {
		return nil, err
	}
	return args, nil
}

// ToolStatus reports whether a tool invocation succeeded.
type ToolStatus string

const (
	ToolStatusOK    ToolStatus = "ok"
	ToolStatusError ToolStatus = "error"
)

// ToolResult is the outcome of exactly one ToolCall.
type ToolResult struct {
	ToolCallID string     `json:"tool_call_id"`
	Name       string     `json:"name"`
	Output     string     `json:"output"`
	Status     ToolStatus `json:"status"`
}

// OK reports whether the result carries a successful status.
func (r ToolResult) OK() bool { return r.Status == ToolStatusOK }

// Message is one entry of a conversation.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates an assistant message authored by name.
func NewAssistantMessage(name, content string, calls ...ToolCall) Message {
	return Message{Role: RoleAssistant, Name: name, Content: content, ToolCalls: calls}
}

// NewToolMessage converts a ToolResult into the tool message paired with its call.
func NewToolMessage(res ToolResult) Message {
	return Message{Role: RoleTool, Name: res.Name, Content: res.Output, ToolCallID: res.ToolCallID}
}

// LastUserContent returns the content of the most recent user message.
func LastUserContent(history []Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == RoleUser {
			return history[i].Content
		}
	}
	return ""
}

// CloneMessages returns a copy of history that can be appended to without
// aliasing the caller's slice.
func CloneMessages(history []Message) []Message {
	out := make([]Message, len(history), len(history)+8)
	copy(out, history)
	return out
}
