package model

import (
	"context"
	"strings"

	"github.com/hupe1980/crewmesh/core"
)

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the model.
// Parameters is a JSON Schema object.
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// NewToolDefinition builds a function tool definition.
func NewToolDefinition(name, description string, parameters map[string]any) ToolDefinition {
	return ToolDefinition{
		Type: "function",
		Function: FunctionDefinition{
			Name:        name,
			Description: description,
			Parameters:  parameters,
		},
	}
}

// Request is the normalized model input: system instructions, the ordered
// conversation and the tool schemas the caller may invoke.
type Request struct {
	Instructions string           `json:"instructions"`
	Messages     []core.Message   `json:"messages"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
	Stream       bool             `json:"stream,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a streamed chunk or the final result of a generation.
// Partial responses carry a text delta only; the final response carries the
// complete text and every tool call.
type Response struct {
	Partial      bool            `json:"partial"`
	Text         string          `json:"text,omitempty"`
	ToolCalls    []core.ToolCall `json:"tool_calls,omitempty"`
	FinishReason string          `json:"finish_reason"` // "stop", "length", "tool_calls", ...
	Usage        *TokenUsage     `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"`
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required by agents and the supervisor.
// Implementations close both channels when generation ends and send at most
// one error.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// Collect drains a generation, invoking onChunk for each partial text delta,
// and returns the final response. When a provider sends no final response the
// streamed deltas are concatenated.
func Collect(ctx context.Context, respCh <-chan Response, errCh <-chan error, onChunk func(string) error) (Response, error) {
	var (
		final    Response
		gotFinal bool
		streamed strings.Builder
	)

	for respCh != nil || errCh != nil {
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return Response{}, err
			}
		case resp, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			if resp.Partial {
				if resp.Text == "" {
					continue
				}
				streamed.WriteString(resp.Text)
				if onChunk != nil {
					if err := onChunk(resp.Text); err != nil {
						return Response{}, err
					}
				}
				continue
			}
			final = resp
			gotFinal = true
		}
	}

	if !gotFinal {
		final = Response{Text: streamed.String(), FinishReason: "stop"}
	}
	if streamed.Len() > 0 {
		final.Text = streamed.String()
	}

	return final, nil
}
