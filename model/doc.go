// Package model defines the provider-agnostic abstraction used by agents and
// the supervisor to drive language model generation.
//
// Core goals:
//   - Unify streaming and non-streaming generation behind one interface
//   - Normalize tool call representation (ToolDefinition, core.ToolCall)
//   - Keep request/response shapes minimal and transport independent
//   - Allow deterministic substitutes in tests (ScriptedModel)
//
// Providers (OpenAI, Anthropic) implement Model in sub-packages so higher
// layers stay decoupled from vendor SDKs.
package model
