// Package core provides the foundational domain types and execution contexts
// shared by every crewmesh package:
//
//   - Messages, tool calls and tool results (the conversation model)
//   - Namespaces and memory records (the fact store model)
//   - RunContext / ToolContext (per-run and per-call execution scope)
//   - Notices (low-level activity emitted while a run progresses)
//   - The error taxonomy used across supervisor, agents, tools and stores
//
// Implementation concerns (persistence, model providers, orchestration) live
// in their own packages and depend on the small types defined here.
package core
