package core

import (
	"context"

	"github.com/hupe1980/crewmesh/logging"
)

// ToolContext is the constrained surface handed to a tool implementation for
// one call.
type ToolContext struct {
	runCtx *RunContext
	callID string

	*loggerAdapter
}

// NewToolContext binds a tool context to its run and call identifier.
func NewToolContext(runCtx *RunContext, callID string) *ToolContext {
	return &ToolContext{
		runCtx:        runCtx,
		callID:        callID,
		loggerAdapter: newLoggerAdapter(runCtx.Logger()),
	}
}

// Context returns the cancellation context of the call.
func (tc *ToolContext) Context() context.Context { return tc.runCtx.Context }

// RunID returns the run identifier.
func (tc *ToolContext) RunID() string { return tc.runCtx.RunID }

// CallID returns the tool call identifier.
func (tc *ToolContext) CallID() string { return tc.callID }

// AgentName returns the agent (or supervisor) that issued the call.
func (tc *ToolContext) AgentName() string { return tc.runCtx.Agent }

// Namespace returns the run's memory binding.
func (tc *ToolContext) Namespace() Namespace { return tc.runCtx.Namespace }

// Logger returns the logger associated with the call.
func (tc *ToolContext) Logger() logging.Logger { return tc.loggerAdapter.Logger() }
