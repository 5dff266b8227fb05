// Package agent contains the specialist agents a supervisor can hand work to.
//
// An agent is described by a Definition (name, description, instruction,
// tool allow-list and step budget) and collected into a Roster. Agent.Run
// drives one task to completion using the tool-calling loop from the flow
// package:
//
//   - every step asks the model for the next reply
//   - tool calls are executed and their results appended, one result per call
//   - a text-only reply ends the task
//
// The step budget bounds the loop. Exceeding it returns the partial result
// together with core.ErrStepBudgetExceeded so the caller can degrade instead
// of failing the run.
package agent
