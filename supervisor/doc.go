// Package supervisor implements the dispatch loop that routes a user request
// across the agent roster.
//
// Each step the supervisor model sees one transfer_to_<agent> handoff tool per
// roster member plus the local tools enabled for the run. A reply with
// exactly one known call is dispatched; a text-only reply finalizes the turn.
// Anything else is ambiguous: the model is re-prompted once with a corrective
// note and the run fails with core.ErrDispatchFailure if it stays ambiguous.
//
// Every dispatch step is counted against the run's recursion ceiling. Agents
// and tools never run concurrently within a run.
//
// In memory mode the supervisor recalls facts from the bound namespace before
// the first selection and exposes the manage_memory and search_memory tools.
// An unreachable store degrades the run to plain dispatch unless durability
// is mandatory.
package supervisor
