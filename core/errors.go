package core

import "errors"

var (
	// ErrSelectionAmbiguous is returned when a selection step names zero or
	// more than one dispatch target.
	ErrSelectionAmbiguous = errors.New("selection ambiguous")

	// ErrDispatchFailure terminates a run whose selection stayed ambiguous
	// after the corrective re-prompt.
	ErrDispatchFailure = errors.New("dispatch failure")

	// ErrStepBudgetExceeded marks a degraded agent result.
	ErrStepBudgetExceeded = errors.New("step budget exceeded")

	// ErrToolExecution is the root of every tool failure.
	ErrToolExecution = errors.New("tool execution error")

	// ErrStoreUnavailable reports that a memory backend could not be reached.
	ErrStoreUnavailable = errors.New("memory store unavailable")

	// ErrNotFound reports a missing memory record. Empty search results are
	// not errors.
	ErrNotFound = errors.New("not found")

	// ErrRecursionExceeded aborts a run that hit its dispatch ceiling.
	ErrRecursionExceeded = errors.New("recursion limit exceeded")

	// ErrStreamDisconnected reports that the event consumer went away.
	ErrStreamDisconnected = errors.New("stream disconnected")
)
