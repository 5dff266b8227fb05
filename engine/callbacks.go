package engine

import (
	"context"
	"fmt"

	"github.com/hupe1980/crewmesh/core"
	"github.com/hupe1980/crewmesh/stream"
)

// CallbackType defines the lifecycle point at which a callback runs.
type CallbackType string

const (
	// CallbackBeforeRun fires before a run starts. An error aborts the run.
	CallbackBeforeRun CallbackType = "before_run"

	// CallbackAfterRun fires after a run completed successfully.
	CallbackAfterRun CallbackType = "after_run"

	// CallbackOnEvent fires for every event before it reaches the caller.
	CallbackOnEvent CallbackType = "on_event"

	// CallbackOnError fires when a run fails.
	CallbackOnError CallbackType = "on_error"
)

// CallbackContext carries the data available to a callback.
type CallbackContext struct {
	// RunID identifies the run.
	RunID string

	// History is the conversation submitted for the run.
	History []core.Message

	// Event is set for on_event and after_run (the turn-complete event).
	Event *stream.Event

	// Err is set for on_error.
	Err error

	// CallbackType identifies which lifecycle point fired.
	CallbackType CallbackType
}

// Callback is a lifecycle hook.
type Callback interface {
	Type() CallbackType

	Execute(ctx context.Context, callbackCtx *CallbackContext) error
}

// FunctionCallback adapts a function to Callback.
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, callbackCtx *CallbackContext) error
}

// NewFunctionCallback creates a callback from a function.
func NewFunctionCallback(
	callbackType CallbackType,
	fn func(ctx context.Context, callbackCtx *CallbackContext) error,
) *FunctionCallback {
	return &FunctionCallback{
		callbackType: callbackType,
		fn:           fn,
	}
}

// Type implements Callback.
func (c *FunctionCallback) Type() CallbackType {
	return c.callbackType
}

// Execute implements Callback.
func (c *FunctionCallback) Execute(ctx context.Context, callbackCtx *CallbackContext) error {
	return c.fn(ctx, callbackCtx)
}

// CallbackManager holds callbacks grouped by type. Register everything before
// the engine starts runs; execution is read-only.
type CallbackManager struct {
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates an empty manager.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{
		callbacks: make(map[CallbackType][]Callback),
	}
}

// RegisterCallback adds a callback.
func (cm *CallbackManager) RegisterCallback(callback Callback) {
	callbackType := callback.Type()
	cm.callbacks[callbackType] = append(cm.callbacks[callbackType], callback)
}

// ExecuteCallbacks runs every callback of callbackType in registration order
// and stops at the first error. A nil manager runs nothing.
func (cm *CallbackManager) ExecuteCallbacks(
	ctx context.Context,
	callbackType CallbackType,
	callbackCtx *CallbackContext,
) error {
	if cm == nil {
		return nil
	}
	callbacks, exists := cm.callbacks[callbackType]
	if !exists {
		return nil // No callbacks registered for this type
	}

	callbackCtx.CallbackType = callbackType
	for _, callback := range callbacks {
		if err := callback.Execute(ctx, callbackCtx); err != nil {
			return fmt.Errorf("%s callback: %w", callbackType, err)
		}
	}

	return nil
}

// LoggingCallback writes a one-line summary for each invocation.
type LoggingCallback struct {
	callbackType CallbackType
	logger       func(message string)
}

// NewLoggingCallback creates a logging callback for callbackType.
func NewLoggingCallback(callbackType CallbackType, logger func(message string)) *LoggingCallback {
	return &LoggingCallback{
		callbackType: callbackType,
		logger:       logger,
	}
}

// Type implements Callback.
func (c *LoggingCallback) Type() CallbackType {
	return c.callbackType
}

// Execute implements Callback.
func (c *LoggingCallback) Execute(_ context.Context, callbackCtx *CallbackContext) error {
	if c.logger == nil {
		return nil
	}
	message := fmt.Sprintf("[%s] run=%s", c.callbackType, callbackCtx.RunID)
	if callbackCtx.Event != nil {
		message += fmt.Sprintf(" event=%s author=%s", callbackCtx.Event.Kind, callbackCtx.Event.Author)
	}
	if callbackCtx.Err != nil {
		message += fmt.Sprintf(" error=%v", callbackCtx.Err)
	}
	c.logger(message)
	return nil
}
