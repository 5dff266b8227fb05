package flow

import (
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/hupe1980/crewmesh/core"
	"github.com/hupe1980/crewmesh/metrics"
	"github.com/hupe1980/crewmesh/tool"
	"github.com/hupe1980/crewmesh/tracing"
)

// ToolExecutor runs tool calls one at a time and reports their lifecycle as
// notices. Guarantees:
//   - exactly one ToolResult per incoming ToolCall
//   - a tool-started notice strictly precedes its tool-finished notice and no
//     two calls overlap
//   - panics are recovered into PANIC tool errors
//   - unknown tools and malformed arguments become error results
//
// The only error returned is a stream or context failure; the run must stop
// and any in-flight result is discarded.
type ToolExecutor struct {
	metrics *metrics.Collector
}

// ToolExecutorOptions configure a ToolExecutor.
type ToolExecutorOptions struct {
	Metrics *metrics.Collector
}

// NewToolExecutor creates a sequential executor.
func NewToolExecutor(optFns ...func(o *ToolExecutorOptions)) *ToolExecutor {
	var opts ToolExecutorOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	return &ToolExecutor{metrics: opts.Metrics}
}

// ExecuteAll runs calls in order against registry.
func (e *ToolExecutor) ExecuteAll(runCtx *core.RunContext, registry *tool.Registry, calls []core.ToolCall) ([]core.ToolResult, error) {
	results := make([]core.ToolResult, 0, len(calls))
	for _, call := range calls {
		res, err := e.Execute(runCtx, registry, call)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// Execute runs a single call.
func (e *ToolExecutor) Execute(runCtx *core.RunContext, registry *tool.Registry, call core.ToolCall) (core.ToolResult, error) {
	if err := runCtx.Err(); err != nil {
		return core.ToolResult{}, fmt.Errorf("%w: %w", core.ErrStreamDisconnected, err)
	}

	if err := runCtx.Notify(core.Notice{
		Kind:     core.NoticeToolStarted,
		CallID:   call.ID,
		ToolName: call.Name,
		Input:    argumentText(call),
	}); err != nil {
		return core.ToolResult{}, err
	}

	runCtx.LogInfo("tool.call.start", "agent", runCtx.Agent, "tool", call.Name, "call_id", call.ID)

	spanCtx, span := tracing.StartToolSpan(runCtx.Context, call.Name, call.ID)
	toolCtx := core.NewToolContext(runCtx.WithContext(spanCtx), call.ID)

	start := time.Now()
	result, err := e.invoke(toolCtx, registry, call)
	dur := time.Since(start)
	tracing.End(span, err)

	if ctxErr := runCtx.Err(); ctxErr != nil {
		runCtx.LogWarn("tool.call.discarded", "tool", call.Name, "call_id", call.ID)
		return core.ToolResult{}, fmt.Errorf("%w: %w", core.ErrStreamDisconnected, ctxErr)
	}

	res := core.ToolResult{ToolCallID: call.ID, Name: call.Name, Status: core.ToolStatusOK}
	if err != nil {
		res.Status = core.ToolStatusError
		res.Output = errorText(err)
		runCtx.LogWarn("tool.call.error", "agent", runCtx.Agent, "tool", call.Name, "call_id", call.ID, "error", err.Error())
	} else {
		res.Output = tool.FormatOutput(result)
		runCtx.LogInfo("tool.call.success", "agent", runCtx.Agent, "tool", call.Name, "call_id", call.ID, "duration_ms", dur.Milliseconds())
	}
	e.metrics.ToolCall(call.Name, res.Status, dur)

	if err := runCtx.Notify(core.Notice{
		Kind:     core.NoticeToolFinished,
		CallID:   call.ID,
		ToolName: call.Name,
		Output:   res.Output,
		Status:   res.Status,
	}); err != nil {
		return core.ToolResult{}, err
	}

	return res, nil
}

func (e *ToolExecutor) invoke(toolCtx *core.ToolContext, registry *tool.Registry, call core.ToolCall) (result any, err error) {
	defer func() { // panic safety
		if r := recover(); r != nil {
			err = panicError(call.Name, r)
			toolCtx.LogError("tool.call.panic", "tool", call.Name, "recover", r)
		}
	}()

	impl, ok := registry.Get(call.Name)
	if !ok {
		return nil, tool.NewToolError(call.Name, fmt.Sprintf("tool %s not found", call.Name), tool.CodeNotFound)
	}

	args, err := call.ArgumentMap()
	if err != nil {
		return nil, &tool.ToolError{Tool: call.Name, Message: fmt.Sprintf("failed to unmarshal args: %v", err), Code: tool.CodeValidation}
	}

	return impl.Call(toolCtx, args)
}

// panicError converts a recovered panic value to a PANIC tool error.
func panicError(name string, r any) error {
	return &tool.ToolError{
		Tool:    name,
		Message: fmt.Sprintf("panic recovered: %v", r),
		Code:    tool.CodePanic,
		Details: string(debug.Stack()),
	}
}

func errorText(err error) string {
	var toolErr *tool.ToolError
	if errors.As(err, &toolErr) {
		return fmt.Sprintf("Error [%s]: %s", toolErr.Code, toolErr.Message)
	}
	return "Error: " + err.Error()
}

func argumentText(call core.ToolCall) string {
	if len(call.Arguments) == 0 {
		return "{}"
	}
	return string(call.Arguments)
}
