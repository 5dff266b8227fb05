// Package engine wires the supervisor, the roster, the tool registry and the
// memory store into a long-lived process component and runs conversation
// turns on it.
//
// # Responsibilities
//
// Run management:
//   - Invoke starts a turn and returns its ordered event stream
//   - InvokeSync drains the stream and returns the completed turn
//   - Cancel stops a run by id; the run's in-flight tool result is discarded
//   - a semaphore bounds the number of concurrent runs
//
// Resource ownership:
//   - the memory store is bound at construction and shared by every run
//   - Close cancels active runs and closes the store
//
// Observability:
//   - run and dispatch metrics through an optional metrics.Collector
//   - lifecycle callbacks (before_run, after_run, on_event, on_error)
//
// # Usage
//
//	eng, err := engine.New(llm,
//	    func(o *engine.Options) {
//	        o.Tools = registry
//	        o.Memory = store
//	        o.Config.Run.Mode = core.ModeMemory
//	    })
//	if err != nil {
//	    return err
//	}
//	defer eng.Close()
//
//	runID, events, err := eng.Invoke(ctx, history)
//	if err != nil {
//	    return err
//	}
//	_ = runID // use for cancellation
//	for ev := range events {
//	    handle(ev)
//	}
//
// # Concurrency Model
//
// Every run executes on its own goroutine and publishes through unbuffered
// channels, so a slow consumer slows its run without losing events. Runs
// never share a RunContext; the roster, registry and store are read-only or
// safe for concurrent use.
//
// # Error Handling
//
//   - setup failures are returned by Invoke directly
//   - run failures arrive as a terminal error event; no turn-complete follows
//   - cancelling the caller context ends the stream without further events
package engine
