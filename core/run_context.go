package core

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/crewmesh/logging"
)

// RunOptions configures a RunContext.
type RunOptions struct {
	// RecursionLimit bounds the number of supervisor dispatch steps (0 = unlimited).
	RecursionLimit int
	// Durability records which memory backend was bound at launch.
	Durability Durability
	// Namespace is the memory binding for the run.
	Namespace Namespace
	// Logger receives run scoped log lines. Defaults to a NoOpLogger.
	Logger logging.Logger
	// Now is the run's clock. Defaults to time.Now.
	Now func() time.Time
}

// RunContext carries the per-run execution scope: cancellation, identifiers,
// the recursion counter, the memory binding and the notice channel feeding the
// event stream. A RunContext is owned by the single goroutine executing the
// run; WithAgent derives scoped copies sharing the same counter and channel.
type RunContext struct {
	Context    context.Context
	RunID      string
	Agent      string
	Durability Durability
	Namespace  Namespace

	notices   chan<- Notice
	recursion *StepLimiter
	now       func() time.Time

	*loggerAdapter
}

// NewRunContext constructs a RunContext. notices may be nil when no stream
// consumer is attached.
func NewRunContext(ctx context.Context, runID string, notices chan<- Notice, optFns ...func(o *RunOptions)) *RunContext {
	opts := RunOptions{
		Durability: DurabilityVolatile,
		Now:        time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	if runID == "" {
		runID = NewID()
	}

	return &RunContext{
		Context:       ctx,
		RunID:         runID,
		Durability:    opts.Durability,
		Namespace:     opts.Namespace,
		notices:       notices,
		recursion:     NewStepLimiter(opts.RecursionLimit),
		now:           opts.Now,
		loggerAdapter: newLoggerAdapter(opts.Logger),
	}
}

// Done returns a channel closed when the underlying context is cancelled.
func (rc *RunContext) Done() <-chan struct{} { return rc.Context.Done() }

// Err returns the cancellation error (if any) from the underlying context.
func (rc *RunContext) Err() error { return rc.Context.Err() }

// WithAgent returns a copy scoped to the named agent.
func (rc *RunContext) WithAgent(name string) *RunContext {
	c := *rc
	c.Agent = name
	return &c
}

// WithContext returns a copy bound to ctx (e.g. a span context).
func (rc *RunContext) WithContext(ctx context.Context) *RunContext {
	c := *rc
	c.Context = ctx
	return &c
}

// Now returns the current time on the run's clock.
func (rc *RunContext) Now() time.Time { return rc.now() }

// Dispatch increments the recursion counter. It fails with
// ErrRecursionExceeded when the step would exceed the ceiling.
func (rc *RunContext) Dispatch() error { return rc.recursion.Increment(ErrRecursionExceeded) }

// RecursionCount returns the number of dispatch steps taken so far.
func (rc *RunContext) RecursionCount() int { return rc.recursion.Count() }

// Notify hands a notice to the stream consumer. It blocks until the consumer
// accepts it and fails with ErrStreamDisconnected once the run is cancelled.
func (rc *RunContext) Notify(n Notice) error {
	if rc.notices == nil {
		return nil
	}
	if n.Author == "" {
		n.Author = rc.Agent
	}

	select {
	case <-rc.Context.Done():
		return fmt.Errorf("%w: %w", ErrStreamDisconnected, rc.Context.Err())
	case rc.notices <- n:
		return nil
	}
}
