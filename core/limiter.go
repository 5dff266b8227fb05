package core

import (
	"fmt"
	"sync"
)

// StepLimiter enforces a maximum number of steps (model calls for an agent,
// dispatches for a supervisor run).
type StepLimiter struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewStepLimiter creates a new limiter with a max number of steps.
// If max == 0, unlimited steps are allowed.
func NewStepLimiter(max int) *StepLimiter {
	return &StepLimiter{max: max}
}

// Allow reports whether one more step fits the budget without consuming it.
func (sl *StepLimiter) Allow() bool {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	return sl.max == 0 || sl.count < sl.max
}

// Increment consumes one step. It returns an error wrapping errLimit when the
// step would exceed the budget; the counter is left unchanged in that case.
func (sl *StepLimiter) Increment(errLimit error) error {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.max > 0 && sl.count >= sl.max {
		return fmt.Errorf("%w: %d", errLimit, sl.max)
	}

	sl.count++

	return nil
}

// Count returns the number of steps consumed.
func (sl *StepLimiter) Count() int {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	return sl.count
}

// Remaining returns how many steps are left before hitting the limit.
func (sl *StepLimiter) Remaining() int {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.max == 0 {
		return -1 // unlimited
	}

	return sl.max - sl.count
}
