package testutil

import (
	"context"
	"sync"

	"github.com/hupe1980/crewmesh/core"
)

// NoticeRecorder drains a notice channel in the background.
type NoticeRecorder struct {
	ch   chan core.Notice
	done chan struct{}

	mu      sync.Mutex
	notices []core.Notice
	closed  bool
}

// NewNoticeRecorder starts draining an unbuffered channel.
func NewNoticeRecorder() *NoticeRecorder {
	r := &NoticeRecorder{
		ch:   make(chan core.Notice),
		done: make(chan struct{}),
	}
	go func() {
		defer close(r.done)
		for n := range r.ch {
			r.mu.Lock()
			r.notices = append(r.notices, n)
			r.mu.Unlock()
		}
	}()
	return r
}

// Channel returns the send side handed to a RunContext.
func (r *NoticeRecorder) Channel() chan<- core.Notice { return r.ch }

// RunContext creates a run context publishing to the recorder.
func (r *NoticeRecorder) RunContext(ctx context.Context, optFns ...func(o *core.RunOptions)) *core.RunContext {
	return core.NewRunContext(ctx, "test-run", r.ch, optFns...)
}

// Close stops recording and returns every notice received. It is safe to
// call more than once.
func (r *NoticeRecorder) Close() []core.Notice {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.ch)
	}
	r.mu.Unlock()
	<-r.done

	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.Notice(nil), r.notices...)
}

// Kinds projects notices to their kinds.
func Kinds(notices []core.Notice) []core.NoticeKind {
	out := make([]core.NoticeKind, len(notices))
	for i, n := range notices {
		out[i] = n.Kind
	}
	return out
}
