package sched

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
)

// DefaultQueueSize is the default capacity of a Loop's posted-work queue.
const DefaultQueueSize = 256

// ErrLoopClosed is returned when posting to a closed loop.
var ErrLoopClosed = errors.New("sched: loop closed")

// ErrQueueFull is returned when the posted-work queue is full.
var ErrQueueFull = errors.New("sched: loop queue full")

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithQueueSize sets the posted-work queue capacity.
func WithQueueSize(n int) LoopOption {
	return func(l *Loop) {
		if n > 0 {
			l.size = n
		}
	}
}

// WithLoopLogger sets the logger for recovered panics.
func WithLoopLogger(logger *slog.Logger) LoopOption {
	return func(l *Loop) {
		l.logger = logger
	}
}

// Loop runs all runtime work on one goroutine. Each entry point runs to
// completion and is followed by every microtask it deferred, in FIFO
// order, before the next entry point starts.
//
// Work arriving from other goroutines (host events, bridge callbacks,
// timers) is handed over with Post and picked up by Run.
type Loop struct {
	size   int
	posted chan func()
	micro  []func()
	inDo   bool
	closed atomic.Bool
	done   chan struct{}
	logger *slog.Logger
}

// NewLoop creates a loop. Call Run to start serving posted work.
func NewLoop(opts ...LoopOption) *Loop {
	l := &Loop{
		size:   DefaultQueueSize,
		done:   make(chan struct{}),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.posted = make(chan func(), l.size)
	return l
}

// Defer implements Deferrer. It must be called from the loop goroutine.
// Outside Do the microtask runs at the end of the next Do.
func (l *Loop) Defer(fn func()) {
	l.micro = append(l.micro, fn)
}

// Do runs fn as an entry point and then drains microtasks. Nested calls
// run fn immediately and leave draining to the outermost call.
func (l *Loop) Do(fn func()) {
	if l.inDo {
		l.safe(fn)
		return
	}
	l.inDo = true
	defer func() { l.inDo = false }()

	l.safe(fn)
	for len(l.micro) > 0 {
		next := l.micro[0]
		l.micro[0] = nil
		l.micro = l.micro[1:]
		l.safe(next)
	}
}

// Post queues fn to run as an entry point on the loop goroutine. It never
// blocks.
func (l *Loop) Post(fn func()) error {
	if l.closed.Load() {
		return ErrLoopClosed
	}
	select {
	case l.posted <- fn:
		return nil
	case <-l.done:
		return ErrLoopClosed
	default:
		l.logger.Warn("loop queue full, discarding work")
		return ErrQueueFull
	}
}

// Run serves posted work until ctx is cancelled or Close is called.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case fn := <-l.posted:
			l.Do(fn)
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			return nil
		}
	}
}

// Close stops Run and rejects further posts.
func (l *Loop) Close() {
	if l.closed.CompareAndSwap(false, true) {
		close(l.done)
	}
}

// Done is closed when the loop is closed.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) safe(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("loop task panic",
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	fn()
}

// Manual is a Deferrer that holds deferred work until Drain is called.
// Tests use it to make flush points explicit.
type Manual struct {
	pending []func()
}

// Defer implements Deferrer.
func (m *Manual) Defer(fn func()) {
	m.pending = append(m.pending, fn)
}

// Len returns the number of deferred functions waiting.
func (m *Manual) Len() int {
	return len(m.pending)
}

// Drain runs deferred work, including work deferred while draining, and
// returns how many functions ran.
func (m *Manual) Drain() int {
	n := 0
	for len(m.pending) > 0 {
		fn := m.pending[0]
		m.pending = m.pending[1:]
		fn()
		n++
	}
	return n
}
