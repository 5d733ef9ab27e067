package sched

import (
	"log/slog"
	"slices"
	"time"

	"github.com/vango-dev/xvm/internal/errors"
)

// DefaultWarnThreshold is the number of tasks one flush may run before a
// runaway-update warning is logged.
const DefaultWarnThreshold = 20000

// Deferrer schedules fn to run after the current call stack unwinds.
type Deferrer interface {
	Defer(fn func())
}

// Observer receives flush statistics.
type Observer interface {
	FlushCompleted(tasks int, elapsed time.Duration, err error)
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger used for diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = l
	}
}

// WithWarnThreshold sets the soft per-flush task ceiling.
func WithWarnThreshold(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.warnThreshold = n
		}
	}
}

// WithOnFlushed sets a hook run after every successful flush.
func WithOnFlushed(fn func()) Option {
	return func(e *Executor) {
		e.onFlushed = fn
	}
}

// WithOnError sets the handler for errors from deferred flushes.
func WithOnError(fn func(error)) Option {
	return func(e *Executor) {
		e.onError = fn
	}
}

// WithObserver sets the flush statistics observer.
func WithObserver(o Observer) Option {
	return func(e *Executor) {
		e.observer = o
	}
}

// Executor is the task queue of one surface.
//
// The pending list and the membership set always hold the same tasks. A
// flush either drains both or, when a task fails, clears both.
type Executor struct {
	deferrer Deferrer

	queue     []Task
	members   map[Task]struct{}
	needsSort bool
	armed     bool
	flushing  bool

	warnThreshold int
	logger        *slog.Logger
	onFlushed     func()
	onError       func(error)
	observer      Observer
}

// NewExecutor creates an executor that defers its flushes through d. With
// a nil Deferrer flushes only happen when Flush is called.
func NewExecutor(d Deferrer, opts ...Option) *Executor {
	e := &Executor{
		deferrer:      d,
		members:       make(map[Task]struct{}),
		warnThreshold: DefaultWarnThreshold,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enqueue appends tasks that are not already pending and arms a deferred
// flush.
func (e *Executor) Enqueue(tasks ...Task) {
	for _, t := range tasks {
		if _, ok := e.members[t]; ok {
			continue
		}
		e.members[t] = struct{}{}
		e.queue = append(e.queue, t)
		if _, ok := t.(Identified); ok {
			e.needsSort = true
		}
	}
	if !e.flushing {
		e.Arm()
	}
}

// Arm schedules a deferred flush unless one is already pending or
// running. Arming with an empty queue still runs the flush hooks, which is
// how output produced outside any task gets committed.
func (e *Executor) Arm() {
	if e.armed || e.flushing {
		return
	}
	e.armed = true
	if e.deferrer != nil {
		e.deferrer.Defer(e.deferredFlush)
	}
}

// Pending returns the number of queued tasks.
func (e *Executor) Pending() int {
	return len(e.queue)
}

// Flushing reports whether a flush is running.
func (e *Executor) Flushing() bool {
	return e.flushing
}

// Flush runs queued tasks until none are left. Tasks enqueued while
// flushing join the same flush. A task error or panic aborts the flush,
// clears all pending state and is returned. Re-entrant calls return nil
// immediately.
func (e *Executor) Flush() (err error) {
	if e.flushing {
		return nil
	}
	e.armed = false
	e.flushing = true

	start := time.Now()
	ran := 0
	defer func() {
		e.flushing = false
		if r := recover(); r != nil {
			err = errors.Recovered("E160", r)
		}
		if err != nil {
			e.reset()
		}
		if e.observer != nil {
			e.observer.FlushCompleted(ran, time.Since(start), err)
		}
	}()

	for len(e.queue) > 0 {
		if e.needsSort {
			sortIdentifiedRuns(e.queue)
			e.needsSort = false
		}
		t := e.queue[0]
		e.queue[0] = nil
		e.queue = e.queue[1:]
		delete(e.members, t)

		if s, ok := t.(Skippable); ok && s.Closed() {
			continue
		}
		ran++
		if ran == e.warnThreshold {
			e.logger.Warn("flush is running an unusually large number of tasks",
				"code", "E161",
				"tasks", ran,
				"pending", len(e.queue))
		}
		if err := t.Run(); err != nil {
			return errors.FromError(err, "E160")
		}
	}

	if e.onFlushed != nil {
		e.onFlushed()
	}
	return nil
}

// Reset drops all pending tasks without running them.
func (e *Executor) Reset() {
	e.reset()
}

func (e *Executor) reset() {
	clear(e.queue)
	e.queue = e.queue[:0]
	clear(e.members)
	e.needsSort = false
}

func (e *Executor) deferredFlush() {
	if !e.armed {
		return
	}
	if err := e.Flush(); err != nil {
		if e.onError != nil {
			e.onError(err)
			return
		}
		e.logger.Error("flush failed", "error", err)
	}
}

// sortIdentifiedRuns stably sorts each maximal run of Identified tasks
// by id. Other tasks keep their position.
func sortIdentifiedRuns(queue []Task) {
	for i := 0; i < len(queue); {
		if _, ok := queue[i].(Identified); !ok {
			i++
			continue
		}
		j := i + 1
		for j < len(queue) {
			if _, ok := queue[j].(Identified); !ok {
				break
			}
			j++
		}
		slices.SortStableFunc(queue[i:j], func(a, b Task) int {
			ia, ib := a.(Identified).ID(), b.(Identified).ID()
			switch {
			case ia < ib:
				return -1
			case ia > ib:
				return 1
			}
			return 0
		})
		i = j
	}
}
