package sched

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type idTask struct {
	id     uint64
	log    *[]uint64
	closed bool
	err    error
	onRun  func()
}

func (t *idTask) ID() uint64   { return t.id }
func (t *idTask) Closed() bool { return t.closed }
func (t *idTask) Run() error {
	*t.log = append(*t.log, t.id)
	if t.onRun != nil {
		t.onRun()
	}
	return t.err
}

func TestExecutorCoalesces(t *testing.T) {
	var d Manual
	var log []uint64
	e := NewExecutor(&d)

	task := &idTask{id: 1, log: &log}
	for i := 0; i < 5; i++ {
		e.Enqueue(task)
	}
	assert.Equal(t, 1, e.Pending())
	assert.Equal(t, 1, d.Len(), "only one flush is armed")

	d.Drain()
	assert.Equal(t, []uint64{1}, log)
	assert.Equal(t, 0, e.Pending())
}

func TestExecutorOrdersIdentifiedRuns(t *testing.T) {
	var d Manual
	var log []uint64
	var order []string
	e := NewExecutor(&d)

	plain := Func(func() error {
		order = append(order, "plain")
		return nil
	})
	e.Enqueue(
		&idTask{id: 5, log: &log},
		&idTask{id: 2, log: &log},
		plain,
		&idTask{id: 9, log: &log},
		&idTask{id: 1, log: &log},
	)
	d.Drain()

	assert.Equal(t, []uint64{2, 5, 1, 9}, log)
	assert.Equal(t, []string{"plain"}, order)
}

func TestExecutorReenqueueDuringFlush(t *testing.T) {
	var d Manual
	var log []uint64
	e := NewExecutor(&d)

	child := &idTask{id: 7, log: &log}
	parent := &idTask{id: 3, log: &log}
	runs := 0
	parent.onRun = func() {
		runs++
		if runs == 1 {
			e.Enqueue(child, parent)
		}
	}
	e.Enqueue(parent)
	d.Drain()

	assert.Equal(t, []uint64{3, 3, 7}, log)
	assert.Equal(t, 0, d.Len(), "enqueue during a flush does not arm another")
}

func TestExecutorSkipsClosedTasks(t *testing.T) {
	var log []uint64
	e := NewExecutor(nil)
	closed := &idTask{id: 1, log: &log}
	e.Enqueue(closed, &idTask{id: 2, log: &log})
	closed.closed = true

	require.NoError(t, e.Flush())
	assert.Equal(t, []uint64{2}, log)
}

func TestExecutorErrorClearsState(t *testing.T) {
	t.Run("error", func(t *testing.T) {
		var log []uint64
		e := NewExecutor(nil)
		e.Enqueue(
			&idTask{id: 1, log: &log, err: errors.New("boom")},
			&idTask{id: 2, log: &log},
		)

		err := e.Flush()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "E160")
		assert.Equal(t, 0, e.Pending())
		assert.Empty(t, e.members)

		again := &idTask{id: 2, log: &log}
		e.Enqueue(again)
		assert.Equal(t, 1, e.Pending(), "cleared tasks can be enqueued again")
	})

	t.Run("panic", func(t *testing.T) {
		e := NewExecutor(nil)
		e.Enqueue(Func(func() error { panic("task exploded") }), Func(func() error { return nil }))

		err := e.Flush()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "task exploded")
		assert.Equal(t, 0, e.Pending())
		assert.Empty(t, e.members)
		assert.False(t, e.Flushing())
	})

	t.Run("deferred flush reports to handler", func(t *testing.T) {
		var d Manual
		var got error
		e := NewExecutor(&d, WithOnError(func(err error) { got = err }))
		e.Enqueue(Func(func() error { return errors.New("late") }))
		d.Drain()
		require.Error(t, got)
	})
}

func TestExecutorHooks(t *testing.T) {
	var d Manual
	flushed := 0
	obs := &recordingObserver{}
	e := NewExecutor(&d, WithOnFlushed(func() { flushed++ }), WithObserver(obs))

	e.Arm()
	d.Drain()
	assert.Equal(t, 1, flushed, "armed flush runs hooks with an empty queue")

	e.Enqueue(Func(func() error { return nil }), Func(func() error { return nil }))
	d.Drain()
	assert.Equal(t, 2, flushed)
	assert.Equal(t, []int{0, 2}, obs.tasks)
}

type recordingObserver struct{ tasks []int }

func (o *recordingObserver) FlushCompleted(tasks int, _ time.Duration, _ error) {
	o.tasks = append(o.tasks, tasks)
}

func TestExecutorWarnThreshold(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	e := NewExecutor(nil, WithLogger(logger), WithWarnThreshold(3))

	n := 0
	var self Task
	self = Func(func() error {
		n++
		if n < 5 {
			e.Enqueue(self)
		}
		return nil
	})
	e.Enqueue(self)
	require.NoError(t, e.Flush())

	assert.Equal(t, 5, n)
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("E161")))
}

func TestLoop(t *testing.T) {
	t.Run("microtasks run after the entry point", func(t *testing.T) {
		l := NewLoop()
		var order []string
		l.Do(func() {
			l.Defer(func() {
				order = append(order, "micro1")
				l.Defer(func() { order = append(order, "micro3") })
			})
			l.Defer(func() { order = append(order, "micro2") })
			order = append(order, "entry")
		})
		assert.Equal(t, []string{"entry", "micro1", "micro2", "micro3"}, order)
	})

	t.Run("executor flush coalesces within one entry point", func(t *testing.T) {
		l := NewLoop()
		flushes := 0
		e := NewExecutor(l, WithOnFlushed(func() { flushes++ }))
		l.Do(func() {
			for i := 0; i < 3; i++ {
				e.Enqueue(Func(func() error { return nil }))
			}
		})
		assert.Equal(t, 1, flushes)
	})

	t.Run("panics are contained", func(t *testing.T) {
		l := NewLoop(WithLoopLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))))
		ran := false
		l.Do(func() {
			l.Defer(func() { ran = true })
			panic("entry failed")
		})
		assert.True(t, ran)
	})

	t.Run("post and run", func(t *testing.T) {
		l := NewLoop(WithQueueSize(4))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		got := make(chan string, 1)
		go l.Run(ctx)
		require.NoError(t, l.Post(func() {
			l.Defer(func() { got <- "done" })
		}))

		select {
		case v := <-got:
			assert.Equal(t, "done", v)
		case <-time.After(time.Second):
			t.Fatal("posted work did not run")
		}

		l.Close()
		assert.ErrorIs(t, l.Post(func() {}), ErrLoopClosed)
	})
}
