package sched

// Task is one unit of pending work. Tasks are compared by identity, so
// implementations must be comparable (pointer types in practice).
type Task interface {
	Run() error
}

// Identified tasks carry a creation-order id used to order the flush.
type Identified interface {
	Task
	ID() uint64
}

// Skippable tasks that report Closed when popped are dropped without
// running.
type Skippable interface {
	Task
	Closed() bool
}

type funcTask struct {
	fn func() error
}

func (t *funcTask) Run() error {
	return t.fn()
}

// Func wraps fn as a Task. Each call returns a distinct task.
func Func(fn func() error) Task {
	return &funcTask{fn: fn}
}
