package reactive

// Cell is an observable single value.
type Cell[T any] struct {
	dep   *Dep
	value T
}

// NewCell creates a cell holding initial.
func NewCell[T any](initial T) *Cell[T] {
	c := &Cell[T]{dep: NewDep()}
	c.value = wrapTyped(initial)
	return c
}

// Get returns the value and registers the current watcher.
func (c *Cell[T]) Get() T {
	c.dep.Depend()
	if ob, ok := observerOf(c.value); ok {
		ob.dep.Depend()
	}
	return c.value
}

// Peek returns the value without tracking.
func (c *Cell[T]) Peek() T {
	return c.value
}

// Set stores v and notifies subscribers unless v is the same value.
func (c *Cell[T]) Set(v T) {
	if Same(any(c.value), any(v)) {
		return
	}
	c.value = wrapTyped(v)
	c.dep.Notify()
}

// Update sets the cell to fn applied to the current, untracked value.
func (c *Cell[T]) Update(fn func(T) T) {
	c.Set(fn(c.value))
}

// Dep returns the cell's link.
func (c *Cell[T]) Dep() *Dep {
	return c.dep
}

// wrapTyped wraps v when the wrapped container still satisfies T, which
// holds for interface-typed cells.
func wrapTyped[T any](v T) T {
	if w, ok := Wrap(any(v)).(T); ok {
		return w
	}
	return v
}

func observerOf(v any) (*Observer, bool) {
	switch c := v.(type) {
	case *Record:
		return c.ob, true
	case *List:
		return c.ob, true
	}
	return nil, false
}
