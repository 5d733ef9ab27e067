package reactive

import "slices"

// List is an observable ordered collection. Structural changes go through
// the named mutation methods, which notify the list's link and wrap any
// inserted values.
type List struct {
	ob    *Observer
	items []any
}

// NewList creates a list holding items.
func NewList(items ...any) *List {
	l := &List{items: make([]any, len(items))}
	l.ob = newObserver(l)
	for i, item := range items {
		l.items[i] = Wrap(item)
	}
	return l
}

// Observer returns the list's handle.
func (l *List) Observer() *Observer {
	return l.ob
}

// Len returns the number of items. The read is tracked.
func (l *List) Len() int {
	l.ob.dep.Depend()
	return len(l.items)
}

// At returns item i, or nil when i is out of range. The read is tracked.
func (l *List) At(i int) any {
	l.ob.dep.Depend()
	if i < 0 || i >= len(l.items) {
		return nil
	}
	v := l.items[i]
	if child, ok := observerOf(v); ok {
		child.dep.Depend()
	}
	return v
}

// Items returns a copy of the items. The read is tracked.
func (l *List) Items() []any {
	l.ob.dep.Depend()
	return l.Peek()
}

// Peek returns a copy of the items without tracking.
func (l *List) Peek() []any {
	out := make([]any, len(l.items))
	copy(out, l.items)
	return out
}

// SetAt replaces item i. Out of range indexes are ignored.
func (l *List) SetAt(i int, v any) {
	if i < 0 || i >= len(l.items) {
		return
	}
	v = Wrap(v)
	if Same(l.items[i], v) {
		return
	}
	l.items[i] = v
	l.ob.dep.Notify()
}

// Push appends items and returns the new length.
func (l *List) Push(items ...any) int {
	l.SpliceRange(len(l.items), 0, items...)
	return len(l.items)
}

// Pop removes and returns the last item.
func (l *List) Pop() any {
	if len(l.items) == 0 {
		return nil
	}
	return l.SpliceRange(len(l.items)-1, 1)[0]
}

// Shift removes and returns the first item.
func (l *List) Shift() any {
	if len(l.items) == 0 {
		return nil
	}
	return l.SpliceRange(0, 1)[0]
}

// Unshift prepends items and returns the new length.
func (l *List) Unshift(items ...any) int {
	l.SpliceRange(0, 0, items...)
	return len(l.items)
}

// InsertAt inserts items before index i.
func (l *List) InsertAt(i int, items ...any) {
	l.SpliceRange(i, 0, items...)
}

// RemoveAt removes and returns item i, or nil when i is out of range.
func (l *List) RemoveAt(i int) any {
	if i < 0 || i >= len(l.items) {
		return nil
	}
	return l.SpliceRange(i, 1)[0]
}

// SpliceRange removes deleteCount items starting at start, inserts items
// in their place and returns the removed items. A negative start counts
// from the end; start and deleteCount are clamped to the list bounds.
func (l *List) SpliceRange(start, deleteCount int, items ...any) []any {
	n := len(l.items)
	if start < 0 {
		start = max(n+start, 0)
	}
	start = min(start, n)
	deleteCount = max(min(deleteCount, n-start), 0)
	if deleteCount == 0 && len(items) == 0 {
		return nil
	}

	removed := make([]any, deleteCount)
	copy(removed, l.items[start:start+deleteCount])

	wrapped := make([]any, len(items))
	for i, item := range items {
		wrapped[i] = Wrap(item)
	}
	l.items = slices.Replace(l.items, start, start+deleteCount, wrapped...)
	l.ob.dep.Notify()
	return removed
}

// Sort stably sorts the list with less.
func (l *List) Sort(less func(a, b any) bool) {
	if len(l.items) < 2 {
		return
	}
	slices.SortStableFunc(l.items, func(a, b any) int {
		switch {
		case less(a, b):
			return -1
		case less(b, a):
			return 1
		}
		return 0
	})
	l.ob.dep.Notify()
}

// Reverse reverses the list in place.
func (l *List) Reverse() {
	if len(l.items) < 2 {
		return
	}
	slices.Reverse(l.items)
	l.ob.dep.Notify()
}

// Replace swaps the whole contents for items.
func (l *List) Replace(items ...any) {
	wrapped := make([]any, len(items))
	for i, item := range items {
		wrapped[i] = Wrap(item)
	}
	l.items = wrapped
	l.ob.dep.Notify()
}
