package reactive

import (
	"reflect"
	"sort"
	"sync"
)

// Opaque marks values that must never be converted into observable
// containers: component instances, render nodes and other graphs owned by
// the framework or the host.
type Opaque interface {
	Opaque()
}

var (
	opaqueMu    sync.RWMutex
	opaqueFuncs []func(any) bool
)

// RegisterOpaque adds a predicate that exempts matching values from
// wrapping, for host types that cannot implement Opaque themselves.
func RegisterOpaque(pred func(any) bool) {
	opaqueMu.Lock()
	defer opaqueMu.Unlock()
	opaqueFuncs = append(opaqueFuncs, pred)
}

// IsOpaque reports whether v is exempt from wrapping.
func IsOpaque(v any) bool {
	if _, ok := v.(Opaque); ok {
		return true
	}
	opaqueMu.RLock()
	defer opaqueMu.RUnlock()
	for _, pred := range opaqueFuncs {
		if pred(v) {
			return true
		}
	}
	return false
}

// KeyObserver is notified when a key is added to a record after
// construction. Instances use it to refresh bindings that resolved the key
// before it existed.
type KeyObserver interface {
	KeyAdded(key string)
}

// Observer is the handle shared by every observable container. Its Dep is
// the object-level link used for whole-container invalidation.
type Observer struct {
	dep    *Dep
	value  any
	owners []KeyObserver
}

func newObserver(value any) *Observer {
	return &Observer{dep: NewDep(), value: value}
}

// Dep returns the object-level link.
func (o *Observer) Dep() *Dep {
	return o.dep
}

// Value returns the container the handle belongs to.
func (o *Observer) Value() any {
	return o.value
}

// AddOwner registers k for late key additions. Registering twice is a
// no-op.
func (o *Observer) AddOwner(k KeyObserver) {
	for _, existing := range o.owners {
		if existing == k {
			return
		}
	}
	o.owners = append(o.owners, k)
}

// RemoveOwner unregisters k.
func (o *Observer) RemoveOwner(k KeyObserver) {
	for i, existing := range o.owners {
		if existing == k {
			o.owners = append(o.owners[:i], o.owners[i+1:]...)
			return
		}
	}
}

// Owners returns the registered key observers.
func (o *Observer) Owners() []KeyObserver {
	out := make([]KeyObserver, len(o.owners))
	copy(out, o.owners)
	return out
}

// Observe returns the observer handle of an observable container.
// Observing a value that is already observable returns its existing
// handle; plain maps and slices are wrapped first. Opaque values, frozen
// records and anything that is not a container yield (nil, false).
func Observe(v any) (*Observer, bool) {
	switch c := Wrap(v).(type) {
	case *Record:
		if c.frozen {
			return nil, false
		}
		return c.ob, true
	case *List:
		return c.ob, true
	}
	return nil, false
}

// Wrap converts plain maps with string keys into Records and plain slices
// into Lists, recursively. Observable containers, opaque values and
// scalars are returned unchanged, so Wrap is idempotent.
func Wrap(v any) any {
	switch c := v.(type) {
	case nil, *Record, *List, string, bool, []byte:
		return v
	case map[string]any:
		return NewRecord(c)
	case []any:
		return NewList(c...)
	}
	if IsOpaque(v) {
		return v
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return NewRecord(m)
	case reflect.Slice, reflect.Array:
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		return NewList(items...)
	}
	return v
}

// Unwrap converts observable containers back into plain maps and slices.
// Reads are tracked.
func Unwrap(v any) any {
	switch c := v.(type) {
	case *Record:
		return c.ToMap()
	case *List:
		items := c.Items()
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = Unwrap(item)
		}
		return out
	}
	return v
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
