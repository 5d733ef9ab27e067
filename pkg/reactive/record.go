package reactive

// Record is an observable keyed object. Each key has its own Dep; the
// record's Observer carries the object-level Dep notified when keys are
// added or deleted. Keys keep insertion order.
type Record struct {
	ob     *Observer
	keys   []string
	props  map[string]*prop
	frozen bool
}

type prop struct {
	dep   *Dep
	value any
}

// NewRecord wraps data into a Record. Initial keys are ordered
// lexically; later additions append.
func NewRecord(data map[string]any) *Record {
	r := &Record{props: make(map[string]*prop, len(data))}
	r.ob = newObserver(r)
	for _, k := range sortedKeys(data) {
		r.keys = append(r.keys, k)
		r.props[k] = &prop{dep: NewDep(), value: Wrap(data[k])}
	}
	return r
}

// Observer returns the record's handle.
func (r *Record) Observer() *Observer {
	return r.ob
}

// Get returns the value for key and registers the current watcher with
// the key's link. Reading an absent key registers with the object-level
// link so that a later addition invalidates the reader.
func (r *Record) Get(key string) any {
	v, _ := r.Lookup(key)
	return v
}

// Lookup is Get with a presence flag.
func (r *Record) Lookup(key string) (any, bool) {
	p, ok := r.props[key]
	if !ok {
		r.ob.dep.Depend()
		return nil, false
	}
	p.dep.Depend()
	if child, ok := observerOf(p.value); ok {
		child.dep.Depend()
	}
	return p.value, true
}

// Peek returns the value for key without tracking.
func (r *Record) Peek(key string) any {
	if p, ok := r.props[key]; ok {
		return p.value
	}
	return nil
}

// Has reports whether key is present. The read is tracked.
func (r *Record) Has(key string) bool {
	_, ok := r.Lookup(key)
	return ok
}

// Set writes key. Writing an existing key notifies only that key's
// subscribers and is skipped when the value is the same. Adding a key
// notifies the object-level link and the record's key observers. Frozen
// records accept writes to existing keys but ignore new ones.
func (r *Record) Set(key string, v any) {
	v = Wrap(v)
	if p, ok := r.props[key]; ok {
		if Same(p.value, v) {
			return
		}
		p.value = v
		p.dep.Notify()
		return
	}
	if r.frozen {
		return
	}
	r.keys = append(r.keys, key)
	r.props[key] = &prop{dep: NewDep(), value: v}
	r.ob.dep.Notify()
	for _, owner := range r.ob.Owners() {
		owner.KeyAdded(key)
	}
}

// Delete removes key and notifies the object-level link.
func (r *Record) Delete(key string) {
	p, ok := r.props[key]
	if !ok || r.frozen {
		return
	}
	delete(r.props, key)
	for i, k := range r.keys {
		if k == key {
			r.keys = append(r.keys[:i], r.keys[i+1:]...)
			break
		}
	}
	p.dep.Notify()
	r.ob.dep.Notify()
}

// Keys returns the keys in insertion order. The read is tracked on the
// object-level link.
func (r *Record) Keys() []string {
	r.ob.dep.Depend()
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Len returns the number of keys. The read is tracked.
func (r *Record) Len() int {
	r.ob.dep.Depend()
	return len(r.keys)
}

// Freeze makes the record non-extensible. Frozen records are never
// observed by Observe.
func (r *Record) Freeze() {
	r.frozen = true
}

// Frozen reports whether Freeze was called.
func (r *Record) Frozen() bool {
	return r.frozen
}

// KeyDep returns the link for key, or nil if the key is absent.
func (r *Record) KeyDep(key string) *Dep {
	if p, ok := r.props[key]; ok {
		return p.dep
	}
	return nil
}

// ToMap returns a deep plain copy. Every key read is tracked.
func (r *Record) ToMap() map[string]any {
	out := make(map[string]any, len(r.keys))
	for _, k := range r.Keys() {
		out[k] = Unwrap(r.Get(k))
	}
	return out
}
