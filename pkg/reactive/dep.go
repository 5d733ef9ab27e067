package reactive

// Subscriber is anything a Dep can invalidate.
type Subscriber interface {
	// ID returns the subscriber's creation-order id.
	ID() uint64

	// Invalidate notifies the subscriber that something it read may have
	// changed.
	Invalidate()
}

// Dep is the dependency link for one observable unit. Subscribers are kept
// in subscription order and appear at most once.
type Dep struct {
	id   uint64
	subs []Subscriber
}

// NewDep creates a link with a fresh creation-order id.
func NewDep() *Dep {
	return &Dep{id: nextID()}
}

// ID returns the link's id.
func (d *Dep) ID() uint64 {
	return d.id
}

// Subscribe appends s unless it is already subscribed.
func (d *Dep) Subscribe(s Subscriber) {
	for _, existing := range d.subs {
		if existing.ID() == s.ID() {
			return
		}
	}
	d.subs = append(d.subs, s)
}

// Unsubscribe removes s. Removing an absent subscriber is a no-op.
func (d *Dep) Unsubscribe(s Subscriber) {
	for i, existing := range d.subs {
		if existing.ID() == s.ID() {
			d.subs = append(d.subs[:i], d.subs[i+1:]...)
			return
		}
	}
}

// Len returns the number of current subscribers.
func (d *Dep) Len() int {
	return len(d.subs)
}

// Depend registers the link with the watcher currently evaluating on this
// goroutine, if any.
func (d *Dep) Depend() {
	if w := currentWatcher(); w != nil {
		w.addDep(d)
	}
}

// Notify invalidates a snapshot of the current subscribers in
// subscription order. Subscribers added or removed during notification do
// not affect this pass.
func (d *Dep) Notify() {
	if len(d.subs) == 0 {
		return
	}
	snapshot := make([]Subscriber, len(d.subs))
	copy(snapshot, d.subs)
	for _, s := range snapshot {
		s.Invalidate()
	}
}
