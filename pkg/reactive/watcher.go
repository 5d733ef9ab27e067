package reactive

import (
	"log/slog"

	"github.com/vango-dev/xvm/internal/errors"
)

// MaxFailures is the number of consecutive failed evaluations after which
// an eager watcher stops re-evaluating.
const MaxFailures = 3

// Getter is the tracked function of a watcher.
type Getter func() (any, error)

// Owner receives a watcher's errors and is told when it closes. Watchers
// hold their owner without owning it.
type Owner interface {
	HandleError(err error)
	RemoveWatcher(w *Watcher)
}

// Scheduler receives eager watchers to run later.
type Scheduler interface {
	Schedule(w *Watcher)
}

// WatcherOptions configures a watcher.
type WatcherOptions struct {
	// Lazy watchers only mark themselves dirty on invalidation and
	// recompute on the next Get. Used for computed properties.
	Lazy bool

	// Sync watchers re-run inside Invalidate instead of being scheduled.
	Sync bool

	// Deep watchers track every nested key of the value they return and
	// fire their callback on every run.
	Deep bool

	// Description names the watcher in error reports.
	Description string

	// Callback runs after a re-evaluation whose value changed. Container
	// values always count as changed.
	Callback func(value, old any)

	Owner     Owner
	Scheduler Scheduler
}

// Watcher is a tracked function plus its cached value.
//
// After every evaluation the watcher is subscribed to exactly the links its
// getter read during that evaluation; links no longer read are dropped.
type Watcher struct {
	id     uint64
	getter Getter
	opts   WatcherOptions

	value any
	dirty bool

	deps      []*Dep
	depIDs    map[uint64]struct{}
	newDeps   []*Dep
	newDepIDs map[uint64]struct{}

	failures int
	stopped  bool
	closed   bool
}

// NewWatcher creates a watcher. Eager watchers evaluate immediately; lazy
// watchers start dirty.
func NewWatcher(getter Getter, opts WatcherOptions) *Watcher {
	w := &Watcher{
		id:        nextID(),
		getter:    getter,
		opts:      opts,
		depIDs:    make(map[uint64]struct{}),
		newDepIDs: make(map[uint64]struct{}),
	}
	if opts.Lazy {
		w.dirty = true
		return w
	}
	value, err := w.get()
	if err != nil {
		w.fail(err)
		return w
	}
	w.value = value
	return w
}

// ID returns the watcher's creation-order id.
func (w *Watcher) ID() uint64 {
	return w.id
}

// Description returns the name used in error reports.
func (w *Watcher) Description() string {
	return w.opts.Description
}

// Value returns the cached value without evaluating or tracking.
func (w *Watcher) Value() any {
	return w.value
}

// Dirty reports whether a lazy watcher needs to recompute.
func (w *Watcher) Dirty() bool {
	return w.dirty
}

// Closed reports whether Close was called.
func (w *Watcher) Closed() bool {
	return w.closed
}

// Stopped reports whether the watcher gave up after MaxFailures.
func (w *Watcher) Stopped() bool {
	return w.stopped
}

// Deps returns the links the last evaluation subscribed to.
func (w *Watcher) Deps() []*Dep {
	out := make([]*Dep, len(w.deps))
	copy(out, w.deps)
	return out
}

// Get returns the watcher's value for a reader. Dirty lazy watchers
// recompute first. When another watcher is evaluating, it is made to
// depend on everything this watcher depends on.
func (w *Watcher) Get() any {
	if w.opts.Lazy && w.dirty && !w.closed {
		w.Evaluate()
	}
	if currentWatcher() != nil {
		w.Depend()
	}
	return w.value
}

// Evaluate recomputes the value and clears the dirty flag, also when the
// getter fails.
func (w *Watcher) Evaluate() any {
	value, err := w.get()
	w.dirty = false
	if err != nil {
		w.fail(err)
		return w.value
	}
	w.failures = 0
	w.value = value
	return value
}

// Depend registers every link of this watcher with the watcher currently
// evaluating.
func (w *Watcher) Depend() {
	for _, d := range w.deps {
		d.Depend()
	}
}

// Invalidate implements Subscriber.
func (w *Watcher) Invalidate() {
	if w.closed || w.stopped {
		return
	}
	switch {
	case w.opts.Lazy:
		w.dirty = true
	case w.opts.Sync || w.opts.Scheduler == nil:
		w.Run()
	default:
		w.opts.Scheduler.Schedule(w)
	}
}

// Run re-evaluates an eager watcher and fires its callback when the value
// changed. Failures are reported to the owner, never returned, so a
// failing watcher does not abort the flush it runs in.
func (w *Watcher) Run() error {
	if w.closed || w.stopped {
		return nil
	}
	value, err := w.get()
	if err != nil {
		w.fail(err)
		return nil
	}
	w.failures = 0
	if Same(value, w.value) && IsPrimitive(value) && !w.opts.Deep {
		return nil
	}
	old := w.value
	w.value = value
	if w.opts.Callback != nil {
		w.callback(value, old)
	}
	return nil
}

// Close unsubscribes from every link and detaches from the owner. Closing
// twice is a no-op.
func (w *Watcher) Close() {
	if w.closed {
		return
	}
	w.closed = true
	for _, d := range w.deps {
		d.Unsubscribe(w)
	}
	w.deps = nil
	clear(w.depIDs)
	if w.opts.Owner != nil {
		w.opts.Owner.RemoveWatcher(w)
	}
}

// get runs the getter with w on top of this goroutine's tracking stack and
// then reconciles subscriptions with what was read.
func (w *Watcher) get() (value any, err error) {
	t := getTracker()
	t.push(w)
	defer func() {
		if r := recover(); r != nil {
			err = errors.Recovered("E120", r)
		}
		t.pop()
		w.cleanupDeps()
	}()
	value, err = w.getter()
	if err == nil && w.opts.Deep {
		traverse(value, make(map[*Observer]struct{}))
	}
	return value, err
}

func (w *Watcher) addDep(d *Dep) {
	if w.closed {
		return
	}
	if _, ok := w.newDepIDs[d.id]; ok {
		return
	}
	w.newDepIDs[d.id] = struct{}{}
	w.newDeps = append(w.newDeps, d)
	if _, ok := w.depIDs[d.id]; !ok {
		d.Subscribe(w)
	}
}

func (w *Watcher) cleanupDeps() {
	if w.closed {
		for _, d := range w.newDeps {
			d.Unsubscribe(w)
		}
		w.newDeps = w.newDeps[:0]
		clear(w.newDepIDs)
		return
	}
	for _, d := range w.deps {
		if _, ok := w.newDepIDs[d.id]; !ok {
			d.Unsubscribe(w)
		}
	}
	w.depIDs, w.newDepIDs = w.newDepIDs, w.depIDs
	clear(w.newDepIDs)
	w.deps, w.newDeps = w.newDeps, w.deps[:0]
}

func (w *Watcher) callback(value, old any) {
	defer func() {
		if r := recover(); r != nil {
			w.report(errors.Recovered("E140", r).WithInfo(w.opts.Description))
		}
	}()
	w.opts.Callback(value, old)
}

func (w *Watcher) fail(err error) {
	code := "E120"
	if w.opts.Lazy {
		code = "E121"
	}
	xe := errors.FromError(err, code).WithInfo(w.opts.Description)
	w.report(xe)

	if w.opts.Lazy {
		return
	}
	w.failures++
	if w.failures >= MaxFailures {
		w.stopped = true
		w.report(errors.New("E122").
			WithInfo(w.opts.Description).
			WithDetailf("%d consecutive failures", w.failures))
	}
}

func (w *Watcher) report(err error) {
	if w.opts.Owner != nil {
		w.opts.Owner.HandleError(err)
		return
	}
	slog.Error("watcher failed", "watcher", w.opts.Description, "error", err)
}

// traverse reads every key of nested containers so a deep watcher
// depends on all of them.
func traverse(v any, seen map[*Observer]struct{}) {
	switch c := v.(type) {
	case *Record:
		if _, ok := seen[c.ob]; ok {
			return
		}
		seen[c.ob] = struct{}{}
		for _, k := range c.Keys() {
			traverse(c.Get(k), seen)
		}
	case *List:
		if _, ok := seen[c.ob]; ok {
			return
		}
		seen[c.ob] = struct{}{}
		for _, item := range c.Items() {
			traverse(item, seen)
		}
	}
}
