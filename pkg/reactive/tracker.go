package reactive

import (
	"sync"

	"github.com/petermattis/goid"
)

// tracker holds the evaluation stack for one goroutine. The top entry is
// the watcher that reads are attributed to; a nil entry suspends tracking.
type tracker struct {
	stack []*Watcher
}

// trackers stores per-goroutine trackers keyed by goroutine id.
var trackers sync.Map

func getTracker() *tracker {
	gid := goid.Get()
	if t, ok := trackers.Load(gid); ok {
		return t.(*tracker)
	}
	t := &tracker{}
	trackers.Store(gid, t)
	return t
}

func (t *tracker) push(w *Watcher) {
	t.stack = append(t.stack, w)
}

func (t *tracker) pop() {
	t.stack[len(t.stack)-1] = nil
	t.stack = t.stack[:len(t.stack)-1]
	if len(t.stack) == 0 {
		// Release the entry so finished goroutines don't accumulate.
		trackers.Delete(goid.Get())
	}
}

func (t *tracker) current() *Watcher {
	if len(t.stack) == 0 {
		return nil
	}
	return t.stack[len(t.stack)-1]
}

// currentWatcher returns the watcher evaluating on this goroutine.
func currentWatcher() *Watcher {
	if t, ok := trackers.Load(goid.Get()); ok {
		return t.(*tracker).current()
	}
	return nil
}

// Tracking reports whether reads on this goroutine are currently being
// attributed to a watcher.
func Tracking() bool {
	return currentWatcher() != nil
}

// Untracked runs fn without attributing its reads to the current watcher.
func Untracked(fn func()) {
	t := getTracker()
	t.push(nil)
	defer t.pop()
	fn()
}
