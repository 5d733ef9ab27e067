// Package reactive implements the observable store and dependency graph
// the xvm runtime renders from.
//
// The graph has three parts:
//
//   - Dep: a publisher for one observable unit (a record key, a record as a
//     whole, a list, a cell).
//   - Observable values: Cell for a single value, Record for keyed data and
//     List for ordered collections. Reads register the active watcher with
//     the value's Dep; writes notify it.
//   - Watcher: a tracked function. Every evaluation re-collects the set of
//     links it touched, so subscriptions always match the latest run.
//
// Tracking is goroutine-local. A watcher evaluating on one goroutine never
// observes reads performed on another.
//
// Example:
//
//	count := reactive.NewCell(0)
//	w := reactive.NewWatcher(func() (any, error) {
//	    return count.Get() * 2, nil
//	}, reactive.WatcherOptions{Sync: true, Callback: func(v, old any) {
//	    fmt.Println("doubled:", v)
//	}})
//	count.Set(2) // prints "doubled: 4"
//	w.Close()
package reactive
