// Package vm runs component instance trees.
//
// An App holds component definitions and bootstraps them into Pages. A
// Page owns one render document and one executor; every Instance on the
// page schedules its watchers there, so all writes made in one turn settle
// in a single flush that ends with one updateFinish.
//
// The reconciler walks a definition's template and materializes it into
// dom nodes, attaching a watcher to every dynamic value. Structural nodes
// (conditional, repeated, slotted and dynamic component content) keep a
// fragment in the tree and patch its children in place when their watcher
// fires. Repeated content is diffed by key so that existing subtrees and
// their watchers survive reordering.
//
// Instances are disposed top-down. Each instance first releases what it
// owns (its watchers, the parent watchers feeding its props, its bridge
// callbacks and its listeners) and only then disposes its children.
//
// All of this is single-threaded: a page must only be touched from the
// goroutine running its deferrer, normally a sched.Loop.
package vm
