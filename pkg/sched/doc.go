// Package sched batches re-runs of invalidated watchers into ordered
// flushes and provides the single-threaded loop the runtime executes on.
//
// An Executor belongs to one rendering surface. Tasks enqueued during one
// turn of the Loop coalesce into a single flush that runs after the turn's
// call stack unwinds. Within a flush, tasks carrying a creation-order id
// run in ascending id order, so a parent's structural update settles before
// the updates it causes in its descendants.
package sched
