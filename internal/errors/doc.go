// Package errors provides the structured error type used across the xvm
// runtime.
//
// Every error surfaced by the runtime carries a code, a category and, when
// it happened inside a component, the component type and the unit that
// failed (a watcher description, a lifecycle hook, a template node).
//
// # Categories
//
//   - compile: a template node could not be materialized
//   - evaluation: a tracked expression failed
//   - callback: a watcher callback, lifecycle hook or event handler failed
//   - scheduler: a queued task failed during a flush
//   - prop: a property contract between parent and child was violated
//   - bridge: a module call could not be routed
//   - config, protocol: ambient failures
//
// # Usage
//
//	err := errors.New("E101").
//	    WithComponent("todo-list").
//	    WithDetail(`component "todo-itme" is not registered`).
//	    WithSuggestion(errors.Suggest("todo-itme", registered))
//
//	fmt.Println(err.Format())
package errors
