// Package metrics exports runtime statistics to Prometheus.
//
// A Collector observes executor flushes and committed command batches of
// every page it is attached to:
//
//	reg := prometheus.NewRegistry()
//	c := metrics.NewCollector(reg)
//	app := vm.NewApp(
//	    vm.WithExecutorOptions(sched.WithObserver(c)),
//	    vm.WithDocumentOptions(dom.WithObserver(c)),
//	    vm.WithErrorHandler(c.RecordError),
//	)
//
// Metrics collected, with the default namespace:
//   - xvm_flushes_total: flushes by outcome
//   - xvm_tasks_total: tasks run by flushes
//   - xvm_flush_duration_seconds: flush duration
//   - xvm_commands_total: committed commands by kind
//   - xvm_errors_total: reported errors by category
//   - xvm_active_sessions: connected host sessions
package metrics
