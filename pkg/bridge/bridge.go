// Package bridge routes calls from component code to host-provided
// modules. Function arguments are replaced by integer callback ids owned
// by the calling instance; the host fires them later through
// Registry.Invoke.
package bridge

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/vango-dev/xvm/internal/errors"
)

// Mode is how a module method returns.
type Mode uint8

const (
	// Sync methods return their result immediately.
	Sync Mode = iota
	// Callback methods fire each callback once.
	Callback
	// Subscribe methods fire callbacks until unsubscribed.
	Subscribe
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case Callback:
		return "callback"
	case Subscribe:
		return "subscribe"
	default:
		return "sync"
	}
}

// Method describes one module method.
type Method struct {
	Name string
	Mode Mode

	// Releases names the subscribe method whose callbacks a call to this
	// method drops for the calling owner.
	Releases string
}

// Call is what the host receives.
type Call struct {
	Module string
	Method string
	Mode   Mode
	Owner  uint64

	// Args are the normalized arguments. Functions are replaced by
	// callback ids.
	Args []any

	// Callbacks lists the ids allocated for this call.
	Callbacks []int
}

// Host performs module calls.
type Host interface {
	Invoke(ctx context.Context, c Call) (any, error)
}

// HostFunc adapts a function to Host.
type HostFunc func(ctx context.Context, c Call) (any, error)

// Invoke implements Host.
func (f HostFunc) Invoke(ctx context.Context, c Call) (any, error) {
	return f(ctx, c)
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// WithDispatcher sets how callbacks reach their owner's goroutine when
// the module call carried no Dispatcher in its context. Without one,
// callbacks run on the goroutine calling Invoke.
func WithDispatcher(d func(owner uint64, fn func()) error) Option {
	return func(r *Registry) {
		r.dispatch = d
	}
}

// Dispatcher schedules fn on the goroutine that owns a component tree,
// typically a sched.Loop's Post. It must not wait for fn to run.
type Dispatcher func(fn func()) error

type dispatcherKey struct{}

// DispatchContext returns a context whose module calls deliver their
// callbacks through d.
func DispatchContext(ctx context.Context, d Dispatcher) context.Context {
	return context.WithValue(ctx, dispatcherKey{}, d)
}

func dispatcherFrom(ctx context.Context) Dispatcher {
	d, _ := ctx.Value(dispatcherKey{}).(Dispatcher)
	return d
}

type callback struct {
	owner    uint64
	module   string
	method   string
	mode     Mode
	fn       func(data any) error
	dispatch Dispatcher
}

// Registry holds module descriptions and live callbacks.
type Registry struct {
	host     Host
	logger   *slog.Logger
	dispatch func(owner uint64, fn func()) error
	mu       sync.Mutex
	modules map[string]*Module
	cbs     map[int]*callback
	nextID  int
}

// NewRegistry creates a registry calling into host.
func NewRegistry(host Host, opts ...Option) *Registry {
	r := &Registry{
		host:    host,
		logger:  slog.Default(),
		modules: make(map[string]*Module),
		cbs:     make(map[int]*callback),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds or replaces a module.
func (r *Registry) Register(name string, methods []Method) *Module {
	m := &Module{reg: r, name: name, methods: make(map[string]Method, len(methods))}
	for _, meth := range methods {
		m.methods[meth.Name] = meth
	}
	r.mu.Lock()
	r.modules[name] = m
	r.mu.Unlock()
	return m
}

// Module returns a registered module.
func (r *Registry) Module(name string) (*Module, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.modules[name]
	if !ok {
		names := make([]string, 0, len(r.modules))
		for n := range r.modules {
			names = append(names, n)
		}
		return nil, errors.New("E200").WithInfo(name).
			WithSuggestion(errors.Suggest(name, names))
	}
	return m, nil
}

// Modules returns the registered module names.
func (r *Registry) Modules() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.modules))
	for n := range r.modules {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Invoke fires callback id with data. Callback-mode ids are released
// after the first fire.
//
// When the callback has a dispatcher, Invoke only schedules it and
// returns the scheduling error. Failures of the callback itself are then
// logged.
func (r *Registry) Invoke(id int, data any) error {
	r.mu.Lock()
	cb, ok := r.cbs[id]
	if ok && cb.mode != Subscribe {
		delete(r.cbs, id)
	}
	r.mu.Unlock()
	if !ok {
		return errors.New("E202").WithDetailf("callback %d", id)
	}

	var dispatch func(fn func()) error
	switch {
	case cb.dispatch != nil:
		dispatch = cb.dispatch
	case r.dispatch != nil:
		dispatch = func(fn func()) error { return r.dispatch(cb.owner, fn) }
	default:
		return fire(cb, data)
	}

	err := dispatch(func() {
		if err := fire(cb, data); err != nil {
			r.logger.Error("bridge callback failed",
				"callback", id,
				"owner", cb.owner,
				"error", err)
		}
	})
	if err != nil {
		return errors.FromError(err, "E204").WithInfo(cb.module + "." + cb.method)
	}
	return nil
}

func fire(cb *callback, data any) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.Recovered("E140", rec).WithInfo(cb.module + "." + cb.method)
		}
	}()
	if err := cb.fn(data); err != nil {
		return errors.FromError(err, "E140").WithInfo(cb.module + "." + cb.method)
	}
	return nil
}

// Release drops every callback owned by owner and returns how many were
// dropped.
func (r *Registry) Release(owner uint64) int {
	return r.drop(func(cb *callback) bool { return cb.owner == owner })
}

// Pending returns the number of live callbacks owned by owner.
func (r *Registry) Pending(owner uint64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, cb := range r.cbs {
		if cb.owner == owner {
			n++
		}
	}
	return n
}

func (r *Registry) drop(match func(*callback) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, cb := range r.cbs {
		if match(cb) {
			delete(r.cbs, id)
			n++
		}
	}
	return n
}

func (r *Registry) allocate(cb *callback) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.cbs[r.nextID] = cb
	return r.nextID
}
