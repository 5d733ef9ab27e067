package bridge

import (
	"context"
	"sort"

	"github.com/vango-dev/xvm/internal/errors"
	"github.com/vango-dev/xvm/pkg/template"
)

// Module is a registered host module.
type Module struct {
	reg     *Registry
	name    string
	methods map[string]Method
}

// Name returns the module name.
func (m *Module) Name() string {
	return m.name
}

// Methods returns the method names in order.
func (m *Module) Methods() []string {
	names := make([]string, 0, len(m.methods))
	for n := range m.methods {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Call invokes method on behalf of owner. Function arguments become
// callback ids, delivered through the Dispatcher carried by ctx if any.
// A failed host call releases the ids it allocated.
func (m *Module) Call(ctx context.Context, owner uint64, method string, args ...any) (any, error) {
	meth, ok := m.methods[method]
	if !ok {
		return nil, errors.New("E201").WithInfo(m.name + "." + method).
			WithSuggestion(errors.Suggest(method, m.Methods()))
	}

	if meth.Releases != "" {
		m.reg.drop(func(cb *callback) bool {
			return cb.owner == owner && cb.module == m.name && cb.method == meth.Releases
		})
	}

	d := dispatcherFrom(ctx)
	c := Call{Module: m.name, Method: method, Mode: meth.Mode, Owner: owner}
	c.Args = make([]any, len(args))
	for i, a := range args {
		fn := callbackFunc(a)
		if fn == nil {
			c.Args[i] = normalize(a, func(fn func(any) error) int {
				id := m.register(owner, meth, fn, d)
				c.Callbacks = append(c.Callbacks, id)
				return id
			})
			continue
		}
		id := m.register(owner, meth, fn, d)
		c.Callbacks = append(c.Callbacks, id)
		c.Args[i] = id
	}

	out, err := m.reg.host.Invoke(ctx, c)
	if err != nil {
		m.reg.mu.Lock()
		for _, id := range c.Callbacks {
			delete(m.reg.cbs, id)
		}
		m.reg.mu.Unlock()
		return nil, errors.FromError(err, "E203").WithInfo(m.name + "." + method)
	}
	return out, nil
}

func (m *Module) register(owner uint64, meth Method, fn func(any) error, d Dispatcher) int {
	mode := meth.Mode
	if mode == Sync {
		mode = Callback
	}
	return m.reg.allocate(&callback{
		owner:    owner,
		module:   m.name,
		method:   meth.Name,
		mode:     mode,
		fn:       fn,
		dispatch: d,
	})
}

// callbackFunc recognizes the function shapes accepted as callbacks.
func callbackFunc(v any) func(any) error {
	switch fn := v.(type) {
	case func(any) error:
		return fn
	case func(any):
		return func(data any) error {
			fn(data)
			return nil
		}
	case template.Func:
		return func(data any) error {
			_, err := fn(data)
			return err
		}
	}
	return nil
}

// normalize replaces callbacks nested in option maps, as in
// {success: fn, fail: fn}.
func normalize(v any, alloc func(func(any) error) int) any {
	switch c := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(c))
		for k, item := range c {
			if fn := callbackFunc(item); fn != nil {
				out[k] = alloc(fn)
				continue
			}
			out[k] = normalize(item, alloc)
		}
		return out
	case []any:
		out := make([]any, len(c))
		for i, item := range c {
			if fn := callbackFunc(item); fn != nil {
				out[i] = alloc(fn)
				continue
			}
			out[i] = normalize(item, alloc)
		}
		return out
	}
	return v
}
