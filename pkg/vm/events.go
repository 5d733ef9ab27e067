package vm

import (
	"maps"
	"slices"

	"github.com/vango-dev/xvm/internal/errors"
	"github.com/vango-dev/xvm/pkg/template"
)

// Event is an instance event. Dispatch and Broadcast pass the same Event
// along the tree until a listener stops it.
type Event struct {
	Type   string
	Detail any

	stopped bool
}

// Stop ends propagation of a dispatched or broadcast event.
func (e *Event) Stop() { e.stopped = true }

// Stopped reports whether Stop was called.
func (e *Event) Stopped() bool { return e.stopped }

// Listener handles an instance event. The result of the last listener is
// returned to the emitter.
type Listener func(e *Event) (any, error)

type listener struct {
	fn Listener
}

// On registers fn for name and returns a function removing it.
func (i *Instance) On(name string, fn Listener) func() {
	if i.destroyed || name == "" || fn == nil {
		return func() {}
	}
	l := &listener{fn: fn}
	i.listeners[name] = append(i.listeners[name], l)
	return func() {
		i.listeners[name] = slices.DeleteFunc(i.listeners[name], func(x *listener) bool {
			return x == l
		})
	}
}

// Off removes every listener for name.
func (i *Instance) Off(name string) {
	delete(i.listeners, name)
}

// Emit raises name on this instance only.
func (i *Instance) Emit(name string, detail any) {
	i.emit(&Event{Type: name, Detail: detail})
}

// Trigger raises name on this instance and returns the last listener's
// result.
func (i *Instance) Trigger(name string, detail any) any {
	return i.emit(&Event{Type: name, Detail: detail})
}

// Dispatch raises name on this instance and then on each ancestor, until
// a listener stops the event.
func (i *Instance) Dispatch(name string, detail any) {
	e := &Event{Type: name, Detail: detail}
	for cur := i; cur != nil && !e.Stopped(); cur = cur.parent {
		cur.emit(e)
	}
}

// Broadcast raises name on this instance and then on every descendant in
// creation order, until a listener stops the event.
func (i *Instance) Broadcast(name string, detail any) {
	i.broadcast(&Event{Type: name, Detail: detail})
}

func (i *Instance) broadcast(e *Event) {
	if i.destroyed {
		return
	}
	i.emit(e)
	for _, c := range slices.Clone(i.children) {
		if e.Stopped() {
			return
		}
		c.broadcast(e)
	}
}

func (i *Instance) broadcastLifecycle(name string, detail any) {
	i.broadcast(&Event{Type: name, Detail: detail})
}

// EmitElement fires an element event on the element registered under id,
// or on the instance's first element for an empty id.
func (i *Instance) EmitElement(typ string, detail any, id string) error {
	if i.destroyed {
		return nil
	}
	el := i.Element(id)
	if el == nil {
		return errors.New("E243").WithComponent(i.typ).WithDetailf("no element with id %q", id)
	}
	return el.Dispatch(typ, detail)
}

func (i *Instance) emit(e *Event) any {
	if i.destroyed {
		return nil
	}
	code := "E142"
	if IsLifecycle(e.Type) {
		code = "E141"
	}
	var last any
	for _, l := range slices.Clone(i.listeners[e.Type]) {
		res, err := runListener(l.fn, e)
		if err != nil {
			i.handleError(errors.FromError(err, code), e.Type)
			continue
		}
		last = res
	}
	return last
}

func runListener(fn Listener, e *Event) (res any, err error) {
	defer func() {
		if r := recover(); r != nil {
			code := "E142"
			if IsLifecycle(e.Type) {
				code = "E141"
			}
			err = errors.Recovered(code, r)
		}
	}()
	return fn(e)
}

// initEvents registers definition events, external events, plugin hooks
// and lifecycle methods, in that order.
func (i *Instance) initEvents(external map[string]Listener) {
	for _, name := range slices.Sorted(maps.Keys(i.def.Events)) {
		i.On(name, i.handlerListener(i.def.Events[name]))
	}
	for _, name := range slices.Sorted(maps.Keys(external)) {
		i.On(name, external[name])
	}
	for _, p := range i.page.app.pluginList() {
		for _, name := range slices.Sorted(maps.Keys(p)) {
			hook := p[name]
			i.On(name, func(e *Event) (any, error) {
				hook(i, e.Detail)
				return nil, nil
			})
		}
	}
	for _, name := range slices.Sorted(maps.Keys(i.def.Methods)) {
		if IsLifecycle(name) {
			i.On(name, i.handlerListener(i.def.Methods[name]))
		}
	}
}

// handlerListener runs a compiled handler against the instance. The
// handler sees the event detail and can stop propagation through the
// event passed as target.
func (i *Instance) handlerListener(h template.Handler) Listener {
	return func(e *Event) (any, error) {
		return h(i, template.Event{Type: e.Type, Detail: e.Detail, Target: e})
	}
}
