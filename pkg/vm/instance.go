package vm

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"sync/atomic"

	"github.com/vango-dev/xvm/internal/errors"
	"github.com/vango-dev/xvm/pkg/bridge"
	"github.com/vango-dev/xvm/pkg/dom"
	"github.com/vango-dev/xvm/pkg/reactive"
	"github.com/vango-dev/xvm/pkg/template"
)

var instanceIDs atomic.Uint64

// binding is how a parent template instantiated a child: the component
// node and the scope its values evaluate in.
type binding struct {
	parent *Instance
	scope  template.Scope
	node   *template.Node
}

// Instance is one live component occurrence.
type Instance struct {
	id      uint64
	typ     string
	def     *Definition
	page    *Page
	binding *binding

	parent   *Instance
	root     *Instance
	children []*Instance
	refs     map[string]*Instance

	data     *reactive.Record
	props    *reactive.Record
	attrs    *reactive.Record
	external *reactive.Record
	computed map[string]*reactive.Watcher
	methods  map[string]template.Handler

	listeners      map[string][]*listener
	watchers       []*reactive.Watcher
	parentWatchers []*reactive.Watcher
	directives     map[string]Directive

	frag        *dom.Node
	rootElement *dom.Node
	elements    map[string]*dom.Node

	created   bool
	inited    bool
	ready     bool
	destroyed bool
}

// newInstance runs the whole creation sequence: registration with the
// parent, onCreate, data and state, onInit, the template build and
// onReady.
func newInstance(p *Page, def *Definition, typ string, b *binding, dest *dom.Node, boot *BootstrapOptions) *Instance {
	i := &Instance{
		id:         instanceIDs.Add(1),
		typ:        typ,
		def:        def,
		page:       p,
		binding:    b,
		refs:       make(map[string]*Instance),
		data:       reactive.NewRecord(nil),
		props:      reactive.NewRecord(nil),
		attrs:      reactive.NewRecord(nil),
		external:   reactive.NewRecord(nil),
		computed:   make(map[string]*reactive.Watcher),
		methods:    make(map[string]template.Handler),
		listeners:  make(map[string][]*listener),
		directives: make(map[string]Directive),
		elements:   make(map[string]*dom.Node),
	}
	if b != nil {
		i.parent = b.parent
		i.root = b.parent.root
		b.parent.children = append(b.parent.children, i)
		if id := nodeID(b.node, b.scope); id != "" {
			b.parent.refs[id] = i
		}
	} else {
		i.root = i
	}

	var events map[string]Listener
	if boot != nil {
		events = boot.Events
	}
	i.initEvents(events)
	if b != nil {
		i.bindExternalClasses(b)
		i.bindProps(b)
		i.bindParentEvents(b)
	}

	i.emit(&Event{Type: OnCreate})
	i.created = true

	i.initData(boot)
	i.initState()
	i.initDirectives()

	var query any
	if boot != nil {
		query = boot.Query
	}
	i.emit(&Event{Type: OnInit, Detail: query})
	i.inited = true

	if def.Template != nil && dest != nil && !p.Fatal() {
		i.frag = p.doc.CreateFragment()
		i.frag.Attach(i)
		dest.Append(i.frag)
		i.compileSafe(i, def.Template, i.frag, meta{})
	}

	i.ready = true
	i.emit(&Event{Type: OnReady})
	return i
}

// Opaque keeps instances out of the reactive store.
func (i *Instance) Opaque() {}

// ID returns the instance id.
func (i *Instance) ID() uint64 { return i.id }

// Type returns the component type name.
func (i *Instance) Type() string { return i.typ }

// Definition returns the definition the instance was created from.
func (i *Instance) Definition() *Definition { return i.def }

// Page returns the owning page.
func (i *Instance) Page() *Page { return i.page }

// Parent returns the parent instance, nil for the root.
func (i *Instance) Parent() *Instance { return i.parent }

// Root returns the page's root instance.
func (i *Instance) Root() *Instance { return i.root }

// Children returns the child instances in creation order.
func (i *Instance) Children() []*Instance {
	return slices.Clone(i.children)
}

// Child returns the child component registered under a template id.
func (i *Instance) Child(id string) *Instance {
	return i.refs[id]
}

// Element returns the element registered under a template id, or the
// instance's first element for an empty id.
func (i *Instance) Element(id string) *dom.Node {
	if id == "" {
		return i.rootElement
	}
	return i.elements[id]
}

// Data returns the data record.
func (i *Instance) Data() *reactive.Record { return i.data }

// Props returns the props record.
func (i *Instance) Props() *reactive.Record { return i.props }

// Attrs returns the attributes the parent passed that are not props.
func (i *Instance) Attrs() *reactive.Record { return i.attrs }

// Created reports whether onCreate has run.
func (i *Instance) Created() bool { return i.created }

// Ready reports whether the template was built.
func (i *Instance) Ready() bool { return i.ready }

// Destroyed reports whether the instance was disposed.
func (i *Instance) Destroyed() bool { return i.destroyed }

// Get implements template.Scope. Names resolve to computed values, then
// methods, then props, then data. Unknown names read as nil and track
// the data record so that a later addition invalidates the reader.
func (i *Instance) Get(name string) any {
	if w, ok := i.computed[name]; ok {
		return w.Get()
	}
	if _, ok := i.methods[name]; ok {
		return template.Func(func(args ...any) (any, error) {
			return i.Call(name, args...)
		})
	}
	if name == "$attrs" {
		return i.attrs
	}
	if v, ok := i.props.Lookup(name); ok {
		return v
	}
	return i.data.Get(name)
}

// Has implements template.Scope.
func (i *Instance) Has(name string) bool {
	if _, ok := i.computed[name]; ok {
		return true
	}
	if _, ok := i.methods[name]; ok {
		return true
	}
	if name == "$attrs" || i.props.Has(name) {
		return true
	}
	return i.data.Has(name)
}

// Set implements template.Scope. Props belong to the parent and computed
// values are derived, so both refuse writes. Any other name is written to
// data, adding the key when absent.
func (i *Instance) Set(name string, v any) error {
	if i.destroyed {
		return nil
	}
	if hasKey(i.props, name) {
		err := errors.New("E180").WithComponent(i.typ).WithDetailf("prop %q", name)
		i.warn(err)
		return err
	}
	if _, ok := i.computed[name]; ok {
		err := errors.Newf(errors.CategoryProp, "Computed value %q has no setter", name).WithComponent(i.typ)
		i.warn(err)
		return err
	}
	i.data.Set(name, v)
	return nil
}

// Delete removes a data key.
func (i *Instance) Delete(name string) {
	if i.destroyed {
		return
	}
	i.data.Delete(name)
	i.digest()
}

// Call implements template.Scope by invoking a method.
func (i *Instance) Call(name string, args ...any) (res any, err error) {
	if i.destroyed {
		return nil, nil
	}
	h, ok := i.methods[name]
	if !ok {
		return nil, errors.New("E106").
			WithComponent(i.typ).
			WithDetailf("method %q", name).
			WithSuggestion(errors.Suggest(name, slices.Collect(maps.Keys(i.methods))))
	}
	defer func() {
		if r := recover(); r != nil {
			err = errors.Recovered("E144", r).WithComponent(i.typ).WithInfo(name)
		}
	}()
	res, err = h(i, template.Event{Type: name, Detail: args})
	if err != nil {
		return nil, errors.FromError(err, "E144").WithComponent(i.typ).WithInfo(name)
	}
	return res, nil
}

// Invoke calls a host module method on behalf of the instance. Callback
// ids created by the call are released when the instance is disposed and
// fire through the page's dispatcher.
func (i *Instance) Invoke(ctx context.Context, module, method string, args ...any) (any, error) {
	mod, err := i.page.app.RequireModule(module)
	if err != nil {
		return nil, err
	}
	if i.page.dispatch != nil {
		ctx = bridge.DispatchContext(ctx, i.page.dispatch)
	}
	return mod.Call(ctx, i.id, method, args...)
}

// ForceUpdate commits output buffered outside any flush.
func (i *Instance) ForceUpdate() {
	if i.destroyed {
		return
	}
	i.page.exec.Arm()
}

func (i *Instance) logger() *slog.Logger {
	return i.page.app.logger
}

// hasKey checks for key without making the current watcher depend on the
// record.
func hasKey(r *reactive.Record, key string) (ok bool) {
	reactive.Untracked(func() {
		_, ok = r.Lookup(key)
	})
	return ok
}
