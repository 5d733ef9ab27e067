package vm

import (
	"maps"
	"slices"
	"strings"

	"github.com/vango-dev/xvm/internal/errors"
	"github.com/vango-dev/xvm/pkg/dom"
	"github.com/vango-dev/xvm/pkg/reactive"
	"github.com/vango-dev/xvm/pkg/template"
)

// closerFunc adapts a function to dom.Closer so that cleanup runs when the
// node is unbound.
type closerFunc func()

func (f closerFunc) Close() { f() }

// nodeID evaluates the template id of tn without tracking.
func nodeID(tn *template.Node, s template.Scope) string {
	raw := tn.ID
	if raw == nil {
		raw = tn.Attr["id"]
	}
	if raw == nil {
		return ""
	}
	var v any
	reactive.Untracked(func() {
		v, _ = template.Eval(raw, s)
	})
	return template.String(v)
}

// bindElement applies a template node's id, attributes, classes, style,
// directives and events to el.
func (i *Instance) bindElement(s template.Scope, el *dom.Node, tn *template.Node, skip ...string) {
	if id := nodeID(tn, s); id != "" {
		el.SetAttr("id", id)
		i.elements[id] = el
		el.AddWatcher(closerFunc(func() {
			if i.elements[id] == el {
				delete(i.elements, id)
			}
		}))
	}
	for _, k := range slices.Sorted(maps.Keys(tn.Attr)) {
		if bindingOnlyAttrs[k] || slices.Contains(skip, k) {
			continue
		}
		i.bindAttr(s, el, k, tn.Attr[k])
	}

	st := newStyleState()
	if tn.Classes != nil || len(i.def.ExternalClasses) > 0 {
		i.bindClasses(s, el, tn.Classes, st)
	}
	if tn.Style != nil {
		i.bindStyle(s, el, tn.Style, st)
	}
	i.bindDirectives(s, el, tn.Directives)
	i.bindEvents(s, el, tn.Events)
}

func (i *Instance) bindAttr(s template.Scope, el *dom.Node, key string, raw any) {
	if !template.IsDynamic(raw) {
		el.SetAttr(key, raw)
		return
	}
	w := i.evalWatcher("attr "+key, raw, s, func(v, _ any) {
		el.SetAttr(key, v)
	})
	el.AddWatcher(w)
	el.SetAttr(key, w.Value())
}

// styleState tracks where each style key on an element came from. Keys
// set by an inline style are never overridden by class declarations.
type styleState struct {
	explicit  map[string]bool
	fromClass map[string]bool
}

func newStyleState() *styleState {
	return &styleState{
		explicit:  make(map[string]bool),
		fromClass: make(map[string]bool),
	}
}

func (st *styleState) setExplicit(el *dom.Node, key string, v any) {
	st.explicit[key] = true
	delete(st.fromClass, key)
	el.SetStyle(key, v)
}

// applyClasses replaces the class derived declarations on el.
func (st *styleState) applyClasses(el *dom.Node, decl map[string]any) {
	for _, k := range slices.Sorted(maps.Keys(st.fromClass)) {
		if _, ok := decl[k]; !ok {
			el.SetStyle(k, "")
			delete(st.fromClass, k)
		}
	}
	for _, k := range slices.Sorted(maps.Keys(decl)) {
		if st.explicit[k] {
			continue
		}
		st.fromClass[k] = true
		el.SetStyle(k, decl[k])
	}
}

type classResult struct {
	names []string
	decl  map[string]any
}

// bindClasses sets the class attribute and the declarations the classes
// resolve to. With external classes the style table itself is reactive,
// so the binding is watched even when the class list is constant.
func (i *Instance) bindClasses(s template.Scope, el *dom.Node, raw any, st *styleState) {
	resolve := func() (*classResult, error) {
		v, err := template.Eval(raw, s)
		if err != nil {
			return nil, err
		}
		res := &classResult{names: classList(v), decl: make(map[string]any)}
		for _, c := range res.names {
			maps.Copy(res.decl, i.classStyle(c))
		}
		return res, nil
	}
	apply := func(res *classResult) {
		if res == nil {
			return
		}
		el.SetAttr("class", strings.Join(res.names, " "))
		st.applyClasses(el, res.decl)
	}

	if !template.IsDynamic(raw) && len(i.def.ExternalClasses) == 0 {
		res, _ := resolve()
		apply(res)
		return
	}
	w := i.newWatcher("class", func() (any, error) {
		return resolve()
	}, func(v, _ any) {
		res, _ := v.(*classResult)
		apply(res)
	})
	el.AddWatcher(w)
	res, _ := w.Value().(*classResult)
	apply(res)
}

// bindStyle applies an inline style: a declaration map with constant or
// dynamic values, a dynamic map, or a css declaration string.
func (i *Instance) bindStyle(s template.Scope, el *dom.Node, raw any, st *styleState) {
	if decl, ok := raw.(map[string]any); ok {
		for _, k := range slices.Sorted(maps.Keys(decl)) {
			v := decl[k]
			if !template.IsDynamic(v) {
				st.setExplicit(el, k, v)
				continue
			}
			w := i.evalWatcher("style "+k, v, s, func(v, _ any) {
				st.setExplicit(el, k, v)
			})
			el.AddWatcher(w)
			st.setExplicit(el, k, w.Value())
		}
		return
	}

	var prev map[string]any
	apply := func(v any) {
		next := styleMap(v)
		for k := range prev {
			if _, ok := next[k]; !ok {
				st.setExplicit(el, k, "")
			}
		}
		for _, k := range slices.Sorted(maps.Keys(next)) {
			st.setExplicit(el, k, next[k])
		}
		prev = next
	}
	if !template.IsDynamic(raw) {
		apply(raw)
		return
	}
	w := i.evalWatcher("style", raw, s, func(v, _ any) {
		apply(v)
	})
	el.AddWatcher(w)
	apply(w.Value())
}

// styleMap normalizes a style value to a declaration map.
func styleMap(v any) map[string]any {
	out := make(map[string]any)
	switch c := v.(type) {
	case map[string]any:
		maps.Copy(out, c)
	case *reactive.Record:
		for _, k := range c.Keys() {
			out[k] = c.Get(k)
		}
	case string:
		for _, decl := range strings.Split(c, ";") {
			k, val, ok := strings.Cut(decl, ":")
			if !ok {
				continue
			}
			if k = strings.TrimSpace(k); k != "" {
				out[k] = strings.TrimSpace(val)
			}
		}
	}
	return out
}

func (i *Instance) bindDirectives(s template.Scope, el *dom.Node, dirs []template.Directive) {
	for _, d := range dirs {
		def, ok := i.directives[strings.ToLower(d.Name)]
		if !ok {
			i.warn(errors.New("E105").WithDetailf("directive %q", d.Name).
				WithSuggestion(errors.Suggest(strings.ToLower(d.Name), slices.Collect(maps.Keys(i.directives)))))
			continue
		}
		i.bindDirective(s, el, d, def)
	}
}

// bindDirective runs the bind hook now, update on every value change and
// unbind when the element is unbound.
func (i *Instance) bindDirective(s template.Scope, el *dom.Node, d template.Directive, def Directive) {
	name := strings.ToLower(d.Name)
	value := d.Value
	if template.IsDynamic(d.Value) {
		w := i.evalWatcher("directive "+name, d.Value, s, func(v, old any) {
			value = v
			i.directiveHook(def.Update, el, DirectiveBinding{Name: name, Value: v, OldValue: old, Instance: i})
		})
		el.AddWatcher(w)
		value = w.Value()
	}
	i.directiveHook(def.Bind, el, DirectiveBinding{Name: name, Value: value, Instance: i})
	if def.Unbind != nil {
		el.AddWatcher(closerFunc(func() {
			i.directiveHook(def.Unbind, el, DirectiveBinding{Name: name, Value: value, Instance: i})
		}))
	}
}

func (i *Instance) directiveHook(fn func(*dom.Node, DirectiveBinding), el *dom.Node, b DirectiveBinding) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			i.handleError(errors.Recovered("E140", r), "directive "+b.Name)
		}
	}()
	fn(el, b)
}

func (i *Instance) bindEvents(s template.Scope, el *dom.Node, events map[string]any) {
	for _, typ := range slices.Sorted(maps.Keys(events)) {
		h := events[typ]
		el.AddEvent(typ, func(e dom.Event) error {
			i.handle(s, h, template.Event{Type: e.Type, Detail: e.Detail, Target: e.Target})
			return nil
		})
	}
}

// bindParentEvents turns the events on a component node into instance
// listeners that run the parent's handlers in the parent's scope.
func (i *Instance) bindParentEvents(b *binding) {
	for _, typ := range slices.Sorted(maps.Keys(b.node.Events)) {
		h := b.node.Events[typ]
		i.On(typ, func(e *Event) (any, error) {
			return b.parent.invoke(b.scope, h, template.Event{Type: e.Type, Detail: e.Detail, Target: e})
		})
	}
}

// bindHostNode applies the directives written on the component node to
// the instance's first element, resolved and evaluated in the parent.
func (i *Instance) bindHostNode(el *dom.Node) {
	b := i.binding
	if b == nil {
		return
	}
	for _, d := range b.node.Directives {
		if def, ok := b.parent.directives[strings.ToLower(d.Name)]; ok {
			b.parent.bindDirective(b.scope, el, d, def)
		}
	}
}

// handle runs an element event handler and routes its error.
func (i *Instance) handle(s template.Scope, h any, ev template.Event) {
	if i.destroyed {
		return
	}
	if _, err := i.invoke(s, h, ev); err != nil {
		i.handleError(errors.FromError(err, "E142"), ev.Type)
	}
}

// invoke runs h, a method name or a handler, with ev.
func (i *Instance) invoke(s template.Scope, h any, ev template.Event) (res any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Recovered("E142", r)
		}
	}()
	switch fn := h.(type) {
	case string:
		return s.Call(fn, ev)
	case template.Handler:
		return fn(s, ev)
	case func(template.Scope, template.Event) (any, error):
		return fn(s, ev)
	case nil:
		return nil, nil
	}
	return nil, errors.Newf(errors.CategoryCallback, "Unsupported handler %T", h)
}
