package vm

import (
	"reflect"

	"github.com/vango-dev/xvm/pkg/dom"
	"github.com/vango-dev/xvm/pkg/reactive"
	"github.com/vango-dev/xvm/pkg/template"
)

// compileSlot fills a slot outlet with the content the parent passed for
// it, or with the outlet's own children when there is none. Passed content
// with an unconditional first-level child is always used. When every
// first-level child is conditional or repeated, a watcher in the parent
// decides between the two whenever those directives change.
func (i *Instance) compileSlot(s template.Scope, tn *template.Node, dest *dom.Node) {
	frag := i.fragment(dest)
	b := i.binding
	if b == nil {
		i.compileChildren(s, tn.Children, frag)
		return
	}

	name := tn.Slot
	if name == "" {
		name = template.String(tn.Attr["name"])
	}
	if name == "" {
		name = "default"
	}
	content := slotContent(b.node, name)

	switch {
	case len(content) == 0:
		i.compileChildren(s, tn.Children, frag)
		return
	case hasStaticChild(content):
		b.parent.compileChildren(b.scope, content, frag)
		return
	}

	render := func(dynamic bool) {
		if dynamic {
			b.parent.compileChildren(b.scope, content, frag)
			return
		}
		i.compileChildren(s, tn.Children, frag)
	}
	w := b.parent.newWatcher("slot "+name, func() (any, error) {
		return slotHasContent(content, b.scope)
	}, func(v, _ any) {
		empty(frag)
		dynamic, _ := v.(bool)
		render(dynamic)
	})
	frag.AddWatcher(w)
	dynamic, _ := w.Value().(bool)
	render(dynamic)
}

// slotContent returns the children of a component node passed into the
// named slot.
func slotContent(node *template.Node, name string) []*template.Node {
	var out []*template.Node
	for _, c := range node.Children {
		slot := c.Slot
		if slot == "" || c.Kind() == template.KindSlot {
			slot = "default"
		}
		if slot == name {
			out = append(out, c)
		}
	}
	return out
}

func hasStaticChild(nodes []*template.Node) bool {
	for _, c := range nodes {
		if c.Static() {
			return true
		}
	}
	return false
}

// slotHasContent reports whether any child would currently render: its
// condition holds and its repeat source is unset or non-empty.
func slotHasContent(nodes []*template.Node, s template.Scope) (bool, error) {
	for _, c := range nodes {
		shown := true
		if c.Shown != nil {
			v, err := template.Eval(c.Shown, s)
			if err != nil {
				return false, err
			}
			shown = template.Truthy(v)
		}
		repeated := true
		if c.Repeat != nil {
			v, err := template.Eval(c.Repeat.Exp, s)
			if err != nil {
				return false, err
			}
			repeated = !template.Truthy(v) || hasLength(v)
		}
		if shown && repeated {
			return true, nil
		}
	}
	return false, nil
}

func hasLength(v any) bool {
	switch c := v.(type) {
	case *reactive.List:
		return c.Len() > 0
	case string:
		return c != ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return rv.Len() > 0
	}
	return false
}
