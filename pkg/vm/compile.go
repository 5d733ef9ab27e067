package vm

import (
	"github.com/vango-dev/xvm/internal/errors"
	"github.com/vango-dev/xvm/pkg/dom"
	"github.com/vango-dev/xvm/pkg/template"
)

// meta carries what has already been handled for a node: a node compiled
// as one item of its repeat, or as the content of its conditional, must
// not expand the directive again.
type meta struct {
	repeat bool
	shown  bool
}

// compile materializes tn into dest. The dispatch order matters: fragment
// and block nodes handle their own directives, slots and dynamic
// components ignore them, and repeat expands before the conditional so
// each item gets its own.
func (i *Instance) compile(s template.Scope, tn *template.Node, dest *dom.Node, m meta) {
	if i.page.Fatal() || i.destroyed {
		return
	}
	switch tn.Kind() {
	case template.KindFragment, template.KindBlock:
		i.compileBlock(s, tn, dest, m)
		return
	case template.KindSlot:
		i.compileSlot(s, tn, dest)
		return
	case template.KindComponent:
		i.compileDynamic(s, tn, dest)
		return
	}
	if tn.Repeat != nil && !m.repeat {
		i.compileRepeat(s, tn, dest)
		return
	}
	if tn.Shown != nil && !m.shown {
		i.compileIf(s, tn, dest, m)
		return
	}
	if def, ok := i.component(tn.Type); ok {
		i.compileCustom(s, tn, dest, def)
		return
	}
	i.compileNative(s, tn, dest)
}

// compileSafe compiles one node, turning a panic into an error for the
// instance so siblings still compile.
func (i *Instance) compileSafe(s template.Scope, tn *template.Node, dest *dom.Node, m meta) {
	defer func() {
		if r := recover(); r != nil {
			i.handleError(errors.Recovered("E100", r), tn.Kind().String()+" "+tn.Type)
		}
	}()
	i.compile(s, tn, dest, m)
}

func (i *Instance) compileChildren(s template.Scope, nodes []*template.Node, dest *dom.Node) {
	for _, c := range nodes {
		if i.page.Fatal() {
			return
		}
		i.compileSafe(s, c, dest, meta{})
	}
}

// component resolves a custom component type: the definition's own
// components first, then the app's.
func (i *Instance) component(typ string) (*Definition, bool) {
	if typ == "" {
		return nil, false
	}
	if def, ok := i.def.Components[typ]; ok {
		return def, true
	}
	return i.page.app.lookup(typ)
}

func (i *Instance) fragment(dest *dom.Node) *dom.Node {
	f := i.page.doc.CreateFragment()
	dest.Append(f)
	return f
}

// compileBlock renders a block's children into a fragment. A block with
// a repeat or a conditional expands that first.
func (i *Instance) compileBlock(s template.Scope, tn *template.Node, dest *dom.Node, m meta) {
	if tn.Repeat != nil && !m.repeat {
		i.compileRepeat(s, tn, dest)
		return
	}
	if tn.Shown != nil && !m.shown {
		i.compileIf(s, tn, dest, m)
		return
	}
	i.compileChildren(s, tn.Children, i.fragment(dest))
}

// compileIf keeps a fragment as an anchor and fills or empties it as the
// condition changes.
func (i *Instance) compileIf(s template.Scope, tn *template.Node, dest *dom.Node, m meta) {
	frag := i.fragment(dest)
	m.shown = true

	var shown bool
	w := i.newWatcher("if", func() (any, error) {
		v, err := template.Eval(tn.Shown, s)
		return template.Truthy(v), err
	}, func(v, _ any) {
		next, _ := v.(bool)
		if next == shown {
			return
		}
		shown = next
		if next {
			i.compileSafe(s, tn, frag, m)
			return
		}
		empty(frag)
	})
	frag.AddWatcher(w)

	if v, _ := w.Value().(bool); v {
		shown = true
		i.compile(s, tn, frag, m)
	}
}

// compileDynamic renders the component named by the node's is value and
// swaps it whenever the name changes.
func (i *Instance) compileDynamic(s template.Scope, tn *template.Node, dest *dom.Node) {
	frag := i.fragment(dest)
	render := func(v any) {
		name := template.String(v)
		if name == "" || name == "component" {
			i.warn(errors.New("E101").WithDetail("dynamic component name is empty"))
			return
		}
		node := *tn
		node.Type = name
		node.Is = nil
		i.compileSafe(s, &node, frag, meta{})
	}
	w := i.evalWatcher("component", tn.Is, s, func(v, _ any) {
		empty(frag)
		render(v)
	})
	frag.AddWatcher(w)
	render(w.Value())
}

// compileCustom instantiates a child component. The child renders into
// its own fragment under dest; the node's classes and inline style then
// go onto the child's first element.
func (i *Instance) compileCustom(s template.Scope, tn *template.Node, dest *dom.Node, def *Definition) {
	child := newInstance(i.page, def, tn.Type, &binding{parent: i, scope: s, node: tn}, dest, nil)
	if child.rootElement == nil || child.destroyed {
		return
	}
	el := child.rootElement
	st := newStyleState()
	if tn.Classes != nil {
		i.bindClasses(s, el, tn.Classes, st)
	}
	if tn.Style != nil {
		i.bindStyle(s, el, tn.Style, st)
	}
}

// compileNative creates an element, binds it and compiles its children.
// In tree mode the element is attached only after its subtree is built,
// so the host receives it in one piece.
func (i *Instance) compileNative(s template.Scope, tn *template.Node, dest *dom.Node) {
	el := i.page.doc.CreateElement(tn.Type)
	if i.rootElement == nil {
		i.rootElement = el
		i.bindHostNode(el)
	}

	rich := tn.Kind() == template.KindRichText
	var skip []string
	contentType := ""
	if rich {
		contentType = richTextType(tn, s)
		if contentType != "html" {
			skip = append(skip, "value")
		}
	}
	i.bindElement(s, el, tn, skip...)

	tree := tn.Append == template.AppendTree || tn.Attr["append"] == template.AppendTree
	if !tree {
		dest.Append(el)
	}
	if !i.page.Fatal() {
		if rich {
			if contentType != "html" {
				i.compileRichText(s, tn, el, contentType)
			}
		} else {
			i.compileChildren(s, tn.Children, el)
		}
	}
	if tree && !i.page.Fatal() {
		dest.Append(el)
	}
}

// richTextType returns the content type of a rich text node, from its
// scene or type attribute. Empty means html.
func richTextType(tn *template.Node, s template.Scope) string {
	for _, k := range []string{"scene", "type"} {
		if raw, ok := tn.Attr[k]; ok {
			v, _ := template.Eval(raw, s)
			if t := template.String(v); t != "" {
				return t
			}
		}
	}
	return "html"
}

// compileRichText parses the value attribute with the app's parser and
// compiles the result as the element's children, again on every change.
func (i *Instance) compileRichText(s template.Scope, tn *template.Node, el *dom.Node, contentType string) {
	parser := i.page.app.richText
	render := func(v any) {
		if parser == nil {
			i.warn(errors.New("E107").WithDetailf("no parser for %q content", contentType))
			return
		}
		node, err := parser.Parse(contentType, template.String(v))
		if err != nil {
			i.handleError(errors.New("E107").Wrap(err), "richtext")
			return
		}
		if node != nil {
			i.compileSafe(s, node, el, meta{})
		}
	}
	w := i.evalWatcher("richtext", tn.Attr["value"], s, func(v, _ any) {
		empty(el)
		render(v)
	})
	el.AddWatcher(w)
	render(w.Value())
}
