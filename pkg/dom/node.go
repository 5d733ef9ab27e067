package dom

import (
	"errors"
	"sort"

	"github.com/vango-dev/xvm/pkg/reactive"
)

// Kind distinguishes host-visible elements from logical fragments.
type Kind uint8

const (
	KindElement Kind = iota
	KindFragment
)

// Closer is a resource bound to a node's lifetime, usually a watcher.
type Closer interface {
	Close()
}

// Node is one element or fragment of the render tree.
type Node struct {
	doc      *Document
	ref      int
	kind     Kind
	typ      string
	parent   *Node
	children []*Node

	attr      map[string]any
	style     map[string]any
	events    []string
	listeners map[string][]Listener

	watchers []Closer
	attached any
}

// Opaque keeps nodes out of the reactive store.
func (n *Node) Opaque() {}

// Ref returns the node's stable reference id.
func (n *Node) Ref() int { return n.ref }

// Type returns the element type; fragments have none.
func (n *Node) Type() string { return n.typ }

// Kind returns the node kind.
func (n *Node) Kind() Kind { return n.kind }

// IsFragment reports whether the node is a logical fragment.
func (n *Node) IsFragment() bool { return n.kind == KindFragment }

// Document returns the owning document.
func (n *Node) Document() *Document { return n.doc }

// Parent returns the logical parent, nil when detached.
func (n *Node) Parent() *Node { return n.parent }

// Children returns a copy of the logical children.
func (n *Node) Children() []*Node {
	out := make([]*Node, len(n.children))
	copy(out, n.children)
	return out
}

// Len returns the number of logical children.
func (n *Node) Len() int { return len(n.children) }

// ChildAt returns child i or nil.
func (n *Node) ChildAt(i int) *Node {
	if i < 0 || i >= len(n.children) {
		return nil
	}
	return n.children[i]
}

// IndexOf returns the logical position of child, or -1.
func (n *Node) IndexOf(child *Node) int {
	for i, c := range n.children {
		if c == child {
			return i
		}
	}
	return -1
}

// Connected reports whether the node is reachable from the document
// element. Only connected nodes produce commands.
func (n *Node) Connected() bool {
	if n.doc.closed {
		return false
	}
	for cur := n; cur != nil; cur = cur.parent {
		if cur == n.doc.root {
			return true
		}
	}
	return false
}

// Append inserts child as the last logical child.
func (n *Node) Append(child *Node) {
	n.InsertAt(child, len(n.children))
}

// InsertAt inserts child at logical position index, clamped to the
// child range. A child attached elsewhere is detached first; a child of n
// is moved instead.
func (n *Node) InsertAt(child *Node, index int) {
	if child.parent == n {
		child.MoveTo(index)
		return
	}
	if child.parent != nil {
		child.detach(true)
	}
	index = max(0, min(index, len(n.children)))
	n.children = append(n.children, nil)
	copy(n.children[index+1:], n.children[index:])
	n.children[index] = child
	child.parent = n

	if n.Connected() {
		hp, at := hostPosition(child)
		for i, h := range hostTops(child) {
			n.doc.emitCreateTree(h, hp.ref, at+i)
		}
	}
}

// MoveTo repositions the node among its siblings. The host receives one
// moveChild per host element of the node. Each moveChild means: remove
// the element, then insert it at Index of the resulting list. Moves toward
// the front are emitted in order and moves toward the back in reverse, so
// a multi-element fragment lands contiguous either way.
func (n *Node) MoveTo(index int) {
	p := n.parent
	if p == nil {
		return
	}
	from := p.IndexOf(n)
	index = max(0, min(index, len(p.children)-1))
	if from == index {
		return
	}
	connected := p.Connected()
	var oldAt int
	if connected {
		_, oldAt = hostPosition(n)
	}

	p.children = append(p.children[:from], p.children[from+1:]...)
	p.children = append(p.children, nil)
	copy(p.children[index+1:], p.children[index:])
	p.children[index] = n

	if !connected {
		return
	}
	tops := hostTops(n)
	if len(tops) == 0 {
		return
	}
	hp, newAt := hostPosition(n)
	if newAt <= oldAt {
		for i, h := range tops {
			n.doc.emit(Command{Op: OpMoveChild, Parent: hp.ref, Ref: h.ref, Index: newAt + i})
		}
		return
	}
	for i := len(tops) - 1; i >= 0; i-- {
		n.doc.emit(Command{Op: OpMoveChild, Parent: hp.ref, Ref: tops[i].ref, Index: newAt + i})
	}
}

// Remove detaches the node and its subtree from the document. The host
// receives one removeChild per host element at the top of the subtree.
// Removed nodes are forgotten by the document.
func (n *Node) Remove() {
	if n.parent == nil {
		return
	}
	n.detach(true)
	n.doc.forget(n)
}

// RemoveChildren removes every child, keeping n itself in place.
func (n *Node) RemoveChildren() {
	for _, c := range n.Children() {
		c.Remove()
	}
}

func (n *Node) detach(emit bool) {
	if emit && n.Connected() {
		for _, h := range hostTops(n) {
			n.doc.emit(Command{Op: OpRemoveChild, Ref: h.ref})
		}
	}
	p := n.parent
	if i := p.IndexOf(n); i >= 0 {
		p.children = append(p.children[:i], p.children[i+1:]...)
	}
	n.parent = nil
}

// SetAttr sets an attribute. Observable values are stored as plain
// copies. Connected elements emit updateAttr unless the primitive value
// is unchanged.
func (n *Node) SetAttr(key string, v any) {
	v = plain(v)
	if n.attr == nil {
		n.attr = make(map[string]any)
	}
	old, had := n.attr[key]
	n.attr[key] = v
	if had && reactive.IsPrimitive(v) && reactive.Same(old, v) {
		return
	}
	if n.kind == KindElement && n.Connected() {
		n.doc.emit(Command{Op: OpUpdateAttr, Ref: n.ref, Key: key, Value: v})
	}
}

// Attr returns an attribute value.
func (n *Node) Attr(key string) any {
	return n.attr[key]
}

// Attrs returns a copy of the attributes.
func (n *Node) Attrs() map[string]any {
	return copyMap(n.attr)
}

// SetStyle sets one style declaration.
func (n *Node) SetStyle(key string, v any) {
	v = plain(v)
	if n.style == nil {
		n.style = make(map[string]any)
	}
	old, had := n.style[key]
	n.style[key] = v
	if had && reactive.IsPrimitive(v) && reactive.Same(old, v) {
		return
	}
	if n.kind == KindElement && n.Connected() {
		n.doc.emit(Command{Op: OpUpdateStyle, Ref: n.ref, Key: key, Value: v})
	}
}

// SetStyles sets several declarations in key order.
func (n *Node) SetStyles(styles map[string]any) {
	keys := make([]string, 0, len(styles))
	for k := range styles {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		n.SetStyle(k, styles[k])
	}
}

// Style returns a style value.
func (n *Node) Style(key string) any {
	return n.style[key]
}

// Styles returns a copy of the styles.
func (n *Node) Styles() map[string]any {
	return copyMap(n.style)
}

// AddEvent registers a listener. The first listener for a type is
// announced to the host.
func (n *Node) AddEvent(typ string, l Listener) {
	if n.listeners == nil {
		n.listeners = make(map[string][]Listener)
	}
	if _, ok := n.listeners[typ]; !ok {
		n.events = append(n.events, typ)
		if n.kind == KindElement && n.Connected() {
			n.doc.emit(Command{Op: OpAddEvent, Ref: n.ref, Key: typ})
		}
	}
	n.listeners[typ] = append(n.listeners[typ], l)
}

// RemoveEvent drops every listener for typ.
func (n *Node) RemoveEvent(typ string) {
	if _, ok := n.listeners[typ]; !ok {
		return
	}
	delete(n.listeners, typ)
	for i, e := range n.events {
		if e == typ {
			n.events = append(n.events[:i], n.events[i+1:]...)
			break
		}
	}
	if n.kind == KindElement && n.Connected() {
		n.doc.emit(Command{Op: OpRemoveEvent, Ref: n.ref, Key: typ})
	}
}

// Events returns the event types with listeners, in registration order.
func (n *Node) Events() []string {
	return append([]string(nil), n.events...)
}

// Dispatch runs the listeners for typ in order. Every listener runs; their
// errors are joined.
func (n *Node) Dispatch(typ string, detail any) error {
	var errs []error
	for _, l := range n.listeners[typ] {
		if err := l(Event{Type: typ, Target: n, Detail: detail}); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AddWatcher binds a resource to the node's lifetime.
func (n *Node) AddWatcher(c Closer) {
	n.watchers = append(n.watchers, c)
}

// Watchers returns the bound resources.
func (n *Node) Watchers() []Closer {
	return append([]Closer(nil), n.watchers...)
}

// CloseWatchers closes and forgets every bound resource.
func (n *Node) CloseWatchers() {
	ws := n.watchers
	n.watchers = nil
	for _, w := range ws {
		w.Close()
	}
}

// Attach records the component instance that owns this node.
func (n *Node) Attach(owner any) {
	n.attached = owner
}

// Attached returns the owning instance recorded by Attach.
func (n *Node) Attached() any {
	return n.attached
}

func (d *Document) emitCreateTree(n *Node, parentRef, index int) {
	d.emit(Command{
		Op:     OpCreate,
		Ref:    n.ref,
		Type:   n.typ,
		Attr:   copyMap(n.attr),
		Style:  copyMap(n.style),
		Events: n.Events(),
	})
	d.emit(Command{Op: OpAddChild, Parent: parentRef, Ref: n.ref, Index: index})
	i := 0
	for _, c := range n.children {
		for _, h := range hostTops(c) {
			d.emitCreateTree(h, n.ref, i)
			i++
		}
	}
}

// hostTops returns the host elements at the top of n's subtree: n itself
// for an element, the flattened element children for a fragment.
func hostTops(n *Node) []*Node {
	if n.kind == KindElement {
		return []*Node{n}
	}
	var out []*Node
	for _, c := range n.children {
		out = append(out, hostTops(c)...)
	}
	return out
}

func hostCount(n *Node) int {
	if n.kind == KindElement {
		return 1
	}
	total := 0
	for _, c := range n.children {
		total += hostCount(c)
	}
	return total
}

// hostPosition returns the nearest element ancestor of n and the host
// index n's first host element has (or would have) under it.
func hostPosition(n *Node) (*Node, int) {
	at := 0
	cur := n
	for p := n.parent; p != nil; cur, p = p, p.parent {
		for _, sib := range p.children {
			if sib == cur {
				break
			}
			at += hostCount(sib)
		}
		if p.kind == KindElement {
			return p, at
		}
	}
	return nil, at
}

// HostIndex returns the node's host position under its nearest element
// ancestor.
func (n *Node) HostIndex() int {
	_, at := hostPosition(n)
	return at
}

func plain(v any) any {
	var out any
	reactive.Untracked(func() {
		out = reactive.Unwrap(v)
	})
	return out
}

func copyMap(m map[string]any) map[string]any {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
