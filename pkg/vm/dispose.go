package vm

import (
	"maps"
	"slices"

	"github.com/vango-dev/xvm/pkg/dom"
)

// Dispose tears the instance down and removes its output.
func (i *Instance) Dispose() {
	i.dispose(true)
}

// dispose runs onDestroy, closes every watcher the instance owns or
// depends on, releases bridge callbacks, then disposes the children
// top-down and unbinds the rendered tree. Only the outermost call detaches
// output; descendants go with it.
func (i *Instance) dispose(detach bool) {
	if i.destroyed {
		return
	}
	i.emit(&Event{Type: OnDestroy})
	i.destroyed = true

	for _, w := range slices.Clone(i.watchers) {
		w.Close()
	}
	for _, w := range i.parentWatchers {
		w.Close()
	}
	for _, name := range slices.Sorted(maps.Keys(i.computed)) {
		i.computed[name].Close()
	}
	i.watchers = nil
	i.parentWatchers = nil

	if r := i.page.app.bridge; r != nil {
		r.Release(i.id)
	}
	i.listeners = make(map[string][]*listener)
	i.data.Observer().RemoveOwner(i)

	for _, c := range slices.Clone(i.children) {
		c.dispose(false)
	}
	i.children = nil

	if p := i.parent; p != nil {
		p.children = slices.DeleteFunc(p.children, func(c *Instance) bool { return c == i })
		for id, c := range p.refs {
			if c == i {
				delete(p.refs, id)
			}
		}
	}

	if i.frag != nil {
		unbindTree(i.frag)
		if detach {
			i.frag.Remove()
		}
	}
}

// unbind closes the watchers of n and its subtree. A component fragment
// is handed to its instance, which unbinds it while disposing.
func unbind(n *dom.Node) {
	if inst, ok := n.Attached().(*Instance); ok {
		inst.dispose(false)
		return
	}
	unbindTree(n)
}

func unbindTree(n *dom.Node) {
	n.CloseWatchers()
	for _, c := range n.Children() {
		unbind(c)
	}
}

// empty removes every child of n.
func empty(n *dom.Node) {
	for _, c := range n.Children() {
		unbind(c)
		c.Remove()
	}
}
