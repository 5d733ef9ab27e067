package vm

import (
	"reflect"
	"strconv"

	"github.com/vango-dev/xvm/internal/errors"
	"github.com/vango-dev/xvm/pkg/dom"
	"github.com/vango-dev/xvm/pkg/reactive"
	"github.com/vango-dev/xvm/pkg/template"
)

// repeatBlock is the render state of one repeat: the anchor fragment and
// one child fragment per rendered item, in order.
type repeatBlock struct {
	inst      *Instance
	scope     template.Scope
	tn        *template.Node
	frag      *dom.Node
	keyName   string
	valueName string
	trackBy   string
	items     []*repeatItem
}

type repeatItem struct {
	key  string
	node *dom.Node
	vars *itemScope
}

// repeatEntry is one item of the evaluated source with its identity.
type repeatEntry struct {
	idx  int
	item any
	key  string
}

// repeatData is what the repeat watcher yields. It is a pointer so every
// notification reaches the diff.
type repeatData struct {
	entries []repeatEntry
}

func (i *Instance) compileRepeat(s template.Scope, tn *template.Node, dest *dom.Node) {
	r := &repeatBlock{
		inst:      i,
		scope:     s,
		tn:        tn,
		frag:      i.fragment(dest),
		keyName:   tn.Repeat.Key,
		valueName: tn.Repeat.Value,
		trackBy:   tn.Repeat.TrackBy,
	}
	if r.keyName == "" {
		r.keyName = "$idx"
	}
	if r.valueName == "" {
		r.valueName = "$item"
	}
	if r.trackBy == "" {
		r.trackBy = template.String(tn.Attr["tid"])
	}

	w := i.newWatcher("repeat", r.evaluate, func(v, _ any) {
		if d, ok := v.(*repeatData); ok {
			r.update(d.entries)
		}
	})
	r.frag.AddWatcher(w)
	if d, ok := w.Value().(*repeatData); ok {
		r.update(d.entries)
	}
}

// evaluate reads the source and computes every item's key. Items whose
// identity field is empty are skipped.
func (r *repeatBlock) evaluate() (any, error) {
	v, err := template.Eval(r.tn.Repeat.Exp, r.scope)
	if err != nil {
		return nil, err
	}
	items, ok := repeatSource(v)
	if !ok {
		r.inst.warn(errors.New("E104").WithDetailf("cannot repeat over %T", reactive.Unwrap(v)))
		return &repeatData{}, nil
	}
	d := &repeatData{entries: make([]repeatEntry, 0, len(items))}
	for n, item := range items {
		key := "@" + strconv.Itoa(n)
		if r.trackBy != "" {
			id := template.String(trackField(item, r.trackBy))
			if id == "" {
				r.inst.warn(errors.New("E102").WithDetailf("item %d has no %q", n, r.trackBy))
				continue
			}
			key = "@" + id
		}
		d.entries = append(d.entries, repeatEntry{idx: n, item: item, key: key})
	}
	return d, nil
}

// repeatSource normalizes a repeat source to its items. A count n yields
// 1 through n.
func repeatSource(v any) ([]any, bool) {
	switch c := v.(type) {
	case nil:
		return nil, true
	case *reactive.List:
		return c.Items(), true
	case []any:
		return c, true
	case *reactive.Record, map[string]any, string, bool:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for n := range out {
			out[n] = rv.Index(n).Interface()
		}
		return out, true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return count(int(rv.Int())), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return count(int(rv.Uint())), true
	case reflect.Float32, reflect.Float64:
		return count(int(rv.Float())), true
	}
	return nil, false
}

func count(n int) []any {
	out := make([]any, 0, max(n, 0))
	for k := 1; k <= n; k++ {
		out = append(out, k)
	}
	return out
}

// trackField reads the identity field of an item. *this is the item
// itself.
func trackField(item any, name string) any {
	if name == "*this" {
		return item
	}
	switch c := item.(type) {
	case *reactive.Record:
		return c.Get(name)
	case map[string]any:
		return c[name]
	}
	return nil
}

// update reconciles the rendered items with next. Items are matched by
// key; for a duplicated key only the last occurrence can reuse an old
// item. Reused items not on the longest run that is already in order are
// moved, so a reorder emits as few moves as possible.
func (r *repeatBlock) update(next []repeatEntry) {
	if len(r.items) == 0 {
		for _, e := range next {
			it := r.create(e)
			r.frag.Append(it.node)
			r.items = append(r.items, it)
		}
		return
	}

	last := make(map[string]int, len(next))
	for n, e := range next {
		if _, dup := last[e.key]; dup {
			r.inst.warn(errors.New("E103").WithDetailf("key %q", e.key[1:]))
		}
		last[e.key] = n
	}

	reuse := make(map[string]*repeatItem)
	for _, it := range r.items {
		if _, ok := last[it.key]; !ok {
			r.remove(it)
			continue
		}
		if prev, ok := reuse[it.key]; ok {
			r.remove(prev)
		}
		reuse[it.key] = it
	}
	oldPos := make(map[*repeatItem]int, len(reuse))
	for _, it := range reuse {
		oldPos[it] = r.frag.IndexOf(it.node)
	}

	items := make([]*repeatItem, len(next))
	fresh := make([]bool, len(next))
	for n, e := range next {
		if it, ok := reuse[e.key]; ok && last[e.key] == n {
			it.vars.vars.Set(r.keyName, e.idx)
			it.vars.vars.Set(r.valueName, e.item)
			items[n] = it
			continue
		}
		items[n] = r.create(e)
		fresh[n] = true
	}

	seq := make([]int, len(next))
	for n := range next {
		seq[n] = -1
		if !fresh[n] {
			seq[n] = oldPos[items[n]]
		}
	}
	stable := increasingRun(seq)

	for n := len(items) - 1; n >= 0; n-- {
		if stable[n] {
			continue
		}
		at := r.frag.Len()
		if n+1 < len(items) {
			at = r.frag.IndexOf(items[n+1].node)
		}
		node := items[n].node
		if fresh[n] {
			r.frag.InsertAt(node, at)
			continue
		}
		if from := r.frag.IndexOf(node); from < at {
			at--
		}
		node.MoveTo(at)
	}
	r.items = items
}

// create compiles one item detached, so that inserting it sends the host
// the finished subtree.
func (r *repeatBlock) create(e repeatEntry) *repeatItem {
	vars := newItemScope(r.scope, map[string]any{
		r.keyName:   e.idx,
		r.valueName: e.item,
	})
	node := r.inst.page.doc.CreateFragment()
	r.inst.compileSafe(vars, r.tn, node, meta{repeat: true})
	return &repeatItem{key: e.key, node: node, vars: vars}
}

func (r *repeatBlock) remove(it *repeatItem) {
	unbind(it.node)
	it.node.Remove()
}

// increasingRun marks the positions of a longest strictly increasing
// subsequence of seq, ignoring negative entries.
func increasingRun(seq []int) []bool {
	marks := make([]bool, len(seq))
	prev := make([]int, len(seq))
	var tails []int
	for n, v := range seq {
		if v < 0 {
			continue
		}
		lo, hi := 0, len(tails)
		for lo < hi {
			mid := (lo + hi) / 2
			if seq[tails[mid]] < v {
				lo = mid + 1
			} else {
				hi = mid
			}
		}
		prev[n] = -1
		if lo > 0 {
			prev[n] = tails[lo-1]
		}
		if lo == len(tails) {
			tails = append(tails, n)
		} else {
			tails[lo] = n
		}
	}
	if len(tails) == 0 {
		return marks
	}
	for n := tails[len(tails)-1]; n >= 0; n = prev[n] {
		marks[n] = true
	}
	return marks
}
