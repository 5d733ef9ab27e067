package sandbox

import (
	"context"
	"fmt"

	"github.com/risor-io/risor/object"
	"github.com/risor-io/risor/op"

	"github.com/vango-dev/xvm/pkg/reactive"
)

const (
	recordType object.Type = "record"
	listType   object.Type = "reactive_list"
)

// recordObject exposes a Record to scripts. Every attribute or item
// access reads the one key through the record, so the key's link is the
// only one the running watcher picks up.
type recordObject struct {
	rec *reactive.Record
}

var (
	_ object.Container = (*recordObject)(nil)
	_ object.Container = (*listObject)(nil)
)

func (r *recordObject) Type() object.Type { return recordType }
func (r *recordObject) Inspect() string { return r.snapshot().Inspect() }
func (r *recordObject) Interface() interface{} { return r.rec }
func (r *recordObject) IsTruthy() bool { return r.rec.Len() > 0 }
func (r *recordObject) Cost() int { return 0 }
func (r *recordObject) Iter() object.Iterator { return r.snapshot().Iter() }
func (r *recordObject) Len() *object.Int { return object.NewInt(int64(r.rec.Len())) }
func (r *recordObject) String() string { return r.Inspect() }

func (r *recordObject) Equals(other object.Object) object.Object {
	if o, ok := other.(*recordObject); ok && o.rec == r.rec {
		return object.True
	}
	return object.False
}

func (r *recordObject) RunOperation(opType op.BinaryOpType, right object.Object) object.Object {
	return object.TypeErrorf("type error: unsupported operation for record: %v", opType)
}

// GetAttr returns the key's value. Missing keys read as nil, except for
// the map helpers keys, values and items.
func (r *recordObject) GetAttr(name string) (object.Object, bool) {
	if v, ok := r.rec.Lookup(name); ok {
		return toObject(name, v), true
	}
	switch name {
	case "keys", "values", "items":
		return r.snapshot().GetAttr(name)
	}
	return object.Nil, true
}

func (r *recordObject) SetAttr(name string, value object.Object) error {
	r.rec.Set(name, fromObject(value))
	return nil
}

func (r *recordObject) GetItem(key object.Object) (object.Object, *object.Error) {
	k, ok := key.(*object.String)
	if !ok {
		return nil, object.TypeErrorf("type error: record key must be a string (got %s)", key.Type())
	}
	return toObject(k.Value(), r.rec.Get(k.Value())), nil
}

func (r *recordObject) GetSlice(object.Slice) (object.Object, *object.Error) {
	return nil, object.TypeErrorf("type error: record does not support slicing")
}

func (r *recordObject) SetItem(key, value object.Object) *object.Error {
	k, ok := key.(*object.String)
	if !ok {
		return object.TypeErrorf("type error: record key must be a string (got %s)", key.Type())
	}
	r.rec.Set(k.Value(), fromObject(value))
	return nil
}

func (r *recordObject) DelItem(key object.Object) *object.Error {
	k, ok := key.(*object.String)
	if !ok {
		return object.TypeErrorf("type error: record key must be a string (got %s)", key.Type())
	}
	r.rec.Delete(k.Value())
	return nil
}

func (r *recordObject) Contains(item object.Object) *object.Bool {
	k, ok := item.(*object.String)
	return object.NewBool(ok && r.rec.Has(k.Value()))
}

// snapshot reads every key.
func (r *recordObject) snapshot() *object.Map {
	keys := r.rec.Keys()
	m := make(map[string]object.Object, len(keys))
	for _, k := range keys {
		m[k] = toObject(k, r.rec.Get(k))
	}
	return object.NewMap(m)
}

// listObject exposes a List to scripts. Indexing reads one item; length,
// iteration and list helpers read the whole list.
type listObject struct {
	list *reactive.List
}

func (l *listObject) Type() object.Type { return listType }
func (l *listObject) Inspect() string { return l.snapshot().Inspect() }
func (l *listObject) Interface() interface{} { return l.list }
func (l *listObject) IsTruthy() bool { return l.list.Len() > 0 }
func (l *listObject) Cost() int { return 0 }
func (l *listObject) Iter() object.Iterator { return l.snapshot().Iter() }
func (l *listObject) Len() *object.Int { return object.NewInt(int64(l.list.Len())) }
func (l *listObject) String() string { return l.Inspect() }

func (l *listObject) Equals(other object.Object) object.Object {
	switch o := other.(type) {
	case *listObject:
		return object.NewBool(o.list == l.list)
	case *object.List:
		return l.snapshot().Equals(o)
	}
	return object.False
}

func (l *listObject) RunOperation(opType op.BinaryOpType, right object.Object) object.Object {
	if o, ok := right.(*listObject); ok {
		right = o.snapshot()
	}
	return l.snapshot().RunOperation(opType, right)
}

// GetAttr serves append, which writes through to the list. Other list
// helpers run on a copy.
func (l *listObject) GetAttr(name string) (object.Object, bool) {
	if name == "append" {
		return object.NewBuiltin("list.append", func(ctx context.Context, args ...object.Object) object.Object {
			for _, a := range args {
				l.list.Push(fromObject(a))
			}
			return l
		}), true
	}
	return l.snapshot().GetAttr(name)
}

func (l *listObject) SetAttr(name string, value object.Object) error {
	return fmt.Errorf("attribute error: list has no attribute %q", name)
}

func (l *listObject) index(key object.Object) (int, *object.Error) {
	i, ok := key.(*object.Int)
	if !ok {
		return 0, object.TypeErrorf("type error: list index must be an int (got %s)", key.Type())
	}
	idx, err := object.ResolveIndex(i.Value(), int64(l.list.Len()))
	if err != nil {
		return 0, object.Errorf("%s", err)
	}
	return int(idx), nil
}

func (l *listObject) GetItem(key object.Object) (object.Object, *object.Error) {
	i, err := l.index(key)
	if err != nil {
		return nil, err
	}
	return toObject("", l.list.At(i)), nil
}

func (l *listObject) GetSlice(s object.Slice) (object.Object, *object.Error) {
	return l.snapshot().GetSlice(s)
}

func (l *listObject) SetItem(key, value object.Object) *object.Error {
	i, err := l.index(key)
	if err != nil {
		return err
	}
	l.list.SetAt(i, fromObject(value))
	return nil
}

func (l *listObject) DelItem(key object.Object) *object.Error {
	i, err := l.index(key)
	if err != nil {
		return err
	}
	l.list.RemoveAt(i)
	return nil
}

func (l *listObject) Contains(item object.Object) *object.Bool {
	return l.snapshot().Contains(item)
}

// snapshot reads every item.
func (l *listObject) snapshot() *object.List {
	items := l.list.Items()
	out := make([]object.Object, len(items))
	for i, v := range items {
		out[i] = toObject("", v)
	}
	return object.NewList(out)
}
