package sandbox

import (
	"context"
	"fmt"
	"reflect"

	"github.com/risor-io/risor/object"

	"github.com/vango-dev/xvm/pkg/reactive"
	"github.com/vango-dev/xvm/pkg/template"
)

// toObject converts a scope value. Records and lists are wrapped, so
// only the keys and items a script touches are read.
func toObject(name string, v any) object.Object {
	switch c := v.(type) {
	case nil:
		return object.Nil
	case object.Object:
		return c
	case bool:
		return object.NewBool(c)
	case string:
		return object.NewString(c)
	case int:
		return object.NewInt(int64(c))
	case int8:
		return object.NewInt(int64(c))
	case int16:
		return object.NewInt(int64(c))
	case int32:
		return object.NewInt(int64(c))
	case int64:
		return object.NewInt(c)
	case uint:
		return object.NewInt(int64(c))
	case uint32:
		return object.NewInt(int64(c))
	case uint64:
		return object.NewInt(int64(c))
	case float32:
		return object.NewFloat(float64(c))
	case float64:
		return object.NewFloat(c)
	case *reactive.Record:
		return &recordObject{rec: c}
	case *reactive.List:
		return &listObject{list: c}
	case map[string]any:
		m := make(map[string]object.Object, len(c))
		for k, item := range c {
			m[k] = toObject(k, item)
		}
		return object.NewMap(m)
	case []any:
		items := make([]object.Object, 0, len(c))
		for _, item := range c {
			items = append(items, toObject(name, item))
		}
		return object.NewList(items)
	case template.Func:
		return funcBuiltin(name, c)
	case func(args ...any) (any, error):
		return funcBuiltin(name, c)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		items := make([]object.Object, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			items = append(items, toObject(name, rv.Index(i).Interface()))
		}
		return object.NewList(items)
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			m := make(map[string]object.Object, rv.Len())
			iter := rv.MapRange()
			for iter.Next() {
				k := iter.Key().String()
				m[k] = toObject(k, iter.Value().Interface())
			}
			return object.NewMap(m)
		}
	}

	if p, err := object.NewProxy(v); err == nil {
		return p
	}
	return object.NewString(fmt.Sprint(v))
}

func funcBuiltin(name string, fn func(args ...any) (any, error)) *object.Builtin {
	return object.NewBuiltin(name, func(ctx context.Context, args ...object.Object) object.Object {
		in := make([]any, len(args))
		for i, a := range args {
			in[i] = fromObject(a)
		}
		out, err := fn(in...)
		if err != nil {
			return object.Errorf("%s: %v", name, err)
		}
		return toObject(name, out)
	})
}

// fromObject converts a script result back to plain Go values. Integers
// come back as int so they compare equal to YAML and Go literals.
func fromObject(obj object.Object) any {
	if obj == nil {
		return nil
	}
	switch c := obj.(type) {
	case *object.Proxy:
		return c.Interface()
	case *recordObject:
		return c.rec
	case *listObject:
		return c.list
	}
	return normalize(obj.Interface())
}

func normalize(v any) any {
	switch c := v.(type) {
	case int64:
		return int(c)
	case []any:
		out := make([]any, len(c))
		for i, item := range c {
			out[i] = normalize(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(c))
		for k, item := range c {
			out[k] = normalize(item)
		}
		return out
	}
	return v
}
