package vm

import (
	"maps"
	"reflect"
	"slices"
	"strings"
	"unicode"

	"github.com/vango-dev/xvm/internal/errors"
	"github.com/vango-dev/xvm/pkg/reactive"
	"github.com/vango-dev/xvm/pkg/template"
)

// Attributes of a component node that never become props or $attrs.
var bindingOnlyAttrs = map[string]bool{
	"id":     true,
	"tid":    true,
	"append": true,
}

// bindProps feeds the component node's attributes into props and $attrs.
// Dynamic values are watched in the parent, which owns the watchers; the
// child keeps them too so it can close them when it goes away. Without
// declared props every attribute becomes a prop.
func (i *Instance) bindProps(b *binding) {
	attrs := b.node.Attr
	consumed := make(map[string]bool)
	for _, name := range i.def.ExternalClasses {
		consumed[camelize(name)] = true
		consumed[name] = true
	}

	if len(i.def.Props) == 0 {
		for _, k := range slices.Sorted(maps.Keys(attrs)) {
			if bindingOnlyAttrs[k] || consumed[k] {
				continue
			}
			i.bindValue(b, i.props, camelize(k), attrs[k], nil)
		}
		return
	}

	for _, name := range slices.Sorted(maps.Keys(i.def.Props)) {
		spec := i.def.Props[name]
		key, present := lookupAttr(attrs, name)
		consumed[key] = true
		if !present {
			i.props.Set(name, i.validateProp(name, spec, nil, false))
			continue
		}
		i.bindValue(b, i.props, name, attrs[key], &spec)
	}

	for _, k := range slices.Sorted(maps.Keys(attrs)) {
		if bindingOnlyAttrs[k] || consumed[k] {
			continue
		}
		i.bindValue(b, i.attrs, k, attrs[k], nil)
	}
}

// bindValue writes raw into rec under name, through a parent watcher
// when raw is dynamic.
func (i *Instance) bindValue(b *binding, rec *reactive.Record, name string, raw any, spec *PropSpec) {
	set := func(v any) {
		if spec != nil {
			v = i.validateProp(name, *spec, v, true)
		}
		rec.Set(name, v)
	}
	if !template.IsDynamic(raw) {
		set(raw)
		return
	}
	w := b.parent.evalWatcher("prop "+name, raw, b.scope, func(v, _ any) {
		set(v)
	})
	i.parentWatchers = append(i.parentWatchers, w)
	set(w.Value())
}

// lookupAttr finds a prop's attribute under its own name or hyphenated.
func lookupAttr(attrs map[string]any, name string) (string, bool) {
	if _, ok := attrs[name]; ok {
		return name, true
	}
	h := hyphenate(name)
	if _, ok := attrs[h]; ok {
		return h, true
	}
	return name, false
}

// validateProp applies boolean casting and the default, then checks the
// result. Failed checks are logged; the value is used either way.
func (i *Instance) validateProp(name string, spec PropSpec, v any, present bool) any {
	types := propTypes(spec.Type)
	if bi := slices.Index(types, "Boolean"); bi >= 0 {
		if !present && spec.Default == nil {
			v = false
		} else if s, ok := v.(string); ok && (s == "" || s == hyphenate(name)) {
			if si := slices.Index(types, "String"); si < 0 || bi < si {
				v = true
			}
		}
	}
	if v == nil && spec.Default != nil {
		v = spec.Default
		if fn, ok := v.(func() any); ok {
			v = fn()
		}
	}

	switch {
	case spec.Required && !present:
		i.warn(errors.New("E181").WithDetailf("prop %q", name))
	case v == nil:
	case len(types) > 0 && !slices.ContainsFunc(types, func(t string) bool { return isKind(v, t) }):
		i.warn(errors.New("E182").WithDetailf("prop %q: expected %s, got %T", name, spec.Type, v))
	case spec.Validator != nil && !spec.Validator(v):
		i.warn(errors.New("E183").WithDetailf("prop %q", name))
	}
	return v
}

func propTypes(t string) []string {
	if t == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(t, "|") {
		if p = strings.TrimSpace(p); p != "" && p != "Any" {
			out = append(out, p)
		}
	}
	return out
}

func isKind(v any, typ string) bool {
	switch typ {
	case "String":
		_, ok := v.(string)
		return ok
	case "Boolean":
		_, ok := v.(bool)
		return ok
	case "Object":
		switch v.(type) {
		case *reactive.Record, map[string]any:
			return true
		}
		return false
	case "Array":
		if _, ok := v.(*reactive.List); ok {
			return true
		}
		k := reflect.ValueOf(v).Kind()
		return k == reflect.Slice || k == reflect.Array
	case "Function":
		if _, ok := v.(template.Func); ok {
			return true
		}
		return reflect.ValueOf(v).Kind() == reflect.Func
	case "Number":
		switch reflect.ValueOf(v).Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
			reflect.Float32, reflect.Float64:
			return true
		}
		return false
	}
	return true
}

// bindExternalClasses resolves the class names a parent passes for each
// declared external class against the parent's style table. Later class
// names win.
func (i *Instance) bindExternalClasses(b *binding) {
	for _, name := range i.def.ExternalClasses {
		key, present := lookupAttr(b.node.Attr, camelize(name))
		if !present {
			key, present = lookupAttr(b.node.Attr, name)
		}
		if !present {
			continue
		}
		selector := "." + name
		resolve := func(v any) {
			merged := make(map[string]any)
			for _, c := range classList(v) {
				maps.Copy(merged, b.parent.classStyle(c))
			}
			i.external.Set(selector, merged)
		}
		raw := b.node.Attr[key]
		if !template.IsDynamic(raw) {
			resolve(raw)
			continue
		}
		w := b.parent.evalWatcher("external class "+name, raw, b.scope, func(v, _ any) {
			resolve(v)
		})
		i.parentWatchers = append(i.parentWatchers, w)
		resolve(w.Value())
	}
}

// classStyle returns the declarations for class c from the instance's
// style table and the external classes its parent supplied.
func (i *Instance) classStyle(c string) map[string]any {
	out := make(map[string]any)
	if decl, ok := i.def.Styles["."+c]; ok {
		maps.Copy(out, decl)
	} else if decl, ok := i.def.Styles[c]; ok {
		maps.Copy(out, decl)
	}
	if ext, ok := i.external.Get("." + c).(*reactive.Record); ok {
		for _, k := range ext.Keys() {
			out[k] = ext.Get(k)
		}
	}
	return out
}

// classList normalizes a class value: a space separated string or a list.
func classList(v any) []string {
	switch c := v.(type) {
	case nil:
		return nil
	case string:
		return strings.Fields(c)
	case []string:
		return c
	case *reactive.List:
		return classList(c.Items())
	case []any:
		var out []string
		for _, item := range c {
			out = append(out, classList(item)...)
		}
		return out
	}
	return strings.Fields(template.String(v))
}

// hyphenate turns fooBar into foo-bar.
func hyphenate(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// camelize turns foo-bar into fooBar.
func camelize(s string) string {
	parts := strings.Split(s, "-")
	for i := 1; i < len(parts); i++ {
		if parts[i] != "" {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return strings.Join(parts, "")
}
