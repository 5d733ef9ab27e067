package vm

import (
	"maps"
	"slices"
	"strings"

	"github.com/vango-dev/xvm/internal/errors"
	"github.com/vango-dev/xvm/pkg/reactive"
)

// reservedKey reports whether a data key collides with framework names.
func reservedKey(k string) bool {
	return strings.HasPrefix(k, "$") || strings.HasPrefix(k, "_")
}

// initData builds the data record from the definition, app data and, on
// a root instance, external data. Reserved keys and keys shadowing props
// are dropped with a warning.
func (i *Instance) initData(boot *BootstrapOptions) {
	data := make(map[string]any)
	switch d := i.def.Data.(type) {
	case map[string]any:
		maps.Copy(data, d)
	case func() map[string]any:
		maps.Copy(data, d())
	}
	maps.Copy(data, i.page.app.data)
	if boot != nil && i.parent == nil {
		i.applyExternal(data, boot.Data, !boot.Internal)
	}

	for _, k := range slices.Sorted(maps.Keys(data)) {
		if reservedKey(k) {
			i.warn(errors.New("E184").WithDetailf("data key %q", k))
			continue
		}
		if hasKey(i.props, k) {
			i.warn(errors.New("E185").WithDetailf("data key %q", k))
			continue
		}
		i.data.Set(k, data[k])
	}
	i.data.Observer().AddOwner(i)
}

// applyExternal merges external data into data. Without an access table
// every key is taken. With one, only declared keys are taken: data from
// outside the app may set public keys, data from the app itself public
// and protected keys.
func (i *Instance) applyExternal(data, ext map[string]any, fromExternal bool) {
	if len(ext) == 0 {
		return
	}
	if i.def.Access == nil {
		maps.Copy(data, ext)
		return
	}
	for _, k := range slices.Sorted(maps.Keys(ext)) {
		level, ok := i.def.Access[k]
		if !ok {
			i.warn(errors.New("E186").WithDetailf("key %q is not declared", k))
			continue
		}
		rank, ok := accessRank[level]
		if !ok {
			rank = accessRank[AccessPrivate]
		}
		if (fromExternal && rank > 0) || (!fromExternal && rank > 1) {
			i.warn(errors.New("E186").WithDetailf("key %q is %s", k, level))
			continue
		}
		data[k] = ext[k]
	}
}

// initState installs methods and computed values. A method named like a
// computed value is dropped.
func (i *Instance) initState() {
	for _, name := range slices.Sorted(maps.Keys(i.def.Methods)) {
		if IsLifecycle(name) {
			continue
		}
		if _, ok := i.def.Computed[name]; ok {
			i.warn(errors.Newf(errors.CategoryCompile, "Method %q is hidden by a computed value", name))
			continue
		}
		if hasKey(i.data, name) {
			i.warn(errors.Newf(errors.CategoryCompile, "Method %q shadows a data key", name))
		}
		i.methods[name] = i.def.Methods[name]
	}

	for _, name := range slices.Sorted(maps.Keys(i.def.Computed)) {
		expr := i.def.Computed[name]
		w := reactive.NewWatcher(func() (any, error) {
			return expr(i)
		}, reactive.WatcherOptions{
			Lazy:        true,
			Description: i.typ + ": computed " + name,
			Owner:       i,
		})
		i.computed[name] = w
		i.watchers = append(i.watchers, w)
	}
}

// initDirectives merges app directives with the definition's. Names are
// case-insensitive.
func (i *Instance) initDirectives() {
	maps.Copy(i.directives, i.page.app.directives)
	for name, d := range i.def.Directives {
		i.directives[strings.ToLower(name)] = d
	}
}
