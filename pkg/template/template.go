// Package template describes component templates: the node tree the
// reconciler walks, the accessor functions dynamic values are compiled
// into, and the YAML bundle format component definitions are loaded from.
package template

import (
	"fmt"
	"strings"

	"github.com/vango-dev/xvm/pkg/reactive"
)

// Scope is what expressions evaluate against: a component instance, or
// a repeat item layered over one.
type Scope interface {
	// Get resolves a name. Reads are tracked.
	Get(name string) any

	// Has reports whether name resolves.
	Has(name string) bool

	// Set writes a data key or repeat variable.
	Set(name string, v any) error

	// Call invokes a method.
	Call(name string, args ...any) (any, error)

	// Emit raises a component event.
	Emit(name string, detail any)
}

// Expr is a compiled dynamic value.
type Expr func(Scope) (any, error)

// Event is passed to handlers.
type Event struct {
	Type   string
	Detail any
	Target any
}

// Handler is a compiled event handler or method body.
type Handler func(Scope, Event) (any, error)

// Func is a callable a scope exposes by name, such as a component
// method.
type Func func(args ...any) (any, error)

// Const returns an Expr that always yields v.
func Const(v any) Expr {
	return func(Scope) (any, error) { return v, nil }
}

// Bind adapts an infallible accessor.
func Bind(fn func(Scope) any) Expr {
	return func(s Scope) (any, error) { return fn(s), nil }
}

// Path returns an Expr resolving a dotted path such as "user.name". The
// first segment is looked up in the scope, the rest in nested records and
// maps. Missing segments yield nil.
func Path(path string) Expr {
	parts := strings.Split(path, ".")
	return func(s Scope) (any, error) {
		v := s.Get(parts[0])
		for _, p := range parts[1:] {
			v = field(v, p)
		}
		return v, nil
	}
}

func field(v any, key string) any {
	switch c := v.(type) {
	case *reactive.Record:
		return c.Get(key)
	case map[string]any:
		return c[key]
	}
	return nil
}

// Eval returns v evaluated in s when it is dynamic, or v itself.
func Eval(v any, s Scope) (any, error) {
	switch e := v.(type) {
	case Expr:
		return e(s)
	case func(Scope) (any, error):
		return e(s)
	}
	return v, nil
}

// IsDynamic reports whether v must be evaluated.
func IsDynamic(v any) bool {
	switch v.(type) {
	case Expr, func(Scope) (any, error):
		return true
	}
	return false
}

// Truthy applies the template truthiness rules: nil, false, zero numbers,
// the empty string and empty collections are false.
func Truthy(v any) bool {
	switch c := v.(type) {
	case nil:
		return false
	case bool:
		return c
	case string:
		return c != ""
	case *reactive.List:
		return true
	case *reactive.Record:
		return true
	case []any:
		return true
	case map[string]any:
		return true
	}
	if f, ok := number(v); ok {
		return f != 0
	}
	return true
}

// String renders a value the way text content shows it.
func String(v any) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return c
	case float64:
		if c == float64(int64(c)) {
			return fmt.Sprintf("%d", int64(c))
		}
	}
	return fmt.Sprint(reactive.Unwrap(v))
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
